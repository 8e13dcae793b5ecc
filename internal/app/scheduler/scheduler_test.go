package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/osmdbt-courier/pkg/common/logger"
)

type countingExecutor struct {
	calls atomic.Int32
	err   error
	block chan struct{}
}

func (e *countingExecutor) ExecuteJob(ctx context.Context) error {
	e.calls.Add(1)
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
		}
	}
	return e.err
}

func TestRunOneShot(t *testing.T) {
	exec := &countingExecutor{}
	s := New(Config{CronEnabled: false}, exec, logger.Noop())

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, int32(1), exec.calls.Load())
}

func TestRunOneShotPropagatesError(t *testing.T) {
	wantErr := errors.New("catchup failed")
	exec := &countingExecutor{err: wantErr}
	s := New(Config{CronEnabled: false}, exec, logger.Noop())

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

func TestRunCronRejectsBadExpression(t *testing.T) {
	exec := &countingExecutor{}
	s := New(Config{CronEnabled: true, CronExpression: "not a cron"}, exec, logger.Noop())

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing cron expression")
}

func TestRunCronStopsOnContextCancel(t *testing.T) {
	exec := &countingExecutor{}
	s := New(Config{CronEnabled: true, CronExpression: "* * * * *"}, exec, logger.Noop())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}
