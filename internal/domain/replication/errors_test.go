package replication

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil is success", nil, ExitOK},
		{"untagged is general", errors.New("boom"), ExitGeneral},
		{"tool", NewError(KindTool, errors.New("exit 1")), ExitTool},
		{"inspector", NewError(KindInspector, errors.New("exit 1")), ExitInspector},
		{"invalid state", NewError(KindInvalidState, errors.New("no sequenceNumber")), ExitInvalidState},
		{"rollback", NewError(KindRollback, errors.New("put failed")), ExitRollback},
		{"s3", NewError(KindS3, errors.New("connection reset")), ExitS3},
		{"fs", NewError(KindFS, errors.New("permission denied")), ExitFS},
		{"terminated", NewError(KindTerminated, errors.New("signal")), ExitTerminated},
		{"wrapped keeps kind", fmt.Errorf("outer: %w", NewError(KindS3, errors.New("inner"))), ExitS3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("disk full")
	err := NewError(KindFS, fmt.Errorf("write state.txt: %w", inner))

	assert.True(t, errors.Is(err, inner))
	assert.Equal(t, KindFS, KindOf(err))
	assert.Contains(t, err.Error(), "FSError")
	assert.Contains(t, err.Error(), "disk full")
}
