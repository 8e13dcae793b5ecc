// Package scheduler invokes the job engine either once or on a cron
// schedule. In both modes overlapping invocations are suppressed so a long
// job is never re-entered by a subsequent tick.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ahrav/osmdbt-courier/pkg/common/logger"
)

// JobExecutor runs one replication job.
type JobExecutor interface {
	ExecuteJob(ctx context.Context) error
}

// Config selects the scheduler mode.
type Config struct {
	CronEnabled    bool
	CronExpression string
	FailurePenalty time.Duration
}

// Scheduler drives the job engine.
type Scheduler struct {
	cfg    Config
	engine JobExecutor
	logger *logger.Logger
}

// New creates a scheduler for the engine.
func New(cfg Config, engine JobExecutor, log *logger.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, engine: engine, logger: log}
}

// Run blocks until the work is done. In one-shot mode it executes a single
// job and returns its result. In cron mode it runs jobs on each tick until
// ctx is cancelled; after a failed job it sleeps the configured penalty
// before accepting the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.cfg.CronEnabled {
		s.logger.Info(ctx, "running single job")
		return s.engine.ExecuteJob(ctx)
	}

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger{ctx: ctx, logger: s.logger}),
	))

	_, err := c.AddFunc(s.cfg.CronExpression, func() {
		if err := s.engine.ExecuteJob(ctx); err != nil {
			s.logger.Error(ctx, "scheduled job failed, applying penalty",
				"penalty", s.cfg.FailurePenalty, "error", err)
			// Holding the entry keeps SkipIfStillRunning suppressing ticks
			// for the duration of the penalty.
			select {
			case <-time.After(s.cfg.FailurePenalty):
			case <-ctx.Done():
			}
		}
	})
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", s.cfg.CronExpression, err)
	}

	s.logger.Info(ctx, "starting cron scheduler", "expression", s.cfg.CronExpression)
	c.Start()

	<-ctx.Done()

	// Stop accepting ticks and wait for the in-flight job to finish.
	stopCtx := c.Stop()
	<-stopCtx.Done()

	return nil
}

// cronLogger adapts the service logger to the cron logging interface.
type cronLogger struct {
	ctx    context.Context
	logger *logger.Logger
}

func (l cronLogger) Info(msg string, kv ...any) {
	l.logger.Info(l.ctx, msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.logger.Error(l.ctx, msg, append(kv, "error", err)...)
}
