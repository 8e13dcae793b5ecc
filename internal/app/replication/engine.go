// Package replication contains the job engine that drives one replication
// job from lease acquisition to publication and catch-up.
package replication

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	domain "github.com/ahrav/osmdbt-courier/internal/domain/replication"
	"github.com/ahrav/osmdbt-courier/internal/infra/mediator"
	"github.com/ahrav/osmdbt-courier/pkg/common/logger"
)

// FilesystemStore performs file operations on the local staging tree.
type FilesystemStore interface {
	MkdirAll(path string) error
	ReadFile(path string) ([]byte, error)
	ReadFileText(path string) (string, error)
	WriteFile(path string, data []byte) error
	ReadDir(path string) ([]string, error)
	Rename(oldPath, newPath string) error
	Unlink(path string) error
}

// ObjectStore reads and writes published artifacts.
type ObjectStore interface {
	GetObjectText(ctx context.Context, key string) (string, error)
	PutObject(ctx context.Context, key string, data []byte) error
}

// ToolRunner invokes the external replication tools.
type ToolRunner interface {
	GetLog(ctx context.Context) (string, error)
	CreateDiff(ctx context.Context) (string, error)
	Catchup(ctx context.Context) (string, error)
	FileInfo(ctx context.Context, diffPath string) (string, error)
}

// doneSuffix marks log files consumed by the diff-builder but not yet
// applied to the replication slot.
const doneSuffix = ".done"

// Config holds the engine's staging paths and job options.
type Config struct {
	ChangesDir        string
	RunDir            string
	LogDir            string
	ShouldCollectInfo bool
}

// Engine executes replication jobs. At most one job runs at a time within a
// process; overlapping invocations return immediately.
type Engine struct {
	cfg Config

	fs    FilesystemStore
	store ObjectStore
	tools ToolRunner
	med   mediator.Mediator

	active atomic.Bool

	logger  *logger.Logger
	metrics Metrics
	tracer  trace.Tracer
}

// NewEngine creates a job engine composing the given collaborators.
func NewEngine(
	cfg Config,
	fs FilesystemStore,
	store ObjectStore,
	tools ToolRunner,
	med mediator.Mediator,
	log *logger.Logger,
	metrics Metrics,
	tracer trace.Tracer,
) *Engine {
	return &Engine{
		cfg:     cfg,
		fs:      fs,
		store:   store,
		tools:   tools,
		med:     med,
		logger:  log,
		metrics: metrics,
		tracer:  tracer,
	}
}

// ExecuteJob runs one replication job. When a job is already active the call
// returns immediately with a warning and no error. The returned error, if
// any, classifies via domain.ExitCode.
func (e *Engine) ExecuteJob(ctx context.Context) error {
	if !e.active.CompareAndSwap(false, true) {
		e.logger.Warn(ctx, "job already active, skipping invocation")
		return nil
	}
	defer e.active.Store(false)

	e.metrics.IncJobStarted(ctx)
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "job.execute")

	j := &job{engine: e, span: span}
	err := j.run(ctx)

	exitCode := domain.ExitCode(err)
	span.SetAttributes(
		attribute.Bool("job.rollback", j.rolledBack),
		attribute.Int64("job.state.start", int64(j.seqStart)),
		attribute.Int64("job.state.end", int64(j.seqEnd)),
		attribute.Int("job.exitcode", exitCode),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.KindOf(err).String())
		e.logger.Error(ctx, "job failed",
			"kind", domain.KindOf(err).String(), "exit_code", exitCode, "error", err)
	}
	span.End()

	e.metrics.ObserveJobDuration(ctx, exitCode, time.Since(start))

	return err
}

// job carries the state of one in-flight execution.
type job struct {
	engine *Engine
	span   trace.Span

	seqStart uint64
	seqEnd   uint64

	actionID      uuid.UUID
	actionCreated bool
	rolledBack    bool
}

func (j *job) run(ctx context.Context) error {
	e := j.engine

	// Phase 1: reserve the cross-service lease.
	if err := j.phase(ctx, "job.reserve", func(ctx context.Context) error {
		return e.med.ReserveAccess(ctx)
	}); err != nil {
		return fmt.Errorf("reserving access: %w", err)
	}

	// Phase 2: prepare the staging tree.
	if err := j.phase(ctx, "job.prepare", j.prepareStaging); err != nil {
		return err
	}

	// Phase 3: pull the remote pointer into the working and backup copies.
	if err := j.phase(ctx, "job.pull", j.pullState); err != nil {
		return err
	}

	// Phase 4: read the start sequence.
	if err := j.phase(ctx, "job.read_start", func(ctx context.Context) error {
		n, err := j.readSequence()
		if err != nil {
			return err
		}
		j.seqStart = n
		j.seqEnd = n
		return nil
	}); err != nil {
		return err
	}

	// Phase 5: produce logs and the diff.
	if err := j.phase(ctx, "job.produce", func(ctx context.Context) error {
		if _, err := e.tools.GetLog(ctx); err != nil {
			return err
		}
		_, err := e.tools.CreateDiff(ctx)
		return err
	}); err != nil {
		return err
	}

	// Phase 6: read the end sequence.
	if err := j.phase(ctx, "job.read_end", func(ctx context.Context) error {
		n, err := j.readSequence()
		if err != nil {
			return err
		}
		j.seqEnd = n
		return nil
	}); err != nil {
		return err
	}

	// Phase 7: null-diff short-circuit. Nothing was committed, so the lease
	// release is best-effort and the job is a success.
	if j.seqStart == j.seqEnd {
		e.logger.Info(ctx, "no new changes, skipping publication", "sequence", j.seqStart)
		j.span.AddEvent("null_diff")
		j.removeLock(ctx)
		return nil
	}

	e.logger.Info(ctx, "advancing sequence", "start", j.seqStart, "end", j.seqEnd)

	// Phase 8: announce the action.
	if err := j.phase(ctx, "job.announce", func(ctx context.Context) error {
		actionID, err := e.med.CreateAction(ctx, j.seqEnd)
		if err != nil {
			return err
		}
		j.actionID = actionID
		j.actionCreated = true
		return nil
	}); err != nil {
		return fmt.Errorf("creating action: %w", err)
	}

	// Phase 9: release the lease. Post-phase-9 work is protected only by the
	// single-flight guard within this process.
	j.removeLock(ctx)

	// Phase 10: publish the per-sequence artifacts, then the pointer. The
	// pointer has not been overwritten until the final put, so failures here
	// need no rollback.
	if err := j.phase(ctx, "job.publish", j.publish); err != nil {
		j.failAction(ctx, err)
		return err
	}

	// Phase 11: mark logs and catch up the replication slot. The pointer is
	// already the new one; a failure here rolls it back.
	if err := j.phase(ctx, "job.commit", j.commit); err != nil {
		if rbErr := j.rollback(ctx); rbErr != nil {
			j.failAction(ctx, rbErr)
			return rbErr
		}
		j.failAction(ctx, err)
		return err
	}

	// Phase 12: remove the applied logs. The replication slot has advanced,
	// so failures fail the job without rollback.
	if err := j.phase(ctx, "job.cleanup", j.cleanupLogs); err != nil {
		j.failAction(ctx, err)
		return err
	}

	// Phase 13: best-effort diff introspection.
	metadata := j.collectInfo(ctx)

	// Phase 14: finalize the action.
	if err := j.phase(ctx, "job.finalize", func(ctx context.Context) error {
		return e.med.UpdateAction(ctx, j.actionID, mediator.StatusCompleted, metadata)
	}); err != nil {
		return fmt.Errorf("finalizing action: %w", err)
	}

	e.logger.Info(ctx, "job completed", "sequence", j.seqEnd)
	return nil
}

// phase runs fn under a nested span named after the phase.
func (j *job) phase(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := j.engine.tracer.Start(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name)
		return err
	}
	return nil
}

func (j *job) prepareStaging(ctx context.Context) error {
	e := j.engine

	dirs := map[string]struct{}{
		e.cfg.LogDir:     {},
		e.cfg.ChangesDir: {},
		e.cfg.RunDir:     {},
		j.backupDir():    {},
	}

	var g errgroup.Group
	for dir := range dirs {
		dir := dir
		g.Go(func() error { return e.fs.MkdirAll(dir) })
	}
	return g.Wait()
}

func (j *job) pullState(ctx context.Context) error {
	e := j.engine

	content, err := e.store.GetObjectText(ctx, domain.PointerKey)
	if err != nil {
		return err
	}

	var g errgroup.Group
	for _, path := range []string{j.statePath(), j.backupStatePath()} {
		path := path
		g.Go(func() error { return e.fs.WriteFile(path, []byte(content)) })
	}
	return g.Wait()
}

func (j *job) readSequence() (uint64, error) {
	content, err := j.engine.fs.ReadFileText(j.statePath())
	if err != nil {
		return 0, err
	}
	return domain.ParseSequence(content)
}

func (j *job) publish(ctx context.Context) error {
	e := j.engine
	top, mid, leaf := domain.PublishPath(j.seqEnd)

	localState := filepath.Join(e.cfg.ChangesDir, top, mid, leaf+".state.txt")
	localDiff := filepath.Join(e.cfg.ChangesDir, top, mid, leaf+".osc.gz")

	uploads := []struct {
		local string
		key   string
	}{
		{localState, domain.StateKey(j.seqEnd)},
		{localDiff, domain.DiffKey(j.seqEnd)},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range uploads {
		u := u
		g.Go(func() error {
			data, err := e.fs.ReadFile(u.local)
			if err != nil {
				return err
			}
			return e.store.PutObject(gctx, u.key, data)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// The pointer moves only after both per-sequence artifacts exist, so no
	// observer ever reads a pointer advertising a missing diff.
	pointer, err := e.fs.ReadFile(j.statePath())
	if err != nil {
		return err
	}
	return e.store.PutObject(ctx, domain.PointerKey, pointer)
}

func (j *job) commit(ctx context.Context) error {
	e := j.engine

	names, err := e.fs.ReadDir(e.cfg.LogDir)
	if err != nil {
		return err
	}

	var g errgroup.Group
	for _, name := range names {
		if !strings.HasSuffix(name, doneSuffix) {
			continue
		}
		name := name
		g.Go(func() error {
			oldPath := filepath.Join(e.cfg.LogDir, name)
			newPath := filepath.Join(e.cfg.LogDir, strings.TrimSuffix(name, doneSuffix))
			return e.fs.Rename(oldPath, newPath)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	_, err = e.tools.Catchup(ctx)
	return err
}

func (j *job) cleanupLogs(ctx context.Context) error {
	e := j.engine

	names, err := e.fs.ReadDir(e.cfg.LogDir)
	if err != nil {
		return err
	}

	var g errgroup.Group
	for _, name := range names {
		name := name
		g.Go(func() error { return e.fs.Unlink(filepath.Join(e.cfg.LogDir, name)) })
	}
	return g.Wait()
}

// collectInfo runs the inspector over the new diff. Failures are swallowed;
// the action completes without info.
func (j *job) collectInfo(ctx context.Context) map[string]any {
	e := j.engine
	if !e.cfg.ShouldCollectInfo {
		return nil
	}

	ctx, span := e.tracer.Start(ctx, "job.collect_info")
	defer span.End()

	top, mid, leaf := domain.PublishPath(j.seqEnd)
	diffPath := filepath.Join(e.cfg.ChangesDir, top, mid, leaf+".osc.gz")

	out, err := e.tools.FileInfo(ctx, diffPath)
	if err != nil {
		span.RecordError(err)
		e.logger.Warn(ctx, "diff introspection failed", "error", err)
		return nil
	}

	var info map[string]any
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		span.RecordError(err)
		e.logger.Warn(ctx, "unparseable diff introspection output", "error", err)
		return nil
	}

	return map[string]any{"info": info}
}

// rollback restores the remote pointer from the pre-job backup. A failure
// here is the most severe outcome and requires manual inspection.
func (j *job) rollback(ctx context.Context) error {
	e := j.engine

	err := j.phase(ctx, "job.rollback", func(ctx context.Context) error {
		backup, err := e.fs.ReadFile(j.backupStatePath())
		if err != nil {
			return err
		}
		return e.store.PutObject(ctx, domain.PointerKey, backup)
	})
	if err != nil {
		e.logger.Error(ctx, "ROLLBACK FAILED: remote pointer may be inconsistent, manual intervention required",
			"start", j.seqStart, "end", j.seqEnd, "error", err)
		return domain.NewError(domain.KindRollback, err)
	}

	j.rolledBack = true
	j.seqEnd = j.seqStart
	e.logger.Warn(ctx, "rolled back remote pointer", "sequence", j.seqStart)
	return nil
}

// removeLock releases the mediator lease. Errors are swallowed.
func (j *job) removeLock(ctx context.Context) {
	if err := j.engine.med.RemoveLock(ctx); err != nil {
		j.engine.logger.Warn(ctx, "failed to release mediator lock", "error", err)
	}
}

// failAction transitions the action to FAILED. Errors are swallowed.
func (j *job) failAction(ctx context.Context, jobErr error) {
	if !j.actionCreated {
		return
	}
	metadata := map[string]any{"error": jobErr.Error()}
	if err := j.engine.med.UpdateAction(ctx, j.actionID, mediator.StatusFailed, metadata); err != nil {
		j.engine.logger.Warn(ctx, "failed to mark action as failed", "error", err)
	}
}

func (j *job) statePath() string {
	return filepath.Join(j.engine.cfg.ChangesDir, "state.txt")
}

func (j *job) backupDir() string {
	return filepath.Join(j.engine.cfg.ChangesDir, "backup")
}

func (j *job) backupStatePath() string {
	return filepath.Join(j.backupDir(), "state.txt")
}
