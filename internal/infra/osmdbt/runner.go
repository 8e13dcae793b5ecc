// Package osmdbt runs the external replication tools (osmdbt and osmium)
// and captures their output. Tool invocations are sequential and blocking;
// the runner owns argv construction and exit classification.
package osmdbt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/osmdbt-courier/internal/domain/replication"
	"github.com/ahrav/osmdbt-courier/pkg/common/logger"
)

const (
	toolOsmdbt = "osmdbt"
	toolOsmium = "osmium"

	cmdGetLog     = "get-log"
	cmdCreateDiff = "create-diff"
	cmdCatchup    = "catchup"
	cmdFileInfo   = "fileinfo"
)

// metrics defines the metric operations recorded per invocation.
type metrics interface {
	// ObserveCommandDuration records the wall time of one tool invocation,
	// labeled by tool, command, and exit code.
	ObserveCommandDuration(ctx context.Context, tool, command string, exitCode int, duration time.Duration)
}

// Config holds the tool binaries location and global flags.
type Config struct {
	// BinPath is the directory containing the osmdbt binaries. Osmium is
	// resolved from PATH.
	BinPath string

	// ConfigPath is the osmdbt tool config passed to every command via -c.
	ConfigPath string

	// GetLogMaxChanges bounds how many changes one get-log call consumes.
	GetLogMaxChanges int

	// Verbose disables the -q flag on osmdbt commands.
	Verbose bool

	// OsmiumVerbose adds --verbose to osmium invocations.
	OsmiumVerbose bool

	// OsmiumProgress selects --progress over --no-progress.
	OsmiumProgress bool
}

// Runner spawns the external CLI tools.
type Runner struct {
	cfg Config

	logger  *logger.Logger
	metrics metrics
	tracer  trace.Tracer
}

// NewRunner creates a tool runner.
func NewRunner(cfg Config, log *logger.Logger, metrics metrics, tracer trace.Tracer) *Runner {
	return &Runner{cfg: cfg, logger: log, metrics: metrics, tracer: tracer}
}

// GetLog invokes the log-cutter. It writes log files to the log directory
// and advances the staging state file.
func (r *Runner) GetLog(ctx context.Context) (string, error) {
	args := r.osmdbtArgs()
	args = append(args, "-m", strconv.Itoa(r.cfg.GetLogMaxChanges))
	return r.run(ctx, toolOsmdbt, cmdGetLog, filepath.Join(r.cfg.BinPath, "osmdbt-get-log"), args, replication.KindTool)
}

// CreateDiff invokes the diff-builder. It produces the compressed diff under
// the changes directory and updates the staging state file.
func (r *Runner) CreateDiff(ctx context.Context) (string, error) {
	args := r.osmdbtArgs()
	return r.run(ctx, toolOsmdbt, cmdCreateDiff, filepath.Join(r.cfg.BinPath, "osmdbt-create-diff"), args, replication.KindTool)
}

// Catchup advances the database replication slot to match the consumed logs.
// This operation is irreversible.
func (r *Runner) Catchup(ctx context.Context) (string, error) {
	args := r.osmdbtArgs()
	return r.run(ctx, toolOsmdbt, cmdCatchup, filepath.Join(r.cfg.BinPath, "osmdbt-catchup"), args, replication.KindTool)
}

// FileInfo invokes the inspector on a diff file and returns its JSON output.
func (r *Runner) FileInfo(ctx context.Context, diffPath string) (string, error) {
	args := []string{cmdFileInfo}
	if r.cfg.OsmiumVerbose {
		args = append(args, "--verbose")
	}
	if r.cfg.OsmiumProgress {
		args = append(args, "--progress")
	} else {
		args = append(args, "--no-progress")
	}
	args = append(args, "--extended", "--json", diffPath)

	return r.run(ctx, toolOsmium, cmdFileInfo, "osmium", args, replication.KindInspector)
}

func (r *Runner) osmdbtArgs() []string {
	args := []string{"-c", r.cfg.ConfigPath}
	if !r.cfg.Verbose {
		args = append(args, "-q")
	}
	return args
}

func (r *Runner) run(ctx context.Context, tool, command, bin string, args []string, kind replication.Kind) (string, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("tool.%s.%s", tool, command),
		trace.WithAttributes(
			attribute.String("tool.bin", bin),
			attribute.StringSlice("tool.args", args),
		))
	defer span.End()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug(ctx, "running tool", "tool", tool, "command", command, "args", args)

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		exitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
	}
	span.SetAttributes(attribute.Int("tool.exit_code", exitCode))
	r.metrics.ObserveCommandDuration(ctx, tool, command, exitCode, duration)

	if err != nil {
		msg := stderr.String()
		if msg == "" {
			msg = fmt.Sprintf("%s %s failed with exit code %d", tool, command, exitCode)
		}
		span.RecordError(err)
		r.logger.Error(ctx, "tool failed",
			"tool", tool, "command", command, "exit_code", exitCode, "stderr", stderr.String())
		return "", replication.NewError(kind, fmt.Errorf("%s", msg))
	}

	r.logger.Debug(ctx, "tool finished", "tool", tool, "command", command, "duration", duration)
	return stdout.String(), nil
}
