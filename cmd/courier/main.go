package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	appreplication "github.com/ahrav/osmdbt-courier/internal/app/replication"
	"github.com/ahrav/osmdbt-courier/internal/app/scheduler"
	"github.com/ahrav/osmdbt-courier/internal/config"
	domain "github.com/ahrav/osmdbt-courier/internal/domain/replication"
	"github.com/ahrav/osmdbt-courier/internal/infra/mediator"
	"github.com/ahrav/osmdbt-courier/internal/infra/osmdbt"
	"github.com/ahrav/osmdbt-courier/internal/infra/storage/fs"
	"github.com/ahrav/osmdbt-courier/internal/infra/storage/s3"
	"github.com/ahrav/osmdbt-courier/pkg/common"
	"github.com/ahrav/osmdbt-courier/pkg/common/logger"
	"github.com/ahrav/osmdbt-courier/pkg/common/otel"
)

const serviceType = "osmdbt-courier"

func main() {
	_, _ = maxprocs.Set()

	configPath := flag.String("config", os.Getenv("COURIER_CONFIG"), "path to the service config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		os.Exit(domain.ExitGeneral)
	}

	hostname, err := os.Hostname()
	if err != nil {
		log.Printf("failed to get hostname: %v", err)
		os.Exit(domain.ExitGeneral)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("COURIER-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	lg := logger.NewWithMetadata(os.Stdout, logLevel(cfg.Telemetry.Logger.Level), svcName, traceIDFn, logEvents, metadata)

	os.Exit(run(cfg, lg, hostname))
}

// run wires the service and returns the process exit code. It is separate
// from main so deferred teardown runs before os.Exit.
func run(cfg *config.Config, lg *logger.Logger, hostname string) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	tp, telemetryTeardown, err := otel.InitTelemetry(lg, otel.Config{
		Enabled:          cfg.Telemetry.Tracing.Enabled,
		ServiceName:      serviceType,
		ExporterEndpoint: cfg.Telemetry.Tracing.URL,
		Probability:      cfg.Telemetry.Tracing.Ratio,
		ExcludedRoutes: map[string]struct{}{
			"/v1/health":    {},
			"/v1/readiness": {},
		},
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"host.name":        hostname,
		},
		InsecureExporter: true,
	})
	if err != nil {
		lg.Error(ctx, "failed to initialize telemetry", "error", err)
		return domain.ExitGeneral
	}
	defer telemetryTeardown(context.Background())

	tracer := tp.Tracer(serviceType)

	ready := &atomic.Bool{}
	healthServer := common.NewHealthServer(ready, cfg.App.LivenessAddr)

	metrics, err := appreplication.NewMetrics(otel.GetMeterProvider(), appreplication.BucketsConfig{
		JobDurationSeconds:     cfg.Telemetry.Metrics.Buckets.OsmdbtJobDurationSeconds,
		CommandDurationSeconds: cfg.Telemetry.Metrics.Buckets.OsmdbtCommandDurationSeconds,
	})
	if err != nil {
		lg.Error(ctx, "failed to create metrics", "error", err)
		return domain.ExitGeneral
	}

	objectStore, err := s3.NewStore(s3.Config{
		Endpoint:  cfg.ObjectStorage.Endpoint,
		Bucket:    cfg.ObjectStorage.BucketName,
		Region:    cfg.ObjectStorage.Region,
		ACL:       cfg.ObjectStorage.ACL,
		AccessKey: cfg.ObjectStorage.Credentials.AccessKey,
		SecretKey: cfg.ObjectStorage.Credentials.SecretKey,
		UseSSL:    cfg.ObjectStorage.UseSSL,
	}, lg, metrics, tracer)
	if err != nil {
		lg.Error(ctx, "failed to create object store", "error", err)
		return domain.ExitGeneral
	}

	if cfg.ObjectStorage.EnsureBucket {
		if err := objectStore.EnsureBucket(ctx); err != nil {
			lg.Error(ctx, "failed to ensure bucket", "error", err)
			return domain.ExitCode(err)
		}
	}

	var med mediator.Mediator = mediator.NewNoop()
	if cfg.Arstotzka.Enabled {
		med = mediator.NewClient(mediator.ClientConfig{
			URL:       cfg.Arstotzka.Mediator.URL,
			ServiceID: cfg.Arstotzka.ServiceID,
			Timeout:   time.Duration(cfg.Arstotzka.Mediator.TimeoutSeconds) * time.Second,
			Retries:   cfg.Arstotzka.Mediator.Retries,
		}, lg)
	}

	tools := osmdbt.NewRunner(osmdbt.Config{
		BinPath:          cfg.Osmdbt.BinPath,
		ConfigPath:       cfg.Osmdbt.ConfigPath,
		GetLogMaxChanges: cfg.Osmdbt.GetLogMaxChanges,
		Verbose:          cfg.Osmdbt.Verbose,
		OsmiumVerbose:    cfg.Osmium.Verbose,
		OsmiumProgress:   cfg.Osmium.Progress,
	}, lg, metrics, tracer)

	engine := appreplication.NewEngine(appreplication.Config{
		ChangesDir:        cfg.Osmdbt.ChangesDir,
		RunDir:            cfg.Osmdbt.RunDir,
		LogDir:            cfg.Osmdbt.LogDir,
		ShouldCollectInfo: cfg.App.ShouldCollectInfo,
	}, fs.NewStore(), objectStore, tools, med, lg, metrics, tracer)

	sched := scheduler.New(scheduler.Config{
		CronEnabled:    cfg.App.Cron.Enabled,
		CronExpression: cfg.App.Cron.Expression,
		FailurePenalty: time.Duration(cfg.App.Cron.FailurePenaltySeconds) * time.Second,
	}, engine, lg)

	ready.Store(true)
	lg.Info(ctx, "service initialized", "cron", cfg.App.Cron.Enabled)

	errCh := make(chan error, 1)
	go func() { errCh <- sched.Run(ctx) }()

	exitCode := domain.ExitOK

	select {
	case sig := <-sigCh:
		lg.Info(ctx, "received shutdown signal", "signal", sig.String())
		cancel()

		// Hard safety timer: self-terminate even if shutdown hooks hang.
		select {
		case err := <-errCh:
			exitCode = classify(ctx, lg, err)
		case <-time.After(time.Duration(cfg.App.ShutdownTimeoutSeconds) * time.Second):
			lg.Error(ctx, "shutdown timed out, terminating")
		}
		if exitCode == domain.ExitOK {
			exitCode = domain.ExitTerminated
		}

	case err := <-errCh:
		exitCode = classify(ctx, lg, err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.App.ShutdownTimeoutSeconds)*time.Second)
	defer shutdownCancel()
	if err := healthServer.Server().Shutdown(shutdownCtx); err != nil {
		lg.Error(shutdownCtx, "error shutting down health server", "error", err)
	}

	return exitCode
}

func classify(ctx context.Context, lg *logger.Logger, err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return domain.ExitOK
	}
	lg.Error(ctx, "job execution failed", "kind", domain.KindOf(err).String(), "error", err)
	return domain.ExitCode(err)
}

func logLevel(level string) logger.Level {
	switch level {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	}
	return logger.LevelInfo
}
