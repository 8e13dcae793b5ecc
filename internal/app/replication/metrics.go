package replication

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics defines the metric operations needed by the job engine and its
// collaborators.
type Metrics interface {
	// IncJobStarted counts job starts.
	IncJobStarted(ctx context.Context)

	// ObserveJobDuration records total job duration labeled by exit code.
	ObserveJobDuration(ctx context.Context, exitCode int, duration time.Duration)

	// ObserveCommandDuration records one external tool invocation labeled by
	// command and exit code; the instrument is selected by tool.
	ObserveCommandDuration(ctx context.Context, tool, command string, exitCode int, duration time.Duration)

	// IncObjectOp counts object store operations by kind ("get" or "put").
	IncObjectOp(ctx context.Context, kind string)

	// IncS3Error counts object store failures by operation kind.
	IncS3Error(ctx context.Context, kind string)
}

// BucketsConfig holds the explicit histogram bucket boundaries in seconds.
type BucketsConfig struct {
	JobDurationSeconds     []float64
	CommandDurationSeconds []float64
}

type replicationMetrics struct {
	jobCount       metric.Int64Counter
	jobDuration    metric.Float64Histogram
	osmdbtDuration metric.Float64Histogram
	osmiumDuration metric.Float64Histogram
	objectsCount   metric.Int64Counter
	s3ErrorCount   metric.Int64Counter
}

const namespace = "courier"

// NewMetrics creates the engine metrics over the given meter provider.
func NewMetrics(mp metric.MeterProvider, buckets BucketsConfig) (Metrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(replicationMetrics)
	var err error

	if m.jobCount, err = meter.Int64Counter(
		"osmdbt_job_count",
		metric.WithDescription("Total number of replication jobs started"),
	); err != nil {
		return nil, err
	}

	if m.jobDuration, err = meter.Float64Histogram(
		"osmdbt_job_duration_seconds",
		metric.WithDescription("Total duration of replication jobs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets.JobDurationSeconds...),
	); err != nil {
		return nil, err
	}

	if m.osmdbtDuration, err = meter.Float64Histogram(
		"osmdbt_osmdbt_command_duration_seconds",
		metric.WithDescription("Duration of osmdbt tool invocations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets.CommandDurationSeconds...),
	); err != nil {
		return nil, err
	}

	if m.osmiumDuration, err = meter.Float64Histogram(
		"osmdbt_osmium_command_duration_seconds",
		metric.WithDescription("Duration of osmium tool invocations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets.CommandDurationSeconds...),
	); err != nil {
		return nil, err
	}

	if m.objectsCount, err = meter.Int64Counter(
		"osmdbt_objects_count",
		metric.WithDescription("Total number of object store operations"),
	); err != nil {
		return nil, err
	}

	if m.s3ErrorCount, err = meter.Int64Counter(
		"osmdbt_s3_error_count",
		metric.WithDescription("Total number of object store failures"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *replicationMetrics) IncJobStarted(ctx context.Context) {
	m.jobCount.Add(ctx, 1)
}

func (m *replicationMetrics) ObserveJobDuration(ctx context.Context, exitCode int, duration time.Duration) {
	m.jobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("exitCode", strconv.Itoa(exitCode)),
	))
}

func (m *replicationMetrics) ObserveCommandDuration(ctx context.Context, tool, command string, exitCode int, duration time.Duration) {
	hist := m.osmdbtDuration
	if tool == "osmium" {
		hist = m.osmiumDuration
	}
	hist.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("exitCode", strconv.Itoa(exitCode)),
	))
}

func (m *replicationMetrics) IncObjectOp(ctx context.Context, kind string) {
	m.objectsCount.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *replicationMetrics) IncS3Error(ctx context.Context, kind string) {
	m.s3ErrorCount.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
