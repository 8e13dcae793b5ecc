// Package config loads and validates the service configuration.
package config

// Config is the top-level configuration for the service.
type Config struct {
	Osmdbt        OsmdbtConfig    `mapstructure:"osmdbt"`
	Osmium        OsmiumConfig    `mapstructure:"osmium"`
	App           AppConfig       `mapstructure:"app"`
	ObjectStorage StorageConfig   `mapstructure:"objectStorage"`
	Arstotzka     ArstotzkaConfig `mapstructure:"arstotzka"`
	Telemetry     TelemetryConfig `mapstructure:"telemetry"`
}

// OsmdbtConfig holds tool and staging paths plus the log-cutter budget.
type OsmdbtConfig struct {
	BinPath          string `mapstructure:"binPath" validate:"required"`
	ConfigPath       string `mapstructure:"configPath" validate:"required"`
	ChangesDir       string `mapstructure:"changesDir" validate:"required"`
	RunDir           string `mapstructure:"runDir" validate:"required"`
	LogDir           string `mapstructure:"logDir" validate:"required"`
	GetLogMaxChanges int    `mapstructure:"getLogMaxChanges" validate:"gt=0"`
	Verbose          bool   `mapstructure:"verbose"`
}

// OsmiumConfig holds inspector flags.
type OsmiumConfig struct {
	Verbose  bool `mapstructure:"verbose"`
	Progress bool `mapstructure:"progress"`
}

// AppConfig selects the scheduler mode and job behavior.
type AppConfig struct {
	ShouldCollectInfo      bool       `mapstructure:"shouldCollectInfo"`
	ShutdownTimeoutSeconds int        `mapstructure:"shutdownTimeoutSeconds" validate:"gt=0"`
	LivenessAddr           string     `mapstructure:"livenessAddr"`
	Cron                   CronConfig `mapstructure:"cron"`
}

// CronConfig configures the recurring scheduler mode.
type CronConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	Expression            string `mapstructure:"expression" validate:"required_if=Enabled true"`
	FailurePenaltySeconds int    `mapstructure:"failurePenaltySeconds" validate:"gte=0"`
}

// StorageConfig configures the object store client.
type StorageConfig struct {
	Endpoint     string            `mapstructure:"endpoint" validate:"required"`
	BucketName   string            `mapstructure:"bucketName" validate:"required"`
	ACL          string            `mapstructure:"acl"`
	Region       string            `mapstructure:"region"`
	UseSSL       bool              `mapstructure:"useSSL"`
	EnsureBucket bool              `mapstructure:"ensureBucket"`
	Credentials  CredentialsConfig `mapstructure:"credentials"`
}

// CredentialsConfig holds object store credentials.
type CredentialsConfig struct {
	AccessKey string `mapstructure:"accessKey" validate:"required"`
	SecretKey string `mapstructure:"secretKey" validate:"required"`
}

// ArstotzkaConfig configures the cross-service mediator connection.
type ArstotzkaConfig struct {
	Enabled   bool           `mapstructure:"enabled"`
	ServiceID string         `mapstructure:"serviceId" validate:"required_if=Enabled true"`
	Mediator  MediatorConfig `mapstructure:"mediator"`
}

// MediatorConfig holds mediator client options.
type MediatorConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds" validate:"gt=0"`
	Retries        int    `mapstructure:"retries" validate:"gte=0"`
}

// TelemetryConfig configures logging, tracing and metric buckets.
type TelemetryConfig struct {
	Logger  LoggerConfig  `mapstructure:"logger"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggerConfig configures the structured logger.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	URL     string  `mapstructure:"url" validate:"required_if=Enabled true"`
	Ratio   float64 `mapstructure:"ratio" validate:"gte=0,lte=1"`
}

// MetricsConfig carries the histogram bucket boundaries.
type MetricsConfig struct {
	Buckets BucketsConfig `mapstructure:"buckets"`
}

// BucketsConfig holds explicit bucket boundaries in seconds.
type BucketsConfig struct {
	OsmdbtJobDurationSeconds     []float64 `mapstructure:"osmdbtJobDurationSeconds"`
	OsmdbtCommandDurationSeconds []float64 `mapstructure:"osmdbtCommandDurationSeconds"`
}
