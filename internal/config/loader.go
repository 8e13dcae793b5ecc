package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional YAML file plus COURIER_* env
// overrides, applies defaults, and validates the result. An empty path skips
// the file and relies on env vars and defaults alone.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("COURIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.Arstotzka.Enabled && cfg.Arstotzka.Mediator.URL == "" {
		return nil, fmt.Errorf("validating config: arstotzka.mediator.url is required when arstotzka.enabled")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("osmdbt.binPath", "/usr/local/bin")
	v.SetDefault("osmdbt.configPath", "/etc/osmdbt/osmdbt-config.yaml")
	v.SetDefault("osmdbt.changesDir", "/var/lib/osmdbt/changes")
	v.SetDefault("osmdbt.runDir", "/var/lib/osmdbt/run")
	v.SetDefault("osmdbt.logDir", "/var/lib/osmdbt/log")
	v.SetDefault("osmdbt.getLogMaxChanges", 50000)
	v.SetDefault("osmdbt.verbose", false)

	v.SetDefault("osmium.verbose", false)
	v.SetDefault("osmium.progress", false)

	v.SetDefault("app.shouldCollectInfo", false)
	v.SetDefault("app.shutdownTimeoutSeconds", 10)
	v.SetDefault("app.livenessAddr", ":8080")
	v.SetDefault("app.cron.enabled", false)
	v.SetDefault("app.cron.expression", "* * * * *")
	v.SetDefault("app.cron.failurePenaltySeconds", 60)

	// Empty defaults register the keys so env-only deployments can set them;
	// validation rejects them when left unset.
	v.SetDefault("objectStorage.endpoint", "")
	v.SetDefault("objectStorage.bucketName", "")
	v.SetDefault("objectStorage.credentials.accessKey", "")
	v.SetDefault("objectStorage.credentials.secretKey", "")
	v.SetDefault("arstotzka.serviceId", "")
	v.SetDefault("arstotzka.mediator.url", "")
	v.SetDefault("telemetry.tracing.url", "")

	v.SetDefault("objectStorage.acl", "public-read")
	v.SetDefault("objectStorage.region", "us-east-1")
	v.SetDefault("objectStorage.useSSL", false)
	v.SetDefault("objectStorage.ensureBucket", false)

	v.SetDefault("arstotzka.enabled", false)
	v.SetDefault("arstotzka.mediator.timeoutSeconds", 30)
	v.SetDefault("arstotzka.mediator.retries", 3)

	v.SetDefault("telemetry.logger.level", "info")
	v.SetDefault("telemetry.tracing.enabled", false)
	v.SetDefault("telemetry.tracing.ratio", 1.0)
	v.SetDefault("telemetry.metrics.buckets.osmdbtJobDurationSeconds",
		[]float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600})
	v.SetDefault("telemetry.metrics.buckets.osmdbtCommandDurationSeconds",
		[]float64{0.1, 0.5, 1, 5, 15, 30, 60, 120})
}
