package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Collector  CollectorConfig  `yaml:"collector" mapstructure:"collector"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Tracing    TracingConfig    `yaml:"tracing" mapstructure:"tracing"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CollectorConfig configures the grants extract collection pipeline.
type CollectorConfig struct {
	BaseURL      string   `yaml:"base_url" mapstructure:"base_url"`
	UserAgent    string   `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs  int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	LookbackDays int      `yaml:"lookback_days" mapstructure:"lookback_days"`
	BatchSize    int      `yaml:"batch_size" mapstructure:"batch_size"`
	MaxRetries   int      `yaml:"max_retries" mapstructure:"max_retries"`
	Variants     []string `yaml:"variants" mapstructure:"variants"`
	Source       string   `yaml:"source" mapstructure:"source"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	CollectTimeoutSecs int      `yaml:"collect_timeout_secs" mapstructure:"collect_timeout_secs"`
	Schedule           string   `yaml:"schedule" mapstructure:"schedule"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
	Environment string `yaml:"environment" mapstructure:"environment"`
}

// MonitoringConfig configures failure and staleness alerting.
type MonitoringConfig struct {
	WebhookURL        string `yaml:"webhook_url" mapstructure:"webhook_url"`
	StaleAfterHours   int    `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	CheckIntervalSecs int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// Load reads configuration from .env, config file, and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GRANTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("collector.base_url", "https://www.grants.gov/extract")
	v.SetDefault("collector.user_agent", "grants-cli/1.0")
	v.SetDefault("collector.timeout_secs", 120)
	v.SetDefault("collector.lookback_days", 7)
	v.SetDefault("collector.batch_size", 50)
	v.SetDefault("collector.max_retries", 1)
	v.SetDefault("collector.variants", []string{"-v2.xml.gz", "-v1.xml.gz", ".xml.gz"})
	v.SetDefault("collector.source", "xml_extract")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.collect_timeout_secs", 300)
	v.SetDefault("server.schedule", "")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.service_name", "grants-cli")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.stale_after_hours", 48)
	v.SetDefault("monitoring.check_interval_secs", 3600)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings needed by the given command mode are present.
// Modes: "collect", "serve", "migrate", "query".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "collect", "serve", "migrate", "query":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}

	if mode == "collect" || mode == "serve" {
		if c.Collector.BaseURL == "" {
			errs = append(errs, "collector.base_url is required")
		}
		if c.Collector.BatchSize < 1 {
			errs = append(errs, "collector.batch_size must be > 0")
		}
		if c.Collector.LookbackDays < 1 {
			errs = append(errs, "collector.lookback_days must be > 0")
		}
		if len(c.Collector.Variants) == 0 {
			errs = append(errs, "collector.variants must not be empty")
		}
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
