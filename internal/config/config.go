package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"match-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sports    SportsConfig    `mapstructure:"sports"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Patterns  PatternsConfig  `mapstructure:"patterns"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	ErrorBackoff    time.Duration `mapstructure:"error_backoff"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// SportsConfig covers the upstream live-data API.
type SportsConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec"`
	Burst          int           `mapstructure:"burst"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
}

// AlertingConfig defines delivery channels.
type AlertingConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	SMS     SMSConfig  `mapstructure:"sms"`
	NATS    NATSConfig `mapstructure:"nats"`
}

// SMSConfig holds the Twilio-compatible SMS channel settings.
type SMSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
	APIBase    string `mapstructure:"api_base"`
}

// NATSConfig holds the publish/subscribe channel settings.
type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// PatternsConfig tunes the pattern detector.
type PatternsConfig struct {
	BufferCapacity int           `mapstructure:"buffer_capacity"`
	Retention      time.Duration `mapstructure:"retention"`
}

// TelemetryConfig controls the optional metrics listener.
type TelemetryConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MATCHWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "matchwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.error_backoff", "30s")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6d776368))

	v.SetDefault("sports.request_timeout", "10s")
	v.SetDefault("sports.user_agent", "matchwatcher/1.0")
	v.SetDefault("sports.requests_per_sec", 5.0)
	v.SetDefault("sports.burst", 5)
	v.SetDefault("sports.max_concurrent", 4)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.sms.enabled", false)
	v.SetDefault("alerting.sms.api_base", "https://api.twilio.com")
	v.SetDefault("alerting.nats.enabled", false)
	v.SetDefault("alerting.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("alerting.nats.subject_prefix", "match.alerts")

	v.SetDefault("patterns.buffer_capacity", 50)
	v.SetDefault("patterns.retention", "2h")

	v.SetDefault("telemetry.listen_addr", "")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Scheduler.ErrorBackoff <= 0 {
		return fmt.Errorf("scheduler.error_backoff must be greater than zero")
	}
	if c.Sports.RequestsPerSec <= 0 {
		return fmt.Errorf("sports.requests_per_sec must be greater than zero")
	}
	if c.Sports.MaxConcurrent <= 0 {
		return fmt.Errorf("sports.max_concurrent must be greater than zero")
	}
	if c.Patterns.BufferCapacity <= 0 {
		return fmt.Errorf("patterns.buffer_capacity must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.SMS.Enabled {
		if c.Alerting.SMS.AccountSID == "" {
			return fmt.Errorf("alerting.sms.account_sid is required when SMS is enabled")
		}
		if c.Alerting.SMS.AuthToken == "" {
			return fmt.Errorf("alerting.sms.auth_token is required when SMS is enabled")
		}
		if c.Alerting.SMS.From == "" {
			return fmt.Errorf("alerting.sms.from is required when SMS is enabled")
		}
	}
	if c.Alerting.NATS.Enabled && c.Alerting.NATS.URL == "" {
		return fmt.Errorf("alerting.nats.url is required when NATS is enabled")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
