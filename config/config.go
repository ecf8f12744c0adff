// Package config loads process configuration for the orchestrator binaries
// from the environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds process configuration. Migration behaviour itself lives in
// orchestrator.Settings and is stored, not configured here.
type Config struct {
	// DatabaseURL is the master database DSN. Empty selects in-memory stores
	// and the static tenant list.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// TenantDSNTemplate builds tenant DSNs; "{database}" is replaced by the
	// tenant's database name.
	TenantDSNTemplate string `mapstructure:"TENANT_DSN_TEMPLATE" validate:"required,contains={database}"`

	// StaticTenants is a comma-separated list of tenant ids used when
	// DatabaseURL is empty. Each tenant's database is named after its id.
	StaticTenants string `mapstructure:"STATIC_TENANTS"`

	// MigrationsDir holds one directory of golang-migrate files per module.
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR" validate:"required"`

	RedisAddr string `mapstructure:"REDIS_ADDR"`

	LockBackend      string `mapstructure:"LOCK_BACKEND" validate:"oneof=memory postgres redis"`
	SchedulerBackend string `mapstructure:"SCHEDULER_BACKEND" validate:"oneof=timer redis"`

	LeaseTTL              time.Duration `mapstructure:"LEASE_TTL" validate:"min=1s"`
	SchedulerKeyPrefix    string        `mapstructure:"SCHEDULER_KEY_PREFIX" validate:"required"`
	SchedulerPollInterval time.Duration `mapstructure:"SCHEDULER_POLL_INTERVAL" validate:"min=10ms"`
	SchedulerConcurrency  int           `mapstructure:"SCHEDULER_CONCURRENCY" validate:"min=1"`
	// ScheduleSweepInterval is how often pending schedules whose trigger was
	// lost are re-registered.
	ScheduleSweepInterval time.Duration `mapstructure:"SCHEDULE_SWEEP_INTERVAL" validate:"min=1s"`
	NotifyChannel         string        `mapstructure:"NOTIFY_CHANNEL"`

	// MetricsAddr is where the worker serves /metrics and /healthz. Empty disables it.
	MetricsAddr string `mapstructure:"METRICS_ADDR"`

	// InstanceName labels metrics and lease owners.
	InstanceName string `mapstructure:"INSTANCE_NAME" validate:"required"`

	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"oneof=json text"`
}

var configValidator = validator.New()

// Load reads .env (if present), then builds and validates Config from the
// environment. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "tenant-migrate"
	}

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("TENANT_DSN_TEMPLATE", "")
	v.SetDefault("STATIC_TENANTS", "")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("LOCK_BACKEND", "")
	v.SetDefault("SCHEDULER_BACKEND", "")
	v.SetDefault("LEASE_TTL", "30s")
	v.SetDefault("SCHEDULER_KEY_PREFIX", "migration-jobs")
	v.SetDefault("SCHEDULER_POLL_INTERVAL", "1s")
	v.SetDefault("SCHEDULER_CONCURRENCY", 10)
	v.SetDefault("SCHEDULE_SWEEP_INTERVAL", "1m")
	v.SetDefault("NOTIFY_CHANNEL", "")
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("INSTANCE_NAME", hostname)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: failed to decode: %w", err)
	}

	cfg.applyBackendDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyBackendDefaults picks the most durable backend the configured
// connections allow.
func (c *Config) applyBackendDefaults() {
	if c.LockBackend == "" {
		switch {
		case c.RedisAddr != "":
			c.LockBackend = "redis"
		case c.DatabaseURL != "":
			c.LockBackend = "postgres"
		default:
			c.LockBackend = "memory"
		}
	}
	if c.SchedulerBackend == "" {
		c.SchedulerBackend = "timer"
		if c.RedisAddr != "" {
			c.SchedulerBackend = "redis"
		}
	}
}

// Validate checks field constraints and backend requirements.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if c.LockBackend == "postgres" && c.DatabaseURL == "" {
		return errors.New("config: LOCK_BACKEND=postgres requires DATABASE_URL")
	}
	if (c.LockBackend == "redis" || c.SchedulerBackend == "redis" || c.NotifyChannel != "") && c.RedisAddr == "" {
		return errors.New("config: redis lock, scheduler or notifications require REDIS_ADDR")
	}
	if c.DatabaseURL == "" && len(c.StaticTenantIDs()) == 0 {
		return errors.New("config: STATIC_TENANTS must be set when DATABASE_URL is empty")
	}
	return nil
}

// StaticTenantIDs returns the ids listed in StaticTenants.
func (c *Config) StaticTenantIDs() []string {
	if c == nil || c.StaticTenants == "" {
		return nil
	}
	parts := strings.Split(c.StaticTenants, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// TenantDSN fills TenantDSNTemplate for database.
func (c *Config) TenantDSN(database string) string {
	return strings.ReplaceAll(c.TenantDSNTemplate, "{database}", database)
}
