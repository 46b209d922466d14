package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	JobsInline = "inline"
	JobsAsynq  = "asynq"
)

// Config holds application configuration sourced from environment variables.
type Config struct {
	AppEnv    string `envconfig:"APP_ENV" default:"development"`
	Port      string `envconfig:"PORT" default:"8080"`
	DBPath    string `envconfig:"DB_PATH" default:"./dev.db"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// AutoMigrate runs migrations on startup outside development too.
	AutoMigrate bool `envconfig:"AUTO_MIGRATE" default:"false"`

	ReadTimeout    time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout   time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	RequestTimeout time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"30s"`

	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`
	SessionSecret string `envconfig:"SESSION_SECRET"`

	LinkSecret string        `envconfig:"LINK_SECRET"`
	LinkTTL    time.Duration `envconfig:"LINK_TTL" default:"168h"`

	CompanyID         string  `envconfig:"COMPANY_ID" default:"default"`
	CompanyName       string  `envconfig:"COMPANY_NAME" default:"Mi Taller"`
	DefaultTaxPercent float64 `envconfig:"DEFAULT_TAX_PERCENT" default:"19"`
	Currency          string  `envconfig:"CURRENCY" default:"COP"`

	RedisAddr         string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	JobsMode          string `envconfig:"JOBS_MODE" default:"inline"`
	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"5"`
	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`

	AdminEmails      []string `envconfig:"AUTHZ_ADMIN_EMAILS"`
	EnterpriseEmails []string `envconfig:"AUTHZ_ENTERPRISE_EMAILS"`
	PremiumEmails    []string `envconfig:"AUTHZ_PREMIUM_EMAILS"`
}

// Load reads the environment, after a best-effort .env, and returns a populated Config.
func Load() (Config, error) {
	// Production should use real env injection; the file only helps local development.
	if err := loadDotEnv(".env"); err != nil {
		slog.Warn("could not load .env", slog.Any("error", err))
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	cfg.JobsMode = strings.ToLower(strings.TrimSpace(cfg.JobsMode))
	if cfg.JobsMode == "" {
		cfg.JobsMode = JobsInline
	}
	if cfg.JobsMode != JobsInline && cfg.JobsMode != JobsAsynq {
		return Config{}, fmt.Errorf("JOBS_MODE must be %q or %q, got %q", JobsInline, JobsAsynq, cfg.JobsMode)
	}
	if cfg.DefaultTaxPercent < 0 || cfg.DefaultTaxPercent > 100 {
		return Config{}, fmt.Errorf("DEFAULT_TAX_PERCENT must be between 0 and 100, got %v", cfg.DefaultTaxPercent)
	}

	// The admin account is always an admin for authorization purposes.
	if cfg.AdminEmail != "" {
		cfg.AdminEmails = append(cfg.AdminEmails, cfg.AdminEmail)
	}

	for _, missing := range cfg.missingSecrets() {
		slog.Warn("configuration value is not set", slog.String("name", missing))
	}

	return cfg, nil
}

func (c Config) missingSecrets() []string {
	var missing []string
	if c.AdminEmail == "" {
		missing = append(missing, "ADMIN_EMAIL")
	}
	if c.AdminPassword == "" {
		missing = append(missing, "ADMIN_PASSWORD")
	}
	if c.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if c.LinkSecret == "" {
		missing = append(missing, "LINK_SECRET")
	}
	return missing
}

// IsDev reports whether the app runs in development.
func (c Config) IsDev() bool {
	return c.AppEnv == "" || c.AppEnv == "development" || c.AppEnv == "dev"
}

// ShouldMigrate reports whether startup applies pending migrations.
func (c Config) ShouldMigrate() bool {
	return c.IsDev() || c.AutoMigrate
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}
