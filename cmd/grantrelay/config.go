package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/grantrelay"
)

// Config is the service configuration, read from GRANTRELAY_* variables.
type Config struct {
	PolicyURL       string        `envconfig:"GRANTRELAY_POLICY_URL" required:"true"`
	PolicyToken     string        `envconfig:"GRANTRELAY_POLICY_TOKEN" required:"true"`
	PolicyRateLimit float64       `envconfig:"GRANTRELAY_POLICY_RATE_LIMIT" default:"0"`
	RedisAddr       string        `envconfig:"GRANTRELAY_REDIS_ADDR" default:"localhost:6379"`
	RedisPassword   string        `envconfig:"GRANTRELAY_REDIS_PASSWORD"`
	RedisDB         int           `envconfig:"GRANTRELAY_REDIS_DB" default:"0"`
	KeyPrefix       string        `envconfig:"GRANTRELAY_KEY_PREFIX" default:"grantrelay:"`
	Port            int           `envconfig:"GRANTRELAY_PORT" default:"8080"`
	MetricsAddr     string        `envconfig:"GRANTRELAY_METRICS_ADDR" default:"0.0.0.0:9090"`
	LogLevel        string        `envconfig:"GRANTRELAY_LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"GRANTRELAY_LOG_FORMAT" default:"json"`
	SweepInterval   time.Duration `envconfig:"GRANTRELAY_SWEEP_INTERVAL" default:"5m"`
	RecordTTL       time.Duration `envconfig:"GRANTRELAY_RECORD_TTL" default:"24h"`
	RequestTimeout  time.Duration `envconfig:"GRANTRELAY_REQUEST_TIMEOUT" default:"10s"`
	Concurrency     int           `envconfig:"GRANTRELAY_CONCURRENCY" default:"4"`
	Tenant          string        `envconfig:"GRANTRELAY_TENANT" default:"default"`
	WebhookSecret   string        `envconfig:"GRANTRELAY_WEBHOOK_SECRET"`
	AdminToken      string        `envconfig:"GRANTRELAY_ADMIN_TOKEN"`
	ShutdownTimeout time.Duration `envconfig:"GRANTRELAY_SHUTDOWN_TIMEOUT" default:"30s"`
}

// loadConfig reads and validates the environment.
func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.PolicyURL == "" || c.PolicyToken == "":
		return fmt.Errorf("GRANTRELAY_POLICY_URL and GRANTRELAY_POLICY_TOKEN are required")
	case c.SweepInterval <= 0:
		return fmt.Errorf("GRANTRELAY_SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	case c.RecordTTL <= 0:
		return fmt.Errorf("GRANTRELAY_RECORD_TTL must be positive, got %s", c.RecordTTL)
	case c.Concurrency < 1:
		return fmt.Errorf("GRANTRELAY_CONCURRENCY must be at least 1, got %d", c.Concurrency)
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("GRANTRELAY_PORT out of range: %d", c.Port)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("GRANTRELAY_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// relayConfig maps the service configuration onto the library's.
func (c Config) relayConfig() grantrelay.Config {
	return grantrelay.Config{
		SweepInterval:   c.SweepInterval,
		RecordTTL:       c.RecordTTL,
		RequestTimeout:  c.RequestTimeout,
		Concurrency:     c.Concurrency,
		Tenant:          c.Tenant,
		ShutdownTimeout: c.ShutdownTimeout,
	}
}

func (c Config) redisOptions() *goredis.Options {
	return &goredis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c Config) listenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
