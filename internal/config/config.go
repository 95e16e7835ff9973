// Package config reads the daemon configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config is the loanbookd configuration.
type Config struct {
	HTTPAddr    string
	BasePath    string
	MetricsPath string
	LogLevel    slog.Level

	StoreDriver   string
	SQLitePath    string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	Currency          string
	AllowLatePayments bool
	SweepInterval     time.Duration
	SweepConcurrency  int
	StatusCooldown    time.Duration
	PinMaxFailures    int
	PinWindow         time.Duration

	// SeedUser creates a staff user at startup, written as "name:pin".
	SeedUser string
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func atoi(key string, def int) (int, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return i, nil
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func boolean(key string, def bool) (bool, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		BasePath:      getenv("BASE_PATH", "/loanbook"),
		MetricsPath:   getenv("METRICS_PATH", "/metrics"),
		StoreDriver:   strings.ToLower(getenv("STORE_DRIVER", DriverSQLite)),
		SQLitePath:    getenv("SQLITE_PATH", "loanbook.db"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		MongoURI:      getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getenv("MONGO_DATABASE", "loanbook"),
		Currency:      getenv("CURRENCY", "php"),
		SeedUser:      getenv("SEED_USER", ""),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}

	var err error
	if cfg.AllowLatePayments, err = boolean("ALLOW_LATE_PAYMENTS", false); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = duration("SWEEP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.SweepConcurrency, err = atoi("SWEEP_CONCURRENCY", 8); err != nil {
		return nil, err
	}
	if cfg.StatusCooldown, err = duration("STATUS_COOLDOWN", time.Minute); err != nil {
		return nil, err
	}
	if cfg.PinMaxFailures, err = atoi("PIN_MAX_FAILURES", 5); err != nil {
		return nil, err
	}
	if cfg.PinWindow, err = duration("PIN_WINDOW", 15*time.Minute); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// Validate checks that the selected store driver has what it needs.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres driver")
		}
	case DriverMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("config: MONGO_URI and MONGO_DATABASE are required for the mongo driver")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.SeedUser != "" {
		if _, _, ok := c.Seed(); !ok {
			return fmt.Errorf("config: SEED_USER must be name:pin")
		}
	}
	return nil
}

// Seed splits SeedUser into name and PIN.
func (c *Config) Seed() (name, pin string, ok bool) {
	name, pin, ok = strings.Cut(c.SeedUser, ":")
	name, pin = strings.TrimSpace(name), strings.TrimSpace(pin)
	return name, pin, ok && name != "" && pin != ""
}
