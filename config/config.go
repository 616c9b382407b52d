// Package config loads server settings from COURSE_LEDGER_* environment
// variables. Command-line flags override them.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port     int    `env:"COURSE_LEDGER_PORT"     envDefault:"8080"`
	Driver   string `env:"COURSE_LEDGER_DRIVER"   envDefault:"sqlite"`
	DBPath   string `env:"COURSE_LEDGER_DB_PATH"  envDefault:"course-ledger.db"`
	Postgres string `env:"COURSE_LEDGER_PG_DSN"`

	LogMode string `env:"COURSE_LEDGER_LOG_MODE" envDefault:"dev"`

	// JWTSecret enables bearer-token identity. Empty falls back to the
	// X-Account-ID header, which is only fit for development.
	JWTSecret string `env:"COURSE_LEDGER_JWT_SECRET"`
	JWTIssuer string `env:"COURSE_LEDGER_JWT_ISSUER"`

	CORSOrigins []string `env:"COURSE_LEDGER_CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	// Per-caller limit on mutating requests.
	RateLimit float64 `env:"COURSE_LEDGER_RATE_LIMIT" envDefault:"5"`
	RateBurst int     `env:"COURSE_LEDGER_RATE_BURST" envDefault:"10"`

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool `env:"COURSE_LEDGER_TRUST_PROXY" envDefault:"false"`

	Scenarios       bool          `env:"COURSE_LEDGER_SCENARIOS"        envDefault:"true"`
	ShutdownTimeout time.Duration `env:"COURSE_LEDGER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment, applies command-line overrides from args
// (normally os.Args[1:]) and validates the result.
func Load(args []string) (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("course-ledger", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.Driver, "driver", cfg.Driver, "store driver: memory, sqlite, postgres")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.Postgres, "pg", cfg.Postgres, "Postgres DSN")
	fs.BoolVar(&cfg.TrustProxy, "trust-proxy", cfg.TrustProxy, "take client address from proxy headers")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch strings.ToLower(c.Driver) {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			errs = append(errs, errors.New("sqlite driver needs a database path"))
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Postgres) == "" {
			errs = append(errs, errors.New("postgres driver needs COURSE_LEDGER_PG_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q", c.Driver))
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		errs = append(errs, errors.New("rate limit and burst must be positive"))
	}
	return errors.Join(errs...)
}
