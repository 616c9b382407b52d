package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.Equal(t, "course-ledger.db", cfg.DBPath)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.Scenarios)
	assert.Empty(t, cfg.JWTSecret)
	assert.False(t, cfg.TrustProxy)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("COURSE_LEDGER_PORT", "9090")
	t.Setenv("COURSE_LEDGER_DRIVER", "postgres")
	t.Setenv("COURSE_LEDGER_PG_DSN", "postgres://localhost/ledger")
	t.Setenv("COURSE_LEDGER_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("COURSE_LEDGER_JWT_SECRET", "s3cret")
	t.Setenv("COURSE_LEDGER_SHUTDOWN_TIMEOUT", "5s")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("COURSE_LEDGER_PORT", "not-an-int")

	_, err := Load(nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("COURSE_LEDGER_PORT", "9090")
	t.Setenv("COURSE_LEDGER_DRIVER", "postgres")

	// The environment alone is invalid; the flags make it valid.
	cfg, err := Load([]string{"-port", "7070", "-driver", "memory", "-trust-proxy"})
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, DriverMemory, cfg.Driver)
	assert.True(t, cfg.TrustProxy)
}

func TestLoad_ValidatesAfterFlags(t *testing.T) {
	t.Setenv("COURSE_LEDGER_DRIVER", "memory")

	_, err := Load([]string{"-driver", "postgres"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config:")
	assert.Contains(t, err.Error(), "COURSE_LEDGER_PG_DSN")
}

func TestLoad_UnknownFlag(t *testing.T) {
	_, err := Load([]string{"-nope"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse flags:")
}

func TestValidate(t *testing.T) {
	base := Config{Port: 8080, Driver: DriverMemory, RateLimit: 1, RateBurst: 1}
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"bad port":            func(c *Config) { c.Port = 0 },
		"unknown driver":      func(c *Config) { c.Driver = "mysql" },
		"postgres needs dsn":  func(c *Config) { c.Driver = DriverPostgres },
		"sqlite needs a path": func(c *Config) { c.Driver = DriverSQLite; c.DBPath = " " },
		"zero burst":          func(c *Config) { c.RateBurst = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
