package config

import (
	"testing"
	"time"

	"github.com/ZanzyTHEbar/epa-scoring/internal/database"
	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "bad port", mutate: func(c *Config) { c.Port = "http" }, field: "port"},
		{name: "port out of range", mutate: func(c *Config) { c.Port = "70000" }, field: "port"},
		{name: "gin mode", mutate: func(c *Config) { c.GinMode = "prod" }, field: "gin_mode"},
		{name: "driver", mutate: func(c *Config) { c.DBDriver = "mysql" }, field: "db_driver"},
		{name: "pgx without url", mutate: func(c *Config) { c.DBDriver = "pgx" }, field: "database_url"},
		{name: "rate limit", mutate: func(c *Config) { c.RateLimitPerMin = 0 }, field: "rate_limit"},
		{name: "cache ttl", mutate: func(c *Config) { c.CacheTTL = 0 }, field: "cache_ttl"},
		{name: "log level", mutate: func(c *Config) { c.LogLevel = "loud" }, field: "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			appErr := apperrors.ToAppError(err)
			assert.Equal(t, apperrors.CategoryConfiguration, appErr.Category)
			assert.Contains(t, appErr.Fields, tt.field)
		})
	}
}

func TestMappings(t *testing.T) {
	cfg := Default()
	cfg.DBDriver = "pgx"
	cfg.DatabaseURL = "postgres://epa@db/epa"
	cfg.RedisAddr = "redis:6379"
	cfg.RateLimitPerMin = 30
	cfg.CORSOrigins = []string{"*"}
	cfg.RequestTimeout = 5 * time.Second

	require.NoError(t, cfg.Validate())

	db := cfg.DatabaseOptions()
	assert.Equal(t, database.DriverPostgres, db.Driver)
	assert.Equal(t, "postgres://epa@db/epa", db.DSN)

	assert.Equal(t, "redis:6379", cfg.RedisOptions().Addr)
	assert.Equal(t, 30, cfg.RateLimit().IPLimitPerMin)

	sec := cfg.Security()
	assert.Equal(t, []string{"*"}, sec.AllowedOrigins)
	assert.Equal(t, 5*time.Second, sec.RequestTimeout)
}
