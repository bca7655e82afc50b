package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/epa-scoring/internal/database"
	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
	"github.com/ZanzyTHEbar/epa-scoring/internal/ratelimit"
	"github.com/ZanzyTHEbar/epa-scoring/internal/security"
	"github.com/gin-gonic/gin"
)

// Config is the complete server configuration. cmd/server fills it from
// flags and environment variables.
type Config struct {
	Port    string
	GinMode string

	DBDriver     string
	DatabaseURL  string
	DataDir      string
	MaxOpenConns int
	MaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitPerMin int
	CacheTTL        time.Duration
	CORSOrigins     []string
	RequestTimeout  time.Duration
	EnableHSTS      bool
	ShutdownTimeout time.Duration

	RulesFile string
	LogLevel  string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Port:            "8080",
		GinMode:         gin.ReleaseMode,
		DBDriver:        string(database.DriverSQLite),
		DataDir:         "./data",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		RateLimitPerMin: ratelimit.DefaultConfig().IPLimitPerMin,
		CacheTTL:        5 * time.Minute,
		CORSOrigins:     security.DefaultSecurityConfig().AllowedOrigins,
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        "info",
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	problems := map[string]string{}

	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		problems["port"] = fmt.Sprintf("invalid port %q", c.Port)
	}
	switch c.GinMode {
	case gin.ReleaseMode, gin.DebugMode, gin.TestMode:
	default:
		problems["gin_mode"] = fmt.Sprintf("unknown gin mode %q", c.GinMode)
	}
	switch database.Driver(c.DBDriver) {
	case database.DriverSQLite:
	case database.DriverPostgres:
		if c.DatabaseURL == "" {
			problems["database_url"] = "required when db-driver is pgx"
		}
	default:
		problems["db_driver"] = fmt.Sprintf("unsupported driver %q", c.DBDriver)
	}
	if c.RateLimitPerMin <= 0 {
		problems["rate_limit"] = "must be positive"
	}
	if c.CacheTTL <= 0 {
		problems["cache_ttl"] = "must be positive"
	}
	if c.RedisDB < 0 {
		problems["redis_db"] = "must not be negative"
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems["log_level"] = fmt.Sprintf("unknown log level %q", c.LogLevel)
	}

	if len(problems) == 0 {
		return nil
	}
	keys := make([]string, 0, len(problems))
	for k, v := range problems {
		keys = append(keys, k+": "+v)
	}
	appErr := apperrors.NewConfigurationError(strings.Join(keys, "; "), nil)
	appErr.Fields = problems
	return appErr
}

// DatabaseOptions maps the storage settings onto database.Options.
func (c Config) DatabaseOptions() database.Options {
	return database.Options{
		Driver:       database.Driver(c.DBDriver),
		DSN:          c.DatabaseURL,
		DataDir:      c.DataDir,
		MaxOpenConns: c.MaxOpenConns,
		MaxIdleConns: c.MaxIdleConns,
	}
}

// RedisOptions maps the Redis settings onto the rate limiter client.
func (c Config) RedisOptions() ratelimit.RedisOptions {
	return ratelimit.RedisOptions{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// RateLimit maps the limiter settings.
func (c Config) RateLimit() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.IPLimitPerMin = c.RateLimitPerMin
	return cfg
}

// Security maps the hardening settings.
func (c Config) Security() security.SecurityConfig {
	cfg := security.DefaultSecurityConfig()
	cfg.AllowedOrigins = c.CORSOrigins
	cfg.RequestTimeout = c.RequestTimeout
	cfg.EnableHSTS = c.EnableHSTS
	return cfg
}
