package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/epa-scoring/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// parse runs the app with args and returns the config the action would use.
func parse(t *testing.T, args ...string) config.Config {
	t.Helper()
	var cfg config.Config
	app := newApp()
	app.Action = func(c *cli.Context) error {
		cfg = configFromContext(c)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"epa-server"}, args...)))
	return cfg
}

func TestDefaultsMatchConfig(t *testing.T) {
	cfg := parse(t)
	assert.Equal(t, config.Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestFlagsOverrideDefaults(t *testing.T) {
	cfg := parse(t,
		"--port", "9090",
		"--db-driver", "pgx",
		"--database-url", "postgres://epa@db/epa",
		"--rate-limit", "30",
		"--cache-ttl", "90s",
		"--cors-origins", "https://a.example",
		"--cors-origins", "https://b.example",
		"--hsts",
		"--log-level", "debug",
	)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "pgx", cfg.DBDriver)
	assert.Equal(t, "postgres://epa@db/epa", cfg.DatabaseURL)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.EnableHSTS)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestEnvironmentFallback(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("RULES_FILE", "/etc/epa/rules.yaml")

	cfg := parse(t)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "/etc/epa/rules.yaml", cfg.RulesFile)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	app := newApp()
	err := app.Run([]string{"epa-server", "--port", "0", "--log-level", "chatty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestPprofRoutesMountInDebugMode(t *testing.T) {
	gin.SetMode(gin.DebugMode)
	defer gin.SetMode(gin.TestMode)

	r := gin.New()
	require.NotPanics(t, func() { mountPprof(r) })

	for _, path := range []string{"/debug/pprof/", "/debug/pprof/cmdline", "/debug/pprof/heap", "/debug/pprof/goroutine"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
