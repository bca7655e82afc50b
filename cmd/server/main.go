package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZanzyTHEbar/epa-scoring/internal/api"
	"github.com/ZanzyTHEbar/epa-scoring/internal/cache"
	"github.com/ZanzyTHEbar/epa-scoring/internal/config"
	"github.com/ZanzyTHEbar/epa-scoring/internal/database"
	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
	"github.com/ZanzyTHEbar/epa-scoring/internal/middleware"
	"github.com/ZanzyTHEbar/epa-scoring/internal/monitoring"
	"github.com/ZanzyTHEbar/epa-scoring/internal/ratelimit"
	"github.com/ZanzyTHEbar/epa-scoring/internal/scoring"
	"github.com/ZanzyTHEbar/epa-scoring/internal/security"
	"github.com/ZanzyTHEbar/epa-scoring/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
)

var version = "1.0.0"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "epa-server",
		Usage:   "EPA scoring and assessment API",
		Version: version,
		Flags:   flags(),
		Action:  run,
	}
}

func flags() []cli.Flag {
	d := config.Default()
	return []cli.Flag{
		&cli.StringFlag{Name: "port", Value: d.Port, Usage: "HTTP listen port", EnvVars: []string{"PORT"}},
		&cli.StringFlag{Name: "gin-mode", Value: d.GinMode, Usage: "gin mode (debug, release, test)", EnvVars: []string{"GIN_MODE"}},
		&cli.StringFlag{Name: "db-driver", Value: d.DBDriver, Usage: "database driver (sqlite3 or pgx)", EnvVars: []string{"DB_DRIVER"}},
		&cli.StringFlag{Name: "database-url", Value: d.DatabaseURL, Usage: "PostgreSQL connection string", EnvVars: []string{"DATABASE_URL"}},
		&cli.StringFlag{Name: "data-dir", Value: d.DataDir, Usage: "directory for the SQLite database", EnvVars: []string{"DATA_DIR"}},
		&cli.IntFlag{Name: "db-max-open", Value: d.MaxOpenConns, Usage: "maximum open database connections", EnvVars: []string{"DB_MAX_OPEN_CONNS"}},
		&cli.IntFlag{Name: "db-max-idle", Value: d.MaxIdleConns, Usage: "maximum idle database connections", EnvVars: []string{"DB_MAX_IDLE_CONNS"}},
		&cli.StringFlag{Name: "redis-addr", Value: d.RedisAddr, Usage: "Redis address for distributed rate limiting, empty to disable", EnvVars: []string{"REDIS_ADDR"}},
		&cli.StringFlag{Name: "redis-password", Value: d.RedisPassword, Usage: "Redis password", EnvVars: []string{"REDIS_PASSWORD"}},
		&cli.IntFlag{Name: "redis-db", Value: d.RedisDB, Usage: "Redis database number", EnvVars: []string{"REDIS_DB"}},
		&cli.IntFlag{Name: "rate-limit", Value: d.RateLimitPerMin, Usage: "requests per minute per client IP", EnvVars: []string{"RATE_LIMIT_PER_MIN"}},
		&cli.DurationFlag{Name: "cache-ttl", Value: d.CacheTTL, Usage: "response and score cache lifetime", EnvVars: []string{"CACHE_TTL"}},
		&cli.StringSliceFlag{Name: "cors-origins", Value: cli.NewStringSlice(d.CORSOrigins...), Usage: "allowed CORS origins", EnvVars: []string{"CORS_ORIGINS"}},
		&cli.DurationFlag{Name: "request-timeout", Value: d.RequestTimeout, Usage: "per-request deadline", EnvVars: []string{"REQUEST_TIMEOUT"}},
		&cli.BoolFlag{Name: "hsts", Value: d.EnableHSTS, Usage: "send Strict-Transport-Security", EnvVars: []string{"ENABLE_HSTS"}},
		&cli.DurationFlag{Name: "shutdown-timeout", Value: d.ShutdownTimeout, Usage: "graceful shutdown deadline", EnvVars: []string{"SHUTDOWN_TIMEOUT"}},
		&cli.StringFlag{Name: "rules-file", Value: d.RulesFile, Usage: "integration rule table (yaml or json), empty for built-in rules", EnvVars: []string{"RULES_FILE"}},
		&cli.StringFlag{Name: "log-level", Value: d.LogLevel, Usage: "debug, info, warn or error", EnvVars: []string{"LOG_LEVEL"}},
	}
}

func configFromContext(c *cli.Context) config.Config {
	return config.Config{
		Port:            c.String("port"),
		GinMode:         c.String("gin-mode"),
		DBDriver:        c.String("db-driver"),
		DatabaseURL:     c.String("database-url"),
		DataDir:         c.String("data-dir"),
		MaxOpenConns:    c.Int("db-max-open"),
		MaxIdleConns:    c.Int("db-max-idle"),
		RedisAddr:       c.String("redis-addr"),
		RedisPassword:   c.String("redis-password"),
		RedisDB:         c.Int("redis-db"),
		RateLimitPerMin: c.Int("rate-limit"),
		CacheTTL:        c.Duration("cache-ttl"),
		CORSOrigins:     c.StringSlice("cors-origins"),
		RequestTimeout:  c.Duration("request-timeout"),
		EnableHSTS:      c.Bool("hsts"),
		ShutdownTimeout: c.Duration("shutdown-timeout"),
		RulesFile:       c.String("rules-file"),
		LogLevel:        c.String("log-level"),
	}
}

func run(c *cli.Context) error {
	cfg := configFromContext(c)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := monitoring.NewLogger(monitoring.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger.Logger)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseOptions())
	if err != nil {
		return err
	}
	defer apperrors.SafeClose(db, "database")
	repo := database.NewRepository(db)

	rules, err := scoring.LoadRuleTable(cfg.RulesFile)
	if err != nil {
		return err
	}
	logger.SystemLogger("rules_loaded", fmt.Sprintf("%d integration rules", rules.Len()))

	metrics := monitoring.NewMetrics()
	appCache := cache.NewCache(cfg.CacheTTL, metrics)
	defer appCache.Close()

	redisClient, err := ratelimit.NewRedisClient(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Warn("Redis unavailable, rate limiting falls back to memory", "addr", cfg.RedisAddr, "error", err)
	}
	defer apperrors.SafeClose(redisClient, "redis")

	limiter := ratelimit.NewRateLimiter(redisClient, cfg.RateLimit(), metrics)
	defer limiter.Close()

	engine := scoring.NewEngine(repo, rules)
	r := api.NewRouter(api.Dependencies{
		Catalog:     repo,
		Scoring:     service.NewScoringService(repo, engine, appCache, metrics, logger),
		Quality:     service.NewQualityService(repo),
		Cache:       appCache,
		Limiter:     limiter,
		Security:    security.NewSecurityMiddleware(cfg.Security()),
		Compression: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
		Metrics:     metrics,
		Logger:      logger,
	})

	if cfg.GinMode == gin.DebugMode {
		mountPprof(r)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", cfg.Port, "driver", cfg.DBDriver, "redis", redisClient.IsEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return apperrors.NewInternalError("server failed to start", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return apperrors.NewInternalError("server forced to shutdown", err)
	}

	slog.Info("Server exited")
	return nil
}

// mountPprof exposes the runtime profiles. Named profiles (heap, goroutine,
// allocs) go through pprof.Index, which resolves them from the last path
// segment. A catch-all would collide with the static routes.
func mountPprof(r *gin.Engine) {
	pp := r.Group("/debug/pprof")
	pp.GET("/", gin.WrapF(pprof.Index))
	pp.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	pp.GET("/profile", gin.WrapF(pprof.Profile))
	pp.GET("/symbol", gin.WrapF(pprof.Symbol))
	pp.GET("/trace", gin.WrapF(pprof.Trace))
	pp.GET("/:name", gin.WrapF(pprof.Index))
}
