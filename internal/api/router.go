package api

import (
	"log/slog"

	_ "github.com/ZanzyTHEbar/epa-scoring/docs"
	"github.com/ZanzyTHEbar/epa-scoring/internal/cache"
	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
	"github.com/ZanzyTHEbar/epa-scoring/internal/middleware"
	"github.com/ZanzyTHEbar/epa-scoring/internal/monitoring"
	"github.com/ZanzyTHEbar/epa-scoring/internal/ratelimit"
	"github.com/ZanzyTHEbar/epa-scoring/internal/security"
	"github.com/ZanzyTHEbar/epa-scoring/internal/service"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Dependencies are the collaborators the router wires together. Cache and
// Limiter are optional.
type Dependencies struct {
	Catalog     Catalog
	Scoring     *service.ScoringService
	Quality     *service.QualityService
	Cache       *cache.Cache
	Limiter     *ratelimit.RateLimiter
	Security    *security.SecurityMiddleware
	Compression *middleware.CompressionMiddleware
	Metrics     *monitoring.Metrics
	Logger      *monitoring.Logger
}

// Server holds the handlers' collaborators.
type Server struct {
	catalog      Catalog
	scoring      *service.ScoringService
	quality      *service.QualityService
	cache        *cache.Cache
	limiter      *ratelimit.RateLimiter
	security     *security.SecurityMiddleware
	compression  *middleware.CompressionMiddleware
	metricsStore *monitoring.Metrics
	logger       *monitoring.Logger
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(deps Dependencies) *gin.Engine {
	useJSONFieldNames()

	if deps.Security == nil {
		deps.Security = security.NewSecurityMiddleware(security.DefaultSecurityConfig())
	}
	if deps.Compression == nil {
		deps.Compression = middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig())
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = &monitoring.Logger{Logger: slog.Default()}
	}

	s := &Server{
		catalog:      deps.Catalog,
		scoring:      deps.Scoring,
		quality:      deps.Quality,
		cache:        deps.Cache,
		limiter:      deps.Limiter,
		security:     deps.Security,
		compression:  deps.Compression,
		metricsStore: deps.Metrics,
		logger:       deps.Logger,
	}

	r := gin.New()
	if err := r.SetTrustedProxies(deps.Security.Config().TrustedProxies); err != nil {
		deps.Logger.Warn("Invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(monitoring.RequestIDMiddleware())
	r.Use(apperrors.RecoveryHandler())
	r.Use(monitoring.MonitoringMiddleware(deps.Metrics, deps.Logger))
	r.Use(apperrors.ErrorHandler())
	r.Use(deps.Security.SecurityHeadersMiddleware())
	r.Use(deps.Security.CORS())
	r.Use(deps.Security.RequestTimeout)
	r.Use(deps.Compression.Handler())

	r.GET("/health", s.health)
	r.GET("/metrics", s.metrics)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	apiGroup := r.Group("/api")
	if deps.Limiter != nil {
		apiGroup.Use(deps.Limiter.IPRateLimitMiddleware())
	}
	apiGroup.Use(deps.Security.ValidateContentType)

	apiGroup.GET("/health", s.health)
	apiGroup.GET("/docs", s.docs)

	reference := apiGroup.Group("")
	if deps.Cache != nil {
		reference.Use(deps.Cache.Middleware())
	}
	reference.GET("/epas", s.listEPAs)
	reference.GET("/epas/:epa_id", s.getEPA)
	reference.GET("/contexts", s.listContexts)
	reference.GET("/technology-levels", s.listTechnologyLevels)
	reference.GET("/students", s.listStudents)
	reference.GET("/faculty", s.listFaculty)

	apiGroup.POST("/assessments", s.createAssessment)

	scoringGroup := apiGroup.Group("/scoring")
	scoringGroup.GET("/assessment/:assessment_id", s.indicatorScore)
	scoringGroup.GET("/activity/:activity_id/student/:student_id", s.activityScore)
	scoringGroup.GET("/student/:student_id", s.studentProfile)
	scoringGroup.GET("/epa/:epa_id/student/:student_id", s.epaScore)
	scoringGroup.GET("/integration/student/:student_id", s.integrationBonus)
	scoringGroup.GET("/entrustment", s.entrustment)

	apiGroup.GET("/reports/student/:student_id/summary", s.studentSummary)
	apiGroup.GET("/quality/reliability", s.reliability)

	return r
}
