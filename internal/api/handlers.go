package api

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ZanzyTHEbar/epa-scoring/internal/database"
	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
	"github.com/ZanzyTHEbar/epa-scoring/internal/scoring"
	"github.com/ZanzyTHEbar/epa-scoring/internal/security"
	"github.com/gin-gonic/gin"
)

const apiVersion = "1.0.0"

// Catalog is the read side of the repository the handlers need.
type Catalog interface {
	Ping(ctx context.Context) error
	PoolStats() map[string]interface{}
	ListCoreEPAs(ctx context.Context) ([]scoring.CoreEPA, error)
	EPADetail(ctx context.Context, epaID string) (database.EPADetail, error)
	ListActiveStudents(ctx context.Context) ([]database.Student, error)
	ListActiveFaculty(ctx context.Context) ([]database.Faculty, error)
	ListContextTypes(ctx context.Context) ([]database.ContextType, error)
	ListTechnologyLevels(ctx context.Context) ([]database.TechnologyLevel, error)
	StudentSummary(ctx context.Context, studentID string, recentLimit int) (database.StudentSummary, error)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// pathIDs validates the named path parameters and returns them in order.
func pathIDs(c *gin.Context, names ...string) ([]string, bool) {
	ids := make([]string, len(names))
	for i, name := range names {
		id := c.Param(name)
		if err := security.ValidateIdentifier(name, id); err != nil {
			apperrors.Respond(c, err)
			return nil, false
		}
		ids[i] = id
	}
	return ids, true
}

func (s *Server) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":      "healthy",
		"database":    "connected",
		"timestamp":   timestamp(),
		"api_version": apiVersion,
	}
	if err := s.catalog.Ping(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["database"] = "disconnected"
		body["error"] = apperrors.ToAppError(err).ErrBuilder.Msg
		s.logger.Warn("Health check failed", "error", err)
	}
	if s.limiter != nil {
		body["rate_limiter"] = s.limiter.Health(c.Request.Context())
	}
	c.JSON(status, body)
}

func (s *Server) listEPAs(c *gin.Context) {
	epas, err := s.catalog.ListCoreEPAs(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"epas": epas, "count": len(epas), "timestamp": timestamp()})
}

func (s *Server) getEPA(c *gin.Context) {
	ids, ok := pathIDs(c, "epa_id")
	if !ok {
		return
	}
	detail, err := s.catalog.EPADetail(c.Request.Context(), ids[0])
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"epa": detail, "timestamp": timestamp()})
}

func (s *Server) listStudents(c *gin.Context) {
	students, err := s.catalog.ListActiveStudents(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students, "count": len(students), "timestamp": timestamp()})
}

func (s *Server) listFaculty(c *gin.Context) {
	faculty, err := s.catalog.ListActiveFaculty(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"faculty": faculty, "count": len(faculty), "timestamp": timestamp()})
}

func (s *Server) listContexts(c *gin.Context) {
	contexts, err := s.catalog.ListContextTypes(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contexts": contexts, "count": len(contexts), "timestamp": timestamp()})
}

func (s *Server) listTechnologyLevels(c *gin.Context) {
	levels, err := s.catalog.ListTechnologyLevels(c.Request.Context())
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"technology_levels": levels, "count": len(levels), "timestamp": timestamp()})
}

func (s *Server) createAssessment(c *gin.Context) {
	var req database.NewAssessment
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, bindingError(err))
		return
	}

	if err := s.security.ValidateText("notes", req.Notes); err != nil {
		apperrors.Respond(c, err)
		return
	}
	req.Notes = s.security.SanitizeText(req.Notes)

	created, err := s.scoring.SubmitAssessment(c.Request.Context(), req)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"assessment_id": created.AssessmentID,
		"assessment":    created,
		"message":       "Assessment created successfully",
		"timestamp":     timestamp(),
	})
}

func (s *Server) result(c *gin.Context, result any, err error) {
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result, "timestamp": timestamp()})
}

func (s *Server) indicatorScore(c *gin.Context) {
	ids, ok := pathIDs(c, "assessment_id")
	if !ok {
		return
	}
	result, err := s.scoring.IndicatorScore(c.Request.Context(), ids[0])
	s.result(c, result, err)
}

func (s *Server) activityScore(c *gin.Context) {
	ids, ok := pathIDs(c, "activity_id", "student_id")
	if !ok {
		return
	}
	result, err := s.scoring.ActivityScore(c.Request.Context(), ids[1], ids[0])
	s.result(c, result, err)
}

func (s *Server) epaScore(c *gin.Context) {
	ids, ok := pathIDs(c, "epa_id", "student_id")
	if !ok {
		return
	}
	result, err := s.scoring.EPAScore(c.Request.Context(), ids[1], ids[0])
	s.result(c, result, err)
}

func (s *Server) studentProfile(c *gin.Context) {
	ids, ok := pathIDs(c, "student_id")
	if !ok {
		return
	}
	result, err := s.scoring.Profile(c.Request.Context(), ids[0])
	s.result(c, result, err)
}

func (s *Server) integrationBonus(c *gin.Context) {
	ids, ok := pathIDs(c, "student_id")
	if !ok {
		return
	}
	primary, secondary := c.Query("primary"), c.Query("secondary")
	if err := security.ValidateIdentifier("primary", primary); err != nil {
		apperrors.Respond(c, err)
		return
	}
	if err := security.ValidateIdentifier("secondary", secondary); err != nil {
		apperrors.Respond(c, err)
		return
	}
	result, err := s.scoring.IntegrationBonus(c.Request.Context(), ids[0], primary, secondary)
	s.result(c, result, err)
}

func (s *Server) entrustment(c *gin.Context) {
	score, err := strconv.ParseFloat(c.Query("score"), 64)
	if err != nil || math.IsNaN(score) || score < 0 || score > scoring.MaxScore {
		apperrors.Respond(c, apperrors.NewValidationErrorWithMap(map[string]string{
			"score": "must be a number between 0 and 5",
		}))
		return
	}
	s.result(c, scoring.ClassifyEntrustment(score), nil)
}

func (s *Server) studentSummary(c *gin.Context) {
	ids, ok := pathIDs(c, "student_id")
	if !ok {
		return
	}
	summary, err := s.catalog.StudentSummary(c.Request.Context(), ids[0], 10)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"student":            summary.Student,
		"epa_scores":         summary.EPAScores,
		"current_scores":     summary.CurrentScores,
		"recent_assessments": summary.RecentAssessments,
		"timestamp":          timestamp(),
	})
}

func (s *Server) reliability(c *gin.Context) {
	report, err := s.quality.ReliabilityReport(c.Request.Context())
	s.result(c, report, err)
}

var endpoints = map[string]string{
	"GET /api/health":                                              "API health check",
	"GET /api/epas":                                                "Get all Core EPAs",
	"GET /api/epas/{epa_id}":                                       "Get EPA details",
	"GET /api/students":                                            "Get all students",
	"GET /api/faculty":                                             "Get all faculty",
	"GET /api/contexts":                                            "Get context types",
	"GET /api/technology-levels":                                   "Get technology levels",
	"POST /api/assessments":                                        "Create assessment",
	"GET /api/scoring/assessment/{assessment_id}":                  "Calculate indicator score",
	"GET /api/scoring/activity/{activity_id}/student/{student_id}": "Calculate activity score",
	"GET /api/scoring/student/{student_id}":                        "Calculate student profile",
	"GET /api/scoring/epa/{epa_id}/student/{student_id}":           "Calculate EPA score",
	"GET /api/scoring/integration/student/{student_id}":            "Calculate integration bonus",
	"GET /api/scoring/entrustment?score=":                          "Classify entrustment level",
	"GET /api/reports/student/{student_id}/summary":                "Student summary report",
	"GET /api/quality/reliability":                                 "Quality reliability report",
	"GET /swagger/index.html":                                      "OpenAPI browser",
}

func (s *Server) docs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"title":       "EPA Scoring System API",
		"version":     apiVersion,
		"description": "REST API for EPA scoring and assessment management",
		"endpoints":   endpoints,
	})
}

func (s *Server) metrics(c *gin.Context) {
	stats := s.metricsStore.GetStats()
	stats["database_pool"] = s.catalog.PoolStats()
	stats["compression"] = s.compression.GetStats()
	if s.cache != nil {
		stats["cache"] = s.cache.Stats()
	}
	if s.limiter != nil {
		stats["rate_limiter"] = s.limiter.GetStats()
	}
	c.JSON(http.StatusOK, stats)
}
