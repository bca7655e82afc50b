package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/epa-scoring/internal/errors"
	"github.com/ZanzyTHEbar/epa-scoring/internal/scoring"
)

// Student represents a learner
type Student struct {
	StudentID string `json:"student_id"`
	Name      string `json:"student_name"`
	Email     string `json:"email"`
	Cohort    string `json:"cohort"`
	Status    string `json:"status"`
}

// Faculty represents an assessor
type Faculty struct {
	FacultyID  string `json:"faculty_id"`
	Name       string `json:"faculty_name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Status     string `json:"status"`
}

type ContextType struct {
	ContextID      string  `json:"context_id"`
	Name           string  `json:"context_name"`
	BaseMultiplier float64 `json:"base_multiplier"`
}

type TechnologyLevel struct {
	TechLevelID string  `json:"tech_level_id"`
	Name        string  `json:"tech_level_name"`
	Multiplier  float64 `json:"multiplier"`
}

type PerformanceIndicator struct {
	IndicatorID      string  `json:"indicator_id"`
	ActivityID       string  `json:"activity_id"`
	Name             string  `json:"indicator_name"`
	WeightPercentage float64 `json:"weight_percentage"`
	CompetencyType   string  `json:"competency_type"`
}

// ActivityDetail is an activity with its indicators.
type ActivityDetail struct {
	scoring.Activity
	Indicators []PerformanceIndicator `json:"indicators"`
}

// SmallerEPADetail is a Smaller EPA with its activities.
type SmallerEPADetail struct {
	scoring.SmallerEPA
	Activities []ActivityDetail `json:"activities"`
}

// EPADetail is the full catalog tree under one Core EPA.
type EPADetail struct {
	scoring.CoreEPA
	SmallerEPAs []SmallerEPADetail `json:"smaller_epas"`
}

// NewAssessment is the submission payload for a rating.
type NewAssessment struct {
	StudentID    string  `json:"student_id" binding:"required"`
	IndicatorID  string  `json:"indicator_id" binding:"required"`
	AssessorID   string  `json:"assessor_id" binding:"required"`
	BaseScore    float64 `json:"base_score" binding:"required,gte=1,lte=5"`
	ContextID    string  `json:"context_id,omitempty"`
	TechLevelID  string  `json:"tech_level_id,omitempty"`
	EvidenceType string  `json:"evidence_type" binding:"required"`
	Notes        string  `json:"notes,omitempty"`
}

// Validate checks the submission constraints independently of the transport.
func (a NewAssessment) Validate() error {
	problems := map[string]string{}
	required := map[string]string{
		"student_id":    a.StudentID,
		"indicator_id":  a.IndicatorID,
		"assessor_id":   a.AssessorID,
		"evidence_type": a.EvidenceType,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			problems[field] = "Missing required field: " + field
		}
	}
	if a.BaseScore < 1.0 || a.BaseScore > 5.0 {
		problems["base_score"] = "Base score must be between 1.0 and 5.0"
	}

	if len(problems) > 0 {
		return errors.NewValidationErrorWithMap(problems)
	}
	return nil
}

// NewAssessmentID builds ASS_<student>_<YYYYmmdd_HHMMSS_micro>.
func NewAssessmentID(studentID string, at time.Time) string {
	return fmt.Sprintf("ASS_%s_%s_%06d", studentID, at.Format("20060102_150405"), at.Nanosecond()/1000)
}

// CoreScoreRow is one Core_EPA history row joined to the EPA name.
type CoreScoreRow struct {
	EPAID           string    `json:"epa_id"`
	EPAName         string    `json:"epa_name"`
	FinalScore      float64   `json:"final_score"`
	CalculationDate time.Time `json:"calculation_date"`
}

// RecentAssessment is a summary-report row.
type RecentAssessment struct {
	AssessmentID   string    `json:"assessment_id"`
	AssessmentDate time.Time `json:"assessment_date"`
	BaseScore      float64   `json:"base_score"`
	EvidenceType   string    `json:"evidence_type"`
	IndicatorName  string    `json:"indicator_name"`
	EPAName        string    `json:"epa_name"`
}

// StudentSummary backs the per-student summary report. EPAScores is the full
// history; CurrentScores holds the latest row per Core EPA.
type StudentSummary struct {
	Student           Student                   `json:"student"`
	EPAScores         []CoreScoreRow            `json:"epa_scores"`
	CurrentScores     []scoring.CalculatedScore `json:"current_scores"`
	RecentAssessments []RecentAssessment        `json:"recent_assessments"`
}

// Rating is the raw material for reliability statistics.
type Rating struct {
	AssessorID   string  `json:"assessor_id"`
	IndicatorID  string  `json:"indicator_id"`
	BaseScore    float64 `json:"base_score"`
	EvidenceType string  `json:"evidence_type"`
}
