package scoring

import "time"

// MaxScore is the hard ceiling applied to every adjusted score.
const MaxScore = 5.0

// ScoreLevel names the hierarchy level a CalculatedScore was produced at.
type ScoreLevel string

const (
	LevelActivity   ScoreLevel = "Activity"
	LevelSmallerEPA ScoreLevel = "Smaller_EPA"
	LevelCoreEPA    ScoreLevel = "Core_EPA"
)

// AssessmentDetail is one assessment joined with the reference data the
// scorer needs. Nil multipliers mean the assessment left the factor unset.
type AssessmentDetail struct {
	AssessmentID     string    `json:"assessment_id"`
	StudentID        string    `json:"student_id"`
	IndicatorID      string    `json:"indicator_id"`
	IndicatorName    string    `json:"indicator_name"`
	AssessorID       string    `json:"assessor_id"`
	BaseScore        float64   `json:"base_score"`
	ContextID        string    `json:"context_id,omitempty"`
	ContextMult      *float64  `json:"context_multiplier,omitempty"`
	TechLevelID      string    `json:"tech_level_id,omitempty"`
	TechMult         *float64  `json:"tech_multiplier,omitempty"`
	WeightPercentage float64   `json:"weight_percentage"`
	CompetencyType   string    `json:"competency_type"`
	EvidenceType     string    `json:"evidence_type"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Adjustment holds every figure derived from one rating so the result can be
// reproduced from the record alone.
type Adjustment struct {
	BaseScore         float64 `json:"base_score"`
	ContextMultiplier float64 `json:"context_multiplier"`
	TechMultiplier    float64 `json:"tech_multiplier"`
	ContextAdjusted   float64 `json:"context_adjusted"`
	TechAdjusted      float64 `json:"tech_adjusted"`
	FinalScore        float64 `json:"final_score"`
}

type IndicatorScore struct {
	Adjustment

	AssessmentID     string    `json:"assessment_id"`
	StudentID        string    `json:"student_id"`
	IndicatorID      string    `json:"indicator_id"`
	WeightedScore    float64   `json:"weighted_score"`
	WeightPercentage float64   `json:"weight_percentage"`
	CompetencyType   string    `json:"competency_type"`
	CalculatedAt     time.Time `json:"calculated_at"`
}

// IndicatorContribution is one row of an activity breakdown.
type IndicatorContribution struct {
	AssessmentID  string    `json:"assessment_id"`
	IndicatorID   string    `json:"indicator_id"`
	IndicatorName string    `json:"indicator_name"`
	FinalScore    float64   `json:"final_score"`
	Weight        float64   `json:"weight"`
	WeightedScore float64   `json:"weighted_score"`
	AssessedAt    time.Time `json:"assessed_at"`
}

type ActivityScore struct {
	StudentID      string                  `json:"student_id"`
	ActivityID     string                  `json:"activity_id"`
	Score          float64                 `json:"activity_score"`
	WeightedSum    float64                 `json:"weighted_sum"`
	TotalWeight    float64                 `json:"total_weight"`
	IndicatorCount int                     `json:"indicator_count"`
	Breakdown      []IndicatorContribution `json:"breakdown"`
	CalculatedAt   time.Time               `json:"calculated_at"`
}

// WeightedValue is a score with its fractional weight.
type WeightedValue struct {
	Value  float64
	Weight float64
}

// ChildScore is one child's contribution to a roll-up.
type ChildScore struct {
	ID     string  `json:"id"`
	Name   string  `json:"name,omitempty"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// RollupScore is the score of a Smaller EPA or Core EPA.
type RollupScore struct {
	StudentID    string       `json:"student_id"`
	EPAID        string       `json:"epa_id"`
	Level        ScoreLevel   `json:"score_level"`
	Score        float64      `json:"final_score"`
	WeightedSum  float64      `json:"weighted_sum"`
	TotalWeight  float64      `json:"total_weight"`
	Children     []ChildScore `json:"children"`
	Missing      []string     `json:"missing,omitempty"`
	CalculatedAt time.Time    `json:"calculated_at"`

	// Activities and SmallerEPAs carry the lower-level results the roll-up
	// was built from, so callers can persist every level in one pass.
	Activities  []ActivityScore `json:"-"`
	SmallerEPAs []RollupScore   `json:"-"`
}

type IntegrationLevel string

const (
	IntegrationNone         IntegrationLevel = "None"
	IntegrationInsufficient IntegrationLevel = "Insufficient"
	IntegrationBasic        IntegrationLevel = "Basic"
	IntegrationModerate     IntegrationLevel = "Moderate"
	IntegrationHigh         IntegrationLevel = "High"
)

type IntegrationBonus struct {
	StudentID        string           `json:"student_id"`
	PrimaryEPA       string           `json:"primary_epa"`
	SecondaryEPA     string           `json:"secondary_epa"`
	RelationshipType string           `json:"relationship_type,omitempty"`
	BaseBonus        float64          `json:"base_bonus"`
	PrimaryScore     float64          `json:"primary_score"`
	SecondaryScore   float64          `json:"secondary_score"`
	MinScore         float64          `json:"min_score"`
	Level            IntegrationLevel `json:"integration_level"`
	Multiplier       float64          `json:"multiplier"`
	BonusPoints      float64          `json:"bonus_points"`
}

type Entrustment struct {
	Level       int     `json:"level"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Supervision string  `json:"supervision"`
	Score       float64 `json:"score"`
}

// CalculatedScore is one persisted aggregation result.
type CalculatedScore struct {
	ScoreID         string     `json:"score_id"`
	StudentID       string     `json:"student_id"`
	EPAID           string     `json:"epa_id"`
	Level           ScoreLevel `json:"score_level"`
	FinalScore      float64    `json:"final_score"`
	CalculationDate time.Time  `json:"calculation_date"`
}

type CoreEPA struct {
	EPAID       string `json:"epa_id"`
	Name        string `json:"epa_name"`
	Description string `json:"description,omitempty"`
}

type SmallerEPA struct {
	SmallerEPAID     string  `json:"smaller_epa_id"`
	CoreEPAID        string  `json:"core_epa_id"`
	Name             string  `json:"smaller_epa_name"`
	SequenceOrder    int     `json:"sequence_order"`
	WeightPercentage float64 `json:"weight_percentage"`
}

type Activity struct {
	ActivityID       string  `json:"activity_id"`
	SmallerEPAID     string  `json:"smaller_epa_id"`
	Name             string  `json:"activity_name"`
	SequenceOrder    int     `json:"sequence_order"`
	WeightPercentage float64 `json:"weight_percentage"`
}
