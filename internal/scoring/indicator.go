package scoring

import (
	"context"
	"math"

	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
)

func multiplierOrDefault(m *float64) float64 {
	if m == nil {
		return 1.0
	}
	return *m
}

// AdjustScore applies the context and technology multipliers to a base
// rating and caps the result at MaxScore.
func AdjustScore(base, contextMult, techMult float64) Adjustment {
	contextAdjusted := base * contextMult
	techAdjusted := contextAdjusted * techMult
	return Adjustment{
		BaseScore:         base,
		ContextMultiplier: contextMult,
		TechMultiplier:    techMult,
		ContextAdjusted:   contextAdjusted,
		TechAdjusted:      techAdjusted,
		FinalScore:        math.Min(techAdjusted, MaxScore),
	}
}

// WeightedScore scales a final score by an indicator weight given in percent.
func WeightedScore(final, weightPercentage float64) float64 {
	return final * (weightPercentage / 100)
}

func adjust(a AssessmentDetail) Adjustment {
	return AdjustScore(a.BaseScore, multiplierOrDefault(a.ContextMult), multiplierOrDefault(a.TechMult))
}

// IndicatorScore scores a single assessment.
func (e *Engine) IndicatorScore(ctx context.Context, assessmentID string) (IndicatorScore, error) {
	a, found, err := e.store.FindAssessment(ctx, assessmentID)
	if err != nil {
		return IndicatorScore{}, storeFailure("find_assessment", err)
	}
	if !found {
		return IndicatorScore{}, apperrors.NewNotFoundError("assessment", assessmentID)
	}

	adj := adjust(a)
	return IndicatorScore{
		Adjustment:       adj,
		AssessmentID:     a.AssessmentID,
		StudentID:        a.StudentID,
		IndicatorID:      a.IndicatorID,
		WeightedScore:    WeightedScore(adj.FinalScore, a.WeightPercentage),
		WeightPercentage: a.WeightPercentage,
		CompetencyType:   a.CompetencyType,
		CalculatedAt:     e.now(),
	}, nil
}
