package scoring

import (
	"context"

	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
)

// AggregateWeighted returns sum(value*weight)/sum(weight), or 0 when the
// total weight is not positive.
func AggregateWeighted(values []WeightedValue) (score, weightedSum, totalWeight float64) {
	for _, v := range values {
		weightedSum += v.Value * v.Weight
		totalWeight += v.Weight
	}
	if totalWeight > 0 {
		score = weightedSum / totalWeight
	}
	return score, weightedSum, totalWeight
}

// ActivityScore aggregates every assessment the student has against the
// activity's indicators, repeats included.
func (e *Engine) ActivityScore(ctx context.Context, studentID, activityID string) (ActivityScore, error) {
	assessments, err := e.store.ListActivityAssessments(ctx, studentID, activityID)
	if err != nil {
		return ActivityScore{}, storeFailure("list_activity_assessments", err)
	}
	if len(assessments) == 0 {
		return ActivityScore{}, apperrors.NewNoDataError("no assessments found for activity", map[string]string{
			"student_id":  studentID,
			"activity_id": activityID,
		})
	}

	values := make([]WeightedValue, 0, len(assessments))
	breakdown := make([]IndicatorContribution, 0, len(assessments))
	for _, a := range assessments {
		final := adjust(a).FinalScore
		weight := a.WeightPercentage / 100
		values = append(values, WeightedValue{Value: final, Weight: weight})
		breakdown = append(breakdown, IndicatorContribution{
			AssessmentID:  a.AssessmentID,
			IndicatorID:   a.IndicatorID,
			IndicatorName: a.IndicatorName,
			FinalScore:    final,
			Weight:        weight,
			WeightedScore: final * weight,
			AssessedAt:    a.CreatedAt,
		})
	}

	score, sum, total := AggregateWeighted(values)
	return ActivityScore{
		StudentID:      studentID,
		ActivityID:     activityID,
		Score:          score,
		WeightedSum:    sum,
		TotalWeight:    total,
		IndicatorCount: len(assessments),
		Breakdown:      breakdown,
		CalculatedAt:   e.now(),
	}, nil
}
