package scoring

import (
	"context"

	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
)

// rollup weights scored children by weight_percentage/100. When every
// scored child has zero weight they count equally instead.
func rollup(children []ChildScore) (score, sum, total float64) {
	equal := true
	for _, c := range children {
		if c.Weight > 0 {
			equal = false
			break
		}
	}

	values := make([]WeightedValue, len(children))
	for i, c := range children {
		w := c.Weight
		if equal {
			w = 1
		}
		values[i] = WeightedValue{Value: c.Score, Weight: w}
	}
	return AggregateWeighted(values)
}

// SmallerEPAScore rolls the student's activity scores up to one Smaller EPA.
// Activities without assessments are listed in Missing.
func (e *Engine) SmallerEPAScore(ctx context.Context, studentID, smallerEPAID string) (RollupScore, error) {
	sub, found, err := e.store.FindSmallerEPA(ctx, smallerEPAID)
	if err != nil {
		return RollupScore{}, storeFailure("find_smaller_epa", err)
	}
	if !found {
		return RollupScore{}, apperrors.NewNotFoundError("smaller EPA", smallerEPAID)
	}

	activities, err := e.store.ListActivities(ctx, sub.SmallerEPAID)
	if err != nil {
		return RollupScore{}, storeFailure("list_activities", err)
	}

	result := RollupScore{
		StudentID: studentID,
		EPAID:     sub.SmallerEPAID,
		Level:     LevelSmallerEPA,
	}
	for _, act := range activities {
		as, err := e.ActivityScore(ctx, studentID, act.ActivityID)
		if apperrors.IsNoData(err) {
			result.Missing = append(result.Missing, act.ActivityID)
			continue
		}
		if err != nil {
			return RollupScore{}, err
		}
		result.Activities = append(result.Activities, as)
		result.Children = append(result.Children, ChildScore{
			ID:     act.ActivityID,
			Name:   act.Name,
			Score:  as.Score,
			Weight: act.WeightPercentage / 100,
		})
	}

	if len(result.Children) == 0 {
		return RollupScore{}, apperrors.NewNoDataError("no scored activities for smaller EPA", map[string]string{
			"student_id":     studentID,
			"smaller_epa_id": smallerEPAID,
		})
	}

	result.Score, result.WeightedSum, result.TotalWeight = rollup(result.Children)
	result.CalculatedAt = e.now()
	return result, nil
}

// CoreEPAScore rolls the student's Smaller EPA scores up to one Core EPA.
func (e *Engine) CoreEPAScore(ctx context.Context, studentID, coreEPAID string) (RollupScore, error) {
	core, found, err := e.store.FindCoreEPA(ctx, coreEPAID)
	if err != nil {
		return RollupScore{}, storeFailure("find_core_epa", err)
	}
	if !found {
		return RollupScore{}, apperrors.NewNotFoundError("core EPA", coreEPAID)
	}

	subs, err := e.store.ListSmallerEPAs(ctx, core.EPAID)
	if err != nil {
		return RollupScore{}, storeFailure("list_smaller_epas", err)
	}

	result := RollupScore{
		StudentID: studentID,
		EPAID:     core.EPAID,
		Level:     LevelCoreEPA,
	}
	for _, sub := range subs {
		ss, err := e.SmallerEPAScore(ctx, studentID, sub.SmallerEPAID)
		if apperrors.IsNoData(err) {
			result.Missing = append(result.Missing, sub.SmallerEPAID)
			continue
		}
		if err != nil {
			return RollupScore{}, err
		}
		result.SmallerEPAs = append(result.SmallerEPAs, ss)
		result.Children = append(result.Children, ChildScore{
			ID:     sub.SmallerEPAID,
			Name:   sub.Name,
			Score:  ss.Score,
			Weight: sub.WeightPercentage / 100,
		})
	}

	if len(result.Children) == 0 {
		return RollupScore{}, apperrors.NewNoDataError("no scored smaller EPAs for core EPA", map[string]string{
			"student_id": studentID,
			"epa_id":     coreEPAID,
		})
	}

	result.Score, result.WeightedSum, result.TotalWeight = rollup(result.Children)
	result.CalculatedAt = e.now()
	return result, nil
}
