package scoring

import (
	"context"
	"math"
)

// ClassifyIntegration tiers the weaker of two competency scores.
func ClassifyIntegration(minScore float64) (IntegrationLevel, float64) {
	switch {
	case minScore >= 4.0:
		return IntegrationHigh, 1.0
	case minScore >= 3.5:
		return IntegrationModerate, 0.75
	case minScore >= 3.0:
		return IntegrationBasic, 0.5
	default:
		return IntegrationInsufficient, 0.0
	}
}

// IntegrationBonus computes the bonus for an ordered EPA pair. A pair with no
// rule yields a zero bonus at level None without touching the store.
func (e *Engine) IntegrationBonus(ctx context.Context, studentID, primaryEPA, secondaryEPA string) (IntegrationBonus, error) {
	result := IntegrationBonus{
		StudentID:    studentID,
		PrimaryEPA:   primaryEPA,
		SecondaryEPA: secondaryEPA,
		Level:        IntegrationNone,
	}

	rule, ok := e.rules.Lookup(primaryEPA, secondaryEPA)
	if !ok {
		return result, nil
	}
	result.RelationshipType = rule.RelationshipType
	result.BaseBonus = rule.BaseBonus

	primary, _, err := e.store.AverageCoreScore(ctx, studentID, primaryEPA)
	if err != nil {
		return IntegrationBonus{}, storeFailure("average_core_score", err)
	}
	secondary, _, err := e.store.AverageCoreScore(ctx, studentID, secondaryEPA)
	if err != nil {
		return IntegrationBonus{}, storeFailure("average_core_score", err)
	}

	result.PrimaryScore = primary
	result.SecondaryScore = secondary
	result.MinScore = math.Min(primary, secondary)
	result.Level, result.Multiplier = ClassifyIntegration(result.MinScore)
	result.BonusPoints = rule.BaseBonus * result.Multiplier
	return result, nil
}
