package scoring

type entrustmentTier struct {
	threshold   float64
	level       int
	name        string
	description string
	supervision string
}

// ordered highest first; the first threshold the score reaches wins
var entrustmentTiers = []entrustmentTier{
	{4.5, 5, "Expert", "Expert - Able to supervise others", "Independent practice with teaching responsibilities"},
	{3.5, 4, "Proficient", "Proficient - Independent practice", "Independent practice with minimal oversight"},
	{3.0, 3, "Competent", "Competent - Minimal guidance needed", "Independent practice with available supervision"},
	{2.0, 2, "Advanced Beginner", "Advanced Beginner - Moderate guidance", "Direct supervision with guided practice"},
}

var novice = entrustmentTier{0, 1, "Novice", "Novice - Significant guidance needed", "Close supervision with extensive guidance"}

// ClassifyEntrustment maps a competency score to a supervision level.
func ClassifyEntrustment(score float64) Entrustment {
	tier := novice
	for _, t := range entrustmentTiers {
		if score >= t.threshold {
			tier = t
			break
		}
	}
	return Entrustment{
		Level:       tier.level,
		Name:        tier.name,
		Description: tier.description,
		Supervision: tier.supervision,
		Score:       score,
	}
}
