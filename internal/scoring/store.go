package scoring

import "context"

// Store is the read contract the engine consumes. Lookups report a missing
// record with found=false and a nil error; a non-nil error is always a
// failure of the store itself.
type Store interface {
	AssessmentReader
	ScoreReader
	CatalogReader
}

type AssessmentReader interface {
	FindAssessment(ctx context.Context, assessmentID string) (AssessmentDetail, bool, error)
	// ListActivityAssessments returns the student's assessments against any
	// indicator of the activity, newest first.
	ListActivityAssessments(ctx context.Context, studentID, activityID string) ([]AssessmentDetail, error)
}

type ScoreReader interface {
	// AverageCoreScore averages final_score over the student's Core_EPA rows
	// for epaID. found is false when no row exists.
	AverageCoreScore(ctx context.Context, studentID, epaID string) (avg float64, found bool, err error)
}

type CatalogReader interface {
	FindCoreEPA(ctx context.Context, epaID string) (CoreEPA, bool, error)
	FindSmallerEPA(ctx context.Context, smallerEPAID string) (SmallerEPA, bool, error)
	ListSmallerEPAs(ctx context.Context, coreEPAID string) ([]SmallerEPA, error)
	ListActivities(ctx context.Context, smallerEPAID string) ([]Activity, error)
}
