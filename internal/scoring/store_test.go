package scoring

import (
	"context"
	"errors"
	"sort"
)

var errStoreDown = errors.New("connection reset by peer")

type fakeStore struct {
	assessments []AssessmentDetail
	// activityOf maps indicator_id to activity_id
	activityOf map[string]string
	coreScores map[string][]float64 // key: student|epa
	cores      map[string]CoreEPA
	smaller    []SmallerEPA
	activities []Activity

	err   error
	calls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		activityOf: map[string]string{},
		coreScores: map[string][]float64{},
		cores:      map[string]CoreEPA{},
	}
}

func (f *fakeStore) FindAssessment(_ context.Context, id string) (AssessmentDetail, bool, error) {
	f.calls++
	if f.err != nil {
		return AssessmentDetail{}, false, f.err
	}
	for _, a := range f.assessments {
		if a.AssessmentID == id {
			return a, true, nil
		}
	}
	return AssessmentDetail{}, false, nil
}

func (f *fakeStore) ListActivityAssessments(_ context.Context, studentID, activityID string) ([]AssessmentDetail, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []AssessmentDetail
	for _, a := range f.assessments {
		if a.StudentID == studentID && f.activityOf[a.IndicatorID] == activityID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) AverageCoreScore(_ context.Context, studentID, epaID string) (float64, bool, error) {
	f.calls++
	if f.err != nil {
		return 0, false, f.err
	}
	scores := f.coreScores[studentID+"|"+epaID]
	if len(scores) == 0 {
		return 0, false, nil
	}
	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores)), true, nil
}

func (f *fakeStore) FindCoreEPA(_ context.Context, epaID string) (CoreEPA, bool, error) {
	f.calls++
	if f.err != nil {
		return CoreEPA{}, false, f.err
	}
	c, ok := f.cores[epaID]
	return c, ok, nil
}

func (f *fakeStore) FindSmallerEPA(_ context.Context, id string) (SmallerEPA, bool, error) {
	f.calls++
	if f.err != nil {
		return SmallerEPA{}, false, f.err
	}
	for _, s := range f.smaller {
		if s.SmallerEPAID == id {
			return s, true, nil
		}
	}
	return SmallerEPA{}, false, nil
}

func (f *fakeStore) ListSmallerEPAs(_ context.Context, coreEPAID string) ([]SmallerEPA, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []SmallerEPA
	for _, s := range f.smaller {
		if s.CoreEPAID == coreEPAID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ListActivities(_ context.Context, smallerEPAID string) ([]Activity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []Activity
	for _, a := range f.activities {
		if a.SmallerEPAID == smallerEPAID {
			out = append(out, a)
		}
	}
	return out, nil
}

func ptr(v float64) *float64 { return &v }
