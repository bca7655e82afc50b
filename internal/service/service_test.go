package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/epa-scoring/internal/cache"
	"github.com/ZanzyTHEbar/epa-scoring/internal/database"
	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
	"github.com/ZanzyTHEbar/epa-scoring/internal/monitoring"
	"github.com/ZanzyTHEbar/epa-scoring/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("connection reset by peer")

type fakeRepo struct {
	students    map[string]database.Student
	cores       []scoring.CoreEPA
	smaller     []scoring.SmallerEPA
	activities  []scoring.Activity
	activityOf  map[string]string
	weightOf    map[string]float64
	assessments []scoring.AssessmentDetail
	saved       []scoring.CalculatedScore
	ratings     []database.Rating

	err       error
	saveCalls int
	onSave    func()
}

func newFakeRepo() *fakeRepo {
	f := &fakeRepo{
		students:   map[string]database.Student{"STU1": {StudentID: "STU1", Name: "Ada Nurse", Status: "Active"}},
		activityOf: map[string]string{},
		weightOf:   map[string]float64{},
	}
	f.addChain("EPA_001", "SE_001", "ACT_001", "IND_001")
	f.addChain("EPA_002", "SE_002", "ACT_002", "IND_002")
	f.cores = append(f.cores, scoring.CoreEPA{EPAID: "EPA_003", Name: "EPA_003 name"})
	f.rate("STU1", "IND_001", 4.0)
	f.rate("STU1", "IND_002", 3.0)
	return f
}

func (f *fakeRepo) addChain(core, sub, act, ind string) {
	f.cores = append(f.cores, scoring.CoreEPA{EPAID: core, Name: core + " name"})
	f.smaller = append(f.smaller, scoring.SmallerEPA{SmallerEPAID: sub, CoreEPAID: core, WeightPercentage: 100})
	f.activities = append(f.activities, scoring.Activity{ActivityID: act, SmallerEPAID: sub, WeightPercentage: 100})
	f.activityOf[ind] = act
	f.weightOf[ind] = 100
}

func (f *fakeRepo) rate(student, ind string, base float64) scoring.AssessmentDetail {
	a := scoring.AssessmentDetail{
		AssessmentID:     "ASS_" + student + "_" + ind,
		StudentID:        student,
		IndicatorID:      ind,
		BaseScore:        base,
		WeightPercentage: f.weightOf[ind],
		CreatedAt:        time.Now().UTC(),
	}
	f.assessments = append(f.assessments, a)
	return a
}

func (f *fakeRepo) FindAssessment(_ context.Context, id string) (scoring.AssessmentDetail, bool, error) {
	if f.err != nil {
		return scoring.AssessmentDetail{}, false, f.err
	}
	for _, a := range f.assessments {
		if a.AssessmentID == id {
			return a, true, nil
		}
	}
	return scoring.AssessmentDetail{}, false, nil
}

func (f *fakeRepo) ListActivityAssessments(_ context.Context, studentID, activityID string) ([]scoring.AssessmentDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []scoring.AssessmentDetail
	for _, a := range f.assessments {
		if a.StudentID == studentID && f.activityOf[a.IndicatorID] == activityID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) AverageCoreScore(_ context.Context, studentID, epaID string) (float64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	var sum float64
	var n int
	for _, s := range f.saved {
		if s.StudentID == studentID && s.EPAID == epaID && s.Level == scoring.LevelCoreEPA {
			sum += s.FinalScore
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return sum / float64(n), true, nil
}

func (f *fakeRepo) FindCoreEPA(_ context.Context, epaID string) (scoring.CoreEPA, bool, error) {
	if f.err != nil {
		return scoring.CoreEPA{}, false, f.err
	}
	for _, c := range f.cores {
		if c.EPAID == epaID {
			return c, true, nil
		}
	}
	return scoring.CoreEPA{}, false, nil
}

func (f *fakeRepo) FindSmallerEPA(_ context.Context, id string) (scoring.SmallerEPA, bool, error) {
	for _, s := range f.smaller {
		if s.SmallerEPAID == id {
			return s, true, nil
		}
	}
	return scoring.SmallerEPA{}, false, nil
}

func (f *fakeRepo) ListSmallerEPAs(_ context.Context, coreID string) ([]scoring.SmallerEPA, error) {
	var out []scoring.SmallerEPA
	for _, s := range f.smaller {
		if s.CoreEPAID == coreID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListActivities(_ context.Context, subID string) ([]scoring.Activity, error) {
	var out []scoring.Activity
	for _, a := range f.activities {
		if a.SmallerEPAID == subID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListCoreEPAs(_ context.Context) ([]scoring.CoreEPA, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := append([]scoring.CoreEPA(nil), f.cores...)
	sort.Slice(out, func(i, j int) bool { return out[i].EPAID < out[j].EPAID })
	return out, nil
}

func (f *fakeRepo) FindStudent(_ context.Context, id string) (database.Student, bool, error) {
	if f.err != nil {
		return database.Student{}, false, f.err
	}
	s, ok := f.students[id]
	return s, ok, nil
}

func (f *fakeRepo) CreateAssessment(_ context.Context, in database.NewAssessment) (scoring.AssessmentDetail, error) {
	if err := in.Validate(); err != nil {
		return scoring.AssessmentDetail{}, err
	}
	if _, ok := f.students[in.StudentID]; !ok {
		return scoring.AssessmentDetail{}, apperrors.NewNotFoundError("student", in.StudentID)
	}
	return f.rate(in.StudentID, in.IndicatorID, in.BaseScore), nil
}

func (f *fakeRepo) SaveCalculatedScores(_ context.Context, scores []scoring.CalculatedScore) ([]scoring.CalculatedScore, error) {
	f.saveCalls++
	if f.onSave != nil {
		f.onSave()
	}
	if f.err != nil {
		return nil, apperrors.NewStoreError("save_calculated_scores", f.err)
	}
	for i := range scores {
		scores[i].ScoreID = "score-" + scores[i].EPAID
	}
	f.saved = append(f.saved, scores...)
	return scores, nil
}

func (f *fakeRepo) ListRatings(_ context.Context) ([]database.Rating, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ratings, nil
}

func newTestService(t *testing.T, repo *fakeRepo) (*ScoringService, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics()
	c := cache.NewCache(time.Minute, metrics)
	t.Cleanup(c.Close)
	logger := monitoring.NewLoggerTo(io.Discard, slog.LevelDebug)
	return NewScoringService(repo, scoring.NewEngine(repo, nil), c, metrics, logger), metrics
}

func TestEPAScorePersistsEveryLevel(t *testing.T) {
	repo := newFakeRepo()
	svc, metrics := newTestService(t, repo)

	result, err := svc.EPAScore(context.Background(), "STU1", "EPA_001")
	require.NoError(t, err)

	assert.InDelta(t, 4.0, result.Score, 1e-9)
	assert.Equal(t, scoring.LevelCoreEPA, result.Level)
	assert.Equal(t, 4, result.Entrustment.Level)
	require.Len(t, result.SmallerEPAs, 1)

	require.Len(t, result.Saved, 3)
	assert.Equal(t, scoring.LevelActivity, result.Saved[0].Level)
	assert.Equal(t, "ACT_001", result.Saved[0].EPAID)
	assert.Equal(t, scoring.LevelSmallerEPA, result.Saved[1].Level)
	assert.Equal(t, scoring.LevelCoreEPA, result.Saved[2].Level)
	assert.NotEmpty(t, result.Saved[2].ScoreID)

	stats := metrics.GetScoringStats()
	assert.Equal(t, int64(1), stats["computations"].(map[string]int64)["Core_EPA"])
}

func TestEPAScoreIsCachedUntilNewAssessment(t *testing.T) {
	repo := newFakeRepo()
	svc, metrics := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.EPAScore(ctx, "STU1", "EPA_001")
	require.NoError(t, err)
	cachedResult, err := svc.EPAScore(ctx, "STU1", "EPA_001")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.saveCalls)
	assert.InDelta(t, 4.0, cachedResult.Score, 1e-9)
	assert.Equal(t, int64(1), metrics.CacheHits)

	_, err = svc.SubmitAssessment(ctx, database.NewAssessment{
		StudentID:    "STU1",
		IndicatorID:  "IND_001",
		AssessorID:   "FAC1",
		BaseScore:    2.0,
		EvidenceType: "Direct_Observation",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), metrics.AssessmentsCreated)

	fresh, err := svc.EPAScore(ctx, "STU1", "EPA_001")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.saveCalls)
	assert.InDelta(t, 3.0, fresh.Score, 1e-9)
}

func TestEPAScoreErrors(t *testing.T) {
	t.Run("unknown epa", func(t *testing.T) {
		svc, _ := newTestService(t, newFakeRepo())
		_, err := svc.EPAScore(context.Background(), "STU1", "EPA_999")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("no ratings", func(t *testing.T) {
		svc, metrics := newTestService(t, newFakeRepo())
		_, err := svc.EPAScore(context.Background(), "STU1", "EPA_003")
		assert.True(t, apperrors.IsNoData(err))
		assert.Equal(t, int64(1), metrics.GetScoringStats()["no_data"].(map[string]int64)["Core_EPA"])
	})

	t.Run("store down", func(t *testing.T) {
		repo := newFakeRepo()
		repo.err = errStoreDown
		svc, metrics := newTestService(t, repo)
		_, err := svc.EPAScore(context.Background(), "STU1", "EPA_001")
		assert.True(t, apperrors.IsStoreFailure(err))
		assert.Equal(t, int64(1), metrics.StoreFailures)
	})
}

func TestUnknownStudentIsNotFound(t *testing.T) {
	ctx := context.Background()

	t.Run("epa score", func(t *testing.T) {
		repo := newFakeRepo()
		svc, metrics := newTestService(t, repo)
		_, err := svc.EPAScore(ctx, "NOPE", "EPA_001")
		assert.True(t, apperrors.IsNotFound(err), "got %v", err)
		assert.Equal(t, 0, repo.saveCalls)
		assert.Empty(t, metrics.GetScoringStats()["no_data"].(map[string]int64))
	})

	t.Run("epa score without ratings", func(t *testing.T) {
		svc, _ := newTestService(t, newFakeRepo())
		_, err := svc.EPAScore(ctx, "NOPE", "EPA_003")
		assert.True(t, apperrors.IsNotFound(err), "got %v", err)
	})

	t.Run("integration bonus", func(t *testing.T) {
		svc, _ := newTestService(t, newFakeRepo())
		_, err := svc.IntegrationBonus(ctx, "NOPE", "EPA_001", "EPA_002")
		assert.True(t, apperrors.IsNotFound(err), "got %v", err)
	})

	t.Run("activity score", func(t *testing.T) {
		svc, _ := newTestService(t, newFakeRepo())
		_, err := svc.ActivityScore(ctx, "NOPE", "ACT_001")
		assert.True(t, apperrors.IsNotFound(err), "got %v", err)
	})

	t.Run("known student keeps scoring", func(t *testing.T) {
		svc, _ := newTestService(t, newFakeRepo())
		bonus, err := svc.IntegrationBonus(ctx, "STU1", "EPA_001", "EPA_002")
		require.NoError(t, err)
		assert.Equal(t, "STU1", bonus.StudentID)
	})
}

func TestInvalidationDuringComputeSkipsCacheWrite(t *testing.T) {
	repo := newFakeRepo()
	svc, metrics := newTestService(t, repo)
	ctx := context.Background()

	repo.onSave = func() {
		repo.onSave = nil
		_, err := svc.SubmitAssessment(ctx, database.NewAssessment{
			StudentID:    "STU1",
			IndicatorID:  "IND_001",
			AssessorID:   "FAC1",
			BaseScore:    2.0,
			EvidenceType: "Direct_Observation",
		})
		require.NoError(t, err)
	}

	stale, err := svc.EPAScore(ctx, "STU1", "EPA_001")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, stale.Score, 1e-9)

	fresh, err := svc.EPAScore(ctx, "STU1", "EPA_001")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.saveCalls, "second call must recompute")
	assert.InDelta(t, 3.0, fresh.Score, 1e-9)
	assert.Equal(t, int64(0), metrics.CacheHits)

	_, err = svc.EPAScore(ctx, "STU1", "EPA_001")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.saveCalls)
	assert.Equal(t, int64(1), metrics.CacheHits)
}

func TestSubmitAssessmentRejectsInvalidInput(t *testing.T) {
	svc, metrics := newTestService(t, newFakeRepo())

	_, err := svc.SubmitAssessment(context.Background(), database.NewAssessment{
		StudentID:    "STU1",
		IndicatorID:  "IND_001",
		AssessorID:   "FAC1",
		BaseScore:    6.0,
		EvidenceType: "Direct_Observation",
	})
	assert.Equal(t, apperrors.CategoryValidation, apperrors.CategoryOf(err))
	assert.Equal(t, int64(0), metrics.AssessmentsCreated)
}

func TestProfile(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(t, repo)

	profile, err := svc.Profile(context.Background(), "STU1")
	require.NoError(t, err)

	assert.Equal(t, "Ada Nurse", profile.StudentName)
	require.Len(t, profile.EPAs, 3)
	assert.True(t, profile.EPAs[0].Available)
	assert.InDelta(t, 4.0, *profile.EPAs[0].Score, 1e-9)
	assert.True(t, profile.EPAs[1].Available)
	assert.False(t, profile.EPAs[2].Available)
	assert.Nil(t, profile.EPAs[2].Score)
	assert.Equal(t, 2, profile.ScoredCount)

	require.NotNil(t, profile.OverallScore)
	assert.InDelta(t, 3.5, *profile.OverallScore, 1e-9)
	assert.Equal(t, 4, profile.OverallEntrustment.Level)

	assert.Len(t, profile.Integration, svc.Engine().Rules().Len())
	var pair scoring.IntegrationBonus
	for _, b := range profile.Integration {
		if b.PrimaryEPA == "EPA_001" && b.SecondaryEPA == "EPA_002" {
			pair = b
		}
	}
	assert.Equal(t, scoring.IntegrationBasic, pair.Level)
	assert.InDelta(t, 0.1, pair.BonusPoints, 1e-9)
	assert.InDelta(t, 0.1, profile.TotalBonus, 1e-9)
}

func TestProfileUnknownStudent(t *testing.T) {
	svc, _ := newTestService(t, newFakeRepo())
	_, err := svc.Profile(context.Background(), "NOPE")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestActivityAndIndicatorScore(t *testing.T) {
	svc, _ := newTestService(t, newFakeRepo())
	ctx := context.Background()

	act, err := svc.ActivityScore(ctx, "STU1", "ACT_002")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, act.Score, 1e-9)
	assert.Equal(t, 1, act.IndicatorCount)

	ind, err := svc.IndicatorScore(ctx, "ASS_STU1_IND_001")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, ind.FinalScore, 1e-9)

	_, err = svc.IndicatorScore(ctx, "ASS_missing")
	assert.True(t, apperrors.IsNotFound(err))
}
