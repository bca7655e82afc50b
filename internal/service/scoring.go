package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/epa-scoring/internal/cache"
	"github.com/ZanzyTHEbar/epa-scoring/internal/database"
	apperrors "github.com/ZanzyTHEbar/epa-scoring/internal/errors"
	"github.com/ZanzyTHEbar/epa-scoring/internal/monitoring"
	"github.com/ZanzyTHEbar/epa-scoring/internal/scoring"
)

// Repository is everything the scoring service reads and writes.
type Repository interface {
	scoring.Store
	ListCoreEPAs(ctx context.Context) ([]scoring.CoreEPA, error)
	FindStudent(ctx context.Context, studentID string) (database.Student, bool, error)
	CreateAssessment(ctx context.Context, in database.NewAssessment) (scoring.AssessmentDetail, error)
	SaveCalculatedScores(ctx context.Context, scores []scoring.CalculatedScore) ([]scoring.CalculatedScore, error)
}

// Recorder receives scoring events for the metrics endpoint.
type Recorder interface {
	RecordScoreComputation(level string)
	RecordNoData(level string)
	IncrementAssessmentCreated()
	IncrementStoreFailure()
}

// EPAResult is a Core EPA roll-up with its entrustment level and the score
// rows persisted while computing it.
type EPAResult struct {
	scoring.RollupScore
	Entrustment scoring.Entrustment       `json:"entrustment"`
	SmallerEPAs []scoring.RollupScore     `json:"smaller_epas"`
	Saved       []scoring.CalculatedScore `json:"saved_scores"`
}

// ProfileEPA is one Core EPA line of a student profile.
type ProfileEPA struct {
	EPAID       string               `json:"epa_id"`
	Name        string               `json:"epa_name"`
	Available   bool                 `json:"available"`
	Score       *float64             `json:"final_score,omitempty"`
	Entrustment *scoring.Entrustment `json:"entrustment,omitempty"`
	Missing     []string             `json:"missing,omitempty"`
}

// Profile is the comprehensive view over every Core EPA for one student.
type Profile struct {
	StudentID          string                     `json:"student_id"`
	StudentName        string                     `json:"student_name"`
	EPAs               []ProfileEPA               `json:"epas"`
	ScoredCount        int                        `json:"scored_count"`
	Integration        []scoring.IntegrationBonus `json:"integration_bonuses"`
	TotalBonus         float64                    `json:"total_integration_bonus"`
	OverallScore       *float64                   `json:"overall_score,omitempty"`
	OverallEntrustment *scoring.Entrustment       `json:"overall_entrustment,omitempty"`
	CalculatedAt       time.Time                  `json:"calculated_at"`
}

// ScoringService runs the engine against the repository, persists computed
// scores and caches per-student results.
type ScoringService struct {
	repo     Repository
	engine   *scoring.Engine
	cache    *cache.Cache
	recorder Recorder
	logger   *monitoring.Logger
	now      func() time.Time

	// generations counts invalidations per student. A result computed under
	// an older generation is not written back to the cache.
	mu          sync.Mutex
	generations map[string]uint64
}

// NewScoringService wires the service. cache and recorder may be nil.
func NewScoringService(repo Repository, engine *scoring.Engine, c *cache.Cache, recorder Recorder, logger *monitoring.Logger) *ScoringService {
	if logger == nil {
		logger = &monitoring.Logger{Logger: slog.Default()}
	}
	return &ScoringService{
		repo:        repo,
		engine:      engine,
		cache:       c,
		recorder:    recorder,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		generations: make(map[string]uint64),
	}
}

// Engine exposes the underlying engine.
func (s *ScoringService) Engine() *scoring.Engine { return s.engine }

// storeError keeps categorized errors and marks anything else as a store
// failure.
func storeError(operation string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.NewStoreError(operation, err)
}

func studentPrefix(studentID string) string { return "student:" + studentID + ":" }

func (s *ScoringService) cached(key string, dst any) bool {
	return s.cache != nil && s.cache.GetJSON(key, dst)
}

func (s *ScoringService) generation(studentID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[studentID]
}

// store caches value unless the student's scores were invalidated after gen
// was taken.
func (s *ScoringService) store(studentID string, gen uint64, key string, value any) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[studentID] != gen {
		s.logger.Debug("Dropped stale score result", "student_id", studentID, "key", key)
		return
	}
	s.cache.SetJSON(key, value)
}

// invalidate bumps the student's generation, then drops the cached entries.
func (s *ScoringService) invalidate(studentID string) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	s.generations[studentID]++
	s.mu.Unlock()
	if n := s.cache.DeletePrefix(studentPrefix(studentID)); n > 0 {
		s.logger.Debug("Invalidated cached scores", "student_id", studentID, "entries", n)
	}
}

// requireStudent resolves the student or fails with NotFound.
func (s *ScoringService) requireStudent(ctx context.Context, studentID string) (database.Student, error) {
	student, found, err := s.repo.FindStudent(ctx, studentID)
	if err != nil {
		err = storeError("find_student", err)
		if s.recorder != nil && apperrors.IsStoreFailure(err) {
			s.recorder.IncrementStoreFailure()
		}
		return database.Student{}, err
	}
	if !found {
		return database.Student{}, apperrors.NewNotFoundError("student", studentID)
	}
	return student, nil
}

// observe records the outcome of one computation.
func (s *ScoringService) observe(level string, err error) {
	if s.recorder == nil {
		return
	}
	switch {
	case err == nil:
		s.recorder.RecordScoreComputation(level)
	case apperrors.IsNoData(err):
		s.recorder.RecordNoData(level)
	case apperrors.IsStoreFailure(err):
		s.recorder.IncrementStoreFailure()
	}
}

// SubmitAssessment stores a new rating and drops the student's cached scores.
func (s *ScoringService) SubmitAssessment(ctx context.Context, in database.NewAssessment) (scoring.AssessmentDetail, error) {
	start := time.Now()
	detail, err := s.repo.CreateAssessment(ctx, in)
	s.logger.StoreLogger("create_assessment", time.Since(start), err)
	if err != nil {
		if s.recorder != nil && apperrors.IsStoreFailure(err) {
			s.recorder.IncrementStoreFailure()
		}
		return scoring.AssessmentDetail{}, err
	}

	if s.recorder != nil {
		s.recorder.IncrementAssessmentCreated()
	}
	s.invalidate(detail.StudentID)
	return detail, nil
}

// IndicatorScore scores one assessment.
func (s *ScoringService) IndicatorScore(ctx context.Context, assessmentID string) (scoring.IndicatorScore, error) {
	start := time.Now()
	result, err := s.engine.IndicatorScore(ctx, assessmentID)
	s.observe("indicator", err)
	if err != nil {
		return scoring.IndicatorScore{}, err
	}
	s.logger.ScoringLogger("indicator", result.StudentID, result.IndicatorID, result.FinalScore, time.Since(start), false)
	return result, nil
}

// ActivityScore aggregates a student's ratings on one activity.
func (s *ScoringService) ActivityScore(ctx context.Context, studentID, activityID string) (scoring.ActivityScore, error) {
	key := studentPrefix(studentID) + "activity:" + activityID
	var result scoring.ActivityScore
	if s.cached(key, &result) {
		return result, nil
	}
	gen := s.generation(studentID)
	if _, err := s.requireStudent(ctx, studentID); err != nil {
		return scoring.ActivityScore{}, err
	}

	start := time.Now()
	result, err := s.engine.ActivityScore(ctx, studentID, activityID)
	s.observe(string(scoring.LevelActivity), err)
	if err != nil {
		return scoring.ActivityScore{}, err
	}
	s.logger.ScoringLogger("activity", studentID, activityID, result.Score, time.Since(start), false)
	s.store(studentID, gen, key, result)
	return result, nil
}

// IntegrationBonus scores one ordered EPA pair from persisted Core EPA rows.
// An unknown student is NotFound rather than a zero bonus.
func (s *ScoringService) IntegrationBonus(ctx context.Context, studentID, primaryEPA, secondaryEPA string) (scoring.IntegrationBonus, error) {
	if _, err := s.requireStudent(ctx, studentID); err != nil {
		return scoring.IntegrationBonus{}, err
	}
	return s.integrationBonus(ctx, studentID, primaryEPA, secondaryEPA)
}

func (s *ScoringService) integrationBonus(ctx context.Context, studentID, primaryEPA, secondaryEPA string) (scoring.IntegrationBonus, error) {
	result, err := s.engine.IntegrationBonus(ctx, studentID, primaryEPA, secondaryEPA)
	s.observe("integration", err)
	return result, err
}

// EPAScore rolls a student's ratings up to one Core EPA and appends a
// calculated score row for every activity, Smaller EPA and the Core EPA.
func (s *ScoringService) EPAScore(ctx context.Context, studentID, epaID string) (EPAResult, error) {
	key := studentPrefix(studentID) + "epa:" + epaID
	var result EPAResult
	if s.cached(key, &result) {
		s.logger.ScoringLogger("core_epa", studentID, epaID, result.Score, 0, true)
		return result, nil
	}
	gen := s.generation(studentID)
	if _, err := s.requireStudent(ctx, studentID); err != nil {
		return EPAResult{}, err
	}

	result, err := s.computeEPA(ctx, studentID, epaID)
	if err != nil {
		return EPAResult{}, err
	}
	s.store(studentID, gen, key, result)
	return result, nil
}

func (s *ScoringService) computeEPA(ctx context.Context, studentID, epaID string) (EPAResult, error) {
	start := time.Now()
	core, err := s.engine.CoreEPAScore(ctx, studentID, epaID)
	s.observe(string(scoring.LevelCoreEPA), err)
	if err != nil {
		return EPAResult{}, err
	}

	rows := calculatedRows(core)
	saved, err := s.repo.SaveCalculatedScores(ctx, rows)
	if err != nil {
		s.observe(string(scoring.LevelCoreEPA), err)
		return EPAResult{}, err
	}

	s.logger.ScoringLogger("core_epa", studentID, epaID, core.Score, time.Since(start), false)
	return EPAResult{
		RollupScore: core,
		Entrustment: scoring.ClassifyEntrustment(core.Score),
		SmallerEPAs: core.SmallerEPAs,
		Saved:       saved,
	}, nil
}

// calculatedRows flattens a Core EPA roll-up into the rows to persist,
// lowest level first.
func calculatedRows(core scoring.RollupScore) []scoring.CalculatedScore {
	var rows []scoring.CalculatedScore
	for _, sub := range core.SmallerEPAs {
		for _, act := range sub.Activities {
			rows = append(rows, scoring.CalculatedScore{
				StudentID:       core.StudentID,
				EPAID:           act.ActivityID,
				Level:           scoring.LevelActivity,
				FinalScore:      act.Score,
				CalculationDate: act.CalculatedAt,
			})
		}
		rows = append(rows, scoring.CalculatedScore{
			StudentID:       core.StudentID,
			EPAID:           sub.EPAID,
			Level:           scoring.LevelSmallerEPA,
			FinalScore:      sub.Score,
			CalculationDate: sub.CalculatedAt,
		})
	}
	return append(rows, scoring.CalculatedScore{
		StudentID:       core.StudentID,
		EPAID:           core.EPAID,
		Level:           scoring.LevelCoreEPA,
		FinalScore:      core.Score,
		CalculationDate: core.CalculatedAt,
	})
}

// Profile scores every Core EPA for the student, then every integration
// rule, then the overall mean. Core EPAs without ratings are listed as
// unavailable and do not count toward the mean.
func (s *ScoringService) Profile(ctx context.Context, studentID string) (Profile, error) {
	key := studentPrefix(studentID) + "profile"
	var profile Profile
	if s.cached(key, &profile) {
		return profile, nil
	}
	gen := s.generation(studentID)
	student, err := s.requireStudent(ctx, studentID)
	if err != nil {
		return Profile{}, err
	}

	epas, err := s.repo.ListCoreEPAs(ctx)
	if err != nil {
		return Profile{}, storeError("list_core_epas", err)
	}

	profile = Profile{
		StudentID:   student.StudentID,
		StudentName: student.Name,
		EPAs:        make([]ProfileEPA, 0, len(epas)),
	}

	var sum float64
	for _, epa := range epas {
		line := ProfileEPA{EPAID: epa.EPAID, Name: epa.Name}

		result, err := s.computeEPA(ctx, studentID, epa.EPAID)
		switch {
		case apperrors.IsNoData(err):
		case err != nil:
			return Profile{}, err
		default:
			score := result.Score
			entrustment := result.Entrustment
			line.Available = true
			line.Score = &score
			line.Entrustment = &entrustment
			line.Missing = result.Missing
			sum += score
			profile.ScoredCount++
		}
		profile.EPAs = append(profile.EPAs, line)
	}

	for _, rule := range s.engine.Rules().Rules() {
		bonus, err := s.integrationBonus(ctx, studentID, rule.Primary, rule.Secondary)
		if err != nil {
			return Profile{}, err
		}
		profile.Integration = append(profile.Integration, bonus)
		profile.TotalBonus += bonus.BonusPoints
	}

	if profile.ScoredCount > 0 {
		overall := sum / float64(profile.ScoredCount)
		entrustment := scoring.ClassifyEntrustment(overall)
		profile.OverallScore = &overall
		profile.OverallEntrustment = &entrustment
	}
	profile.CalculatedAt = s.now()

	s.store(studentID, gen, key, profile)
	return profile, nil
}
