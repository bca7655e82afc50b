package database

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/epa-scoring/internal/errors"
	"github.com/ZanzyTHEbar/epa-scoring/internal/scoring"
)

const (
	stmtFindAssessment          = "find_assessment"
	stmtListActivityAssessments = "list_activity_assessments"
	stmtAverageCoreScore        = "average_core_score"
)

const assessmentSelect = `SELECT sa.assessment_id, sa.student_id, sa.indicator_id, pi.indicator_name,
		sa.assessor_id, sa.base_score, sa.context_id, ct.base_multiplier,
		sa.tech_level_id, tl.multiplier, pi.weight_percentage, pi.competency_type,
		sa.evidence_type, sa.notes, sa.assessment_date
	FROM student_assessments sa
	JOIN performance_indicators pi ON sa.indicator_id = pi.indicator_id
	LEFT JOIN context_types ct ON sa.context_id = ct.context_id
	LEFT JOIN technology_levels tl ON sa.tech_level_id = tl.tech_level_id`

// Repository handles database operations. It satisfies scoring.Store.
type Repository struct {
	db  *DB
	now func() time.Time
}

var _ scoring.Store = (*Repository)(nil)

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Ping checks connectivity for health reporting.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return errors.NewStoreError("ping", err)
	}
	return nil
}

// PoolStats exposes connection pool statistics.
func (r *Repository) PoolStats() map[string]interface{} {
	return r.db.GetPoolStats()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (scoring.AssessmentDetail, error) {
	var (
		a                      scoring.AssessmentDetail
		contextID, techLevelID sql.NullString
		contextMult, techMult  sql.NullFloat64
	)
	err := row.Scan(
		&a.AssessmentID, &a.StudentID, &a.IndicatorID, &a.IndicatorName,
		&a.AssessorID, &a.BaseScore, &contextID, &contextMult,
		&techLevelID, &techMult, &a.WeightPercentage, &a.CompetencyType,
		&a.EvidenceType, &a.Notes, &a.CreatedAt,
	)
	if err != nil {
		return a, err
	}
	a.ContextID = contextID.String
	a.TechLevelID = techLevelID.String
	if contextMult.Valid {
		v := contextMult.Float64
		a.ContextMult = &v
	}
	if techMult.Valid {
		v := techMult.Float64
		a.TechMult = &v
	}
	return a, nil
}

// FindAssessment loads one assessment with its indicator and multipliers.
func (r *Repository) FindAssessment(ctx context.Context, assessmentID string) (scoring.AssessmentDetail, bool, error) {
	stmt, err := r.db.GetPreparedStatement(stmtFindAssessment)
	if err != nil {
		return scoring.AssessmentDetail{}, false, errors.NewStoreError(stmtFindAssessment, err)
	}

	a, err := scanAssessment(stmt.QueryRowContext(ctx, assessmentID))
	if stderrors.Is(err, sql.ErrNoRows) {
		return scoring.AssessmentDetail{}, false, nil
	}
	if err != nil {
		return scoring.AssessmentDetail{}, false, errors.NewStoreError(stmtFindAssessment, err)
	}
	return a, true, nil
}

// ListActivityAssessments returns the student's assessments for an activity,
// newest first.
func (r *Repository) ListActivityAssessments(ctx context.Context, studentID, activityID string) ([]scoring.AssessmentDetail, error) {
	stmt, err := r.db.GetPreparedStatement(stmtListActivityAssessments)
	if err != nil {
		return nil, errors.NewStoreError(stmtListActivityAssessments, err)
	}

	rows, err := stmt.QueryContext(ctx, studentID, activityID)
	if err != nil {
		return nil, errors.NewStoreError(stmtListActivityAssessments, err)
	}
	defer errors.SafeClose(rows, "rows")

	var out []scoring.AssessmentDetail
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, errors.NewStoreError(stmtListActivityAssessments, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError(stmtListActivityAssessments, err)
	}
	return out, nil
}

// AverageCoreScore averages every Core_EPA history row for the pair.
func (r *Repository) AverageCoreScore(ctx context.Context, studentID, epaID string) (float64, bool, error) {
	stmt, err := r.db.GetPreparedStatement(stmtAverageCoreScore)
	if err != nil {
		return 0, false, errors.NewStoreError(stmtAverageCoreScore, err)
	}

	var (
		avg   sql.NullFloat64
		count int64
	)
	if err := stmt.QueryRowContext(ctx, studentID, epaID).Scan(&avg, &count); err != nil {
		return 0, false, errors.NewStoreError(stmtAverageCoreScore, err)
	}
	if count == 0 || !avg.Valid {
		return 0, false, nil
	}
	return avg.Float64, true, nil
}

// FindCoreEPA loads one Core EPA.
func (r *Repository) FindCoreEPA(ctx context.Context, epaID string) (scoring.CoreEPA, bool, error) {
	var epa scoring.CoreEPA
	err := r.db.QueryRowContext(ctx, r.db.rebind(
		`SELECT epa_id, epa_name, description FROM core_epas WHERE epa_id = ?`), epaID,
	).Scan(&epa.EPAID, &epa.Name, &epa.Description)
	if stderrors.Is(err, sql.ErrNoRows) {
		return scoring.CoreEPA{}, false, nil
	}
	if err != nil {
		return scoring.CoreEPA{}, false, errors.NewStoreError("find_core_epa", err)
	}
	return epa, true, nil
}

// FindSmallerEPA loads one Smaller EPA.
func (r *Repository) FindSmallerEPA(ctx context.Context, smallerEPAID string) (scoring.SmallerEPA, bool, error) {
	var s scoring.SmallerEPA
	err := r.db.QueryRowContext(ctx, r.db.rebind(
		`SELECT smaller_epa_id, core_epa_id, smaller_epa_name, sequence_order, weight_percentage
		FROM smaller_epas WHERE smaller_epa_id = ?`), smallerEPAID,
	).Scan(&s.SmallerEPAID, &s.CoreEPAID, &s.Name, &s.SequenceOrder, &s.WeightPercentage)
	if stderrors.Is(err, sql.ErrNoRows) {
		return scoring.SmallerEPA{}, false, nil
	}
	if err != nil {
		return scoring.SmallerEPA{}, false, errors.NewStoreError("find_smaller_epa", err)
	}
	return s, true, nil
}

// ListSmallerEPAs returns a Core EPA's children in sequence order.
func (r *Repository) ListSmallerEPAs(ctx context.Context, coreEPAID string) ([]scoring.SmallerEPA, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(
		`SELECT smaller_epa_id, core_epa_id, smaller_epa_name, sequence_order, weight_percentage
		FROM smaller_epas WHERE core_epa_id = ? ORDER BY sequence_order, smaller_epa_id`), coreEPAID)
	if err != nil {
		return nil, errors.NewStoreError("list_smaller_epas", err)
	}
	defer errors.SafeClose(rows, "rows")

	var out []scoring.SmallerEPA
	for rows.Next() {
		var s scoring.SmallerEPA
		if err := rows.Scan(&s.SmallerEPAID, &s.CoreEPAID, &s.Name, &s.SequenceOrder, &s.WeightPercentage); err != nil {
			return nil, errors.NewStoreError("list_smaller_epas", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("list_smaller_epas", err)
	}
	return out, nil
}

// ListActivities returns a Smaller EPA's activities in sequence order.
func (r *Repository) ListActivities(ctx context.Context, smallerEPAID string) ([]scoring.Activity, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(
		`SELECT activity_id, smaller_epa_id, activity_name, sequence_order, weight_percentage
		FROM activities WHERE smaller_epa_id = ? ORDER BY sequence_order, activity_id`), smallerEPAID)
	if err != nil {
		return nil, errors.NewStoreError("list_activities", err)
	}
	defer errors.SafeClose(rows, "rows")

	var out []scoring.Activity
	for rows.Next() {
		var a scoring.Activity
		if err := rows.Scan(&a.ActivityID, &a.SmallerEPAID, &a.Name, &a.SequenceOrder, &a.WeightPercentage); err != nil {
			return nil, errors.NewStoreError("list_activities", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("list_activities", err)
	}
	return out, nil
}

// CreateAssessment validates and appends a new assessment. Unknown students
// and indicators are reported as NotFound.
func (r *Repository) CreateAssessment(ctx context.Context, in NewAssessment) (scoring.AssessmentDetail, error) {
	if err := in.Validate(); err != nil {
		return scoring.AssessmentDetail{}, err
	}

	if ok, err := r.exists(ctx, `SELECT 1 FROM students WHERE student_id = ?`, in.StudentID); err != nil {
		return scoring.AssessmentDetail{}, err
	} else if !ok {
		return scoring.AssessmentDetail{}, errors.NewNotFoundError("student", in.StudentID)
	}
	if ok, err := r.exists(ctx, `SELECT 1 FROM performance_indicators WHERE indicator_id = ?`, in.IndicatorID); err != nil {
		return scoring.AssessmentDetail{}, err
	} else if !ok {
		return scoring.AssessmentDetail{}, errors.NewNotFoundError("indicator", in.IndicatorID)
	}
	if in.ContextID != "" {
		if ok, err := r.exists(ctx, `SELECT 1 FROM context_types WHERE context_id = ?`, in.ContextID); err != nil {
			return scoring.AssessmentDetail{}, err
		} else if !ok {
			return scoring.AssessmentDetail{}, errors.NewNotFoundError("context", in.ContextID)
		}
	}
	if in.TechLevelID != "" {
		if ok, err := r.exists(ctx, `SELECT 1 FROM technology_levels WHERE tech_level_id = ?`, in.TechLevelID); err != nil {
			return scoring.AssessmentDetail{}, err
		} else if !ok {
			return scoring.AssessmentDetail{}, errors.NewNotFoundError("technology level", in.TechLevelID)
		}
	}

	now := r.now()
	id := NewAssessmentID(in.StudentID, now)
	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO student_assessments
		(assessment_id, student_id, indicator_id, assessor_id, base_score,
		 context_id, tech_level_id, evidence_type, notes, assessment_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), id, in.StudentID, in.IndicatorID, in.AssessorID, in.BaseScore,
		nullString(in.ContextID), nullString(in.TechLevelID), in.EvidenceType, in.Notes, now)
	if err != nil {
		return scoring.AssessmentDetail{}, errors.NewStoreError("create_assessment", err)
	}

	created, found, err := r.FindAssessment(ctx, id)
	if err != nil {
		return scoring.AssessmentDetail{}, err
	}
	if !found {
		return scoring.AssessmentDetail{}, errors.NewStoreError("create_assessment", fmt.Errorf("assessment %s missing after insert", id))
	}
	return created, nil
}

// SaveCalculatedScores appends score history rows in one transaction.
func (r *Repository) SaveCalculatedScores(ctx context.Context, scores []scoring.CalculatedScore) ([]scoring.CalculatedScore, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewStoreError("save_calculated_scores", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := r.db.rebind(`INSERT INTO calculated_scores
		(score_id, student_id, epa_id, score_level, final_score, calculation_date)
		VALUES (?, ?, ?, ?, ?, ?)`)

	saved := make([]scoring.CalculatedScore, 0, len(scores))
	for _, s := range scores {
		if s.ScoreID == "" {
			s.ScoreID = uuid.New().String()
		}
		if s.CalculationDate.IsZero() {
			s.CalculationDate = r.now()
		}
		if _, err := tx.ExecContext(ctx, query, s.ScoreID, s.StudentID, s.EPAID, string(s.Level), s.FinalScore, s.CalculationDate); err != nil {
			return nil, errors.NewStoreError("save_calculated_scores", err)
		}
		saved = append(saved, s)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewStoreError("save_calculated_scores", err)
	}
	return saved, nil
}

// LatestScore returns the most recent score row for a level. The latest row
// is the authoritative one for reads.
func (r *Repository) LatestScore(ctx context.Context, studentID, epaID string, level scoring.ScoreLevel) (scoring.CalculatedScore, bool, error) {
	var s scoring.CalculatedScore
	var lvl string
	err := r.db.QueryRowContext(ctx, r.db.rebind(`
		SELECT score_id, student_id, epa_id, score_level, final_score, calculation_date
		FROM calculated_scores
		WHERE student_id = ? AND epa_id = ? AND score_level = ?
		ORDER BY calculation_date DESC
		LIMIT 1
	`), studentID, epaID, string(level)).Scan(&s.ScoreID, &s.StudentID, &s.EPAID, &lvl, &s.FinalScore, &s.CalculationDate)
	if stderrors.Is(err, sql.ErrNoRows) {
		return scoring.CalculatedScore{}, false, nil
	}
	if err != nil {
		return scoring.CalculatedScore{}, false, errors.NewStoreError("latest_score", err)
	}
	s.Level = scoring.ScoreLevel(lvl)
	return s, true, nil
}

func (r *Repository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, r.db.rebind(query), args...).Scan(&one)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.NewStoreError("exists", err)
	}
	return true, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
