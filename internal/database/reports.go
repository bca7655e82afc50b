package database

import (
	"context"

	"github.com/ZanzyTHEbar/epa-scoring/internal/errors"
	"github.com/ZanzyTHEbar/epa-scoring/internal/scoring"
)

// StudentSummary gathers a student's Core EPA score history, the current
// (latest) score per Core EPA and their most recent assessments.
func (r *Repository) StudentSummary(ctx context.Context, studentID string, recentLimit int) (StudentSummary, error) {
	student, found, err := r.FindStudent(ctx, studentID)
	if err != nil {
		return StudentSummary{}, err
	}
	if !found {
		return StudentSummary{}, errors.NewNotFoundError("student", studentID)
	}
	if recentLimit <= 0 {
		recentLimit = 10
	}

	summary := StudentSummary{
		Student:           student,
		EPAScores:         []CoreScoreRow{},
		CurrentScores:     []scoring.CalculatedScore{},
		RecentAssessments: []RecentAssessment{},
	}

	rows, err := r.db.QueryContext(ctx, r.db.rebind(`
		SELECT cs.epa_id, ce.epa_name, cs.final_score, cs.calculation_date
		FROM calculated_scores cs
		JOIN core_epas ce ON cs.epa_id = ce.epa_id
		WHERE cs.student_id = ? AND cs.score_level = 'Core_EPA'
		ORDER BY cs.calculation_date DESC, cs.epa_id
	`), studentID)
	if err != nil {
		return StudentSummary{}, errors.NewStoreError("student_summary_scores", err)
	}
	for rows.Next() {
		var row CoreScoreRow
		if err := rows.Scan(&row.EPAID, &row.EPAName, &row.FinalScore, &row.CalculationDate); err != nil {
			errors.SafeClose(rows, "rows")
			return StudentSummary{}, errors.NewStoreError("student_summary_scores", err)
		}
		summary.EPAScores = append(summary.EPAScores, row)
	}
	err = rows.Err()
	errors.SafeClose(rows, "rows")
	if err != nil {
		return StudentSummary{}, errors.NewStoreError("student_summary_scores", err)
	}

	seen := map[string]bool{}
	for _, row := range summary.EPAScores {
		if seen[row.EPAID] {
			continue
		}
		seen[row.EPAID] = true
		latest, found, err := r.LatestScore(ctx, studentID, row.EPAID, scoring.LevelCoreEPA)
		if err != nil {
			return StudentSummary{}, err
		}
		if found {
			summary.CurrentScores = append(summary.CurrentScores, latest)
		}
	}

	rows, err = r.db.QueryContext(ctx, r.db.rebind(`
		SELECT sa.assessment_id, sa.assessment_date, sa.base_score, sa.evidence_type,
			pi.indicator_name, ce.epa_name
		FROM student_assessments sa
		JOIN performance_indicators pi ON sa.indicator_id = pi.indicator_id
		JOIN activities a ON pi.activity_id = a.activity_id
		JOIN smaller_epas se ON a.smaller_epa_id = se.smaller_epa_id
		JOIN core_epas ce ON se.core_epa_id = ce.epa_id
		WHERE sa.student_id = ?
		ORDER BY sa.assessment_date DESC
		LIMIT ?
	`), studentID, recentLimit)
	if err != nil {
		return StudentSummary{}, errors.NewStoreError("student_summary_recent", err)
	}
	defer errors.SafeClose(rows, "rows")
	for rows.Next() {
		var ra RecentAssessment
		if err := rows.Scan(&ra.AssessmentID, &ra.AssessmentDate, &ra.BaseScore, &ra.EvidenceType, &ra.IndicatorName, &ra.EPAName); err != nil {
			return StudentSummary{}, errors.NewStoreError("student_summary_recent", err)
		}
		summary.RecentAssessments = append(summary.RecentAssessments, ra)
	}
	if err := rows.Err(); err != nil {
		return StudentSummary{}, errors.NewStoreError("student_summary_recent", err)
	}

	return summary, nil
}

// ListRatings returns every assessment's assessor, indicator, rating and
// evidence type.
func (r *Repository) ListRatings(ctx context.Context) ([]Rating, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT assessor_id, indicator_id, base_score, evidence_type FROM student_assessments ORDER BY assessment_date`)
	if err != nil {
		return nil, errors.NewStoreError("list_ratings", err)
	}
	defer errors.SafeClose(rows, "rows")

	out := []Rating{}
	for rows.Next() {
		var rt Rating
		if err := rows.Scan(&rt.AssessorID, &rt.IndicatorID, &rt.BaseScore, &rt.EvidenceType); err != nil {
			return nil, errors.NewStoreError("list_ratings", err)
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("list_ratings", err)
	}
	return out, nil
}
