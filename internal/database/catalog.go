package database

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/ZanzyTHEbar/epa-scoring/internal/errors"
	"github.com/ZanzyTHEbar/epa-scoring/internal/scoring"
)

// ListCoreEPAs returns every Core EPA ordered by id.
func (r *Repository) ListCoreEPAs(ctx context.Context) ([]scoring.CoreEPA, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT epa_id, epa_name, description FROM core_epas ORDER BY epa_id`)
	if err != nil {
		return nil, errors.NewStoreError("list_core_epas", err)
	}
	defer errors.SafeClose(rows, "rows")

	var out []scoring.CoreEPA
	for rows.Next() {
		var e scoring.CoreEPA
		if err := rows.Scan(&e.EPAID, &e.Name, &e.Description); err != nil {
			return nil, errors.NewStoreError("list_core_epas", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("list_core_epas", err)
	}
	return out, nil
}

// EPADetail loads a Core EPA with its Smaller EPAs, activities and
// indicators.
func (r *Repository) EPADetail(ctx context.Context, epaID string) (EPADetail, error) {
	core, found, err := r.FindCoreEPA(ctx, epaID)
	if err != nil {
		return EPADetail{}, err
	}
	if !found {
		return EPADetail{}, errors.NewNotFoundError("EPA", epaID)
	}

	subs, err := r.ListSmallerEPAs(ctx, epaID)
	if err != nil {
		return EPADetail{}, err
	}

	detail := EPADetail{CoreEPA: core, SmallerEPAs: make([]SmallerEPADetail, 0, len(subs))}
	for _, sub := range subs {
		acts, err := r.ListActivities(ctx, sub.SmallerEPAID)
		if err != nil {
			return EPADetail{}, err
		}
		subDetail := SmallerEPADetail{SmallerEPA: sub, Activities: make([]ActivityDetail, 0, len(acts))}
		for _, act := range acts {
			indicators, err := r.ListIndicators(ctx, act.ActivityID)
			if err != nil {
				return EPADetail{}, err
			}
			subDetail.Activities = append(subDetail.Activities, ActivityDetail{Activity: act, Indicators: indicators})
		}
		detail.SmallerEPAs = append(detail.SmallerEPAs, subDetail)
	}
	return detail, nil
}

// ListIndicators returns an activity's performance indicators.
func (r *Repository) ListIndicators(ctx context.Context, activityID string) ([]PerformanceIndicator, error) {
	rows, err := r.db.QueryContext(ctx, r.db.rebind(
		`SELECT indicator_id, activity_id, indicator_name, weight_percentage, competency_type
		FROM performance_indicators WHERE activity_id = ? ORDER BY indicator_id`), activityID)
	if err != nil {
		return nil, errors.NewStoreError("list_indicators", err)
	}
	defer errors.SafeClose(rows, "rows")

	out := []PerformanceIndicator{}
	for rows.Next() {
		var p PerformanceIndicator
		if err := rows.Scan(&p.IndicatorID, &p.ActivityID, &p.Name, &p.WeightPercentage, &p.CompetencyType); err != nil {
			return nil, errors.NewStoreError("list_indicators", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("list_indicators", err)
	}
	return out, nil
}

// ListActiveStudents returns Active students ordered by name.
func (r *Repository) ListActiveStudents(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT student_id, student_name, email, cohort, status FROM students WHERE status = 'Active' ORDER BY student_name`)
	if err != nil {
		return nil, errors.NewStoreError("list_students", err)
	}
	defer errors.SafeClose(rows, "rows")

	out := []Student{}
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.StudentID, &s.Name, &s.Email, &s.Cohort, &s.Status); err != nil {
			return nil, errors.NewStoreError("list_students", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("list_students", err)
	}
	return out, nil
}

// FindStudent loads a student regardless of status.
func (r *Repository) FindStudent(ctx context.Context, studentID string) (Student, bool, error) {
	var s Student
	err := r.db.QueryRowContext(ctx, r.db.rebind(
		`SELECT student_id, student_name, email, cohort, status FROM students WHERE student_id = ?`), studentID,
	).Scan(&s.StudentID, &s.Name, &s.Email, &s.Cohort, &s.Status)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Student{}, false, nil
	}
	if err != nil {
		return Student{}, false, errors.NewStoreError("find_student", err)
	}
	return s, true, nil
}

// ListActiveFaculty returns Active faculty ordered by name.
func (r *Repository) ListActiveFaculty(ctx context.Context) ([]Faculty, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT faculty_id, faculty_name, email, department, status FROM faculty WHERE status = 'Active' ORDER BY faculty_name`)
	if err != nil {
		return nil, errors.NewStoreError("list_faculty", err)
	}
	defer errors.SafeClose(rows, "rows")

	out := []Faculty{}
	for rows.Next() {
		var f Faculty
		if err := rows.Scan(&f.FacultyID, &f.Name, &f.Email, &f.Department, &f.Status); err != nil {
			return nil, errors.NewStoreError("list_faculty", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("list_faculty", err)
	}
	return out, nil
}

// ListContextTypes returns context types ordered by name.
func (r *Repository) ListContextTypes(ctx context.Context) ([]ContextType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT context_id, context_name, base_multiplier FROM context_types ORDER BY context_name`)
	if err != nil {
		return nil, errors.NewStoreError("list_contexts", err)
	}
	defer errors.SafeClose(rows, "rows")

	out := []ContextType{}
	for rows.Next() {
		var c ContextType
		if err := rows.Scan(&c.ContextID, &c.Name, &c.BaseMultiplier); err != nil {
			return nil, errors.NewStoreError("list_contexts", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("list_contexts", err)
	}
	return out, nil
}

// ListTechnologyLevels returns technology levels ordered by multiplier.
func (r *Repository) ListTechnologyLevels(ctx context.Context) ([]TechnologyLevel, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tech_level_id, tech_level_name, multiplier FROM technology_levels ORDER BY multiplier, tech_level_id`)
	if err != nil {
		return nil, errors.NewStoreError("list_technology_levels", err)
	}
	defer errors.SafeClose(rows, "rows")

	out := []TechnologyLevel{}
	for rows.Next() {
		var t TechnologyLevel
		if err := rows.Scan(&t.TechLevelID, &t.Name, &t.Multiplier); err != nil {
			return nil, errors.NewStoreError("list_technology_levels", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("list_technology_levels", err)
	}
	return out, nil
}

// CreateCoreEPA inserts or renames a Core EPA.
func (r *Repository) CreateCoreEPA(ctx context.Context, epa scoring.CoreEPA) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO core_epas (epa_id, epa_name, description) VALUES (?, ?, ?)
		ON CONFLICT (epa_id) DO UPDATE SET epa_name = excluded.epa_name, description = excluded.description
	`), epa.EPAID, epa.Name, epa.Description)
	if err != nil {
		return errors.NewStoreError("create_core_epa", err)
	}
	return nil
}

// CreateSmallerEPA inserts a Smaller EPA.
func (r *Repository) CreateSmallerEPA(ctx context.Context, s scoring.SmallerEPA) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO smaller_epas (smaller_epa_id, core_epa_id, smaller_epa_name, sequence_order, weight_percentage)
		VALUES (?, ?, ?, ?, ?)
	`), s.SmallerEPAID, s.CoreEPAID, s.Name, s.SequenceOrder, s.WeightPercentage)
	if err != nil {
		return errors.NewStoreError("create_smaller_epa", err)
	}
	return nil
}

// CreateActivity inserts an activity.
func (r *Repository) CreateActivity(ctx context.Context, a scoring.Activity) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO activities (activity_id, smaller_epa_id, activity_name, sequence_order, weight_percentage)
		VALUES (?, ?, ?, ?, ?)
	`), a.ActivityID, a.SmallerEPAID, a.Name, a.SequenceOrder, a.WeightPercentage)
	if err != nil {
		return errors.NewStoreError("create_activity", err)
	}
	return nil
}

// CreateIndicator inserts a performance indicator.
func (r *Repository) CreateIndicator(ctx context.Context, p PerformanceIndicator) error {
	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO performance_indicators (indicator_id, activity_id, indicator_name, weight_percentage, competency_type)
		VALUES (?, ?, ?, ?, ?)
	`), p.IndicatorID, p.ActivityID, p.Name, p.WeightPercentage, p.CompetencyType)
	if err != nil {
		return errors.NewStoreError("create_indicator", err)
	}
	return nil
}

// CreateStudent inserts a student. An empty status defaults to Active.
func (r *Repository) CreateStudent(ctx context.Context, s Student) error {
	if s.Status == "" {
		s.Status = "Active"
	}
	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO students (student_id, student_name, email, cohort, status) VALUES (?, ?, ?, ?, ?)
	`), s.StudentID, s.Name, s.Email, s.Cohort, s.Status)
	if err != nil {
		return errors.NewStoreError("create_student", err)
	}
	return nil
}

// CreateFaculty inserts a faculty member. An empty status defaults to Active.
func (r *Repository) CreateFaculty(ctx context.Context, f Faculty) error {
	if f.Status == "" {
		f.Status = "Active"
	}
	_, err := r.db.ExecContext(ctx, r.db.rebind(`
		INSERT INTO faculty (faculty_id, faculty_name, email, department, status) VALUES (?, ?, ?, ?, ?)
	`), f.FacultyID, f.Name, f.Email, f.Department, f.Status)
	if err != nil {
		return errors.NewStoreError("create_faculty", err)
	}
	return nil
}
