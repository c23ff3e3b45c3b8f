package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campuseval/teval-api/internal/models"
)

// ReportRepository runs the aggregation queries behind teacher reports and
// the submission monitoring matrix.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs a ReportRepository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// CountRespondents counts students who submitted an evaluation for the
// teacher. The storage constraint keeps one row per student, so a plain count
// suffices.
func (r *ReportRepository) CountRespondents(ctx context.Context, teacherID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM evaluations WHERE teacher_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, teacherID); err != nil {
		return 0, fmt.Errorf("count respondents: %w", err)
	}
	return count, nil
}

// OverallAverage returns the mean of all answer ratings for the teacher, or
// nil when no answers exist.
func (r *ReportRepository) OverallAverage(ctx context.Context, teacherID int64) (*float64, error) {
	const query = `
SELECT AVG(a.rating)
FROM evaluation_answers a
JOIN evaluations e ON e.id = a.evaluation_id
WHERE e.teacher_id = $1`
	var avg sql.NullFloat64
	if err := r.db.GetContext(ctx, &avg, query, teacherID); err != nil {
		return nil, fmt.Errorf("overall average: %w", err)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// QuestionStats returns per-question averages for the teacher. Answers are
// restricted to the teacher's evaluations before the join, so every question
// stays in the result; ones without answers for this teacher carry zero
// responses.
func (r *ReportRepository) QuestionStats(ctx context.Context, teacherID int64) ([]models.QuestionStat, error) {
	const query = `
SELECT q.id AS question_id, q.question_text,
       COALESCE(AVG(ta.rating), 0) AS avg_rating,
       COUNT(ta.rating) AS responses
FROM evaluation_questions q
LEFT JOIN (
    SELECT a.question_id, a.rating
    FROM evaluation_answers a
    JOIN evaluations e ON e.id = a.evaluation_id
    WHERE e.teacher_id = $1
) ta ON ta.question_id = q.id
GROUP BY q.id, q.question_text, q.ordering
ORDER BY q.ordering, q.id`
	var stats []models.QuestionStat
	if err := r.db.SelectContext(ctx, &stats, query, teacherID); err != nil {
		return nil, fmt.Errorf("question stats: %w", err)
	}
	return stats, nil
}

// RecentEvaluations returns the teacher's latest submissions with student
// identity attached.
func (r *ReportRepository) RecentEvaluations(ctx context.Context, teacherID int64, limit int) ([]models.RecentEvaluation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `
SELECT e.id AS evaluation_id, st.fullname AS student_name, st.school_id,
       e.submitted_at, e.comment
FROM evaluations e
JOIN students st ON st.id = e.student_id
WHERE e.teacher_id = $1
ORDER BY e.submitted_at DESC
LIMIT $2`
	var recent []models.RecentEvaluation
	if err := r.db.SelectContext(ctx, &recent, query, teacherID, limit); err != nil {
		return nil, fmt.Errorf("recent evaluations: %w", err)
	}
	return recent, nil
}

// MonitorRows returns every (teacher, cohort student) pairing with the
// student's submission state. Cohorts are matched through subject assignments
// with the same normalization the eligibility check uses.
func (r *ReportRepository) MonitorRows(ctx context.Context) ([]models.MonitorRow, error) {
	const query = `
SELECT DISTINCT t.id AS teacher_id, t.name AS teacher_name,
       UPPER(TRIM(s.course)) AS course,
       st.id AS student_id, st.fullname, st.school_id,
       EXISTS (
           SELECT 1 FROM evaluations e
           WHERE e.student_id = st.id AND e.teacher_id = t.id
       ) AS submitted
FROM teachers t
JOIN teacher_subjects ts ON ts.teacher_id = t.id
JOIN subjects s ON s.id = ts.subject_id
JOIN students st ON UPPER(TRIM(st.course)) = UPPER(TRIM(s.course))
                AND TRIM(st.year) = TRIM(s.year)
ORDER BY course, teacher_name, fullname`
	var rows []models.MonitorRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("monitor rows: %w", err)
	}
	return rows, nil
}
