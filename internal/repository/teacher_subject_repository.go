package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campuseval/teval-api/internal/models"
)

// TeacherSubjectRepository persists the teacher-to-subject relation that
// drives evaluation eligibility.
type TeacherSubjectRepository struct {
	db *sqlx.DB
}

// NewTeacherSubjectRepository constructs the repository.
func NewTeacherSubjectRepository(db *sqlx.DB) *TeacherSubjectRepository {
	return &TeacherSubjectRepository{db: db}
}

// CountForCohort counts subject assignments linking the teacher to the given
// normalized course/year. Callers must pass values already normalized by the
// eligibility resolver; the stored columns are normalized in-query to
// tolerate inconsistent data entry.
func (r *TeacherSubjectRepository) CountForCohort(ctx context.Context, teacherID int64, course, year string) (int, error) {
	const query = `
SELECT COUNT(*) FROM teacher_subjects ts
JOIN subjects s ON s.id = ts.subject_id
WHERE ts.teacher_id = $1
  AND UPPER(TRIM(s.course)) = $2
  AND TRIM(s.year) = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, teacherID, course, year); err != nil {
		return 0, fmt.Errorf("count cohort assignments: %w", err)
	}
	return count, nil
}

// ListSubjectsByTeacher returns the subjects assigned to a teacher.
func (r *TeacherSubjectRepository) ListSubjectsByTeacher(ctx context.Context, teacherID int64) ([]models.Subject, error) {
	const query = `
SELECT s.id, s.subject_code, s.subject_title, s.course, s.year, s.created_at
FROM teacher_subjects ts
JOIN subjects s ON s.id = ts.subject_id
WHERE ts.teacher_id = $1
ORDER BY s.course, s.year, s.subject_code`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, teacherID); err != nil {
		return nil, fmt.Errorf("list teacher subjects: %w", err)
	}
	return subjects, nil
}

// ReplaceForTeacher atomically swaps a teacher's subject assignments.
func (r *TeacherSubjectRepository) ReplaceForTeacher(ctx context.Context, teacherID int64, subjectIDs []int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assignment replace: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM teacher_subjects WHERE teacher_id = $1`, teacherID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear teacher subjects: %w", err)
	}

	for _, subjectID := range subjectIDs {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO teacher_subjects (teacher_id, subject_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			teacherID, subjectID,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert teacher subject: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit assignment replace: %w", err)
	}
	return nil
}

// ListEligibleTeachers returns the teachers a student of the normalized
// course/year may evaluate, flagged with the student's submission state.
func (r *TeacherSubjectRepository) ListEligibleTeachers(ctx context.Context, studentID int64, course, year string) ([]models.DashboardTeacher, error) {
	const query = `
SELECT DISTINCT t.id, t.name, t.course, t.year, t.description, t.email, t.created_at,
       (e.id IS NOT NULL) AS already_evaluated
FROM teacher_subjects ts
JOIN subjects s ON s.id = ts.subject_id
JOIN teachers t ON t.id = ts.teacher_id
LEFT JOIN evaluations e ON e.teacher_id = t.id AND e.student_id = $1
WHERE UPPER(TRIM(s.course)) = $2
  AND TRIM(s.year) = $3
ORDER BY t.name ASC`
	var teachers []models.DashboardTeacher
	if err := r.db.SelectContext(ctx, &teachers, query, studentID, course, year); err != nil {
		return nil, fmt.Errorf("list eligible teachers: %w", err)
	}
	return teachers, nil
}
