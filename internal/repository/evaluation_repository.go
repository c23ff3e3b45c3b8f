package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campuseval/teval-api/internal/models"
)

const uniqueStudentTeacherConstraint = "uq_evaluations_student_teacher"

// EvaluationRepository persists evaluation headers and their answer rows.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository constructs an EvaluationRepository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// Exists reports whether the student already evaluated the teacher.
func (r *EvaluationRepository) Exists(ctx context.Context, studentID, teacherID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM evaluations WHERE student_id = $1 AND teacher_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, teacherID); err != nil {
		return false, fmt.Errorf("check evaluation exists: %w", err)
	}
	return exists, nil
}

// CreateWithAnswers inserts the evaluation header and all answer rows in one
// transaction. Either every row lands or none do.
func (r *EvaluationRepository) CreateWithAnswers(ctx context.Context, evaluation *models.Evaluation, answers []models.EvaluationAnswer) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin evaluation insert: %w", err)
	}

	if evaluation.SubmittedAt.IsZero() {
		evaluation.SubmittedAt = time.Now().UTC()
	}

	const headerQuery = `INSERT INTO evaluations (student_id, teacher_id, comment, submitted_at)
		VALUES ($1, $2, $3, $4) RETURNING id`
	if err = tx.QueryRowxContext(ctx, headerQuery,
		evaluation.StudentID, evaluation.TeacherID, evaluation.Comment, evaluation.SubmittedAt,
	).Scan(&evaluation.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert evaluation: %w", err)
	}

	const answerQuery = `INSERT INTO evaluation_answers (evaluation_id, question_id, rating)
		VALUES ($1, $2, $3)`
	for i := range answers {
		answers[i].EvaluationID = evaluation.ID
		if _, err = tx.ExecContext(ctx, answerQuery,
			answers[i].EvaluationID, answers[i].QuestionID, answers[i].Rating,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert evaluation answer: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit evaluation insert: %w", err)
	}
	return nil
}

// FindByID fetches an evaluation header.
func (r *EvaluationRepository) FindByID(ctx context.Context, id int64) (*models.Evaluation, error) {
	const query = `SELECT id, student_id, teacher_id, comment, submitted_at FROM evaluations WHERE id = $1`
	var evaluation models.Evaluation
	if err := r.db.GetContext(ctx, &evaluation, query, id); err != nil {
		return nil, err
	}
	return &evaluation, nil
}

// FindDetail fetches an evaluation joined with student and teacher identity.
func (r *EvaluationRepository) FindDetail(ctx context.Context, id int64) (*models.EvaluationDetail, error) {
	const query = `
SELECT e.id, e.student_id, e.teacher_id, e.comment, e.submitted_at,
       st.fullname AS student_name, st.school_id, st.course AS student_course,
       t.name AS teacher_name
FROM evaluations e
JOIN students st ON st.id = e.student_id
JOIN teachers t ON t.id = e.teacher_id
WHERE e.id = $1`
	var detail models.EvaluationDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListAnswers returns the answer rows of an evaluation in question order.
func (r *EvaluationRepository) ListAnswers(ctx context.Context, evaluationID int64) ([]models.AnswerDetail, error) {
	const query = `
SELECT q.question_text, a.rating
FROM evaluation_answers a
JOIN evaluation_questions q ON q.id = a.question_id
WHERE a.evaluation_id = $1
ORDER BY q.ordering, q.id`
	var answers []models.AnswerDetail
	if err := r.db.SelectContext(ctx, &answers, query, evaluationID); err != nil {
		return nil, fmt.Errorf("list evaluation answers: %w", err)
	}
	return answers, nil
}

// ListByTeacher returns evaluation headers for a teacher, newest first.
func (r *EvaluationRepository) ListByTeacher(ctx context.Context, teacherID int64, limit int) ([]models.Evaluation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, student_id, teacher_id, comment, submitted_at
		FROM evaluations WHERE teacher_id = $1 ORDER BY submitted_at DESC LIMIT $2`
	var evaluations []models.Evaluation
	if err := r.db.SelectContext(ctx, &evaluations, query, teacherID, limit); err != nil {
		return nil, fmt.Errorf("list teacher evaluations: %w", err)
	}
	return evaluations, nil
}

// ListByStudent returns the evaluations a student has submitted.
func (r *EvaluationRepository) ListByStudent(ctx context.Context, studentID int64) ([]models.Evaluation, error) {
	const query = `SELECT id, student_id, teacher_id, comment, submitted_at
		FROM evaluations WHERE student_id = $1 ORDER BY submitted_at DESC`
	var evaluations []models.Evaluation
	if err := r.db.SelectContext(ctx, &evaluations, query, studentID); err != nil {
		return nil, fmt.Errorf("list student evaluations: %w", err)
	}
	return evaluations, nil
}

// Delete removes an evaluation. Answer rows cascade at the storage layer.
func (r *EvaluationRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM evaluations WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete evaluation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted evaluation rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IsUniqueViolation reports whether err is the storage-level duplicate guard
// on (student_id, teacher_id) firing.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != "23505" {
		return false
	}
	return pqErr.Constraint == "" || pqErr.Constraint == uniqueStudentTeacherConstraint
}
