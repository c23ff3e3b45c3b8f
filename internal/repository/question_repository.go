package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campuseval/teval-api/internal/models"
)

// QuestionRepository manages the evaluation questionnaire.
type QuestionRepository struct {
	db *sqlx.DB
}

// NewQuestionRepository constructs a QuestionRepository.
func NewQuestionRepository(db *sqlx.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// List returns every question in display order (ordering, then id).
func (r *QuestionRepository) List(ctx context.Context) ([]models.EvaluationQuestion, error) {
	const query = `SELECT id, group_title, question_text, ordering, created_at FROM evaluation_questions ORDER BY ordering, id`
	var questions []models.EvaluationQuestion
	if err := r.db.SelectContext(ctx, &questions, query); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

// ListIDs returns the current question id set in display order.
func (r *QuestionRepository) ListIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT id FROM evaluation_questions ORDER BY ordering, id`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list question ids: %w", err)
	}
	return ids, nil
}

// FindByID fetches a question by ID.
func (r *QuestionRepository) FindByID(ctx context.Context, id int64) (*models.EvaluationQuestion, error) {
	const query = `SELECT id, group_title, question_text, ordering, created_at FROM evaluation_questions WHERE id = $1`
	var question models.EvaluationQuestion
	if err := r.db.GetContext(ctx, &question, query, id); err != nil {
		return nil, err
	}
	return &question, nil
}

// Create inserts a new question and assigns the generated id.
func (r *QuestionRepository) Create(ctx context.Context, question *models.EvaluationQuestion) error {
	if question.CreatedAt.IsZero() {
		question.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO evaluation_questions (group_title, question_text, ordering, created_at)
		VALUES ($1, $2, $3, $4) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		question.GroupTitle, question.QuestionText, question.Ordering, question.CreatedAt,
	).Scan(&question.ID); err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

// Update modifies an existing question.
func (r *QuestionRepository) Update(ctx context.Context, question *models.EvaluationQuestion) error {
	const query = `UPDATE evaluation_questions SET group_title = :group_title, question_text = :question_text, ordering = :ordering WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, question)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated question rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a question.
func (r *QuestionRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM evaluation_questions WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted question rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
