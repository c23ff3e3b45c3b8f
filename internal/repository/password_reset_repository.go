package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campuseval/teval-api/internal/models"
)

// PasswordResetRepository stores one pending reset token per student. Issuing
// a new token replaces the previous one.
type PasswordResetRepository struct {
	db *sqlx.DB
}

// NewPasswordResetRepository constructs a PasswordResetRepository.
func NewPasswordResetRepository(db *sqlx.DB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// Upsert stores the token hash for a student, replacing any pending token.
func (r *PasswordResetRepository) Upsert(ctx context.Context, reset *models.PasswordReset) error {
	if reset.CreatedAt.IsZero() {
		reset.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO password_resets (student_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (student_id) DO UPDATE SET token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at`
	if _, err := r.db.ExecContext(ctx, query,
		reset.StudentID, reset.TokenHash, reset.ExpiresAt, reset.CreatedAt,
	); err != nil {
		return fmt.Errorf("upsert password reset: %w", err)
	}
	return nil
}

// FindByStudent returns the pending reset entry for a student.
func (r *PasswordResetRepository) FindByStudent(ctx context.Context, studentID int64) (*models.PasswordReset, error) {
	const query = `SELECT student_id, token_hash, expires_at, created_at FROM password_resets WHERE student_id = $1`
	var reset models.PasswordReset
	if err := r.db.GetContext(ctx, &reset, query, studentID); err != nil {
		return nil, err
	}
	return &reset, nil
}

// Delete removes a student's pending reset entry.
func (r *PasswordResetRepository) Delete(ctx context.Context, studentID int64) error {
	const query = `DELETE FROM password_resets WHERE student_id = $1`
	if _, err := r.db.ExecContext(ctx, query, studentID); err != nil {
		return fmt.Errorf("delete password reset: %w", err)
	}
	return nil
}
