package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campuseval/teval-api/internal/models"
)

// PeriodRepository manages evaluation period windows.
type PeriodRepository struct {
	db *sqlx.DB
}

// NewPeriodRepository constructs a PeriodRepository.
func NewPeriodRepository(db *sqlx.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

const periodColumns = `id, start_date, end_date, note, closed, created_at`

// Create opens a new evaluation period window.
func (r *PeriodRepository) Create(ctx context.Context, period *models.EvaluationPeriod) error {
	if period.CreatedAt.IsZero() {
		period.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO evaluation_periods (start_date, end_date, note, closed, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		period.StartDate, period.EndDate, period.Note, period.Closed, period.CreatedAt,
	).Scan(&period.ID); err != nil {
		return fmt.Errorf("create period: %w", err)
	}
	return nil
}

// FindByID fetches a period by ID.
func (r *PeriodRepository) FindByID(ctx context.Context, id int64) (*models.EvaluationPeriod, error) {
	query := fmt.Sprintf(`SELECT %s FROM evaluation_periods WHERE id = $1`, periodColumns)
	var period models.EvaluationPeriod
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		return nil, err
	}
	return &period, nil
}

// Close marks a period as closed regardless of its date range.
func (r *PeriodRepository) Close(ctx context.Context, id int64) error {
	const query = `UPDATE evaluation_periods SET closed = TRUE WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("close period: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check closed period rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListRecent returns the most recently created periods.
func (r *PeriodRepository) ListRecent(ctx context.Context, limit int) ([]models.EvaluationPeriod, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT %s FROM evaluation_periods ORDER BY created_at DESC LIMIT $1`, periodColumns)
	var periods []models.EvaluationPeriod
	if err := r.db.SelectContext(ctx, &periods, query, limit); err != nil {
		return nil, fmt.Errorf("list recent periods: %w", err)
	}
	return periods, nil
}

// ActiveAt returns the open period containing the instant, or nil when no
// window is open.
func (r *PeriodRepository) ActiveAt(ctx context.Context, at time.Time) (*models.EvaluationPeriod, error) {
	query := fmt.Sprintf(`SELECT %s FROM evaluation_periods
		WHERE NOT closed AND start_date <= $1::date AND end_date >= $1::date
		ORDER BY start_date DESC LIMIT 1`, periodColumns)
	var period models.EvaluationPeriod
	if err := r.db.GetContext(ctx, &period, query, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active period: %w", err)
	}
	return &period, nil
}
