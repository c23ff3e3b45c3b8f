package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuseval/teval-api/internal/models"
)

func TestPeriodRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPeriodRepository(db)

	period := &models.EvaluationPeriod{
		StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Note:      "Second semester",
	}
	mock.ExpectQuery("INSERT INTO evaluation_periods").
		WithArgs(period.StartDate, period.EndDate, "Second semester", false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	require.NoError(t, repo.Create(context.Background(), period))
	assert.Equal(t, int64(7), period.ID)
	assert.False(t, period.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodRepositoryActiveAt(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPeriodRepository(db)

	at := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "start_date", "end_date", "note", "closed", "created_at"}).
		AddRow(int64(7), at.AddDate(0, 0, -14), at.AddDate(0, 0, 16), "Second semester", false, time.Now())
	mock.ExpectQuery("SELECT id, start_date, end_date, note, closed, created_at FROM evaluation_periods").
		WithArgs(at).
		WillReturnRows(rows)

	period, err := repo.ActiveAt(context.Background(), at)
	require.NoError(t, err)
	require.NotNil(t, period)
	assert.Equal(t, int64(7), period.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodRepositoryActiveAtNoWindow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPeriodRepository(db)

	mock.ExpectQuery("SELECT id, start_date, end_date, note, closed, created_at FROM evaluation_periods").
		WillReturnError(sql.ErrNoRows)

	period, err := repo.ActiveAt(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, period)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPeriodRepositoryClose(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPeriodRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE evaluation_periods SET closed = TRUE WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Close(context.Background(), 7))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE evaluation_periods SET closed = TRUE WHERE id = $1")).
		WithArgs(int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Close(context.Background(), 404), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
