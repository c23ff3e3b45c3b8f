package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuseval/teval-api/internal/models"
	appErrors "github.com/campuseval/teval-api/pkg/errors"
)

type stubPeriodRepo struct {
	created *models.EvaluationPeriod
	active  *models.EvaluationPeriod
	recent  []models.EvaluationPeriod
	missing bool
	closed  []int64
}

func (s *stubPeriodRepo) Create(ctx context.Context, period *models.EvaluationPeriod) error {
	period.ID = 7
	s.created = period
	return nil
}

func (s *stubPeriodRepo) FindByID(ctx context.Context, id int64) (*models.EvaluationPeriod, error) {
	if s.created == nil {
		return nil, sql.ErrNoRows
	}
	return s.created, nil
}

func (s *stubPeriodRepo) Close(ctx context.Context, id int64) error {
	if s.missing {
		return sql.ErrNoRows
	}
	s.closed = append(s.closed, id)
	return nil
}

func (s *stubPeriodRepo) ListRecent(ctx context.Context, limit int) ([]models.EvaluationPeriod, error) {
	return s.recent, nil
}

func (s *stubPeriodRepo) ActiveAt(ctx context.Context, at time.Time) (*models.EvaluationPeriod, error) {
	return s.active, nil
}

func TestPeriodServiceCreate(t *testing.T) {
	repo := &stubPeriodRepo{}
	audit := &stubAuditRecorder{}
	svc := NewPeriodService(repo, audit, validator.New(), zap.NewNop())

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	period, err := svc.Create(context.Background(), 5, PeriodRequest{
		StartDate: start,
		EndDate:   start.AddDate(0, 1, 0),
		Note:      "Second semester",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), period.ID)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionAddPeriod, audit.entries[0].Action)
}

func TestPeriodServiceCreateRejectsInvertedRange(t *testing.T) {
	repo := &stubPeriodRepo{}
	svc := NewPeriodService(repo, nil, validator.New(), zap.NewNop())

	start := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	_, err := svc.Create(context.Background(), 5, PeriodRequest{
		StartDate: start,
		EndDate:   start.AddDate(0, 0, -10),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestPeriodServiceCloseUnknown(t *testing.T) {
	repo := &stubPeriodRepo{missing: true}
	svc := NewPeriodService(repo, nil, validator.New(), zap.NewNop())

	err := svc.Close(context.Background(), 5, 404)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestPeriodServiceActiveNilWhenShut(t *testing.T) {
	repo := &stubPeriodRepo{}
	svc := NewPeriodService(repo, nil, validator.New(), zap.NewNop())

	period, err := svc.Active(context.Background())
	require.NoError(t, err)
	assert.Nil(t, period)
}
