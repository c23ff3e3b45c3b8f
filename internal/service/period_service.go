package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuseval/teval-api/internal/models"
	appErrors "github.com/campuseval/teval-api/pkg/errors"
)

type periodRepository interface {
	Create(ctx context.Context, period *models.EvaluationPeriod) error
	FindByID(ctx context.Context, id int64) (*models.EvaluationPeriod, error)
	Close(ctx context.Context, id int64) error
	ListRecent(ctx context.Context, limit int) ([]models.EvaluationPeriod, error)
	ActiveAt(ctx context.Context, at time.Time) (*models.EvaluationPeriod, error)
}

// PeriodService manages evaluation period windows.
type PeriodService struct {
	repo      periodRepository
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPeriodService constructs the service.
func NewPeriodService(repo periodRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *PeriodService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// PeriodRequest describes the create payload.
type PeriodRequest struct {
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	Note      string    `json:"note"`
}

// Create opens a new period window.
func (s *PeriodService) Create(ctx context.Context, adminID int64, req PeriodRequest) (*models.EvaluationPeriod, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid period payload")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date precedes start date")
	}
	period := &models.EvaluationPeriod{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Note:      req.Note,
	}
	if err := s.repo.Create(ctx, period); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create period")
	}
	if s.audit != nil {
		s.audit.Record(ctx, &models.AuditLog{
			UserType: models.AuditUserAdmin,
			UserID:   adminID,
			Action:   models.AuditActionAddPeriod,
			Details:  fmt.Sprintf("period_id=%d", period.ID),
		})
	}
	return period, nil
}

// Close ends a period immediately.
func (s *PeriodService) Close(ctx context.Context, adminID, id int64) error {
	if err := s.repo.Close(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "period not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close period")
	}
	if s.audit != nil {
		s.audit.Record(ctx, &models.AuditLog{
			UserType: models.AuditUserAdmin,
			UserID:   adminID,
			Action:   models.AuditActionClosePeriod,
			Details:  fmt.Sprintf("period_id=%d", id),
		})
	}
	return nil
}

// ListRecent returns the latest period windows.
func (s *PeriodService) ListRecent(ctx context.Context, limit int) ([]models.EvaluationPeriod, error) {
	periods, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list periods")
	}
	if periods == nil {
		periods = []models.EvaluationPeriod{}
	}
	return periods, nil
}

// Active returns the currently open period, or nil when the window is shut.
func (s *PeriodService) Active(ctx context.Context) (*models.EvaluationPeriod, error) {
	period, err := s.repo.ActiveAt(ctx, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active period")
	}
	return period, nil
}
