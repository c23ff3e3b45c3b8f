package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuseval/teval-api/internal/models"
	appErrors "github.com/campuseval/teval-api/pkg/errors"
)

type subjectRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Subject, error)
	List(ctx context.Context) ([]models.Subject, error)
	ListByCourseYear(ctx context.Context, course, year string) ([]models.Subject, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id int64) error
}

// SubjectService manages the subject catalog.
type SubjectService struct {
	repo      subjectRepository
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs the service.
func NewSubjectService(repo subjectRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// SubjectRequest describes the create/update payload.
type SubjectRequest struct {
	SubjectCode  string `json:"subject_code" validate:"required"`
	SubjectTitle string `json:"subject_title" validate:"required"`
	Course       string `json:"course" validate:"required"`
	Year         string `json:"year" validate:"required"`
}

// List returns all subjects, optionally narrowed to a cohort.
func (s *SubjectService) List(ctx context.Context, course, year string) ([]models.Subject, error) {
	var subjects []models.Subject
	var err error
	if course != "" && year != "" {
		subjects, err = s.repo.ListByCourseYear(ctx, NormalizeCourse(course), NormalizeYear(year))
	} else {
		subjects, err = s.repo.List(ctx)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	if subjects == nil {
		subjects = []models.Subject{}
	}
	return subjects, nil
}

// Get returns one subject.
func (s *SubjectService) Get(ctx context.Context, id int64) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// Create adds a subject.
func (s *SubjectService) Create(ctx context.Context, adminID int64, req SubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	subject := &models.Subject{
		SubjectCode:  req.SubjectCode,
		SubjectTitle: req.SubjectTitle,
		Course:       req.Course,
		Year:         req.Year,
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	s.record(ctx, adminID, models.AuditActionAddSubject, fmt.Sprintf("subject_id=%d", subject.ID))
	return subject, nil
}

// Update modifies a subject.
func (s *SubjectService) Update(ctx context.Context, adminID, id int64, req SubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	subject := &models.Subject{
		ID:           id,
		SubjectCode:  req.SubjectCode,
		SubjectTitle: req.SubjectTitle,
		Course:       req.Course,
		Year:         req.Year,
	}
	if err := s.repo.Update(ctx, subject); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	s.record(ctx, adminID, models.AuditActionEditSubject, fmt.Sprintf("subject_id=%d", id))
	return subject, nil
}

// Delete removes a subject; teacher assignments cascade.
func (s *SubjectService) Delete(ctx context.Context, adminID, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	s.record(ctx, adminID, models.AuditActionDeleteSubject, fmt.Sprintf("subject_id=%d", id))
	return nil
}

func (s *SubjectService) record(ctx context.Context, adminID int64, action, details string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, &models.AuditLog{
		UserType: models.AuditUserAdmin,
		UserID:   adminID,
		Action:   action,
		Details:  details,
	})
}
