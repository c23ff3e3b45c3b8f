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

type teacherRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Teacher, error)
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	CountEvaluations(ctx context.Context, teacherID int64) (int, error)
	Delete(ctx context.Context, id int64) error
}

type teacherAssignmentRepository interface {
	ListSubjectsByTeacher(ctx context.Context, teacherID int64) ([]models.Subject, error)
	ReplaceForTeacher(ctx context.Context, teacherID int64, subjectIDs []int64) error
}

// TeacherService manages the teacher roster and its subject assignments.
type TeacherService struct {
	repo        teacherRepository
	assignments teacherAssignmentRepository
	audit       auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewTeacherService constructs the service.
func NewTeacherService(repo teacherRepository, assignments teacherAssignmentRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, assignments: assignments, audit: audit, validator: validate, logger: logger}
}

// TeacherRequest describes the create/update payload.
type TeacherRequest struct {
	Name        string `json:"name" validate:"required"`
	Course      string `json:"course"`
	Year        string `json:"year"`
	Description string `json:"description"`
	Email       string `json:"email" validate:"omitempty,email"`
}

// List returns teachers matching the filter with pagination.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	if teachers == nil {
		teachers = []models.Teacher{}
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return teachers, pagination, nil
}

// Get returns one teacher with its subject assignments.
func (s *TeacherService) Get(ctx context.Context, id int64) (*models.TeacherDetail, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	subjects, err := s.assignments.ListSubjectsByTeacher(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	if subjects == nil {
		subjects = []models.Subject{}
	}
	return &models.TeacherDetail{Teacher: *teacher, Subjects: subjects}, nil
}

// Create adds a teacher.
func (s *TeacherService) Create(ctx context.Context, adminID int64, req TeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	teacher := &models.Teacher{
		Name:        req.Name,
		Course:      req.Course,
		Year:        req.Year,
		Description: req.Description,
		Email:       req.Email,
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	s.record(ctx, adminID, models.AuditActionAddTeacher, fmt.Sprintf("teacher_id=%d", teacher.ID))
	return teacher, nil
}

// Update modifies a teacher.
func (s *TeacherService) Update(ctx context.Context, adminID, id int64, req TeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	teacher := &models.Teacher{
		ID:          id,
		Name:        req.Name,
		Course:      req.Course,
		Year:        req.Year,
		Description: req.Description,
		Email:       req.Email,
	}
	if err := s.repo.Update(ctx, teacher); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	s.record(ctx, adminID, models.AuditActionEditTeacher, fmt.Sprintf("teacher_id=%d", id))
	return teacher, nil
}

// AssignSubjects replaces the teacher's subject assignments.
func (s *TeacherService) AssignSubjects(ctx context.Context, adminID, teacherID int64, subjectIDs []int64) error {
	if _, err := s.repo.FindByID(ctx, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if err := s.assignments.ReplaceForTeacher(ctx, teacherID, subjectIDs); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace assignments")
	}
	s.record(ctx, adminID, models.AuditActionEditTeacher, fmt.Sprintf("teacher_id=%d assignments=%d", teacherID, len(subjectIDs)))
	return nil
}

// Delete removes a teacher. Teachers with stored evaluations cannot be
// removed; the evaluations own the history.
func (s *TeacherService) Delete(ctx context.Context, adminID, id int64) error {
	count, err := s.repo.CountEvaluations(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count evaluations")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "teacher has evaluations and cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher")
	}
	s.record(ctx, adminID, models.AuditActionDeleteTeacher, fmt.Sprintf("teacher_id=%d", id))
	return nil
}

func (s *TeacherService) record(ctx context.Context, adminID int64, action, details string) {
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
