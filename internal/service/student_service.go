package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campuseval/teval-api/internal/models"
	appErrors "github.com/campuseval/teval-api/pkg/errors"
)

type studentRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	ExistsBySchoolID(ctx context.Context, schoolID string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id int64) error
}

// StudentService covers self-registration and the admin roster.
type StudentService struct {
	repo      studentRepository
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the service.
func NewStudentService(repo studentRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// RegisterStudentRequest describes the self-registration payload.
type RegisterStudentRequest struct {
	FullName string `json:"fullname" validate:"required"`
	SchoolID string `json:"school_id" validate:"required"`
	Course   string `json:"course" validate:"required"`
	Year     string `json:"year" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	IP       string `json:"-"`
}

// UpdateStudentRequest describes the admin update payload.
type UpdateStudentRequest struct {
	FullName string `json:"fullname" validate:"required"`
	Course   string `json:"course" validate:"required"`
	Year     string `json:"year" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}

// Register creates a student account.
func (s *StudentService) Register(ctx context.Context, req RegisterStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	schoolID := strings.TrimSpace(req.SchoolID)
	email := strings.TrimSpace(req.Email)

	taken, err := s.repo.ExistsBySchoolID(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check school ID")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "school ID is already registered")
	}

	taken, err = s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email is already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	student := &models.Student{
		FullName:     strings.TrimSpace(req.FullName),
		SchoolID:     schoolID,
		Course:       NormalizeCourse(req.Course),
		Year:         NormalizeYear(req.Year),
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	if s.audit != nil {
		s.audit.Record(ctx, &models.AuditLog{
			UserType: models.AuditUserStudent,
			UserID:   student.ID,
			Action:   models.AuditActionStudentRegistered,
			IP:       req.IP,
		})
	}
	return student, nil
}

// Get returns one student.
func (s *StudentService) Get(ctx context.Context, id int64) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// List returns students matching the filter with pagination.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return students, pagination, nil
}

// Update modifies a student record from the admin side.
func (s *StudentService) Update(ctx context.Context, adminID, id int64, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student := &models.Student{
		ID:       id,
		FullName: strings.TrimSpace(req.FullName),
		Course:   NormalizeCourse(req.Course),
		Year:     NormalizeYear(req.Year),
		Email:    strings.TrimSpace(req.Email),
	}
	if err := s.repo.Update(ctx, student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	if s.audit != nil {
		s.audit.Record(ctx, &models.AuditLog{
			UserType: models.AuditUserAdmin,
			UserID:   adminID,
			Action:   models.AuditActionEditStudent,
			Details:  fmt.Sprintf("student_id=%d", id),
		})
	}
	return student, nil
}

// Delete removes a student record. Submitted evaluations block removal at
// the storage layer through the foreign key.
func (s *StudentService) Delete(ctx context.Context, adminID, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "student has evaluations and cannot be deleted")
	}
	if s.audit != nil {
		s.audit.Record(ctx, &models.AuditLog{
			UserType: models.AuditUserAdmin,
			UserID:   adminID,
			Action:   models.AuditActionDeleteStudent,
			Details:  fmt.Sprintf("student_id=%d", id),
		})
	}
	return nil
}
