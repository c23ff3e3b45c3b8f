package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campuseval/teval-api/internal/models"
	appErrors "github.com/campuseval/teval-api/pkg/errors"
)

type stubStudentRepo struct {
	schoolIDTaken bool
	emailTaken    bool
	created       *models.Student
	student       *models.Student
	deleteErr     error
	deleted       []int64
}

func (s *stubStudentRepo) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	if s.student == nil {
		return nil, sql.ErrNoRows
	}
	return s.student, nil
}

func (s *stubStudentRepo) ExistsBySchoolID(ctx context.Context, schoolID string) (bool, error) {
	return s.schoolIDTaken, nil
}

func (s *stubStudentRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.emailTaken, nil
}

func (s *stubStudentRepo) Create(ctx context.Context, student *models.Student) error {
	student.ID = 1
	s.created = student
	return nil
}

func (s *stubStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	return nil, 0, nil
}

func (s *stubStudentRepo) Update(ctx context.Context, student *models.Student) error {
	if s.student == nil {
		return sql.ErrNoRows
	}
	return nil
}

func (s *stubStudentRepo) Delete(ctx context.Context, id int64) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func validRegistration() RegisterStudentRequest {
	return RegisterStudentRequest{
		FullName: " Student One ",
		SchoolID: "S-001",
		Course:   " bsit ",
		Year:     " 1st Year ",
		Email:    "one@example.com",
		Password: "secret123",
	}
}

func TestStudentServiceRegister(t *testing.T) {
	repo := &stubStudentRepo{}
	audit := &stubAuditRecorder{}
	svc := NewStudentService(repo, audit, validator.New(), zap.NewNop())

	student, err := svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)
	assert.Equal(t, "Student One", student.FullName)
	assert.Equal(t, "BSIT", student.Course)
	assert.Equal(t, "1st Year", student.Year)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(student.PasswordHash), []byte("secret123")))

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionStudentRegistered, audit.entries[0].Action)
}

func TestStudentServiceRegisterSchoolIDTaken(t *testing.T) {
	repo := &stubStudentRepo{schoolIDTaken: true}
	svc := NewStudentService(repo, nil, validator.New(), zap.NewNop())

	_, err := svc.Register(context.Background(), validRegistration())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestStudentServiceRegisterEmailTaken(t *testing.T) {
	repo := &stubStudentRepo{emailTaken: true}
	svc := NewStudentService(repo, nil, validator.New(), zap.NewNop())

	_, err := svc.Register(context.Background(), validRegistration())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceRegisterValidation(t *testing.T) {
	repo := &stubStudentRepo{}
	svc := NewStudentService(repo, nil, validator.New(), zap.NewNop())

	req := validRegistration()
	req.Password = "short"

	_, err := svc.Register(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	req = validRegistration()
	req.Email = "not-an-email"
	_, err = svc.Register(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceDeleteBlockedByForeignKey(t *testing.T) {
	repo := &stubStudentRepo{deleteErr: assert.AnError}
	svc := NewStudentService(repo, nil, validator.New(), zap.NewNop())

	err := svc.Delete(context.Background(), 5, 1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceUpdateNormalizesCohort(t *testing.T) {
	repo := &stubStudentRepo{student: &models.Student{ID: 1}}
	audit := &stubAuditRecorder{}
	svc := NewStudentService(repo, audit, validator.New(), zap.NewNop())

	student, err := svc.Update(context.Background(), 5, 1, UpdateStudentRequest{
		FullName: "Student One",
		Course:   "bsit",
		Year:     " 2nd Year ",
		Email:    "one@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "BSIT", student.Course)
	assert.Equal(t, "2nd Year", student.Year)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionEditStudent, audit.entries[0].Action)
}
