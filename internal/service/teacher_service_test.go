package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuseval/teval-api/internal/models"
	appErrors "github.com/campuseval/teval-api/pkg/errors"
)

type stubTeacherRepo struct {
	teacher     *models.Teacher
	evaluations int
	created     *models.Teacher
	deleted     []int64
}

func (s *stubTeacherRepo) FindByID(ctx context.Context, id int64) (*models.Teacher, error) {
	if s.teacher == nil {
		return nil, sql.ErrNoRows
	}
	return s.teacher, nil
}

func (s *stubTeacherRepo) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	if s.teacher == nil {
		return nil, 0, nil
	}
	return []models.Teacher{*s.teacher}, 1, nil
}

func (s *stubTeacherRepo) Create(ctx context.Context, teacher *models.Teacher) error {
	teacher.ID = 2
	s.created = teacher
	return nil
}

func (s *stubTeacherRepo) Update(ctx context.Context, teacher *models.Teacher) error {
	if s.teacher == nil {
		return sql.ErrNoRows
	}
	return nil
}

func (s *stubTeacherRepo) CountEvaluations(ctx context.Context, teacherID int64) (int, error) {
	return s.evaluations, nil
}

func (s *stubTeacherRepo) Delete(ctx context.Context, id int64) error {
	if s.teacher == nil {
		return sql.ErrNoRows
	}
	s.deleted = append(s.deleted, id)
	return nil
}

type stubAssignmentRepo struct {
	subjects []models.Subject
	replaced []int64
}

func (s *stubAssignmentRepo) ListSubjectsByTeacher(ctx context.Context, teacherID int64) ([]models.Subject, error) {
	return s.subjects, nil
}

func (s *stubAssignmentRepo) ReplaceForTeacher(ctx context.Context, teacherID int64, subjectIDs []int64) error {
	s.replaced = subjectIDs
	return nil
}

func newTeacherServiceFixture() (*TeacherService, *stubTeacherRepo, *stubAssignmentRepo, *stubAuditRecorder) {
	repo := &stubTeacherRepo{teacher: &models.Teacher{ID: 2, Name: "Teacher Two", Course: "BSIT", Year: "1st Year"}}
	assignments := &stubAssignmentRepo{subjects: []models.Subject{{ID: 7, SubjectCode: "IT101"}}}
	audit := &stubAuditRecorder{}
	svc := NewTeacherService(repo, assignments, audit, validator.New(), zap.NewNop())
	return svc, repo, assignments, audit
}

func TestTeacherServiceGetIncludesSubjects(t *testing.T) {
	svc, _, _, _ := newTeacherServiceFixture()

	detail, err := svc.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Teacher Two", detail.Name)
	require.Len(t, detail.Subjects, 1)
	assert.Equal(t, "IT101", detail.Subjects[0].SubjectCode)
}

func TestTeacherServiceCreateValidates(t *testing.T) {
	svc, repo, _, audit := newTeacherServiceFixture()

	_, err := svc.Create(context.Background(), 5, TeacherRequest{Name: ""})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)

	teacher, err := svc.Create(context.Background(), 5, TeacherRequest{Name: "Teacher New", Course: "BSIT", Year: "2nd Year"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), teacher.ID)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionAddTeacher, audit.entries[0].Action)
}

func TestTeacherServiceAssignSubjects(t *testing.T) {
	svc, _, assignments, audit := newTeacherServiceFixture()

	require.NoError(t, svc.AssignSubjects(context.Background(), 5, 2, []int64{7, 8}))
	assert.Equal(t, []int64{7, 8}, assignments.replaced)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionEditTeacher, audit.entries[0].Action)
}

func TestTeacherServiceAssignSubjectsUnknownTeacher(t *testing.T) {
	svc, repo, assignments, _ := newTeacherServiceFixture()
	repo.teacher = nil

	err := svc.AssignSubjects(context.Background(), 5, 404, []int64{7})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Nil(t, assignments.replaced)
}

func TestTeacherServiceDeleteBlockedByEvaluations(t *testing.T) {
	svc, repo, _, audit := newTeacherServiceFixture()
	repo.evaluations = 4

	err := svc.Delete(context.Background(), 5, 2)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
	assert.Empty(t, audit.entries)
}

func TestTeacherServiceDelete(t *testing.T) {
	svc, repo, _, audit := newTeacherServiceFixture()

	require.NoError(t, svc.Delete(context.Background(), 5, 2))
	assert.Equal(t, []int64{2}, repo.deleted)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionDeleteTeacher, audit.entries[0].Action)
}
