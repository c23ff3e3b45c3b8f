package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campuseval/teval-api/internal/models"
	appErrors "github.com/campuseval/teval-api/pkg/errors"
)

type stubStudentFinder struct {
	student *models.Student
	err     error
}

func (s *stubStudentFinder) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.student, nil
}

type stubTeacherFinder struct {
	teacher *models.Teacher
	err     error
}

func (s *stubTeacherFinder) FindByID(ctx context.Context, id int64) (*models.Teacher, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.teacher, nil
}

type stubEvaluationRepo struct {
	exists      bool
	existsErr   error
	createErr   error
	created     *models.Evaluation
	answers     []models.EvaluationAnswer
	header      *models.Evaluation
	detail      *models.EvaluationDetail
	detailErr   error
	list        []models.Evaluation
	studentList []models.Evaluation
	deleted     []int64
	deleteErr   error
}

func (s *stubEvaluationRepo) Exists(ctx context.Context, studentID, teacherID int64) (bool, error) {
	return s.exists, s.existsErr
}

func (s *stubEvaluationRepo) CreateWithAnswers(ctx context.Context, evaluation *models.Evaluation, answers []models.EvaluationAnswer) error {
	if s.createErr != nil {
		return s.createErr
	}
	evaluation.ID = 99
	s.created = evaluation
	s.answers = answers
	return nil
}

func (s *stubEvaluationRepo) FindByID(ctx context.Context, id int64) (*models.Evaluation, error) {
	if s.header == nil {
		return nil, sql.ErrNoRows
	}
	return s.header, nil
}

func (s *stubEvaluationRepo) FindDetail(ctx context.Context, id int64) (*models.EvaluationDetail, error) {
	if s.detailErr != nil {
		return nil, s.detailErr
	}
	return s.detail, nil
}

func (s *stubEvaluationRepo) ListAnswers(ctx context.Context, evaluationID int64) ([]models.AnswerDetail, error) {
	return []models.AnswerDetail{{QuestionText: "Explains clearly", Rating: 5}}, nil
}

func (s *stubEvaluationRepo) ListByTeacher(ctx context.Context, teacherID int64, limit int) ([]models.Evaluation, error) {
	return s.list, nil
}

func (s *stubEvaluationRepo) ListByStudent(ctx context.Context, studentID int64) ([]models.Evaluation, error) {
	return s.studentList, nil
}

func (s *stubEvaluationRepo) Delete(ctx context.Context, id int64) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

type stubQuestionLister struct {
	questions []models.EvaluationQuestion
	err       error
}

func (s *stubQuestionLister) List(ctx context.Context) ([]models.EvaluationQuestion, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.questions, nil
}

func (s *stubQuestionLister) ListIDs(ctx context.Context) ([]int64, error) {
	if s.err != nil {
		return nil, s.err
	}
	ids := make([]int64, 0, len(s.questions))
	for _, q := range s.questions {
		ids = append(ids, q.ID)
	}
	return ids, nil
}

type stubEligibility struct {
	err    error
	called bool
}

func (s *stubEligibility) CanEvaluate(ctx context.Context, studentID, teacherID int64, course, year string) error {
	s.called = true
	return s.err
}

type stubDashboardLister struct {
	teachers []models.DashboardTeacher
	course   string
	year     string
}

func (s *stubDashboardLister) ListEligibleTeachers(ctx context.Context, studentID int64, course, year string) ([]models.DashboardTeacher, error) {
	s.course = course
	s.year = year
	return s.teachers, nil
}

type stubCSRFVerifier struct {
	err error
}

func (s *stubCSRFVerifier) VerifyCSRF(ctx context.Context, role models.UserRole, userID int64, token string) error {
	return s.err
}

type stubPeriodFinder struct {
	period *models.EvaluationPeriod
	err    error
	called bool
}

func (s *stubPeriodFinder) ActiveAt(ctx context.Context, at time.Time) (*models.EvaluationPeriod, error) {
	s.called = true
	return s.period, s.err
}

type stubAuditRecorder struct {
	entries []*models.AuditLog
}

func (s *stubAuditRecorder) Record(ctx context.Context, entry *models.AuditLog) {
	s.entries = append(s.entries, entry)
}

type stubReportInvalidator struct {
	invalidated []int64
}

func (s *stubReportInvalidator) InvalidateTeacher(ctx context.Context, teacherID int64) {
	s.invalidated = append(s.invalidated, teacherID)
}

type stubSubmissionMetrics struct {
	outcomes []string
}

func (s *stubSubmissionMetrics) RecordSubmission(outcome string) {
	s.outcomes = append(s.outcomes, outcome)
}

type submitFixture struct {
	students    *stubStudentFinder
	teachers    *stubTeacherFinder
	evaluations *stubEvaluationRepo
	questions   *stubQuestionLister
	eligibility *stubEligibility
	dashboard   *stubDashboardLister
	csrf        *stubCSRFVerifier
	periods     *stubPeriodFinder
	audit       *stubAuditRecorder
	reports     *stubReportInvalidator
	metrics     *stubSubmissionMetrics
}

func newSubmitFixture() *submitFixture {
	return &submitFixture{
		students: &stubStudentFinder{student: &models.Student{
			ID: 1, FullName: "Student One", SchoolID: "S-001", Course: "BSIT", Year: "1st Year",
		}},
		teachers: &stubTeacherFinder{teacher: &models.Teacher{
			ID: 2, Name: "Teacher Two", Course: "BSIT", Year: "1st Year",
		}},
		evaluations: &stubEvaluationRepo{},
		questions: &stubQuestionLister{questions: []models.EvaluationQuestion{
			{ID: 10, GroupTitle: "Teaching", QuestionText: "Explains clearly", Ordering: 1},
			{ID: 11, GroupTitle: "Teaching", QuestionText: "Answers questions", Ordering: 2},
			{ID: 12, GroupTitle: "Conduct", QuestionText: "Starts on time", Ordering: 3},
		}},
		eligibility: &stubEligibility{},
		dashboard:   &stubDashboardLister{},
		csrf:        &stubCSRFVerifier{},
		periods:     &stubPeriodFinder{period: &models.EvaluationPeriod{ID: 7}},
		audit:       &stubAuditRecorder{},
		reports:     &stubReportInvalidator{},
		metrics:     &stubSubmissionMetrics{},
	}
}

func (f *submitFixture) service(periodGate bool) *EvaluationService {
	return NewEvaluationService(EvaluationServiceDeps{
		Students:    f.students,
		Teachers:    f.teachers,
		Evaluations: f.evaluations,
		Questions:   f.questions,
		Eligibility: f.eligibility,
		Dashboard:   f.dashboard,
		CSRF:        f.csrf,
		Periods:     f.periods,
		Audit:       f.audit,
		Reports:     f.reports,
		Metrics:     f.metrics,
		PeriodGate:  periodGate,
		Logger:      zap.NewNop(),
	})
}

func validSubmitRequest() SubmitEvaluationRequest {
	return SubmitEvaluationRequest{
		StudentID: 1,
		TeacherID: 2,
		CSRFToken: "token",
		Ratings:   map[int64]int{10: 5, 11: 4, 12: 3},
		Comment:   "Great semester",
		IP:        "10.0.0.1",
		UserAgent: "test-agent",
	}
}

func TestEvaluationServiceSubmitSuccess(t *testing.T) {
	f := newSubmitFixture()
	svc := f.service(true)

	evaluation, err := svc.Submit(context.Background(), validSubmitRequest())
	require.NoError(t, err)
	require.NotNil(t, evaluation)
	assert.Equal(t, int64(99), evaluation.ID)
	assert.Equal(t, int64(1), evaluation.StudentID)
	assert.Equal(t, int64(2), evaluation.TeacherID)

	// Answers land in question order, all evaluation-bound.
	require.Len(t, f.evaluations.answers, 3)
	assert.Equal(t, int64(10), f.evaluations.answers[0].QuestionID)
	assert.Equal(t, int64(11), f.evaluations.answers[1].QuestionID)
	assert.Equal(t, int64(12), f.evaluations.answers[2].QuestionID)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditActionSubmittedEvaluation, f.audit.entries[0].Action)
	assert.Equal(t, models.AuditUserStudent, f.audit.entries[0].UserType)
	assert.Equal(t, "10.0.0.1", f.audit.entries[0].IP)

	assert.Equal(t, []int64{2}, f.reports.invalidated)
	assert.Equal(t, []string{SubmissionAccepted}, f.metrics.outcomes)
}

func TestEvaluationServiceSubmitExtraRatingsIgnored(t *testing.T) {
	f := newSubmitFixture()
	svc := f.service(true)

	req := validSubmitRequest()
	req.Ratings[999] = 5

	_, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, f.evaluations.answers, 3)
}

func TestEvaluationServiceSubmitInvalidCSRF(t *testing.T) {
	f := newSubmitFixture()
	f.csrf.err = appErrors.Clone(appErrors.ErrInvalidCSRF, "")
	svc := f.service(true)

	_, err := svc.Submit(context.Background(), validSubmitRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCSRF.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.evaluations.created)
	assert.Empty(t, f.audit.entries)
	assert.Equal(t, []string{SubmissionRejectedCSRF}, f.metrics.outcomes)
}

func TestEvaluationServiceSubmitPeriodClosed(t *testing.T) {
	f := newSubmitFixture()
	f.periods.period = nil
	svc := f.service(true)

	_, err := svc.Submit(context.Background(), validSubmitRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPeriodClosed.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.evaluations.created)
}

func TestEvaluationServiceSubmitPeriodGateDisabled(t *testing.T) {
	f := newSubmitFixture()
	f.periods.period = nil
	svc := f.service(false)

	_, err := svc.Submit(context.Background(), validSubmitRequest())
	require.NoError(t, err)
	assert.False(t, f.periods.called)
}

func TestEvaluationServiceSubmitNotEligible(t *testing.T) {
	f := newSubmitFixture()
	f.eligibility.err = appErrors.Clone(appErrors.ErrNotEligible, "")
	svc := f.service(true)

	_, err := svc.Submit(context.Background(), validSubmitRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEligible.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.evaluations.created)
	assert.Equal(t, []string{SubmissionRejectedGate}, f.metrics.outcomes)
}

func TestEvaluationServiceSubmitDuplicatePreCheck(t *testing.T) {
	f := newSubmitFixture()
	f.evaluations.exists = true
	svc := f.service(true)

	_, err := svc.Submit(context.Background(), validSubmitRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyEvaluated.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.evaluations.created)
	assert.Equal(t, []string{SubmissionDuplicate}, f.metrics.outcomes)
}

func TestEvaluationServiceSubmitDuplicateRace(t *testing.T) {
	// The pre-check passed but a concurrent submission won the insert; the
	// storage constraint surfaces as the same duplicate error.
	f := newSubmitFixture()
	f.evaluations.createErr = &pq.Error{Code: "23505", Constraint: "uq_evaluations_student_teacher"}
	svc := f.service(true)

	_, err := svc.Submit(context.Background(), validSubmitRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAlreadyEvaluated.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.audit.entries)
	assert.Empty(t, f.reports.invalidated)
	assert.Equal(t, []string{SubmissionDuplicate}, f.metrics.outcomes)
}

func TestEvaluationServiceSubmitMissingRating(t *testing.T) {
	f := newSubmitFixture()
	svc := f.service(true)

	req := validSubmitRequest()
	delete(req.Ratings, 11)

	_, err := svc.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIncompleteAnswers.Code, appErrors.FromError(err).Code)
	assert.Nil(t, f.evaluations.created)
	assert.Equal(t, []string{SubmissionRejectedInvalid}, f.metrics.outcomes)
}

func TestEvaluationServiceSubmitRatingOutOfRange(t *testing.T) {
	f := newSubmitFixture()
	svc := f.service(true)

	for _, rating := range []int{0, 6, -1} {
		req := validSubmitRequest()
		req.Ratings[11] = rating

		_, err := svc.Submit(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrIncompleteAnswers.Code, appErrors.FromError(err).Code)
	}
	assert.Nil(t, f.evaluations.created)
}

func TestEvaluationServiceSubmitUnknownStudent(t *testing.T) {
	f := newSubmitFixture()
	f.students.err = sql.ErrNoRows
	svc := f.service(true)

	_, err := svc.Submit(context.Background(), validSubmitRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestEvaluationServiceSubmitUnknownTeacher(t *testing.T) {
	f := newSubmitFixture()
	f.teachers.err = sql.ErrNoRows
	svc := f.service(true)

	_, err := svc.Submit(context.Background(), validSubmitRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEvaluationServiceSubmitStorageFailure(t *testing.T) {
	f := newSubmitFixture()
	f.evaluations.createErr = errors.New("connection reset")
	svc := f.service(true)

	_, err := svc.Submit(context.Background(), validSubmitRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.Equal(t, []string{SubmissionFailed}, f.metrics.outcomes)
}

func TestEvaluationServiceDashboardNormalizesCohort(t *testing.T) {
	f := newSubmitFixture()
	f.students.student.Course = "  bsit "
	f.students.student.Year = " 1st Year "
	f.dashboard.teachers = []models.DashboardTeacher{{AlreadyEvaluated: true}}
	svc := f.service(true)

	teachers, err := svc.Dashboard(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, teachers, 1)
	assert.Equal(t, "BSIT", f.dashboard.course)
	assert.Equal(t, "1st Year", f.dashboard.year)
}

func TestEvaluationServiceDashboardBlankCohort(t *testing.T) {
	f := newSubmitFixture()
	f.students.student.Course = "  "
	svc := f.service(true)

	teachers, err := svc.Dashboard(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, teachers)
}

func TestEvaluationServiceFormGroupsQuestions(t *testing.T) {
	f := newSubmitFixture()
	f.evaluations.exists = true
	svc := f.service(true)

	form, err := svc.Form(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, form.Groups, 2)
	assert.Equal(t, "Teaching", form.Groups[0].Title)
	assert.Len(t, form.Groups[0].Questions, 2)
	assert.Equal(t, "Conduct", form.Groups[1].Title)
	assert.True(t, form.AlreadyEvaluated)
}

func TestEvaluationServiceDelete(t *testing.T) {
	f := newSubmitFixture()
	f.evaluations.header = &models.Evaluation{ID: 99, StudentID: 1, TeacherID: 2}
	svc := f.service(true)

	err := svc.Delete(context.Background(), 5, 99)
	require.NoError(t, err)
	assert.Equal(t, []int64{99}, f.evaluations.deleted)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditActionDeleteEvaluation, f.audit.entries[0].Action)
	assert.Equal(t, models.AuditUserAdmin, f.audit.entries[0].UserType)
	assert.Equal(t, int64(5), f.audit.entries[0].UserID)

	// The teacher's cached report must regenerate without the deleted rows.
	assert.Equal(t, []int64{2}, f.reports.invalidated)
}

func TestEvaluationServiceDeleteUnknown(t *testing.T) {
	f := newSubmitFixture()
	svc := f.service(true)

	err := svc.Delete(context.Background(), 5, 404)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.evaluations.deleted)
	assert.Empty(t, f.audit.entries)
}

func TestEvaluationServiceListByStudentEmpty(t *testing.T) {
	f := newSubmitFixture()
	svc := f.service(true)

	evaluations, err := svc.ListByStudent(context.Background(), 1)
	require.NoError(t, err)
	assert.NotNil(t, evaluations)
	assert.Empty(t, evaluations)
}

func TestEvaluationServiceFormNotEligible(t *testing.T) {
	f := newSubmitFixture()
	f.eligibility.err = appErrors.Clone(appErrors.ErrNotEligible, "")
	svc := f.service(true)

	_, err := svc.Form(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEligible.Code, appErrors.FromError(err).Code)
}
