package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campuseval/teval-api/internal/models"
	"github.com/campuseval/teval-api/internal/repository"
	appErrors "github.com/campuseval/teval-api/pkg/errors"
)

type evaluationStudentRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
}

type evaluationTeacherRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Teacher, error)
}

type evaluationRepository interface {
	Exists(ctx context.Context, studentID, teacherID int64) (bool, error)
	CreateWithAnswers(ctx context.Context, evaluation *models.Evaluation, answers []models.EvaluationAnswer) error
	FindByID(ctx context.Context, id int64) (*models.Evaluation, error)
	FindDetail(ctx context.Context, id int64) (*models.EvaluationDetail, error)
	ListAnswers(ctx context.Context, evaluationID int64) ([]models.AnswerDetail, error)
	ListByTeacher(ctx context.Context, teacherID int64, limit int) ([]models.Evaluation, error)
	ListByStudent(ctx context.Context, studentID int64) ([]models.Evaluation, error)
	Delete(ctx context.Context, id int64) error
}

type evaluationQuestionRepository interface {
	List(ctx context.Context) ([]models.EvaluationQuestion, error)
	ListIDs(ctx context.Context) ([]int64, error)
}

type eligibilityChecker interface {
	CanEvaluate(ctx context.Context, studentID, teacherID int64, course, year string) error
}

type eligibleTeacherLister interface {
	ListEligibleTeachers(ctx context.Context, studentID int64, course, year string) ([]models.DashboardTeacher, error)
}

type csrfVerifier interface {
	VerifyCSRF(ctx context.Context, role models.UserRole, userID int64, token string) error
}

type activePeriodFinder interface {
	ActiveAt(ctx context.Context, at time.Time) (*models.EvaluationPeriod, error)
}

type auditRecorder interface {
	Record(ctx context.Context, entry *models.AuditLog)
}

type reportCacheInvalidator interface {
	InvalidateTeacher(ctx context.Context, teacherID int64)
}

type submissionMetrics interface {
	RecordSubmission(outcome string)
}

// Submission outcome labels for metrics.
const (
	SubmissionAccepted        = "accepted"
	SubmissionRejectedCSRF    = "rejected_csrf"
	SubmissionRejectedGate    = "rejected_gate"
	SubmissionRejectedInvalid = "rejected_invalid"
	SubmissionDuplicate       = "duplicate"
	SubmissionFailed          = "failed"
)

// EvaluationService runs the submission workflow and the read paths around
// it. Submission passes an ordered chain of gates; the first failing gate
// aborts with nothing written.
type EvaluationService struct {
	students    evaluationStudentRepository
	teachers    evaluationTeacherRepository
	evaluations evaluationRepository
	questions   evaluationQuestionRepository
	eligibility eligibilityChecker
	dashboard   eligibleTeacherLister
	csrf        csrfVerifier
	periods     activePeriodFinder
	audit       auditRecorder
	reports     reportCacheInvalidator
	metrics     submissionMetrics
	periodGate  bool
	logger      *zap.Logger
	now         func() time.Time
}

// EvaluationServiceDeps bundles the collaborators of the workflow.
type EvaluationServiceDeps struct {
	Students    evaluationStudentRepository
	Teachers    evaluationTeacherRepository
	Evaluations evaluationRepository
	Questions   evaluationQuestionRepository
	Eligibility eligibilityChecker
	Dashboard   eligibleTeacherLister
	CSRF        csrfVerifier
	Periods     activePeriodFinder
	Audit       auditRecorder
	Reports     reportCacheInvalidator
	Metrics     submissionMetrics
	PeriodGate  bool
	Logger      *zap.Logger
}

// NewEvaluationService constructs the service.
func NewEvaluationService(deps EvaluationServiceDeps) *EvaluationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationService{
		students:    deps.Students,
		teachers:    deps.Teachers,
		evaluations: deps.Evaluations,
		questions:   deps.Questions,
		eligibility: deps.Eligibility,
		dashboard:   deps.Dashboard,
		csrf:        deps.CSRF,
		periods:     deps.Periods,
		audit:       deps.Audit,
		reports:     deps.Reports,
		metrics:     deps.Metrics,
		periodGate:  deps.PeriodGate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SubmitEvaluationRequest carries one submission attempt. StudentID comes
// from the authenticated token, never from the payload.
type SubmitEvaluationRequest struct {
	StudentID int64
	TeacherID int64
	CSRFToken string
	Ratings   map[int64]int
	Comment   string
	IP        string
	UserAgent string
}

// Submit runs the gated submission workflow. Gates fire in a fixed order:
// student lookup, CSRF, teacher lookup, period window, eligibility,
// duplicate pre-check, questionnaire validation, then the transactional
// write. The storage unique constraint stays authoritative for duplicates;
// the pre-check only gives losers of a race a cheaper answer.
func (s *EvaluationService) Submit(ctx context.Context, req SubmitEvaluationRequest) (*models.Evaluation, error) {
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.count(SubmissionRejectedGate)
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "student account not found")
		}
		s.count(SubmissionFailed)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if err := s.csrf.VerifyCSRF(ctx, models.RoleStudent, student.ID, req.CSRFToken); err != nil {
		s.count(SubmissionRejectedCSRF)
		return nil, err
	}

	teacher, err := s.teachers.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.count(SubmissionRejectedGate)
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		s.count(SubmissionFailed)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	if s.periodGate {
		period, err := s.periods.ActiveAt(ctx, s.now())
		if err != nil {
			s.count(SubmissionFailed)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check evaluation period")
		}
		if period == nil {
			s.count(SubmissionRejectedGate)
			return nil, appErrors.Clone(appErrors.ErrPeriodClosed, "")
		}
	}

	if err := s.eligibility.CanEvaluate(ctx, student.ID, teacher.ID, student.Course, student.Year); err != nil {
		s.count(SubmissionRejectedGate)
		return nil, err
	}

	exists, err := s.evaluations.Exists(ctx, student.ID, teacher.ID)
	if err != nil {
		s.count(SubmissionFailed)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prior evaluation")
	}
	if exists {
		s.count(SubmissionDuplicate)
		return nil, appErrors.Clone(appErrors.ErrAlreadyEvaluated, "")
	}

	questionIDs, err := s.questions.ListIDs(ctx)
	if err != nil {
		s.count(SubmissionFailed)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questionnaire")
	}
	if len(questionIDs) == 0 {
		s.count(SubmissionFailed)
		return nil, appErrors.New(appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "no evaluation questions configured")
	}

	answers, err := buildAnswers(questionIDs, req.Ratings)
	if err != nil {
		s.count(SubmissionRejectedInvalid)
		return nil, err
	}

	evaluation := &models.Evaluation{
		StudentID:   student.ID,
		TeacherID:   teacher.ID,
		Comment:     req.Comment,
		SubmittedAt: s.now(),
	}

	if err := s.evaluations.CreateWithAnswers(ctx, evaluation, answers); err != nil {
		if repository.IsUniqueViolation(err) {
			// Lost a concurrent race; the winner's row stands.
			s.count(SubmissionDuplicate)
			return nil, appErrors.Clone(appErrors.ErrAlreadyEvaluated, "")
		}
		s.count(SubmissionFailed)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evaluation")
	}

	s.count(SubmissionAccepted)
	if s.audit != nil {
		s.audit.Record(ctx, &models.AuditLog{
			UserType:  models.AuditUserStudent,
			UserID:    student.ID,
			Action:    models.AuditActionSubmittedEvaluation,
			Details:   fmt.Sprintf("teacher_id=%d evaluation_id=%d", teacher.ID, evaluation.ID),
			IP:        req.IP,
			UserAgent: req.UserAgent,
		})
	}
	if s.reports != nil {
		s.reports.InvalidateTeacher(ctx, teacher.ID)
	}

	s.logger.Info("evaluation submitted",
		zap.Int64("student_id", student.ID),
		zap.Int64("teacher_id", teacher.ID),
		zap.Int64("evaluation_id", evaluation.ID))

	return evaluation, nil
}

// buildAnswers validates the ratings against the current question id set and
// returns answer rows in question order. Every question needs a rating within
// bounds; extra keys are ignored.
func buildAnswers(questionIDs []int64, ratings map[int64]int) ([]models.EvaluationAnswer, error) {
	answers := make([]models.EvaluationAnswer, 0, len(questionIDs))
	for _, id := range questionIDs {
		rating, ok := ratings[id]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrIncompleteAnswers, "")
		}
		if rating < models.RatingMin || rating > models.RatingMax {
			return nil, appErrors.Clone(appErrors.ErrIncompleteAnswers, "")
		}
		answers = append(answers, models.EvaluationAnswer{QuestionID: id, Rating: rating})
	}
	return answers, nil
}

// Dashboard lists the teachers the student may evaluate with their
// submission state.
func (s *EvaluationService) Dashboard(ctx context.Context, studentID int64) ([]models.DashboardTeacher, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "student account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	course := NormalizeCourse(student.Course)
	year := NormalizeYear(student.Year)
	if course == "" || year == "" {
		return []models.DashboardTeacher{}, nil
	}

	teachers, err := s.dashboard.ListEligibleTeachers(ctx, student.ID, course, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	if teachers == nil {
		teachers = []models.DashboardTeacher{}
	}
	return teachers, nil
}

// Form returns everything a client needs to render the questionnaire for one
// teacher, after the same eligibility check the submission enforces.
func (s *EvaluationService) Form(ctx context.Context, studentID, teacherID int64) (*models.EvaluationForm, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "student account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	if err := s.eligibility.CanEvaluate(ctx, student.ID, teacher.ID, student.Course, student.Year); err != nil {
		return nil, err
	}

	exists, err := s.evaluations.Exists(ctx, student.ID, teacher.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prior evaluation")
	}

	questions, err := s.questions.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questionnaire")
	}

	return &models.EvaluationForm{
		Teacher:          *teacher,
		Groups:           groupQuestions(questions),
		AlreadyEvaluated: exists,
	}, nil
}

// groupQuestions folds an ordered question list into display groups,
// preserving first-seen group order.
func groupQuestions(questions []models.EvaluationQuestion) []models.QuestionGroup {
	groups := make([]models.QuestionGroup, 0)
	index := make(map[string]int)
	for _, q := range questions {
		i, ok := index[q.GroupTitle]
		if !ok {
			i = len(groups)
			index[q.GroupTitle] = i
			groups = append(groups, models.QuestionGroup{Title: q.GroupTitle})
		}
		groups[i].Questions = append(groups[i].Questions, q)
	}
	return groups
}

// Detail returns one evaluation with its answers for the admin view.
func (s *EvaluationService) Detail(ctx context.Context, id int64) (*models.EvaluationDetail, error) {
	detail, err := s.evaluations.FindDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "evaluation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluation")
	}
	answers, err := s.evaluations.ListAnswers(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load answers")
	}
	detail.Answers = answers
	return detail, nil
}

// ListByTeacher returns a teacher's evaluation headers for the admin view.
func (s *EvaluationService) ListByTeacher(ctx context.Context, teacherID int64, limit int) ([]models.Evaluation, error) {
	evaluations, err := s.evaluations.ListByTeacher(ctx, teacherID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evaluations")
	}
	if evaluations == nil {
		evaluations = []models.Evaluation{}
	}
	return evaluations, nil
}

// ListByStudent returns a student's submissions for the admin view.
func (s *EvaluationService) ListByStudent(ctx context.Context, studentID int64) ([]models.Evaluation, error) {
	evaluations, err := s.evaluations.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evaluations")
	}
	if evaluations == nil {
		evaluations = []models.Evaluation{}
	}
	return evaluations, nil
}

// Delete removes an evaluation with its answers and drops the teacher's
// cached report so the aggregates regenerate without the deleted rows.
func (s *EvaluationService) Delete(ctx context.Context, adminID, id int64) error {
	evaluation, err := s.evaluations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "evaluation not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluation")
	}

	if err := s.evaluations.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "evaluation not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete evaluation")
	}

	if s.audit != nil {
		s.audit.Record(ctx, &models.AuditLog{
			UserType: models.AuditUserAdmin,
			UserID:   adminID,
			Action:   models.AuditActionDeleteEvaluation,
			Details:  fmt.Sprintf("evaluation_id=%d teacher_id=%d", id, evaluation.TeacherID),
		})
	}
	if s.reports != nil {
		s.reports.InvalidateTeacher(ctx, evaluation.TeacherID)
	}
	return nil
}

func (s *EvaluationService) count(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSubmission(outcome)
	}
}
