package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/campuseval/teval-api/pkg/errors"
)

type cohortAssignmentRepository interface {
	CountForCohort(ctx context.Context, teacherID int64, course, year string) (int, error)
}

// EligibilityService decides whether a student may evaluate a teacher. A
// student is eligible when at least one subject assignment links the teacher
// to the student's course/year cohort. Any doubt resolves to "not eligible".
type EligibilityService struct {
	assignments cohortAssignmentRepository
	logger      *zap.Logger
}

// NewEligibilityService constructs the service.
func NewEligibilityService(assignments cohortAssignmentRepository, logger *zap.Logger) *EligibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{assignments: assignments, logger: logger}
}

// NormalizeCourse canonicalizes a course code for comparison.
func NormalizeCourse(course string) string {
	return strings.ToUpper(strings.TrimSpace(course))
}

// NormalizeYear canonicalizes a year level for comparison. Year keeps its
// case; values like "1st Year" are compared as stored.
func NormalizeYear(year string) string {
	return strings.TrimSpace(year)
}

// CanEvaluate returns nil when the student's cohort has at least one subject
// taught by the teacher. A blank course or year can never match an
// assignment, so such students are rejected without a query.
func (s *EligibilityService) CanEvaluate(ctx context.Context, studentID, teacherID int64, course, year string) error {
	courseNorm := NormalizeCourse(course)
	yearNorm := NormalizeYear(year)
	if courseNorm == "" || yearNorm == "" {
		s.logger.Debug("eligibility rejected for blank cohort",
			zap.Int64("student_id", studentID),
			zap.Int64("teacher_id", teacherID))
		return appErrors.Clone(appErrors.ErrNotEligible, "")
	}

	count, err := s.assignments.CountForCohort(ctx, teacherID, courseNorm, yearNorm)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve eligibility")
	}
	if count == 0 {
		return appErrors.Clone(appErrors.ErrNotEligible, "")
	}
	return nil
}
