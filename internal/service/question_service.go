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

type questionRepository interface {
	List(ctx context.Context) ([]models.EvaluationQuestion, error)
	FindByID(ctx context.Context, id int64) (*models.EvaluationQuestion, error)
	Create(ctx context.Context, question *models.EvaluationQuestion) error
	Update(ctx context.Context, question *models.EvaluationQuestion) error
	Delete(ctx context.Context, id int64) error
}

// QuestionService manages the evaluation questionnaire.
type QuestionService struct {
	repo      questionRepository
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewQuestionService constructs the service.
func NewQuestionService(repo questionRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *QuestionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// QuestionRequest describes the create/update payload.
type QuestionRequest struct {
	GroupTitle   string `json:"group_title"`
	QuestionText string `json:"question_text" validate:"required"`
	Ordering     int    `json:"ordering"`
}

// List returns all questions in display order.
func (s *QuestionService) List(ctx context.Context) ([]models.EvaluationQuestion, error) {
	questions, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list questions")
	}
	if questions == nil {
		questions = []models.EvaluationQuestion{}
	}
	return questions, nil
}

// Grouped returns questions folded into display groups.
func (s *QuestionService) Grouped(ctx context.Context) ([]models.QuestionGroup, error) {
	questions, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return groupQuestions(questions), nil
}

// Create adds a question.
func (s *QuestionService) Create(ctx context.Context, adminID int64, req QuestionRequest) (*models.EvaluationQuestion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}
	question := &models.EvaluationQuestion{
		GroupTitle:   req.GroupTitle,
		QuestionText: req.QuestionText,
		Ordering:     req.Ordering,
	}
	if question.GroupTitle == "" {
		question.GroupTitle = "General"
	}
	if err := s.repo.Create(ctx, question); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create question")
	}
	s.record(ctx, adminID, models.AuditActionAddQuestion, fmt.Sprintf("question_id=%d", question.ID))
	return question, nil
}

// Update modifies a question.
func (s *QuestionService) Update(ctx context.Context, adminID, id int64, req QuestionRequest) (*models.EvaluationQuestion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}
	question := &models.EvaluationQuestion{
		ID:           id,
		GroupTitle:   req.GroupTitle,
		QuestionText: req.QuestionText,
		Ordering:     req.Ordering,
	}
	if question.GroupTitle == "" {
		question.GroupTitle = "General"
	}
	if err := s.repo.Update(ctx, question); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update question")
	}
	s.record(ctx, adminID, models.AuditActionEditQuestion, fmt.Sprintf("question_id=%d", id))
	return question, nil
}

// Delete removes a question. Existing answers keep their rows; the foreign
// key blocks deletion of answered questions at the storage layer.
func (s *QuestionService) Delete(ctx context.Context, adminID, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "question has answers and cannot be deleted")
	}
	s.record(ctx, adminID, models.AuditActionDeleteQuestion, fmt.Sprintf("question_id=%d", id))
	return nil
}

func (s *QuestionService) record(ctx context.Context, adminID int64, action, details string) {
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
