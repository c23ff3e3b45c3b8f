package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuseval/teval-api/internal/middleware"
	"github.com/campuseval/teval-api/internal/service"
	appErrors "github.com/campuseval/teval-api/pkg/errors"
	"github.com/campuseval/teval-api/pkg/response"
)

// EvaluationHandler exposes the student evaluation workflow and the admin
// read endpoints.
type EvaluationHandler struct {
	service *service.EvaluationService
}

// NewEvaluationHandler creates a new handler.
func NewEvaluationHandler(svc *service.EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{service: svc}
}

// submitPayload is the submission body. The CSRF token travels in the
// X-CSRF-Token header; ratings map question IDs to values 1..5.
type submitPayload struct {
	TeacherID int64         `json:"teacher_id" binding:"required"`
	Ratings   map[int64]int `json:"ratings" binding:"required"`
	Comment   string        `json:"comment"`
}

// Dashboard godoc
// @Summary List evaluable teachers
// @Description Teachers of the student's cohort with submission state
// @Tags Evaluations
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /student/dashboard [get]
func (h *EvaluationHandler) Dashboard(c *gin.Context) {
	claims, err := currentClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	teachers, err := h.service.Dashboard(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, nil)
}

// Form godoc
// @Summary Fetch the evaluation form
// @Description Teacher info plus grouped questionnaire for one teacher
// @Tags Evaluations
// @Produce json
// @Param id path int true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /student/evaluations/{id}/form [get]
func (h *EvaluationHandler) Form(c *gin.Context) {
	claims, err := currentClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	teacherID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	form, err := h.service.Form(c.Request.Context(), claims.UserID, teacherID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, form, nil)
}

// Submit godoc
// @Summary Submit an evaluation
// @Description Store the student's ratings for one teacher
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param X-CSRF-Token header string true "Per-session CSRF token"
// @Param payload body submitPayload true "Submission"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /student/evaluations [post]
func (h *EvaluationHandler) Submit(c *gin.Context) {
	claims, err := currentClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var payload submitPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}

	evaluation, err := h.service.Submit(c.Request.Context(), service.SubmitEvaluationRequest{
		StudentID: claims.UserID,
		TeacherID: payload.TeacherID,
		CSRFToken: c.GetHeader(middleware.CSRFHeader),
		Ratings:   payload.Ratings,
		Comment:   payload.Comment,
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, evaluation)
}

// Detail godoc
// @Summary Evaluation detail
// @Description One evaluation with its answers (admin)
// @Tags Evaluations
// @Produce json
// @Param id path int true "Evaluation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/evaluations/{id} [get]
func (h *EvaluationHandler) Detail(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	detail, err := h.service.Detail(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Delete godoc
// @Summary Delete an evaluation
// @Description Remove an evaluation and its answers (admin)
// @Tags Evaluations
// @Produce json
// @Param id path int true "Evaluation ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/evaluations/{id} [delete]
func (h *EvaluationHandler) Delete(c *gin.Context) {
	claims, err := currentClaims(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims.UserID, id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListByTeacher godoc
// @Summary List a teacher's evaluations
// @Tags Evaluations
// @Produce json
// @Param id path int true "Teacher ID"
// @Param limit query int false "Max rows"
// @Success 200 {object} response.Envelope
// @Router /admin/teachers/{id}/evaluations [get]
func (h *EvaluationHandler) ListByTeacher(c *gin.Context) {
	teacherID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	evaluations, err := h.service.ListByTeacher(c.Request.Context(), teacherID, queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluations, nil)
}

// ListByStudent godoc
// @Summary List a student's evaluations
// @Tags Evaluations
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /admin/students/{id}/evaluations [get]
func (h *EvaluationHandler) ListByStudent(c *gin.Context) {
	studentID, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	evaluations, err := h.service.ListByStudent(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluations, nil)
}
