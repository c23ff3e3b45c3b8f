package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuseval/teval-api/internal/models"
	"github.com/campuseval/teval-api/internal/service"
	"github.com/campuseval/teval-api/pkg/response"
)

// AuditHandler exposes the admin audit trail.
type AuditHandler struct {
	service *service.AuditService
}

// NewAuditHandler creates a new handler.
func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// List godoc
// @Summary List audit entries
// @Tags Audit
// @Produce json
// @Param user_type query string false "student or admin"
// @Param action query string false "Action filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	filter := models.AuditLogFilter{
		UserType: c.Query("user_type"),
		Action:   c.Query("action"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	entries, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}
