package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuseval/teval-api/internal/service"
	"github.com/campuseval/teval-api/pkg/response"
)

// ReportHandler exposes aggregated evaluation reporting.
type ReportHandler struct {
	service *service.ReportService
}

// NewReportHandler creates a new handler.
func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// TeacherReport godoc
// @Summary Aggregated report for one teacher
// @Tags Reports
// @Produce json
// @Param id path int true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/reports/teachers/{id} [get]
func (h *ReportHandler) TeacherReport(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.service.TeacherReport(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Download a teacher report
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param id path int true "Teacher ID"
// @Param format query string true "csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /admin/reports/teachers/{id}/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", string(service.FormatCSV)))
	result, err := h.service.Export(c.Request.Context(), id, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

// Monitor godoc
// @Summary Submission monitoring matrix
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/reports/monitor [get]
func (h *ReportHandler) Monitor(c *gin.Context) {
	matrix, err := h.service.Monitor(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, matrix, nil)
}
