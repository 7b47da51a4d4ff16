package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

// ConsolidatedReportHandler exposes the group director's consolidated reports.
type ConsolidatedReportHandler struct {
	reports *service.ConsolidatedReportService
}

// NewConsolidatedReportHandler constructs ConsolidatedReportHandler.
func NewConsolidatedReportHandler(reports *service.ConsolidatedReportService) *ConsolidatedReportHandler {
	return &ConsolidatedReportHandler{reports: reports}
}

type submitReportsRequest struct {
	Submissions []models.TeacherReportSubmission `json:"submissions" binding:"required,min=1"`
}

// Submit godoc
// @Summary Merge teacher submissions into consolidated reports
// @Tags ConsolidatedReports
// @Accept json
// @Produce json
// @Param payload body submitReportsRequest true "Submissions of one period"
// @Success 200 {object} response.Envelope
// @Router /consolidated-reports [post]
func (h *ConsolidatedReportHandler) Submit(c *gin.Context) {
	var req submitReportsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.reports.Submit(c.Request.Context(), req.Submissions)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List a grade level's consolidated reports for a period
// @Tags ConsolidatedReports
// @Produce json
// @Param gradeLevelId query string true "Grade level"
// @Param period query int true "Period"
// @Success 200 {object} response.Envelope
// @Router /consolidated-reports [get]
func (h *ConsolidatedReportHandler) List(c *gin.Context) {
	period, err := periodQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	reports, err := h.reports.ListByGradeLevel(c.Request.Context(), c.Query("gradeLevelId"), period)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, map[string]interface{}{"total": len(reports)})
}

// Get godoc
// @Summary Get one student's consolidated report
// @Tags ConsolidatedReports
// @Produce json
// @Param studentId path string true "Student ID"
// @Param period path int true "Period"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /consolidated-reports/{studentId}/{period} [get]
func (h *ConsolidatedReportHandler) Get(c *gin.Context) {
	period, err := periodParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.reports.Get(c.Request.Context(), c.Param("studentId"), period)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

type observationRequest struct {
	Observation *string `json:"observation" binding:"required"`
}

// UpdateObservation godoc
// @Summary Set the director's general observation
// @Tags ConsolidatedReports
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param period path int true "Period"
// @Param payload body observationRequest true "Observation"
// @Success 200 {object} response.Envelope
// @Router /consolidated-reports/{studentId}/{period}/observation [put]
func (h *ConsolidatedReportHandler) UpdateObservation(c *gin.Context) {
	period, err := periodParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req observationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if len(strings.TrimSpace(*req.Observation)) > 4000 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "observation is too long"))
		return
	}
	report, err := h.reports.UpdateDirectorObservation(c.Request.Context(), c.Param("studentId"), period, *req.Observation)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
