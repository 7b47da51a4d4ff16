package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

// GradebookHandler exposes grade entry, activity and director report endpoints.
type GradebookHandler struct {
	gradebook *service.GradebookService
}

// NewGradebookHandler constructs GradebookHandler.
func NewGradebookHandler(gradebook *service.GradebookService) *GradebookHandler {
	return &GradebookHandler{gradebook: gradebook}
}

// Gradebook godoc
// @Summary Get the gradebook of a course view
// @Tags Gradebook
// @Produce json
// @Param id path string true "Exploded course ID"
// @Param period query string false "Period number or summary" default(1)
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/gradebook [get]
func (h *GradebookHandler) Gradebook(c *gin.Context) {
	key, err := models.ParsePeriodKey(c.DefaultQuery("period", "1"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "period must be a positive number or summary"))
		return
	}
	book, err := h.gradebook.Gradebook(c.Request.Context(), c.Param("id"), key)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, map[string]interface{}{"period": key, "students": len(book.Entries)})
}

// SaveGrades godoc
// @Summary Save one period's grades for several students
// @Tags Gradebook
// @Accept json
// @Produce json
// @Param id path string true "Exploded course ID"
// @Param payload body service.SavePeriodGradesRequest true "Grades"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/grades [put]
func (h *GradebookHandler) SaveGrades(c *gin.Context) {
	var req service.SavePeriodGradesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	book, err := h.gradebook.SavePeriodGrades(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, book, nil)
}

// AddActivity godoc
// @Summary Add a task or workshop to a course period
// @Tags Gradebook
// @Accept json
// @Produce json
// @Param id path string true "Exploded course ID"
// @Param payload body service.AddActivityRequest true "Activity"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/activities [post]
func (h *GradebookHandler) AddActivity(c *gin.Context) {
	var req service.AddActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	activity, err := h.gradebook.AddActivity(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, activity)
}

// DeleteActivity godoc
// @Summary Delete an activity and its grades
// @Tags Gradebook
// @Param id path string true "Exploded course ID"
// @Param activityId path string true "Activity ID"
// @Param period query int true "Period"
// @Param kind query string true "task or workshop"
// @Success 204
// @Router /courses/{id}/activities/{activityId} [delete]
func (h *GradebookHandler) DeleteActivity(c *gin.Context) {
	period, err := periodQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	kind := models.ActivityKind(c.Query("kind"))
	if err := h.gradebook.DeleteActivity(c.Request.Context(), c.Param("id"), period, kind, c.Param("activityId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentSummary godoc
// @Summary Get every period and the final grade of one student
// @Tags Gradebook
// @Produce json
// @Param id path string true "Exploded course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/students/{studentId}/summary [get]
func (h *GradebookHandler) StudentSummary(c *gin.Context) {
	summary, err := h.gradebook.StudentSummary(c.Request.Context(), c.Param("id"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

type directorReportRequest struct {
	Period int `json:"period" binding:"required,min=1"`
}

// SendToDirector godoc
// @Summary Send a period of a course view to the group director
// @Tags Gradebook
// @Accept json
// @Produce json
// @Param id path string true "Exploded course ID"
// @Param payload body directorReportRequest true "Period"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/director-reports [post]
func (h *GradebookHandler) SendToDirector(c *gin.Context) {
	var req directorReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.gradebook.SendToDirector(c.Request.Context(), c.Param("id"), req.Period)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
