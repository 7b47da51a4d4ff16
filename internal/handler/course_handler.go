package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/service"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

// CourseHandler exposes per-grade-level course views.
type CourseHandler struct {
	assignments *service.AssignmentService
}

// NewCourseHandler constructs CourseHandler.
func NewCourseHandler(assignments *service.AssignmentService) *CourseHandler {
	return &CourseHandler{assignments: assignments}
}

// ListForTeacher godoc
// @Summary List a teacher's courses, one view per grade level, grouped by subject
// @Tags Courses
// @Produce json
// @Param teacherId path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{teacherId}/courses [get]
func (h *CourseHandler) ListForTeacher(c *gin.Context) {
	groups, err := h.assignments.ListForTeacher(c.Request.Context(), c.Param("teacherId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	views := 0
	for _, group := range groups {
		views += len(group.Assignments)
	}
	response.JSON(c, http.StatusOK, groups, map[string]interface{}{"subjects": len(groups), "views": views})
}

// Get godoc
// @Summary Get a course view by its exploded ID
// @Tags Courses
// @Produce json
// @Param id path string true "Exploded course ID ({courseId}_{gradeLevelId})"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	view, err := h.assignments.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
