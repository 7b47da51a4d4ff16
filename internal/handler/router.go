package handler

import "github.com/gin-gonic/gin"

// Handlers groups every API handler mounted under the API prefix.
type Handlers struct {
	Courses   *CourseHandler
	Gradebook *GradebookHandler
	Settings  *SettingsHandler
	Students  *StudentHandler
	Reports   *ConsolidatedReportHandler
	Metrics   *MetricsHandler
}

// Register mounts the API routes on group.
func (h Handlers) Register(group *gin.RouterGroup) {
	group.GET("/teachers/:teacherId/courses", h.Courses.ListForTeacher)

	courses := group.Group("/courses/:id")
	courses.GET("", h.Courses.Get)
	courses.GET("/gradebook", h.Gradebook.Gradebook)
	courses.PUT("/grades", h.Gradebook.SaveGrades)
	courses.POST("/activities", h.Gradebook.AddActivity)
	courses.DELETE("/activities/:activityId", h.Gradebook.DeleteActivity)
	courses.GET("/students/:studentId/summary", h.Gradebook.StudentSummary)
	courses.POST("/director-reports", h.Gradebook.SendToDirector)

	group.GET("/settings/academic", h.Settings.Get)
	group.PUT("/settings/academic", h.Settings.Update)

	group.POST("/students/import", h.Students.Import)
	group.GET("/students/export", h.Students.Export)

	reports := group.Group("/consolidated-reports")
	reports.POST("", h.Reports.Submit)
	reports.GET("", h.Reports.List)
	reports.GET("/:studentId/:period", h.Reports.Get)
	reports.PUT("/:studentId/:period/observation", h.Reports.UpdateObservation)

	if h.Metrics != nil {
		group.GET("/metrics/summary", h.Metrics.Summary)
	}
}
