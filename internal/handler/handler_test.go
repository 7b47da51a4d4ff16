package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository/memory"
	"github.com/noah-isme/sma-gradebook-api/internal/service"
	"github.com/noah-isme/sma-gradebook-api/internal/store"
)

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta map[string]interface{} `json:"meta"`
}

func seededStore() *store.Store {
	db := memory.Open()
	db.Load(memory.Seed{
		GradeLevels: []models.GradeLevel{{ID: "g6", Name: "6°"}, {ID: "g7", Name: "7°"}},
		Courses: []models.Course{{
			ID: "math", SubjectID: "sub-math", SubjectName: "Matemáticas", TeacherID: "t1",
			GradeLevelIDs:  []string{"g6", "g7"},
			TaskActivities: models.ActivityPlan{1: {{ID: "a1", Name: "Quiz 1"}}},
		}},
		Students: []models.Student{
			{ID: "s1", FullName: "Ana López", GradeLevelID: "g6", Active: true},
			{ID: "s2", FullName: "Luis Pérez", GradeLevelID: "g7", Active: true},
		},
	})
	return store.NewMemory(db)
}

func newTestRouter(t *testing.T, st *store.Store, maxImportBytes int64) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := service.NewMetricsService()
	assignments := service.NewAssignmentService(st.Courses, st.GradeLevels, st.Students, nil, nil)
	settings := service.NewSettingsService(st.Settings, 2, nil)
	reports := service.NewConsolidatedReportService(st.Reports, nil, metrics, nil)
	gradebook := service.NewGradebookService(assignments, st.Courses, st.Grades, settings, reports, nil, metrics, nil)
	importer := service.NewStudentImportService(st.Students, st.GradeLevels, service.ImportOptions{}, metrics, nil)
	importer.OnImported(assignments.InvalidateAll)
	exporter := service.NewStudentExportService(st.Students, st.GradeLevels, nil)

	r := gin.New()
	Handlers{
		Courses:   NewCourseHandler(assignments),
		Gradebook: NewGradebookHandler(gradebook),
		Settings:  NewSettingsHandler(settings),
		Students:  NewStudentHandler(importer, exporter, maxImportBytes),
		Reports:   NewConsolidatedReportHandler(reports),
		Metrics:   NewMetricsHandler(metrics, st),
	}.Register(r.Group("/api/v1"))
	return r
}

func perform(r http.Handler, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func performJSON(t *testing.T, r http.Handler, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return perform(r, method, path, body, "application/json")
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestCourseRoutes(t *testing.T) {
	r := newTestRouter(t, seededStore(), 0)

	w := perform(r, http.MethodGet, "/api/v1/teachers/t1/courses", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, float64(2), env.Meta["views"])
	var groups []models.SubjectAssignments
	require.NoError(t, json.Unmarshal(env.Data, &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, "math_g6", groups[0].Assignments[0].ID)

	w = perform(r, http.MethodGet, "/api/v1/courses/math_g7", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = perform(r, http.MethodGet, "/api/v1/courses/math_g9", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w).Error.Code)
}

func TestGradebookRoutes(t *testing.T) {
	r := newTestRouter(t, seededStore(), 0)

	w := performJSON(t, r, http.MethodPut, "/api/v1/courses/math_g6/grades", map[string]interface{}{
		"period": 1,
		"entries": []map[string]interface{}{
			{"student_id": "s1", "data": map[string]interface{}{"tasks": map[string]interface{}{"a1": 10}, "exam": 10, "attitude": 10}},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = perform(r, http.MethodGet, "/api/v1/courses/math_g6/gradebook?period=1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var book service.Gradebook
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &book))
	require.Len(t, book.Entries, 1)
	assert.InDelta(t, 8.0, book.Entries[0].Result.Definitive, 1e-9)

	w = perform(r, http.MethodGet, "/api/v1/courses/math_g6/gradebook?period=summary", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = perform(r, http.MethodGet, "/api/v1/courses/math_g6/gradebook?period=final", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(r, http.MethodPut, "/api/v1/courses/math_g6/grades", []byte("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performJSON(t, r, http.MethodPut, "/api/v1/courses/math_g6/grades", map[string]interface{}{
		"period":  1,
		"entries": []map[string]interface{}{{"student_id": "s1", "data": map[string]interface{}{"exam": 11}}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w).Error.Code)

	w = perform(r, http.MethodGet, "/api/v1/courses/math_g6/students/s1/summary", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = perform(r, http.MethodGet, "/api/v1/courses/math_g6/students/s2/summary", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestActivityRoutes(t *testing.T) {
	r := newTestRouter(t, seededStore(), 0)

	w := performJSON(t, r, http.MethodPost, "/api/v1/courses/math_g6/activities", map[string]interface{}{
		"period": 1, "kind": "workshop", "name": "Taller 1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var activity models.Activity
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &activity))
	assert.NotEmpty(t, activity.ID)

	w = perform(r, http.MethodDelete, "/api/v1/courses/math_g7/activities/"+activity.ID+"?period=1&kind=workshop", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = perform(r, http.MethodDelete, "/api/v1/courses/math_g7/activities/"+activity.ID+"?period=1&kind=workshop", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = perform(r, http.MethodDelete, "/api/v1/courses/math_g7/activities/a1?period=x&kind=task", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsRoutes(t *testing.T) {
	r := newTestRouter(t, seededStore(), 0)

	w := perform(r, http.MethodGet, "/api/v1/settings/academic", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var settings models.AcademicSettings
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &settings))
	assert.Equal(t, 2, settings.PeriodCount)

	w = performJSON(t, r, http.MethodPut, "/api/v1/settings/academic", map[string]interface{}{
		"period_count": 3, "period_weights": map[string]float64{"1": 30, "2": 30, "3": 40},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = performJSON(t, r, http.MethodPut, "/api/v1/settings/academic", map[string]interface{}{
		"period_count": 2, "period_weights": map[string]float64{"1": 30, "2": 30},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

const importFile = "PrimerApellido;SegundoApellido;PrimerNombre;SegundoNombre;NombreDelGrado\n" +
	"Gómez;Ruiz;Eva;;6°\n" +
	"López;;Ana;;6\n" +
	"Díaz;;Bruno;;11°\n"

func TestStudentImportRawBody(t *testing.T) {
	r := newTestRouter(t, seededStore(), 0)

	w := perform(r, http.MethodPost, "/api/v1/students/import", []byte(importFile), "text/csv")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decode(t, w)
	var result service.ImportResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.SkippedDuplicates)
	assert.Equal(t, 1, result.SkippedUnresolved)
	assert.Contains(t, env.Meta["message"], "1 students imported")

	w = perform(r, http.MethodGet, "/api/v1/teachers/t1/courses", nil, "")
	var groups []models.SubjectAssignments
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &groups))
	assert.Len(t, groups[0].Assignments[0].Students, 2)
}

func TestStudentImportMultipartWithTarget(t *testing.T) {
	r := newTestRouter(t, seededStore(), 0)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "students.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(importFile))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("gradeLevelId", "g7"))
	require.NoError(t, writer.Close())

	w := perform(r, http.MethodPost, "/api/v1/students/import", body.Bytes(), writer.FormDataContentType())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result service.ImportResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &result))
	assert.Equal(t, 3, result.Inserted)
}

func TestStudentImportRejectsBadFiles(t *testing.T) {
	r := newTestRouter(t, seededStore(), 64)

	w := perform(r, http.MethodPost, "/api/v1/students/import", []byte(strings.Repeat("x;", 100)), "text/csv")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = perform(r, http.MethodPost, "/api/v1/students/import", nil, "text/csv")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "DECODE_ERROR", decode(t, w).Error.Code)

	w = perform(r, http.MethodPost, "/api/v1/students/import?gradeLevelId=nope", []byte(importFile[:60]), "text/csv")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudentExport(t *testing.T) {
	r := newTestRouter(t, seededStore(), 0)

	w := perform(r, http.MethodGet, "/api/v1/students/export?gradeLevelId=g6", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "students-g6-")
	assert.Equal(t, "PrimerApellido;SegundoApellido;PrimerNombre;SegundoNombre;NombreDelGrado\nLópez;;Ana;;6°\n", w.Body.String())
}

type downStudents struct{}

func (downStudents) ListAll(context.Context) ([]models.Student, error) {
	return nil, errors.New("connection refused")
}

func (downStudents) ListByGradeLevel(context.Context, string) ([]models.Student, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureMapsToServiceUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := seededStore()
	exporter := service.NewStudentExportService(downStudents{}, st.GradeLevels, nil)
	r := gin.New()
	r.GET("/export", NewStudentHandler(nil, exporter, 0).Export)

	w := perform(r, http.MethodGet, "/export", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "STORE_ERROR", decode(t, w).Error.Code)
}

func TestConsolidatedReportRoutes(t *testing.T) {
	r := newTestRouter(t, seededStore(), 0)

	w := performJSON(t, r, http.MethodPost, "/api/v1/courses/math_g6/director-reports", map[string]int{"period": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = performJSON(t, r, http.MethodPost, "/api/v1/consolidated-reports", map[string]interface{}{
		"submissions": []map[string]interface{}{{
			"student_id": "s1", "grade_level_id": "g6", "period": 1, "subject_id": "sub-art",
			"report": map[string]interface{}{"subject_name": "Artes", "teacher_id": "t9", "definitive": 9.7},
		}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = performJSON(t, r, http.MethodPut, "/api/v1/consolidated-reports/s1/1/observation", map[string]string{"observation": "good term"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = perform(r, http.MethodGet, "/api/v1/consolidated-reports/s1/1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var report models.ConsolidatedReport
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &report))
	assert.Len(t, report.SubmittedReports, 2)
	assert.Equal(t, "good term", report.DirectorGeneralObservation)

	w = perform(r, http.MethodGet, "/api/v1/consolidated-reports?gradeLevelId=g6&period=1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w).Meta["total"])

	w = perform(r, http.MethodGet, "/api/v1/consolidated-reports/s2/1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performJSON(t, r, http.MethodPost, "/api/v1/consolidated-reports", map[string]interface{}{
		"submissions": []map[string]interface{}{
			{"student_id": "s1", "grade_level_id": "g6", "period": 1, "subject_id": "a"},
			{"student_id": "s1", "grade_level_id": "g6", "period": 2, "subject_id": "b"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestObservabilityRoutes(t *testing.T) {
	st := seededStore()
	r := newTestRouter(t, st, 0)
	h := NewMetricsHandler(service.NewMetricsService(), st)
	r.GET("/ready", h.Ready)
	r.GET("/health", h.Health)
	r.GET("/metrics", h.Prometheus)

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ready", nil, "").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/health", nil, "").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/metrics", nil, "").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/api/v1/metrics/summary", nil, "").Code)
}
