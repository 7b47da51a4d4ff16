package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-gradebook-api/internal/service"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/response"
)

const defaultMaxImportBytes = 5 << 20

// StudentHandler exposes student import and export.
type StudentHandler struct {
	importer *service.StudentImportService
	exporter *service.StudentExportService
	maxBytes int64
	now      func() time.Time
}

// NewStudentHandler constructs StudentHandler. maxBytes caps uploaded files.
func NewStudentHandler(importer *service.StudentImportService, exporter *service.StudentExportService, maxBytes int64) *StudentHandler {
	if maxBytes <= 0 {
		maxBytes = defaultMaxImportBytes
	}
	return &StudentHandler{importer: importer, exporter: exporter, maxBytes: maxBytes, now: time.Now}
}

func (h *StudentHandler) readUpload(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<10)

	var src io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, appErrors.Clone(appErrors.ErrTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxBytes))
			}
			return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
		}
		if fileHeader.Size > h.maxBytes {
			return nil, appErrors.Clone(appErrors.ErrTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxBytes))
		}
		file, err := fileHeader.Open()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file")
		}
		defer file.Close() //nolint:errcheck
		src = file
	}

	raw, err := io.ReadAll(io.LimitReader(src, h.maxBytes+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, appErrors.Clone(appErrors.ErrTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxBytes))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read file")
	}
	if int64(len(raw)) > h.maxBytes {
		return nil, appErrors.Clone(appErrors.ErrTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxBytes))
	}
	return raw, nil
}

// Import godoc
// @Summary Import students from a ';' separated file
// @Tags Students
// @Accept multipart/form-data
// @Accept text/csv
// @Produce json
// @Param file formData file false "Student file"
// @Param gradeLevelId query string false "Assign every row to this grade level"
// @Success 200 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /students/import [post]
func (h *StudentHandler) Import(c *gin.Context) {
	raw, err := h.readUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	gradeLevelID := c.Query("gradeLevelId")
	if gradeLevelID == "" {
		gradeLevelID = c.PostForm("gradeLevelId")
	}
	result, err := h.importer.Import(c.Request.Context(), raw, gradeLevelID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, map[string]interface{}{"message": result.Message})
}

// Export godoc
// @Summary Export students in the import layout
// @Tags Students
// @Produce text/csv
// @Param gradeLevelId query string false "Only this grade level"
// @Success 200 {file} file
// @Router /students/export [get]
func (h *StudentHandler) Export(c *gin.Context) {
	gradeLevelID := strings.TrimSpace(c.Query("gradeLevelId"))
	content, err := h.exporter.Export(c.Request.Context(), gradeLevelID)
	if err != nil {
		response.Error(c, err)
		return
	}
	name := "students"
	if gradeLevelID != "" {
		name += "-" + gradeLevelID
	}
	filename := fmt.Sprintf("%s-%s.csv", name, h.now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", content)
}
