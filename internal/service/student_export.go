package service

import (
	"context"
	"strings"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/export"
)

// SplitFullName decomposes a stored full name back into the four import columns:
// one token is a first name, two are first name and last name, three are first
// name and both last names, and from four on the first two are first names, the
// third is the first last name and the rest form the second last name.
func SplitFullName(fullName string) (lastName1, lastName2, firstName1, firstName2 string) {
	tokens := strings.Fields(fullName)
	switch len(tokens) {
	case 0:
		return "", "", "", ""
	case 1:
		return "", "", tokens[0], ""
	case 2:
		return tokens[1], "", tokens[0], ""
	case 3:
		return tokens[1], tokens[2], tokens[0], ""
	default:
		return tokens[2], strings.Join(tokens[3:], " "), tokens[0], tokens[1]
	}
}

type studentRoster interface {
	ListAll(ctx context.Context) ([]models.Student, error)
	ListByGradeLevel(ctx context.Context, gradeLevelID string) ([]models.Student, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// StudentExportService renders students in the import file layout.
type StudentExportService struct {
	students    studentRoster
	gradeLevels gradeLevelCatalog
	renderer    csvRenderer
}

// NewStudentExportService constructs the service; a nil renderer uses a ';' CSV exporter.
func NewStudentExportService(students studentRoster, gradeLevels gradeLevelCatalog, renderer csvRenderer) *StudentExportService {
	if renderer == nil {
		renderer = export.NewCSVExporter(export.WithDelimiter(studentCSVDelimiter))
	}
	return &StudentExportService{students: students, gradeLevels: gradeLevels, renderer: renderer}
}

// Export renders the students of one grade level, or all students when gradeLevelID is empty.
func (s *StudentExportService) Export(ctx context.Context, gradeLevelID string) ([]byte, error) {
	levels, err := s.gradeLevels.List(ctx)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load grade levels")
	}
	names := make(map[string]string, len(levels))
	for _, level := range levels {
		names[level.ID] = level.Name
	}

	var students []models.Student
	if gradeLevelID != "" {
		if _, ok := names[gradeLevelID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade level not found")
		}
		students, err = s.students.ListByGradeLevel(ctx, gradeLevelID)
	} else {
		students, err = s.students.ListAll(ctx)
	}
	if err != nil {
		return nil, appErrors.Store(err, "failed to load students")
	}

	rows := make([]map[string]string, 0, len(students))
	for _, student := range students {
		last1, last2, first1, first2 := SplitFullName(student.FullName)
		gradeName, ok := names[student.GradeLevelID]
		if !ok {
			gradeName = student.GradeLevelID
		}
		rows = append(rows, map[string]string{
			StudentCSVHeader[colLastName1]:  last1,
			StudentCSVHeader[colLastName2]:  last2,
			StudentCSVHeader[colFirstName1]: first1,
			StudentCSVHeader[colFirstName2]: first2,
			StudentCSVHeader[colGradeName]:  gradeName,
		})
	}

	out, err := s.renderer.Render(export.Dataset{Headers: StudentCSVHeader, Rows: rows})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render students")
	}
	return out, nil
}
