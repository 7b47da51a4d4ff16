package service

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository/memory"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

var importGradeLevels = []models.GradeLevel{
	{ID: "g6", Name: "6°"},
	{ID: "gt", Name: "Transición"},
}

const sampleImport = "PrimerApellido;SegundoApellido;PrimerNombre;SegundoNombre;NombreDelGrado\n" +
	"López;Díaz;Ana;María;6°\n" +
	"Pérez;;Luis;;transicion\n" +
	"Gómez;Ruiz;Eva;;12°\n" +
	";;;;6°\n" +
	"López;Díaz;Ana;María;6\n" +
	"TOTAL;3;;;\n"

func TestPlanStudentImport(t *testing.T) {
	plan, err := PlanStudentImport([]byte(sampleImport), importGradeLevels, nil, ImportOptions{})
	require.NoError(t, err)

	require.Len(t, plan.Students, 2)
	assert.Equal(t, "Ana María López Díaz", plan.Students[0].FullName)
	assert.Equal(t, "g6", plan.Students[0].GradeLevelID)
	assert.True(t, plan.Students[0].Active)
	assert.Equal(t, "Luis Pérez", plan.Students[1].FullName)
	assert.Equal(t, "gt", plan.Students[1].GradeLevelID)

	assert.Equal(t, 1, plan.Duplicates)
	assert.Equal(t, 1, plan.UnresolvedGrade)
	assert.Equal(t, []string{"12°"}, plan.UnresolvedGradeNames)
	assert.Equal(t, 1, plan.Malformed)
}

func TestPlanStudentImportWindows1252Fallback(t *testing.T) {
	encoded, err := charmap.Windows1252.NewEncoder().String("h1;h2;h3;h4;h5\nNúñez;;José;;Transición\n")
	require.NoError(t, err)

	plan, err := PlanStudentImport([]byte(encoded), importGradeLevels, nil, ImportOptions{})
	require.NoError(t, err)
	require.Len(t, plan.Students, 1)
	assert.Equal(t, "José Núñez", plan.Students[0].FullName)
	assert.NotContains(t, plan.Students[0].FullName, "�")
	assert.Equal(t, "gt", plan.Students[0].GradeLevelID)
}

func TestPlanStudentImportDecodeErrors(t *testing.T) {
	_, err := PlanStudentImport(nil, importGradeLevels, nil, ImportOptions{})
	assert.True(t, errors.Is(err, appErrors.ErrDecode))

	_, err = PlanStudentImport([]byte("  \n "), importGradeLevels, nil, ImportOptions{})
	assert.True(t, errors.Is(err, appErrors.ErrDecode))
}

func TestPlanStudentImportTargetGradeOverridesColumn(t *testing.T) {
	plan, err := PlanStudentImport([]byte(sampleImport), importGradeLevels, nil, ImportOptions{TargetGradeLevelID: "gt"})
	require.NoError(t, err)
	assert.Equal(t, 0, plan.UnresolvedGrade)
	require.Len(t, plan.Students, 3)
	for _, s := range plan.Students {
		assert.Equal(t, "gt", s.GradeLevelID)
	}
	assert.Equal(t, 1, plan.Duplicates)
}

func TestPlanStudentImportDedupAgainstExisting(t *testing.T) {
	existing := []models.Student{{FullName: "ANA MARÍA LÓPEZ DÍAZ", GradeLevelID: "g6"}}
	plan, err := PlanStudentImport([]byte(sampleImport), importGradeLevels, existing, ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Duplicates)
	require.Len(t, plan.Students, 1)
	assert.Equal(t, "Luis Pérez", plan.Students[0].FullName)
}

func TestPlanStudentImportCapsUnresolvedExamples(t *testing.T) {
	file := "header\n" +
		"A;;B;;x1\nA;;C;;x2\nA;;D;;x3\nA;;E;;x1\n"
	plan, err := PlanStudentImport([]byte(file), importGradeLevels, nil, ImportOptions{MaxUnresolvedExamples: 2, TrailerSentinel: "fin"})
	require.NoError(t, err)
	assert.Equal(t, 4, plan.UnresolvedGrade)
	assert.Equal(t, []string{"x1", "x2"}, plan.UnresolvedGradeNames)
	assert.Equal(t, 3, plan.DistinctUnresolved)
}

func TestPlanStudentImportCustomSentinel(t *testing.T) {
	file := "header\nLopez;;Ana;;6°\nFin del archivo;;;;\n"
	plan, err := PlanStudentImport([]byte(file), importGradeLevels, nil, ImportOptions{TrailerSentinel: "fin"})
	require.NoError(t, err)
	assert.Len(t, plan.Students, 1)
	assert.Equal(t, 0, plan.UnresolvedGrade)
}

func TestAssembleFullName(t *testing.T) {
	assert.Equal(t, "Ana María López Díaz", AssembleFullName(" López ", "Díaz", "Ana", " María"))
	assert.Equal(t, "Ana López", AssembleFullName("López", "", "Ana", ""))
	assert.Equal(t, "", AssembleFullName(" ", "", "", ""))
}

func newImportService(db *memory.DB) *StudentImportService {
	return NewStudentImportService(memory.NewStudentRepository(db), memory.NewGradeLevelRepository(db), ImportOptions{}, NewMetricsService(), nil)
}

func TestStudentImportServiceIsIdempotent(t *testing.T) {
	db := memory.Open()
	db.Load(memory.Seed{GradeLevels: importGradeLevels})
	svc := newImportService(db)
	hooked := 0
	svc.OnImported(func(context.Context) { hooked++ })
	ctx := context.Background()

	first, err := svc.Import(ctx, []byte(sampleImport), "")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)
	assert.Contains(t, first.Message, "2 students imported")
	assert.Contains(t, first.Message, `"12°"`)

	second, err := svc.Import(ctx, []byte(sampleImport), "")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 3, second.SkippedDuplicates)
	assert.Equal(t, 1, hooked)

	all, err := memory.NewStudentRepository(db).ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStudentImportServiceUnknownTarget(t *testing.T) {
	db := memory.Open()
	db.Load(memory.Seed{GradeLevels: importGradeLevels})
	_, err := newImportService(db).Import(context.Background(), []byte(sampleImport), "g99")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

type failingBulkInsert struct {
	*memory.StudentRepository
}

func (failingBulkInsert) BulkInsert(context.Context, []models.Student) error {
	return errStoreDown
}

func TestStudentImportServiceStoreFailureInsertsNothing(t *testing.T) {
	db := memory.Open()
	db.Load(memory.Seed{GradeLevels: importGradeLevels})
	students := memory.NewStudentRepository(db)
	svc := NewStudentImportService(failingBulkInsert{students}, memory.NewGradeLevelRepository(db), ImportOptions{}, nil, nil)

	_, err := svc.Import(context.Background(), []byte(sampleImport), "")
	assert.True(t, errors.Is(err, appErrors.ErrStore))

	all, err := students.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStudentImportServiceDecodeFailure(t *testing.T) {
	db := memory.Open()
	_, err := newImportService(db).Import(context.Background(), []byte{}, "")
	assert.True(t, errors.Is(err, appErrors.ErrDecode))
}

type scriptedRecords struct {
	records [][]string
	errs    []error
}

func (s *scriptedRecords) Read() ([]string, error) {
	if len(s.records) == 0 {
		return nil, io.EOF
	}
	record, err := s.records[0], s.errs[0]
	s.records, s.errs = s.records[1:], s.errs[1:]
	return record, err
}

func TestImportPlannerUnparsableHeaderKeepsFirstStudent(t *testing.T) {
	reader := &scriptedRecords{
		records: [][]string{
			nil,
			{"López", "Díaz", "Ana", "María", "6°"},
			nil,
			{"Pérez", "", "Luis", "", "6°"},
		},
		errs: []error{
			&csv.ParseError{Line: 1, Err: csv.ErrQuote},
			nil,
			&csv.ParseError{Line: 3, Err: csv.ErrBareQuote},
			nil,
		},
	}

	plan := newImportPlanner(importGradeLevels, nil, ImportOptions{}).plan(reader)
	require.Len(t, plan.Students, 2)
	assert.Equal(t, "Ana María López Díaz", plan.Students[0].FullName)
	assert.Equal(t, "Luis Pérez", plan.Students[1].FullName)
	assert.Equal(t, 1, plan.Malformed)
}
