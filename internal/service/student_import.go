package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

// StudentCSVHeader is the column layout of student import and export files.
var StudentCSVHeader = []string{"PrimerApellido", "SegundoApellido", "PrimerNombre", "SegundoNombre", "NombreDelGrado"}

// Column positions within a student row.
const (
	colLastName1 = iota
	colLastName2
	colFirstName1
	colFirstName2
	colGradeName
	studentColumnCount
)

const (
	studentCSVDelimiter      = ';'
	defaultTrailerSentinel   = "TOTAL"
	defaultUnresolvedSamples = 5
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ImportOptions tunes PlanStudentImport.
type ImportOptions struct {
	// TargetGradeLevelID assigns every row to one grade level, ignoring the file's grade column.
	TargetGradeLevelID string
	// TrailerSentinel marks summary lines to drop; matched as a case-insensitive prefix
	// of the first field.
	TrailerSentinel string
	// MaxUnresolvedExamples caps the distinct unknown grade names reported.
	MaxUnresolvedExamples int
}

// ImportPlan is the outcome of parsing a student file, before anything is stored.
type ImportPlan struct {
	Students        []models.Student
	Duplicates      int
	UnresolvedGrade int
	Malformed       int
	// UnresolvedGradeNames lists distinct unknown grade names, capped; DistinctUnresolved
	// is the uncapped count.
	UnresolvedGradeNames []string
	DistinctUnresolved   int
}

// ImportResult summarises a persisted import.
type ImportResult struct {
	Inserted             int      `json:"inserted"`
	SkippedDuplicates    int      `json:"skipped_duplicates"`
	SkippedUnresolved    int      `json:"skipped_unresolved_grade"`
	SkippedMalformed     int      `json:"skipped_malformed"`
	UnresolvedGradeNames []string `json:"unresolved_grade_names,omitempty"`
	Message              string   `json:"message"`
}

// DecodeStudentFile converts raw bytes to text: UTF-8 when valid, Windows-1252
// otherwise. Text that still carries replacement characters, or no text at all,
// is a decode error.
func DecodeStudentFile(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", appErrors.Clone(appErrors.ErrDecode, "file is empty")
	}
	if utf8.Valid(raw) && !bytes.ContainsRune(raw, utf8.RuneError) {
		return string(raw), nil
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrDecode.Code, appErrors.ErrDecode.Status, "file is neither UTF-8 nor Windows-1252")
	}
	if bytes.ContainsRune(decoded, utf8.RuneError) {
		return "", appErrors.Clone(appErrors.ErrDecode, "file is neither UTF-8 nor Windows-1252")
	}
	return string(decoded), nil
}

// AssembleFullName joins the name parts as FirstName1 FirstName2 LastName1 LastName2,
// skipping empty parts.
func AssembleFullName(lastName1, lastName2, firstName1, firstName2 string) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{firstName1, firstName2, lastName1, lastName2} {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func dedupKey(fullName, gradeLevelID string) string {
	return strings.ToLower(fullName) + "\x00" + gradeLevelID
}

// PlanStudentImport parses a ';' separated student file and decides which rows to
// insert. The first line is a header. Rows are skipped when their grade level cannot
// be resolved, when they duplicate an existing student or an earlier row, or when
// every name part is empty. Only a file that cannot be decoded is an error.
func PlanStudentImport(raw []byte, gradeLevels []models.GradeLevel, existing []models.Student, opts ImportOptions) (*ImportPlan, error) {
	text, err := DecodeStudentFile(raw)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = studentCSVDelimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	return newImportPlanner(gradeLevels, existing, opts).plan(reader), nil
}

// recordReader yields parsed CSV records; *csv.Reader satisfies it.
type recordReader interface {
	Read() ([]string, error)
}

type importPlanner struct {
	gradeByName map[string]string
	seen        map[string]struct{}
	sentinel    string
	maxExamples int
	target      string
}

func newImportPlanner(gradeLevels []models.GradeLevel, existing []models.Student, opts ImportOptions) *importPlanner {
	p := &importPlanner{
		gradeByName: make(map[string]string, len(gradeLevels)),
		seen:        make(map[string]struct{}, len(existing)),
		sentinel:    strings.ToUpper(strings.TrimSpace(opts.TrailerSentinel)),
		maxExamples: opts.MaxUnresolvedExamples,
		target:      opts.TargetGradeLevelID,
	}
	if p.sentinel == "" {
		p.sentinel = defaultTrailerSentinel
	}
	if p.maxExamples <= 0 {
		p.maxExamples = defaultUnresolvedSamples
	}
	for _, level := range gradeLevels {
		p.gradeByName[NormalizeGradeName(level.Name)] = level.ID
	}
	for _, s := range existing {
		p.seen[dedupKey(s.FullName, s.GradeLevelID)] = struct{}{}
	}
	return p
}

func (p *importPlanner) plan(reader recordReader) *ImportPlan {
	plan := &ImportPlan{}
	unresolved := make(map[string]struct{})
	header := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if header {
			// The first physical record is the header whether or not it parses.
			header = false
			continue
		}
		if err != nil {
			plan.Malformed++
			continue
		}
		if isBlankRecord(record) {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(record[0])), p.sentinel) {
			continue
		}
		for len(record) < studentColumnCount {
			record = append(record, "")
		}

		fullName := AssembleFullName(record[colLastName1], record[colLastName2], record[colFirstName1], record[colFirstName2])
		if fullName == "" {
			plan.Malformed++
			continue
		}

		gradeLevelID := p.target
		if gradeLevelID == "" {
			rawGrade := strings.TrimSpace(record[colGradeName])
			id, ok := p.gradeByName[NormalizeGradeName(rawGrade)]
			if !ok || rawGrade == "" {
				plan.UnresolvedGrade++
				if _, dup := unresolved[rawGrade]; !dup && rawGrade != "" {
					unresolved[rawGrade] = struct{}{}
					if len(plan.UnresolvedGradeNames) < p.maxExamples {
						plan.UnresolvedGradeNames = append(plan.UnresolvedGradeNames, rawGrade)
					}
				}
				continue
			}
			gradeLevelID = id
		}

		key := dedupKey(fullName, gradeLevelID)
		if _, dup := p.seen[key]; dup {
			plan.Duplicates++
			continue
		}
		p.seen[key] = struct{}{}
		plan.Students = append(plan.Students, models.Student{FullName: fullName, GradeLevelID: gradeLevelID, Active: true})
	}
	plan.DistinctUnresolved = len(unresolved)
	return plan
}

func isBlankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// summary renders the user facing outcome of an import.
func (r ImportResult) summary(distinctUnresolved int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d students imported", r.Inserted)
	if r.SkippedDuplicates > 0 {
		fmt.Fprintf(&b, ", %d duplicates skipped", r.SkippedDuplicates)
	}
	if r.SkippedUnresolved > 0 {
		fmt.Fprintf(&b, ", %d rows skipped for unknown grade level", r.SkippedUnresolved)
		if len(r.UnresolvedGradeNames) > 0 {
			quoted := make([]string, len(r.UnresolvedGradeNames))
			for i, name := range r.UnresolvedGradeNames {
				quoted[i] = fmt.Sprintf("%q", name)
			}
			fmt.Fprintf(&b, " (%s", strings.Join(quoted, ", "))
			if more := distinctUnresolved - len(r.UnresolvedGradeNames); more > 0 {
				fmt.Fprintf(&b, " and %d more", more)
			}
			b.WriteString(")")
		}
	}
	if r.SkippedMalformed > 0 {
		fmt.Fprintf(&b, ", %d malformed rows skipped", r.SkippedMalformed)
	}
	return b.String()
}

type studentImportStore interface {
	ListAll(ctx context.Context) ([]models.Student, error)
	ListByGradeLevel(ctx context.Context, gradeLevelID string) ([]models.Student, error)
	BulkInsert(ctx context.Context, students []models.Student) error
}

type gradeLevelCatalog interface {
	List(ctx context.Context) ([]models.GradeLevel, error)
}

// StudentImportService persists planned imports in one bulk insert.
type StudentImportService struct {
	students    studentImportStore
	gradeLevels gradeLevelCatalog
	options     ImportOptions
	metrics     *MetricsService
	onImported  func(ctx context.Context)
	logger      *zap.Logger
}

// NewStudentImportService constructs the service. options supplies the trailer
// sentinel and example cap; its target grade level is ignored.
func NewStudentImportService(students studentImportStore, gradeLevels gradeLevelCatalog, options ImportOptions, metrics *MetricsService, logger *zap.Logger) *StudentImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	options.TargetGradeLevelID = ""
	return &StudentImportService{students: students, gradeLevels: gradeLevels, options: options, metrics: metrics, logger: logger}
}

// OnImported registers a hook run after students were inserted, e.g. to drop
// cached rosters.
func (s *StudentImportService) OnImported(fn func(ctx context.Context)) {
	s.onImported = fn
}

// Import decodes, plans and stores a student file. Nothing is stored unless the
// whole batch is.
func (s *StudentImportService) Import(ctx context.Context, raw []byte, targetGradeLevelID string) (*ImportResult, error) {
	levels, err := s.gradeLevels.List(ctx)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load grade levels")
	}
	targetGradeLevelID = strings.TrimSpace(targetGradeLevelID)
	if targetGradeLevelID != "" && !containsGradeLevel(levels, targetGradeLevelID) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target grade level does not exist")
	}

	var existing []models.Student
	if targetGradeLevelID != "" {
		existing, err = s.students.ListByGradeLevel(ctx, targetGradeLevelID)
	} else {
		existing, err = s.students.ListAll(ctx)
	}
	if err != nil {
		return nil, appErrors.Store(err, "failed to load existing students")
	}

	opts := s.options
	opts.TargetGradeLevelID = targetGradeLevelID
	plan, err := PlanStudentImport(raw, levels, existing, opts)
	if err != nil {
		return nil, err
	}

	if err := s.students.BulkInsert(ctx, plan.Students); err != nil {
		s.logger.Error("student import failed", zap.Int("rows", len(plan.Students)), zap.Error(err))
		return nil, appErrors.Store(err, "failed to store imported students")
	}

	result := &ImportResult{
		Inserted:             len(plan.Students),
		SkippedDuplicates:    plan.Duplicates,
		SkippedUnresolved:    plan.UnresolvedGrade,
		SkippedMalformed:     plan.Malformed,
		UnresolvedGradeNames: plan.UnresolvedGradeNames,
	}
	result.Message = result.summary(plan.DistinctUnresolved)

	s.metrics.RecordStudentImport(result.Inserted, result.SkippedDuplicates, result.SkippedUnresolved)
	if result.Inserted > 0 && s.onImported != nil {
		s.onImported(ctx)
	}
	s.logger.Info("students imported",
		zap.Int("inserted", result.Inserted),
		zap.Int("duplicates", result.SkippedDuplicates),
		zap.Int("unresolved_grade", result.SkippedUnresolved),
		zap.Int("malformed", result.SkippedMalformed),
		zap.String("target_grade_level_id", targetGradeLevelID),
	)
	return result, nil
}

func containsGradeLevel(levels []models.GradeLevel, id string) bool {
	for _, level := range levels {
		if level.ID == id {
			return true
		}
	}
	return false
}
