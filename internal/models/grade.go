package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Grade bounds shared by calculators (clamp) and persistence validation (reject).
const (
	MinGradeValue = 0.0
	MaxGradeValue = 10.0
)

// ActivityKind distinguishes the two graded activity lists of a period.
type ActivityKind string

const (
	ActivityKindTask     ActivityKind = "task"
	ActivityKindWorkshop ActivityKind = "workshop"
)

// Valid reports whether the kind is one of the known activity lists.
func (k ActivityKind) Valid() bool {
	return k == ActivityKindTask || k == ActivityKindWorkshop
}

// Activity is a graded task or workshop defined for a course period.
type Activity struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Date time.Time `json:"date"`
}

// PeriodActivities bundles the activities a period grades against.
type PeriodActivities struct {
	Tasks     []Activity `json:"tasks"`
	Workshops []Activity `json:"workshops"`
}

// GradeSlots holds one grade per activity keyed by activity ID. A nil value means
// "not yet graded" and is kept distinct from 0 through JSON round trips.
//
// Records written before activities carried IDs stored grades as positional arrays.
// Those decode into legacy and are rebound to activity IDs by Migrate.
type GradeSlots struct {
	byID   map[string]*float64
	legacy []*float64
}

// NewGradeSlots builds slots from an activity-keyed map.
func NewGradeSlots(values map[string]*float64) GradeSlots {
	slots := GradeSlots{byID: make(map[string]*float64, len(values))}
	for id, v := range values {
		slots.byID[id] = copyFloat(v)
	}
	return slots
}

// LegacyGradeSlots builds slots from a positional array.
func LegacyGradeSlots(values []*float64) GradeSlots {
	legacy := make([]*float64, len(values))
	for i, v := range values {
		legacy[i] = copyFloat(v)
	}
	return GradeSlots{legacy: legacy}
}

// Lookup returns the grade of the activity at position index. Keyed entries win over
// positional ones.
func (s GradeSlots) Lookup(index int, activity Activity) *float64 {
	if v, ok := s.byID[activity.ID]; ok {
		return v
	}
	if index >= 0 && index < len(s.legacy) {
		return s.legacy[index]
	}
	return nil
}

// Has reports whether a keyed slot exists for the activity.
func (s GradeSlots) Has(activityID string) bool {
	_, ok := s.byID[activityID]
	return ok
}

// Set stores a grade for the activity.
func (s *GradeSlots) Set(activityID string, value *float64) {
	if s.byID == nil {
		s.byID = make(map[string]*float64)
	}
	s.byID[activityID] = copyFloat(value)
}

// Delete drops the activity's slot. Remaining slots keep their keys.
func (s *GradeSlots) Delete(activityID string) {
	delete(s.byID, activityID)
}

// Legacy reports whether positional entries are still waiting for migration.
func (s GradeSlots) Legacy() bool {
	return len(s.legacy) > 0
}

// Migrate rebinds positional entries to the activity IDs at the same index.
// Positions beyond the activity list cannot be attributed and are dropped.
func (s GradeSlots) Migrate(activities []Activity) GradeSlots {
	out := GradeSlots{byID: make(map[string]*float64, len(s.byID)+len(s.legacy))}
	for i, v := range s.legacy {
		if i >= len(activities) {
			break
		}
		out.byID[activities[i].ID] = copyFloat(v)
	}
	for id, v := range s.byID {
		out.byID[id] = copyFloat(v)
	}
	return out
}

// Prune drops keyed slots whose activity is no longer defined. It reports whether
// anything was dropped.
func (s GradeSlots) Prune(activities []Activity) (GradeSlots, bool) {
	defined := make(map[string]struct{}, len(activities))
	for _, activity := range activities {
		defined[activity.ID] = struct{}{}
	}
	out := s.Clone()
	pruned := false
	for id := range out.byID {
		if _, ok := defined[id]; !ok {
			delete(out.byID, id)
			pruned = true
		}
	}
	return out, pruned
}

// Values returns a copy of the keyed slots.
func (s GradeSlots) Values() map[string]*float64 {
	out := make(map[string]*float64, len(s.byID))
	for id, v := range s.byID {
		out[id] = copyFloat(v)
	}
	return out
}

// Clone returns a deep copy.
func (s GradeSlots) Clone() GradeSlots {
	out := NewGradeSlots(s.byID)
	if len(s.legacy) > 0 {
		out.legacy = LegacyGradeSlots(s.legacy).legacy
	}
	return out
}

// MarshalJSON always writes the keyed form. Unmigrated positional entries are written
// as an array so they are not lost.
func (s GradeSlots) MarshalJSON() ([]byte, error) {
	if len(s.byID) == 0 && len(s.legacy) > 0 {
		return json.Marshal(s.legacy)
	}
	if s.byID == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.byID)
}

// UnmarshalJSON accepts both the keyed object and the legacy positional array.
func (s *GradeSlots) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*s = GradeSlots{}
		return nil
	case trimmed[0] == '[':
		var legacy []*float64
		if err := json.Unmarshal(trimmed, &legacy); err != nil {
			return fmt.Errorf("decode positional grades: %w", err)
		}
		*s = GradeSlots{legacy: legacy}
		return nil
	default:
		var byID map[string]*float64
		if err := json.Unmarshal(trimmed, &byID); err != nil {
			return fmt.Errorf("decode grades: %w", err)
		}
		*s = GradeSlots{byID: byID}
		return nil
	}
}

// PeriodGradeData is what a teacher records for one student in one period.
type PeriodGradeData struct {
	Tasks                GradeSlots `json:"tasks"`
	Workshops            GradeSlots `json:"workshops"`
	Attitude             *float64   `json:"attitude"`
	Exam                 *float64   `json:"exam"`
	CoexistenceIssues    bool       `json:"coexistence_issues"`
	LateArrivals         bool       `json:"late_arrivals"`
	PersonalPresentation bool       `json:"personal_presentation"`
	Observations         string     `json:"observations"`
}

// Clone returns a deep copy.
func (p PeriodGradeData) Clone() PeriodGradeData {
	out := p
	out.Tasks = p.Tasks.Clone()
	out.Workshops = p.Workshops.Clone()
	out.Attitude = copyFloat(p.Attitude)
	out.Exam = copyFloat(p.Exam)
	return out
}

// Slots returns the grade slots for the given activity kind.
func (p *PeriodGradeData) Slots(kind ActivityKind) *GradeSlots {
	if kind == ActivityKindWorkshop {
		return &p.Workshops
	}
	return &p.Tasks
}

// Value implements driver.Valuer storing the period as JSONB.
func (p PeriodGradeData) Value() (driver.Value, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Scan implements sql.Scanner for JSONB columns.
func (p *PeriodGradeData) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = PeriodGradeData{}
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("unsupported period data type %T", src)
	}
}

// StudentGradeRecord aggregates every period of one student in one course.
type StudentGradeRecord struct {
	CourseID  string                  `json:"course_id"`
	StudentID string                  `json:"student_id"`
	Periods   map[int]PeriodGradeData `json:"periods"`
}

// NewStudentGradeRecord creates an empty record with every period present.
func NewStudentGradeRecord(courseID, studentID string, periodCount int) StudentGradeRecord {
	periods := make(map[int]PeriodGradeData, periodCount)
	for p := 1; p <= periodCount; p++ {
		periods[p] = PeriodGradeData{}
	}
	return StudentGradeRecord{CourseID: courseID, StudentID: studentID, Periods: periods}
}

// GradeRow is the persisted unit: one (course, student, period) triple.
type GradeRow struct {
	ID        string          `db:"id" json:"id"`
	CourseID  string          `db:"course_id" json:"course_id"`
	StudentID string          `db:"student_id" json:"student_id"`
	Period    int             `db:"period" json:"period"`
	Data      PeriodGradeData `db:"data" json:"data"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// GroupGradeRows folds rows into per-student records.
func GroupGradeRows(courseID string, rows []GradeRow) map[string]StudentGradeRecord {
	records := make(map[string]StudentGradeRecord)
	for _, row := range rows {
		record, ok := records[row.StudentID]
		if !ok {
			record = StudentGradeRecord{CourseID: courseID, StudentID: row.StudentID, Periods: map[int]PeriodGradeData{}}
		}
		record.Periods[row.Period] = row.Data
		records[row.StudentID] = record
	}
	return records
}

// PerformanceTier is the qualitative band of a numeric grade.
type PerformanceTier string

const (
	PerformanceSuperior PerformanceTier = "SUPERIOR"
	PerformanceAlto     PerformanceTier = "ALTO"
	PerformanceBasico   PerformanceTier = "BASICO"
	PerformanceBajo     PerformanceTier = "BAJO"
)

// Tier thresholds, inclusive lower bounds evaluated top-down.
const (
	SuperiorThreshold = 9.6
	AltoThreshold     = 8.0
	BasicoThreshold   = 6.0
)

// tierEpsilon absorbs float error in weighted sums that land on a threshold.
const tierEpsilon = 1e-9

// PerformanceFor maps an unrounded grade onto its tier.
func PerformanceFor(grade float64) PerformanceTier {
	switch {
	case grade+tierEpsilon >= SuperiorThreshold:
		return PerformanceSuperior
	case grade+tierEpsilon >= AltoThreshold:
		return PerformanceAlto
	case grade+tierEpsilon >= BasicoThreshold:
		return PerformanceBasico
	default:
		return PerformanceBajo
	}
}

const summaryKeyword = "summary"

// PeriodKey selects either one numbered period or the final summary.
type PeriodKey struct {
	number  int
	summary bool
}

// Period selects a numbered period.
func Period(n int) PeriodKey {
	return PeriodKey{number: n}
}

// Summary selects the weighted final summary.
func Summary() PeriodKey {
	return PeriodKey{summary: true}
}

// ParsePeriodKey accepts "summary" or a positive period number.
func ParsePeriodKey(raw string) (PeriodKey, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == summaryKeyword {
		return Summary(), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return PeriodKey{}, fmt.Errorf("invalid period %q", raw)
	}
	return Period(n), nil
}

// IsSummary reports whether the key selects the final summary.
func (k PeriodKey) IsSummary() bool { return k.summary }

// Number returns the period number; 0 for the summary.
func (k PeriodKey) Number() int { return k.number }

func (k PeriodKey) String() string {
	if k.summary {
		return summaryKeyword
	}
	return strconv.Itoa(k.number)
}

// MarshalJSON writes periods as numbers and the summary as "summary".
func (k PeriodKey) MarshalJSON() ([]byte, error) {
	if k.summary {
		return json.Marshal(summaryKeyword)
	}
	return json.Marshal(k.number)
}

// UnmarshalJSON accepts a period number or "summary".
func (k *PeriodKey) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var text string
	switch v := raw.(type) {
	case float64:
		text = strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		text = v
	default:
		return fmt.Errorf("invalid period %s", data)
	}
	parsed, err := ParsePeriodKey(text)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// AcademicSettings configures how many periods a year has and their weights.
type AcademicSettings struct {
	PeriodCount   int             `json:"period_count"`
	PeriodWeights map[int]float64 `json:"period_weights"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DefaultAcademicSettings splits 100% evenly, giving the remainder to the last period.
func DefaultAcademicSettings(periodCount int) AcademicSettings {
	if periodCount < 1 {
		periodCount = 1
	}
	weights := make(map[int]float64, periodCount)
	share := math.Floor(100/float64(periodCount)*100) / 100
	total := 0.0
	for p := 1; p < periodCount; p++ {
		weights[p] = share
		total += share
	}
	weights[periodCount] = math.Round((100-total)*100) / 100
	return AcademicSettings{PeriodCount: periodCount, PeriodWeights: weights}
}

const weightTolerance = 1e-9

// Validate enforces a positive period count and weights for exactly periods 1..N
// summing to 100.
func (s AcademicSettings) Validate() error {
	if s.PeriodCount < 1 {
		return fmt.Errorf("period count must be at least 1")
	}
	if len(s.PeriodWeights) != s.PeriodCount {
		return fmt.Errorf("expected %d period weights, got %d", s.PeriodCount, len(s.PeriodWeights))
	}
	sum := 0.0
	for p := 1; p <= s.PeriodCount; p++ {
		w, ok := s.PeriodWeights[p]
		if !ok {
			return fmt.Errorf("missing weight for period %d", p)
		}
		if w < 0 || w > 100 {
			return fmt.Errorf("weight for period %d must be between 0 and 100", p)
		}
		sum += w
	}
	if math.Abs(sum-100) > weightTolerance {
		return fmt.Errorf("period weights must sum to 100, got %g", sum)
	}
	return nil
}

// ValidGrade reports whether v lies in the accepted grade range.
func ValidGrade(v *float64) bool {
	return v == nil || (*v >= MinGradeValue && *v <= MaxGradeValue && !math.IsNaN(*v))
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
