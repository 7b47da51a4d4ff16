package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DirectorReportSubmission is one subject's contribution to a consolidated report.
type DirectorReportSubmission struct {
	SubjectName          string          `json:"subject_name"`
	TeacherID            string          `json:"teacher_id"`
	Definitive           *float64        `json:"definitive"`
	Performance          PerformanceTier `json:"performance,omitempty"`
	PendingActivities    []string        `json:"pending_activities,omitempty"`
	CoexistenceIssues    bool            `json:"coexistence_issues"`
	LateArrivals         bool            `json:"late_arrivals"`
	PersonalPresentation bool            `json:"personal_presentation"`
	Observations         string          `json:"observations"`
	SubmittedAt          time.Time       `json:"submitted_at"`
}

// TeacherReportSubmission is produced when a teacher sends a period report to the
// group director. Transient: it is folded into a ConsolidatedReport.
type TeacherReportSubmission struct {
	StudentID    string                   `json:"student_id" validate:"required"`
	GradeLevelID string                   `json:"grade_level_id" validate:"required"`
	Period       int                      `json:"period" validate:"required,min=1"`
	SubjectID    string                   `json:"subject_id" validate:"required"`
	Report       DirectorReportSubmission `json:"report"`
}

// SubmittedReports maps subject ID to that subject's submission.
type SubmittedReports map[string]DirectorReportSubmission

// Value implements driver.Valuer storing reports as JSONB.
func (r SubmittedReports) Value() (driver.Value, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]DirectorReportSubmission(r))
}

// Scan implements sql.Scanner for JSONB columns.
func (r *SubmittedReports) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*r = SubmittedReports{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported submitted reports type %T", src)
	}
	out := map[string]DirectorReportSubmission{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode submitted reports: %w", err)
	}
	*r = out
	return nil
}

// ConsolidatedReport is the cross-subject record of one student in one period.
// Unique per (StudentID, Period).
type ConsolidatedReport struct {
	ID                         string           `db:"id" json:"id"`
	StudentID                  string           `db:"student_id" json:"student_id"`
	GradeLevelID               string           `db:"grade_level_id" json:"grade_level_id"`
	Period                     int              `db:"period" json:"period"`
	SubmittedReports           SubmittedReports `db:"submitted_reports" json:"submitted_reports"`
	DirectorGeneralObservation string           `db:"director_general_observation" json:"director_general_observation"`
	CreatedAt                  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt                  time.Time        `db:"updated_at" json:"updated_at"`
}

// ReportKey identifies a consolidated report.
type ReportKey struct {
	StudentID string
	Period    int
}

// Key returns the report's unique key.
func (r ConsolidatedReport) Key() ReportKey {
	return ReportKey{StudentID: r.StudentID, Period: r.Period}
}
