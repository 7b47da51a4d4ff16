package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
)

// ActivityPlan maps period number to its activities.
type ActivityPlan map[int][]Activity

// For returns the activities of a period, never nil.
func (p ActivityPlan) For(period int) []Activity {
	if acts, ok := p[period]; ok {
		return acts
	}
	return []Activity{}
}

// Clone returns a copy whose slices can be modified independently.
func (p ActivityPlan) Clone() ActivityPlan {
	out := make(ActivityPlan, len(p))
	for period, acts := range p {
		out[period] = append([]Activity(nil), acts...)
	}
	return out
}

// Value implements driver.Valuer storing the plan as JSONB.
func (p ActivityPlan) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[int][]Activity(p))
}

// Scan implements sql.Scanner for JSONB columns.
func (p *ActivityPlan) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = ActivityPlan{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported activity plan type %T", src)
	}
	plan := map[int][]Activity{}
	if err := json.Unmarshal(raw, &plan); err != nil {
		return fmt.Errorf("decode activity plan: %w", err)
	}
	*p = plan
	return nil
}

// GradeLevel is a class section such as "Transición" or "6°".
type GradeLevel struct {
	ID         string  `db:"id" json:"id"`
	Name       string  `db:"name" json:"name"`
	DirectorID *string `db:"director_id" json:"director_id,omitempty"`
}

// Course is one teaching unit: a subject taught by a teacher to one or more grade
// levels. Activities are shared by every grade level of the course.
type Course struct {
	ID                 string         `db:"id" json:"id"`
	SubjectID          string         `db:"subject_id" json:"subject_id"`
	SubjectName        string         `db:"subject_name" json:"subject_name"`
	TeacherID          string         `db:"teacher_id" json:"teacher_id"`
	GradeLevelIDs      pq.StringArray `db:"grade_level_ids" json:"grade_level_ids"`
	TaskActivities     ActivityPlan   `db:"task_activities" json:"task_activities"`
	WorkshopActivities ActivityPlan   `db:"workshop_activities" json:"workshop_activities"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
	Students           []Student      `db:"-" json:"students,omitempty"`
}

// Activities returns the period's task and workshop lists.
func (c Course) Activities(period int) PeriodActivities {
	return PeriodActivities{Tasks: c.TaskActivities.For(period), Workshops: c.WorkshopActivities.For(period)}
}

// Plan returns the activity plan of the given kind.
func (c *Course) Plan(kind ActivityKind) *ActivityPlan {
	if kind == ActivityKindWorkshop {
		if c.WorkshopActivities == nil {
			c.WorkshopActivities = ActivityPlan{}
		}
		return &c.WorkshopActivities
	}
	if c.TaskActivities == nil {
		c.TaskActivities = ActivityPlan{}
	}
	return &c.TaskActivities
}

// AllActivities returns activities for every period in the plan union.
func (c Course) AllActivities() map[int]PeriodActivities {
	out := make(map[int]PeriodActivities)
	for period := range c.TaskActivities {
		out[period] = c.Activities(period)
	}
	for period := range c.WorkshopActivities {
		out[period] = c.Activities(period)
	}
	return out
}

// ExplodedAssignment is a per-grade-level view of a course. Derived on read, never stored.
type ExplodedAssignment struct {
	Course
	OriginalID string     `json:"original_id"`
	GradeLevel GradeLevel `json:"grade_level"`
}

// SubjectAssignments groups a teacher's exploded views under one subject.
type SubjectAssignments struct {
	SubjectID   string               `json:"subject_id"`
	SubjectName string               `json:"subject_name"`
	Assignments []ExplodedAssignment `json:"assignments"`
}

// SortedPeriods returns the keys of a period map in ascending order.
func SortedPeriods[V any](m map[int]V) []int {
	periods := make([]int, 0, len(m))
	for p := range m {
		periods = append(periods, p)
	}
	sort.Ints(periods)
	return periods
}
