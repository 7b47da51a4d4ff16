// Package memory is an in-process record store used for local runs and tests.
// Each table is guarded by its own lock; batch writes hold the lock for the whole
// batch so they are all-or-nothing.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

type (
	// DB holds every table of the in-memory store.
	DB struct {
		students    *studentTable
		gradeLevels *gradeLevelTable
		courses     *courseTable
		grades      *gradeTable
		reports     *reportTable
		settings    *settingsTable
	}

	studentTable struct {
		t     map[string]models.Student
		mutex sync.RWMutex
	}

	gradeLevelTable struct {
		t     map[string]models.GradeLevel
		mutex sync.RWMutex
	}

	courseTable struct {
		t     map[string]models.Course
		mutex sync.RWMutex
	}

	gradeKey struct {
		courseID  string
		studentID string
		period    int
	}

	gradeTable struct {
		t     map[gradeKey]models.GradeRow
		mutex sync.RWMutex
	}

	reportTable struct {
		t     map[models.ReportKey]models.ConsolidatedReport
		mutex sync.RWMutex
	}

	settingsTable struct {
		v     *models.AcademicSettings
		mutex sync.RWMutex
	}
)

// Seed is the reference data loaded into a fresh store.
type Seed struct {
	GradeLevels []models.GradeLevel `json:"grade_levels"`
	Courses     []models.Course     `json:"courses"`
	Students    []models.Student    `json:"students"`
}

// Open returns an empty store.
func Open() *DB {
	return &DB{
		students:    &studentTable{t: make(map[string]models.Student)},
		gradeLevels: &gradeLevelTable{t: make(map[string]models.GradeLevel)},
		courses:     &courseTable{t: make(map[string]models.Course)},
		grades:      &gradeTable{t: make(map[gradeKey]models.GradeRow)},
		reports:     &reportTable{t: make(map[models.ReportKey]models.ConsolidatedReport)},
		settings:    &settingsTable{},
	}
}

// Load inserts the seed data, replacing rows with the same ID.
func (db *DB) Load(seed Seed) {
	now := time.Now().UTC()

	db.gradeLevels.mutex.Lock()
	for _, level := range seed.GradeLevels {
		db.gradeLevels.t[level.ID] = level
	}
	db.gradeLevels.mutex.Unlock()

	db.courses.mutex.Lock()
	for _, course := range seed.Courses {
		if course.ID == "" {
			course.ID = uuid.NewString()
		}
		if course.CreatedAt.IsZero() {
			course.CreatedAt = now
		}
		course.Students = nil
		db.courses.t[course.ID] = cloneCourse(course)
	}
	db.courses.mutex.Unlock()

	db.students.mutex.Lock()
	for _, student := range seed.Students {
		if student.ID == "" {
			student.ID = uuid.NewString()
		}
		if student.CreatedAt.IsZero() {
			student.CreatedAt = now
		}
		db.students.t[student.ID] = student
	}
	db.students.mutex.Unlock()
}

// LoadFile reads a JSON seed file into the store.
func (db *DB) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("decode seed file %s: %w", path, err)
	}
	db.Load(seed)
	return nil
}

func cloneCourse(c models.Course) models.Course {
	c.GradeLevelIDs = append([]string(nil), c.GradeLevelIDs...)
	c.TaskActivities = c.TaskActivities.Clone()
	c.WorkshopActivities = c.WorkshopActivities.Clone()
	return c
}

func cloneReport(r models.ConsolidatedReport) models.ConsolidatedReport {
	reports := make(models.SubmittedReports, len(r.SubmittedReports))
	for subject, sub := range r.SubmittedReports {
		sub.PendingActivities = append([]string(nil), sub.PendingActivities...)
		reports[subject] = sub
	}
	r.SubmittedReports = reports
	return r
}
