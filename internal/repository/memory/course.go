package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// CourseRepository is the in-memory course table.
type CourseRepository struct {
	db *courseTable
}

// NewCourseRepository binds the repository to db.
func NewCourseRepository(db *DB) *CourseRepository {
	return &CourseRepository{db: db.courses}
}

func (r *CourseRepository) query(match func(models.Course) bool) []models.Course {
	courses := make([]models.Course, 0, len(r.db.t))
	for _, c := range r.db.t {
		if match(c) {
			courses = append(courses, cloneCourse(c))
		}
	}
	sort.Slice(courses, func(i, j int) bool {
		if courses[i].SubjectName != courses[j].SubjectName {
			return courses[i].SubjectName < courses[j].SubjectName
		}
		return courses[i].ID < courses[j].ID
	})
	return courses
}

// List returns every course.
func (r *CourseRepository) List(_ context.Context) ([]models.Course, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	return r.query(func(models.Course) bool { return true }), nil
}

// ListByTeacher returns the courses taught by teacherID.
func (r *CourseRepository) ListByTeacher(_ context.Context, teacherID string) ([]models.Course, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	return r.query(func(c models.Course) bool { return c.TeacherID == teacherID }), nil
}

// FindByID fetches one course. Returns sql.ErrNoRows when absent.
func (r *CourseRepository) FindByID(_ context.Context, id string) (*models.Course, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	c, ok := r.db.t[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c = cloneCourse(c)
	return &c, nil
}

// UpdateActivities replaces both activity plans of the course.
func (r *CourseRepository) UpdateActivities(_ context.Context, course *models.Course) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	stored, ok := r.db.t[course.ID]
	if !ok {
		return sql.ErrNoRows
	}
	course.UpdatedAt = time.Now().UTC()
	stored.TaskActivities = course.TaskActivities.Clone()
	stored.WorkshopActivities = course.WorkshopActivities.Clone()
	stored.UpdatedAt = course.UpdatedAt
	r.db.t[course.ID] = stored
	return nil
}
