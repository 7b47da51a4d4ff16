package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// CourseRepository persists courses and their activity plans.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseSelect = `SELECT c.id, c.subject_id, s.name AS subject_name, c.teacher_id, c.grade_level_ids,
        c.task_activities, c.workshop_activities, c.created_at, c.updated_at
        FROM courses c
        JOIN subjects s ON s.id = c.subject_id`

// List returns every course.
func (r *CourseRepository) List(ctx context.Context) ([]models.Course, error) {
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, courseSelect+` ORDER BY s.name ASC, c.id ASC`); err != nil {
		return nil, classify(err, "list courses")
	}
	return courses, nil
}

// ListByTeacher returns the courses taught by teacherID.
func (r *CourseRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.Course, error) {
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, courseSelect+` WHERE c.teacher_id = $1 ORDER BY s.name ASC, c.id ASC`, teacherID); err != nil {
		return nil, classify(err, "list courses by teacher")
	}
	return courses, nil
}

// FindByID fetches one course. Returns sql.ErrNoRows when absent.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	if err := r.db.GetContext(ctx, &course, courseSelect+` WHERE c.id = $1`, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// UpdateActivities replaces both activity plans of the course.
func (r *CourseRepository) UpdateActivities(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET task_activities = :task_activities, workshop_activities = :workshop_activities,
        updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		return classify(err, "update course activities")
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
