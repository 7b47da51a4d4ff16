package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, full_name, grade_level_id, active, created_at`

// ListByGradeLevel returns the students of one grade level ordered by name.
func (r *StudentRepository) ListByGradeLevel(ctx context.Context, gradeLevelID string) ([]models.Student, error) {
	const query = `SELECT ` + studentColumns + ` FROM students WHERE grade_level_id = $1 ORDER BY full_name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, gradeLevelID); err != nil {
		return nil, classify(err, "list students by grade level")
	}
	return students, nil
}

// ListAll returns every student.
func (r *StudentRepository) ListAll(ctx context.Context) ([]models.Student, error) {
	const query = `SELECT ` + studentColumns + ` FROM students ORDER BY full_name ASC`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, classify(err, "list students")
	}
	return students, nil
}

// FindByID fetches a student by ID. Returns sql.ErrNoRows when absent.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// BulkInsert stores every student in one transaction; either all rows land or none.
func (r *StudentRepository) BulkInsert(ctx context.Context, students []models.Student) error {
	if len(students) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err, "begin student import tx")
	}
	const query = `INSERT INTO students (id, full_name, grade_level_id, active, created_at)
        VALUES (:id, :full_name, :grade_level_id, :active, :created_at)`
	now := time.Now().UTC()
	for i := range students {
		if students[i].ID == "" {
			students[i].ID = uuid.NewString()
		}
		if students[i].CreatedAt.IsZero() {
			students[i].CreatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, query, students[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return classify(err, "insert student")
		}
	}
	if err := tx.Commit(); err != nil {
		return classify(err, "commit student import")
	}
	return nil
}
