package memory

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// StudentRepository is the in-memory student table.
type StudentRepository struct {
	db *studentTable
}

// NewStudentRepository binds the repository to db.
func NewStudentRepository(db *DB) *StudentRepository {
	return &StudentRepository{db: db.students}
}

func (r *StudentRepository) query(match func(models.Student) bool) []models.Student {
	students := make([]models.Student, 0, len(r.db.t))
	for _, s := range r.db.t {
		if match(s) {
			students = append(students, s)
		}
	}
	sort.Slice(students, func(i, j int) bool {
		a, b := strings.ToLower(students[i].FullName), strings.ToLower(students[j].FullName)
		if a != b {
			return a < b
		}
		return students[i].ID < students[j].ID
	})
	return students
}

// ListByGradeLevel returns the students of one grade level ordered by name.
func (r *StudentRepository) ListByGradeLevel(_ context.Context, gradeLevelID string) ([]models.Student, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	return r.query(func(s models.Student) bool { return s.GradeLevelID == gradeLevelID }), nil
}

// ListAll returns every student.
func (r *StudentRepository) ListAll(_ context.Context) ([]models.Student, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	return r.query(func(models.Student) bool { return true }), nil
}

// FindByID fetches a student. Returns sql.ErrNoRows when absent.
func (r *StudentRepository) FindByID(_ context.Context, id string) (*models.Student, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	s, ok := r.db.t[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

// BulkInsert stores every student under one lock.
func (r *StudentRepository) BulkInsert(ctx context.Context, students []models.Student) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	now := time.Now().UTC()
	for i := range students {
		if students[i].ID == "" {
			students[i].ID = uuid.NewString()
		}
		if students[i].CreatedAt.IsZero() {
			students[i].CreatedAt = now
		}
	}
	for _, s := range students {
		r.db.t[s.ID] = s
	}
	return nil
}
