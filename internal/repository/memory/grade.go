package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// GradeRepository is the in-memory grade table keyed by (course, student, period).
type GradeRepository struct {
	db *gradeTable
}

// NewGradeRepository binds the repository to db.
func NewGradeRepository(db *DB) *GradeRepository {
	return &GradeRepository{db: db.grades}
}

// ListByCourse returns every grade row of the course.
func (r *GradeRepository) ListByCourse(_ context.Context, courseID string) ([]models.GradeRow, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	rows := make([]models.GradeRow, 0)
	for key, row := range r.db.t {
		if key.courseID == courseID {
			row.Data = row.Data.Clone()
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StudentID != rows[j].StudentID {
			return rows[i].StudentID < rows[j].StudentID
		}
		return rows[i].Period < rows[j].Period
	})
	return rows, nil
}

// Upsert writes every row under one lock.
func (r *GradeRepository) Upsert(ctx context.Context, rows []models.GradeRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	now := time.Now().UTC()
	for i := range rows {
		key := gradeKey{courseID: rows[i].CourseID, studentID: rows[i].StudentID, period: rows[i].Period}
		if existing, ok := r.db.t[key]; ok {
			rows[i].ID = existing.ID
		} else if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
		rows[i].UpdatedAt = now
		stored := rows[i]
		stored.Data = rows[i].Data.Clone()
		r.db.t[key] = stored
	}
	return nil
}
