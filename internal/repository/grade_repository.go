package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// GradeRepository persists per-period grade rows keyed by (course, student, period).
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// ListByCourse returns every grade row of the course.
func (r *GradeRepository) ListByCourse(ctx context.Context, courseID string) ([]models.GradeRow, error) {
	const query = `SELECT id, course_id, student_id, period, data, updated_at
        FROM grade_records WHERE course_id = $1 ORDER BY student_id ASC, period ASC`
	var rows []models.GradeRow
	if err := r.db.SelectContext(ctx, &rows, query, courseID); err != nil {
		return nil, classify(err, "list grades")
	}
	return rows, nil
}

// Upsert writes every row in one transaction. A failure leaves all rows untouched.
func (r *GradeRepository) Upsert(ctx context.Context, rows []models.GradeRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err, "begin grades tx")
	}
	const query = `INSERT INTO grade_records (id, course_id, student_id, period, data, updated_at)
        VALUES (:id, :course_id, :student_id, :period, :data, :updated_at)
        ON CONFLICT (course_id, student_id, period)
        DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
		rows[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, rows[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return classify(err, "upsert grade record")
		}
	}
	if err := tx.Commit(); err != nil {
		return classify(err, "commit grades")
	}
	return nil
}
