package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// ConsolidatedReportRepository persists director reports keyed by (student, period).
type ConsolidatedReportRepository struct {
	db *sqlx.DB
}

// NewConsolidatedReportRepository constructs the repository.
func NewConsolidatedReportRepository(db *sqlx.DB) *ConsolidatedReportRepository {
	return &ConsolidatedReportRepository{db: db}
}

const reportColumns = `id, student_id, grade_level_id, period, submitted_reports, director_general_observation, created_at, updated_at`

// ListByStudents returns the existing reports of the given students for one period
// in a single round trip.
func (r *ConsolidatedReportRepository) ListByStudents(ctx context.Context, studentIDs []string, period int) ([]models.ConsolidatedReport, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	const query = `SELECT ` + reportColumns + ` FROM consolidated_reports
        WHERE student_id = ANY($1) AND period = $2`
	var reports []models.ConsolidatedReport
	if err := r.db.SelectContext(ctx, &reports, query, pq.Array(studentIDs), period); err != nil {
		return nil, classify(err, "list consolidated reports")
	}
	return reports, nil
}

// ListByGradeLevel returns the reports of a grade level for one period.
func (r *ConsolidatedReportRepository) ListByGradeLevel(ctx context.Context, gradeLevelID string, period int) ([]models.ConsolidatedReport, error) {
	const query = `SELECT ` + reportColumns + ` FROM consolidated_reports
        WHERE grade_level_id = $1 AND period = $2 ORDER BY student_id ASC`
	var reports []models.ConsolidatedReport
	if err := r.db.SelectContext(ctx, &reports, query, gradeLevelID, period); err != nil {
		return nil, classify(err, "list consolidated reports by grade level")
	}
	return reports, nil
}

// Find fetches one report. Returns sql.ErrNoRows when absent.
func (r *ConsolidatedReportRepository) Find(ctx context.Context, studentID string, period int) (*models.ConsolidatedReport, error) {
	const query = `SELECT ` + reportColumns + ` FROM consolidated_reports WHERE student_id = $1 AND period = $2`
	var report models.ConsolidatedReport
	if err := r.db.GetContext(ctx, &report, query, studentID, period); err != nil {
		return nil, err
	}
	return &report, nil
}

// Upsert writes the reports in one transaction. Submitted reports are merged into
// the stored object per subject key so concurrent submissions for other subjects
// survive; the grade level and the director observation of an existing row are kept.
func (r *ConsolidatedReportRepository) Upsert(ctx context.Context, reports []models.ConsolidatedReport) error {
	if len(reports) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(err, "begin consolidated reports tx")
	}
	const query = `INSERT INTO consolidated_reports (id, student_id, grade_level_id, period, submitted_reports,
            director_general_observation, created_at, updated_at)
        VALUES (:id, :student_id, :grade_level_id, :period, :submitted_reports,
            :director_general_observation, :created_at, :updated_at)
        ON CONFLICT (student_id, period)
        DO UPDATE SET submitted_reports = consolidated_reports.submitted_reports || EXCLUDED.submitted_reports,
            updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for i := range reports {
		if reports[i].ID == "" {
			reports[i].ID = uuid.NewString()
		}
		if reports[i].CreatedAt.IsZero() {
			reports[i].CreatedAt = now
		}
		reports[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, reports[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return classify(err, "upsert consolidated report")
		}
	}
	if err := tx.Commit(); err != nil {
		return classify(err, "commit consolidated reports")
	}
	return nil
}

// UpdateDirectorObservation sets the director's general observation of one report.
func (r *ConsolidatedReportRepository) UpdateDirectorObservation(ctx context.Context, studentID string, period int, observation string) error {
	const query = `UPDATE consolidated_reports SET director_general_observation = $1, updated_at = $2
        WHERE student_id = $3 AND period = $4`
	res, err := r.db.ExecContext(ctx, query, observation, time.Now().UTC(), studentID, period)
	if err != nil {
		return classify(err, "update director observation")
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
