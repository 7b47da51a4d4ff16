package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// ConsolidatedReportRepository is the in-memory consolidated report table.
type ConsolidatedReportRepository struct {
	db *reportTable
}

// NewConsolidatedReportRepository binds the repository to db.
func NewConsolidatedReportRepository(db *DB) *ConsolidatedReportRepository {
	return &ConsolidatedReportRepository{db: db.reports}
}

// ListByStudents returns the existing reports of the given students for one period.
func (r *ConsolidatedReportRepository) ListByStudents(_ context.Context, studentIDs []string, period int) ([]models.ConsolidatedReport, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	reports := make([]models.ConsolidatedReport, 0, len(studentIDs))
	for _, id := range studentIDs {
		if report, ok := r.db.t[models.ReportKey{StudentID: id, Period: period}]; ok {
			reports = append(reports, cloneReport(report))
		}
	}
	return reports, nil
}

// ListByGradeLevel returns the reports of a grade level for one period.
func (r *ConsolidatedReportRepository) ListByGradeLevel(_ context.Context, gradeLevelID string, period int) ([]models.ConsolidatedReport, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	reports := make([]models.ConsolidatedReport, 0)
	for key, report := range r.db.t {
		if key.Period == period && report.GradeLevelID == gradeLevelID {
			reports = append(reports, cloneReport(report))
		}
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].StudentID < reports[j].StudentID })
	return reports, nil
}

// Find fetches one report. Returns sql.ErrNoRows when absent.
func (r *ConsolidatedReportRepository) Find(_ context.Context, studentID string, period int) (*models.ConsolidatedReport, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	report, ok := r.db.t[models.ReportKey{StudentID: studentID, Period: period}]
	if !ok {
		return nil, sql.ErrNoRows
	}
	report = cloneReport(report)
	return &report, nil
}

// Upsert merges submitted reports per subject into the stored rows under one lock.
// An existing row keeps its grade level and director observation.
func (r *ConsolidatedReportRepository) Upsert(ctx context.Context, reports []models.ConsolidatedReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	now := time.Now().UTC()
	for i := range reports {
		incoming := cloneReport(reports[i])
		stored, ok := r.db.t[incoming.Key()]
		if !ok {
			stored = incoming
			if stored.ID == "" {
				stored.ID = uuid.NewString()
			}
			if stored.CreatedAt.IsZero() {
				stored.CreatedAt = now
			}
		} else {
			stored = cloneReport(stored)
			for subject, sub := range incoming.SubmittedReports {
				stored.SubmittedReports[subject] = sub
			}
		}
		stored.UpdatedAt = now
		r.db.t[stored.Key()] = stored

		reports[i].ID = stored.ID
		reports[i].CreatedAt = stored.CreatedAt
		reports[i].UpdatedAt = now
	}
	return nil
}

// UpdateDirectorObservation sets the director's general observation of one report.
func (r *ConsolidatedReportRepository) UpdateDirectorObservation(_ context.Context, studentID string, period int, observation string) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	key := models.ReportKey{StudentID: studentID, Period: period}
	report, ok := r.db.t[key]
	if !ok {
		return sql.ErrNoRows
	}
	report.DirectorGeneralObservation = observation
	report.UpdatedAt = time.Now().UTC()
	r.db.t[key] = report
	return nil
}
