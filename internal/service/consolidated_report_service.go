package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type reportStore interface {
	ListByStudents(ctx context.Context, studentIDs []string, period int) ([]models.ConsolidatedReport, error)
	ListByGradeLevel(ctx context.Context, gradeLevelID string, period int) ([]models.ConsolidatedReport, error)
	Find(ctx context.Context, studentID string, period int) (*models.ConsolidatedReport, error)
	Upsert(ctx context.Context, reports []models.ConsolidatedReport) error
	UpdateDirectorObservation(ctx context.Context, studentID string, period int, observation string) error
}

// SubmitResult reports how many consolidated reports a submission created or extended.
type SubmitResult struct {
	Period  int                         `json:"period"`
	Created int                         `json:"created"`
	Updated int                         `json:"updated"`
	Reports []models.ConsolidatedReport `json:"reports"`
}

// MergeSubmissions folds submissions into the existing reports of their students.
// Per subject the newer submission wins; subjects not resubmitted are kept. New
// reports inherit the grade level of their first submission. Output is ordered by
// student ID.
func MergeSubmissions(existing []models.ConsolidatedReport, submissions []models.TeacherReportSubmission) (merged []models.ConsolidatedReport, created int) {
	byStudent := make(map[string]models.ConsolidatedReport, len(existing))
	for _, report := range existing {
		copied := report
		copied.SubmittedReports = make(models.SubmittedReports, len(report.SubmittedReports))
		for subject, sub := range report.SubmittedReports {
			copied.SubmittedReports[subject] = sub
		}
		byStudent[report.StudentID] = copied
	}

	touched := make(map[string]struct{})
	for _, sub := range submissions {
		report, ok := byStudent[sub.StudentID]
		if !ok {
			report = models.ConsolidatedReport{
				StudentID:        sub.StudentID,
				GradeLevelID:     sub.GradeLevelID,
				Period:           sub.Period,
				SubmittedReports: models.SubmittedReports{},
			}
			created++
		}
		report.SubmittedReports[sub.SubjectID] = sub.Report
		byStudent[sub.StudentID] = report
		touched[sub.StudentID] = struct{}{}
	}

	merged = make([]models.ConsolidatedReport, 0, len(touched))
	for id := range touched {
		merged = append(merged, byStudent[id])
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].StudentID < merged[j].StudentID })
	return merged, created
}

// ConsolidatedReportService merges teacher submissions into per-student period reports
// read by group directors.
type ConsolidatedReportService struct {
	reports   reportStore
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewConsolidatedReportService constructs the service.
func NewConsolidatedReportService(reports reportStore, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *ConsolidatedReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsolidatedReportService{reports: reports, validator: validate, metrics: metrics, logger: logger, now: time.Now}
}

// Submit merges a batch of submissions for one period. Existing subjects of other
// teachers and the director's observation are preserved.
func (s *ConsolidatedReportService) Submit(ctx context.Context, submissions []models.TeacherReportSubmission) (*SubmitResult, error) {
	if len(submissions) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one submission is required")
	}
	period := submissions[0].Period
	now := s.now().UTC()
	studentIDs := make([]string, 0, len(submissions))
	seen := make(map[string]struct{}, len(submissions))
	for i := range submissions {
		if err := s.validator.Struct(submissions[i]); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report submission")
		}
		if submissions[i].Period != period {
			return nil, appErrors.Clone(appErrors.ErrValidation, "all submissions must target the same period")
		}
		if submissions[i].Report.SubmittedAt.IsZero() {
			submissions[i].Report.SubmittedAt = now
		}
		if _, ok := seen[submissions[i].StudentID]; !ok {
			seen[submissions[i].StudentID] = struct{}{}
			studentIDs = append(studentIDs, submissions[i].StudentID)
		}
	}

	existing, err := s.reports.ListByStudents(ctx, studentIDs, period)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load consolidated reports")
	}
	merged, created := MergeSubmissions(existing, submissions)
	if err := s.reports.Upsert(ctx, merged); err != nil {
		s.logger.Error("consolidated report merge failed", zap.Int("period", period), zap.Int("students", len(merged)), zap.Error(err))
		return nil, appErrors.Store(err, "failed to store consolidated reports")
	}

	result := &SubmitResult{Period: period, Created: created, Updated: len(merged) - created, Reports: merged}
	s.metrics.RecordReportMerge(result.Created, result.Updated)
	s.logger.Info("consolidated reports merged",
		zap.Int("period", period),
		zap.Int("submissions", len(submissions)),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
	)
	return result, nil
}

// Get returns one student's consolidated report for a period.
func (s *ConsolidatedReportService) Get(ctx context.Context, studentID string, period int) (*models.ConsolidatedReport, error) {
	if strings.TrimSpace(studentID) == "" || period < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id and a positive period are required")
	}
	report, err := s.reports.Find(ctx, studentID, period)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "consolidated report not found")
		}
		return nil, appErrors.Store(err, "failed to load consolidated report")
	}
	return report, nil
}

// ListByGradeLevel returns a grade level's consolidated reports for a period.
func (s *ConsolidatedReportService) ListByGradeLevel(ctx context.Context, gradeLevelID string, period int) ([]models.ConsolidatedReport, error) {
	if strings.TrimSpace(gradeLevelID) == "" || period < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade level id and a positive period are required")
	}
	reports, err := s.reports.ListByGradeLevel(ctx, gradeLevelID, period)
	if err != nil {
		return nil, appErrors.Store(err, "failed to list consolidated reports")
	}
	return reports, nil
}

// UpdateDirectorObservation records the group director's general observation.
func (s *ConsolidatedReportService) UpdateDirectorObservation(ctx context.Context, studentID string, period int, observation string) (*models.ConsolidatedReport, error) {
	if strings.TrimSpace(studentID) == "" || period < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id and a positive period are required")
	}
	if err := s.reports.UpdateDirectorObservation(ctx, studentID, period, strings.TrimSpace(observation)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "consolidated report not found")
		}
		return nil, appErrors.Store(err, "failed to update director observation")
	}
	return s.Get(ctx, studentID, period)
}
