package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type courseViewResolver interface {
	Resolve(ctx context.Context, explodedID string) (*models.ExplodedAssignment, error)
	InvalidateTeacher(ctx context.Context, teacherID string)
}

type courseActivityStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	UpdateActivities(ctx context.Context, course *models.Course) error
}

type gradeStore interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.GradeRow, error)
	Upsert(ctx context.Context, rows []models.GradeRow) error
}

type academicSettingsReader interface {
	Get(ctx context.Context) (models.AcademicSettings, error)
}

type reportSubmitter interface {
	Submit(ctx context.Context, submissions []models.TeacherReportSubmission) (*SubmitResult, error)
}

// GradebookEntry is one student's line in a gradebook.
type GradebookEntry struct {
	Student models.Student          `json:"student"`
	Data    *models.PeriodGradeData `json:"data,omitempty"`
	Result  *PeriodResult           `json:"result,omitempty"`
	Summary *FinalSummary           `json:"summary,omitempty"`
}

// Gradebook is the grade sheet of one course view for a period or the final summary.
type Gradebook struct {
	CourseID     string                   `json:"course_id"`
	OriginalID   string                   `json:"original_id"`
	SubjectName  string                   `json:"subject_name"`
	GradeLevel   models.GradeLevel        `json:"grade_level"`
	Period       models.PeriodKey         `json:"period"`
	Activities   *models.PeriodActivities `json:"activities,omitempty"`
	Settings     models.AcademicSettings  `json:"settings"`
	Entries      []GradebookEntry         `json:"entries"`
	CreatedCount int                      `json:"created_records"`
}

// StudentPeriodGrades carries one student's grades in a save request.
type StudentPeriodGrades struct {
	StudentID string                 `json:"student_id" validate:"required"`
	Data      models.PeriodGradeData `json:"data"`
}

// SavePeriodGradesRequest saves a whole period for several students at once.
type SavePeriodGradesRequest struct {
	Period  int                   `json:"period" validate:"required,min=1"`
	Entries []StudentPeriodGrades `json:"entries" validate:"required,min=1,dive"`
}

// AddActivityRequest defines a new task or workshop.
type AddActivityRequest struct {
	Period int                 `json:"period" validate:"required,min=1"`
	Kind   models.ActivityKind `json:"kind" validate:"required,oneof=task workshop"`
	Name   string              `json:"name" validate:"required,max=120"`
	Date   time.Time           `json:"date"`
}

// StudentSummary is every period of one student plus the weighted final.
type StudentSummary struct {
	Student models.Student       `json:"student"`
	Periods map[int]PeriodResult `json:"periods"`
	Final   FinalSummary         `json:"final"`
}

// GradebookService reads and writes grades of exploded course views.
type GradebookService struct {
	views     courseViewResolver
	courses   courseActivityStore
	grades    gradeStore
	settings  academicSettingsReader
	reports   reportSubmitter
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewGradebookService constructs the service.
func NewGradebookService(views courseViewResolver, courses courseActivityStore, grades gradeStore, settings academicSettingsReader, reports reportSubmitter, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *GradebookService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradebookService{
		views:     views,
		courses:   courses,
		grades:    grades,
		settings:  settings,
		reports:   reports,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func validatePeriod(period int, settings models.AcademicSettings) error {
	if period < 1 || period > settings.PeriodCount {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("period must be between 1 and %d", settings.PeriodCount))
	}
	return nil
}

// loadRecords returns a grade record for every student of the view. Students without
// stored grades get an empty record and missing periods are added. Legacy positional
// slots are rebound to activity IDs and slots of deleted activities are dropped.
// Every such change is written back.
func (s *GradebookService) loadRecords(ctx context.Context, view *models.ExplodedAssignment, settings models.AcademicSettings) (map[string]models.StudentGradeRecord, int, error) {
	rows, err := s.grades.ListByCourse(ctx, view.OriginalID)
	if err != nil {
		return nil, 0, appErrors.Store(err, "failed to load grades")
	}
	stored := models.GroupGradeRows(view.OriginalID, rows)

	records := make(map[string]models.StudentGradeRecord, len(view.Students))
	var pending []models.GradeRow
	created := 0
	for _, student := range view.Students {
		record, ok := stored[student.ID]
		if !ok {
			record = models.NewStudentGradeRecord(view.OriginalID, student.ID, settings.PeriodCount)
			created++
		}
		for p := 1; p <= settings.PeriodCount; p++ {
			data, exists := record.Periods[p]
			changed := !exists || !ok
			if conformSlots(&data, view.Activities(p)) {
				changed = true
			}
			if changed {
				record.Periods[p] = data
				pending = append(pending, models.GradeRow{CourseID: view.OriginalID, StudentID: student.ID, Period: p, Data: data})
			}
		}
		records[student.ID] = record
	}

	if len(pending) > 0 {
		if err := s.grades.Upsert(ctx, pending); err != nil {
			return nil, 0, appErrors.Store(err, "failed to initialise grade records")
		}
		s.logger.Debug("grade records initialised",
			zap.String("course_id", view.ID), zap.Int("students", created), zap.Int("rows", len(pending)))
	}
	return records, created, nil
}

// Gradebook returns the grade sheet of a course view for one period or the summary.
// The first request for a student creates an empty record for every period.
func (s *GradebookService) Gradebook(ctx context.Context, explodedID string, key models.PeriodKey) (*Gradebook, error) {
	view, err := s.views.Resolve(ctx, explodedID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !key.IsSummary() {
		if err := validatePeriod(key.Number(), settings); err != nil {
			return nil, err
		}
	}
	records, created, err := s.loadRecords(ctx, view, settings)
	if err != nil {
		return nil, err
	}

	book := &Gradebook{
		CourseID:     view.ID,
		OriginalID:   view.OriginalID,
		SubjectName:  view.SubjectName,
		GradeLevel:   view.GradeLevel,
		Period:       key,
		Settings:     settings,
		Entries:      make([]GradebookEntry, 0, len(view.Students)),
		CreatedCount: created,
	}
	all := view.AllActivities()
	if !key.IsSummary() {
		acts := view.Activities(key.Number())
		book.Activities = &acts
	}
	for _, student := range view.Students {
		record := records[student.ID]
		entry := GradebookEntry{Student: student}
		if key.IsSummary() {
			summary := SummarizeFinal(record, settings, all)
			entry.Summary = &summary
		} else {
			data := record.Periods[key.Number()]
			result := CalculatePeriod(data, book.Activities.Tasks, book.Activities.Workshops)
			entry.Data = &data
			entry.Result = &result
		}
		book.Entries = append(book.Entries, entry)
	}
	return book, nil
}

// conformSlots rebinds legacy positional grades and drops slots of activities that
// are no longer defined for the period. It reports whether data changed.
func conformSlots(data *models.PeriodGradeData, acts models.PeriodActivities) bool {
	changed := false
	if data.Tasks.Legacy() || data.Workshops.Legacy() {
		data.Tasks = data.Tasks.Migrate(acts.Tasks)
		data.Workshops = data.Workshops.Migrate(acts.Workshops)
		changed = true
	}
	var prunedTasks, prunedWorkshops bool
	data.Tasks, prunedTasks = data.Tasks.Prune(acts.Tasks)
	data.Workshops, prunedWorkshops = data.Workshops.Prune(acts.Workshops)
	return changed || prunedTasks || prunedWorkshops
}

func validateSlots(slots models.GradeSlots, label string) error {
	for id, value := range slots.Values() {
		if !models.ValidGrade(value) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s grade for %q must be between 0 and 10", label, id))
		}
	}
	return nil
}

// SavePeriodGrades stores one period's grades for the listed students. The batch is
// written in one transaction: either every student is saved or none is.
func (s *GradebookService) SavePeriodGrades(ctx context.Context, explodedID string, req SavePeriodGradesRequest) (*Gradebook, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grades payload")
	}
	view, err := s.views.Resolve(ctx, explodedID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := validatePeriod(req.Period, settings); err != nil {
		return nil, err
	}

	roster := make(map[string]struct{}, len(view.Students))
	for _, student := range view.Students {
		roster[student.ID] = struct{}{}
	}
	acts := view.Activities(req.Period)
	rows := make([]models.GradeRow, 0, len(req.Entries))
	seen := make(map[string]struct{}, len(req.Entries))
	for _, entry := range req.Entries {
		if _, ok := roster[entry.StudentID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %q is not enrolled in this course", entry.StudentID))
		}
		if _, dup := seen[entry.StudentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %q appears more than once", entry.StudentID))
		}
		seen[entry.StudentID] = struct{}{}

		data := entry.Data.Clone()
		conformSlots(&data, acts)
		if err := validateSlots(data.Tasks, "task"); err != nil {
			return nil, err
		}
		if err := validateSlots(data.Workshops, "workshop"); err != nil {
			return nil, err
		}
		if !models.ValidGrade(data.Attitude) || !models.ValidGrade(data.Exam) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "attitude and exam grades must be between 0 and 10")
		}
		data.Observations = strings.TrimSpace(data.Observations)
		rows = append(rows, models.GradeRow{CourseID: view.OriginalID, StudentID: entry.StudentID, Period: req.Period, Data: data})
	}

	if err := s.grades.Upsert(ctx, rows); err != nil {
		s.logger.Error("grade save failed", zap.String("course_id", view.ID), zap.Int("period", req.Period), zap.Error(err))
		return nil, appErrors.Store(err, "failed to save grades")
	}
	s.metrics.RecordGradeSave(len(rows))
	s.logger.Info("grades saved", zap.String("course_id", view.ID), zap.Int("period", req.Period), zap.Int("students", len(rows)))
	return s.Gradebook(ctx, explodedID, models.Period(req.Period))
}

func (s *GradebookService) loadCourse(ctx context.Context, explodedID string) (*models.ExplodedAssignment, *models.Course, error) {
	view, err := s.views.Resolve(ctx, explodedID)
	if err != nil {
		return nil, nil, err
	}
	course, err := s.courses.FindByID(ctx, view.OriginalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, appErrors.Store(err, "failed to load course")
	}
	return view, course, nil
}

// AddActivity appends a task or workshop to a period of the course. Every grade
// level view of the course sees the new activity.
func (s *GradebookService) AddActivity(ctx context.Context, explodedID string, req AddActivityRequest) (*models.Activity, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := validatePeriod(req.Period, settings); err != nil {
		return nil, err
	}
	_, course, err := s.loadCourse(ctx, explodedID)
	if err != nil {
		return nil, err
	}

	activity := models.Activity{ID: uuid.NewString(), Name: req.Name, Date: req.Date}
	if activity.Date.IsZero() {
		activity.Date = s.now().UTC()
	}
	plan := course.Plan(req.Kind)
	(*plan)[req.Period] = append((*plan)[req.Period], activity)
	if err := s.courses.UpdateActivities(ctx, course); err != nil {
		return nil, appErrors.Store(err, "failed to add activity")
	}
	s.views.InvalidateTeacher(ctx, course.TeacherID)
	s.logger.Info("activity added",
		zap.String("course_id", course.ID), zap.Int("period", req.Period),
		zap.String("kind", string(req.Kind)), zap.String("activity_id", activity.ID))
	return &activity, nil
}

// DeleteActivity removes an activity from the course and drops its grade slot from
// every student's record. Other slots keep their keys.
func (s *GradebookService) DeleteActivity(ctx context.Context, explodedID string, period int, kind models.ActivityKind, activityID string) error {
	if !kind.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "kind must be task or workshop")
	}
	_, course, err := s.loadCourse(ctx, explodedID)
	if err != nil {
		return err
	}
	plan := course.Plan(kind)
	before := (*plan)[period]
	after := make([]models.Activity, 0, len(before))
	for _, activity := range before {
		if activity.ID != activityID {
			after = append(after, activity)
		}
	}
	if len(after) == len(before) {
		return appErrors.Clone(appErrors.ErrNotFound, "activity not found")
	}

	rows, err := s.grades.ListByCourse(ctx, course.ID)
	if err != nil {
		return appErrors.Store(err, "failed to load grades")
	}
	var changed []models.GradeRow
	for _, row := range rows {
		if row.Period != period {
			continue
		}
		slots := row.Data.Slots(kind)
		if slots.Legacy() {
			*slots = slots.Migrate(before)
		} else if !slots.Has(activityID) {
			continue
		}
		slots.Delete(activityID)
		changed = append(changed, row)
	}

	// Grade rows go first so a failed write leaves the activity in place for a retry.
	if len(changed) > 0 {
		if err := s.grades.Upsert(ctx, changed); err != nil {
			return appErrors.Store(err, "failed to remove activity grades")
		}
	}
	(*plan)[period] = after
	if err := s.courses.UpdateActivities(ctx, course); err != nil {
		return appErrors.Store(err, "failed to delete activity")
	}
	s.views.InvalidateTeacher(ctx, course.TeacherID)
	s.logger.Info("activity deleted",
		zap.String("course_id", course.ID), zap.Int("period", period),
		zap.String("kind", string(kind)), zap.String("activity_id", activityID), zap.Int("records", len(changed)))
	return nil
}

// StudentSummary returns every period result and the weighted final of one student.
func (s *GradebookService) StudentSummary(ctx context.Context, explodedID, studentID string) (*StudentSummary, error) {
	view, err := s.views.Resolve(ctx, explodedID)
	if err != nil {
		return nil, err
	}
	var student *models.Student
	for i := range view.Students {
		if view.Students[i].ID == studentID {
			student = &view.Students[i]
			break
		}
	}
	if student == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in this course")
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.grades.ListByCourse(ctx, view.OriginalID)
	if err != nil {
		return nil, appErrors.Store(err, "failed to load grades")
	}
	record, ok := models.GroupGradeRows(view.OriginalID, rows)[studentID]
	if !ok {
		record = models.NewStudentGradeRecord(view.OriginalID, studentID, settings.PeriodCount)
	}

	summary := &StudentSummary{Student: *student, Periods: make(map[int]PeriodResult, settings.PeriodCount)}
	for p := 1; p <= settings.PeriodCount; p++ {
		acts := view.Activities(p)
		summary.Periods[p] = CalculatePeriod(record.Periods[p], acts.Tasks, acts.Workshops)
	}
	summary.Final = SummarizeFinal(record, settings, view.AllActivities())
	return summary, nil
}

// BuildSubmissions shapes a period of a course view into director report submissions,
// one per student, listing the activities still ungraded.
func BuildSubmissions(view models.ExplodedAssignment, records map[string]models.StudentGradeRecord, period int, submittedAt time.Time) []models.TeacherReportSubmission {
	acts := view.Activities(period)
	submissions := make([]models.TeacherReportSubmission, 0, len(view.Students))
	for _, student := range view.Students {
		data := records[student.ID].Periods[period]
		result := CalculatePeriod(data, acts.Tasks, acts.Workshops)
		definitive := result.Definitive
		submissions = append(submissions, models.TeacherReportSubmission{
			StudentID:    student.ID,
			GradeLevelID: view.GradeLevel.ID,
			Period:       period,
			SubjectID:    view.SubjectID,
			Report: models.DirectorReportSubmission{
				SubjectName:          view.SubjectName,
				TeacherID:            view.TeacherID,
				Definitive:           &definitive,
				Performance:          result.Performance,
				PendingActivities:    result.PendingActivities,
				CoexistenceIssues:    data.CoexistenceIssues,
				LateArrivals:         data.LateArrivals,
				PersonalPresentation: data.PersonalPresentation,
				Observations:         data.Observations,
				SubmittedAt:          submittedAt,
			},
		})
	}
	return submissions
}

// SendToDirector submits a period of a course view to the consolidated reports of its
// students.
func (s *GradebookService) SendToDirector(ctx context.Context, explodedID string, period int) (*SubmitResult, error) {
	view, err := s.views.Resolve(ctx, explodedID)
	if err != nil {
		return nil, err
	}
	if len(view.Students) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course view has no students")
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := validatePeriod(period, settings); err != nil {
		return nil, err
	}
	records, _, err := s.loadRecords(ctx, view, settings)
	if err != nil {
		return nil, err
	}
	return s.reports.Submit(ctx, BuildSubmissions(*view, records, period, s.now().UTC()))
}
