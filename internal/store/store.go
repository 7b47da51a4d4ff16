// Package store defines the record store the services depend on and builds the
// PostgreSQL or in-memory adapter behind it.
//
// Lookups of a single record return sql.ErrNoRows when the record is absent, in
// both adapters.
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository"
	"github.com/noah-isme/sma-gradebook-api/internal/repository/memory"
	"github.com/noah-isme/sma-gradebook-api/pkg/config"
	"github.com/noah-isme/sma-gradebook-api/pkg/database"
)

// Students reads and bulk-creates students.
type Students interface {
	ListByGradeLevel(ctx context.Context, gradeLevelID string) ([]models.Student, error)
	ListAll(ctx context.Context) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	BulkInsert(ctx context.Context, students []models.Student) error
}

// GradeLevels reads grade levels.
type GradeLevels interface {
	List(ctx context.Context) ([]models.GradeLevel, error)
	FindByID(ctx context.Context, id string) (*models.GradeLevel, error)
}

// Courses reads courses and rewrites their activity plans.
type Courses interface {
	List(ctx context.Context) ([]models.Course, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	UpdateActivities(ctx context.Context, course *models.Course) error
}

// Grades stores grade rows keyed by (course, student, period).
type Grades interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.GradeRow, error)
	Upsert(ctx context.Context, rows []models.GradeRow) error
}

// Reports stores consolidated reports keyed by (student, period).
type Reports interface {
	ListByStudents(ctx context.Context, studentIDs []string, period int) ([]models.ConsolidatedReport, error)
	ListByGradeLevel(ctx context.Context, gradeLevelID string, period int) ([]models.ConsolidatedReport, error)
	Find(ctx context.Context, studentID string, period int) (*models.ConsolidatedReport, error)
	Upsert(ctx context.Context, reports []models.ConsolidatedReport) error
	UpdateDirectorObservation(ctx context.Context, studentID string, period int, observation string) error
}

// Settings stores the academic settings.
type Settings interface {
	Get(ctx context.Context) (*models.AcademicSettings, error)
	Save(ctx context.Context, settings *models.AcademicSettings) error
}

// Store bundles every table of one adapter.
type Store struct {
	Driver      string
	Students    Students
	GradeLevels GradeLevels
	Courses     Courses
	Grades      Grades
	Reports     Reports
	Settings    Settings

	ping  func(ctx context.Context) error
	close func() error
}

// Ping reports whether the backing database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

// Close releases the backing connection.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// NewPostgres builds the store over an open PostgreSQL handle.
func NewPostgres(db *sqlx.DB) *Store {
	return &Store{
		Driver:      config.StoreDriverPostgres,
		Students:    repository.NewStudentRepository(db),
		GradeLevels: repository.NewGradeLevelRepository(db),
		Courses:     repository.NewCourseRepository(db),
		Grades:      repository.NewGradeRepository(db),
		Reports:     repository.NewConsolidatedReportRepository(db),
		Settings:    repository.NewSettingsRepository(db),
		ping:        db.PingContext,
		close:       db.Close,
	}
}

// NewMemory builds the store over an in-memory database.
func NewMemory(db *memory.DB) *Store {
	return &Store{
		Driver:      config.StoreDriverMemory,
		Students:    memory.NewStudentRepository(db),
		GradeLevels: memory.NewGradeLevelRepository(db),
		Courses:     memory.NewCourseRepository(db),
		Grades:      memory.NewGradeRepository(db),
		Reports:     memory.NewConsolidatedReportRepository(db),
		Settings:    memory.NewSettingsRepository(db),
	}
}

// Open builds the adapter selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		db := memory.Open()
		if cfg.Store.SeedFile != "" {
			if err := db.LoadFile(cfg.Store.SeedFile); err != nil {
				return nil, err
			}
			logger.Info("memory store seeded", zap.String("file", cfg.Store.SeedFile))
		}
		return NewMemory(db), nil
	case config.StoreDriverPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return NewPostgres(db), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
