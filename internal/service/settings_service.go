package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type settingsStore interface {
	Get(ctx context.Context) (*models.AcademicSettings, error)
	Save(ctx context.Context, settings *models.AcademicSettings) error
}

// SettingsService reads and updates the academic settings.
type SettingsService struct {
	settings           settingsStore
	defaultPeriodCount int
	logger             *zap.Logger
}

// NewSettingsService constructs the service. defaultPeriodCount sizes the settings
// used until an administrator saves some.
func NewSettingsService(settings settingsStore, defaultPeriodCount int, logger *zap.Logger) *SettingsService {
	if defaultPeriodCount < 1 {
		defaultPeriodCount = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{settings: settings, defaultPeriodCount: defaultPeriodCount, logger: logger}
}

// Get returns the saved settings, or evenly weighted defaults when none were saved.
// Saved settings that fail validation are reported as a validation error.
func (s *SettingsService) Get(ctx context.Context) (models.AcademicSettings, error) {
	saved, err := s.settings.Get(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultAcademicSettings(s.defaultPeriodCount), nil
		}
		return models.AcademicSettings{}, appErrors.Store(err, "failed to load academic settings")
	}
	if err := saved.Validate(); err != nil {
		return models.AcademicSettings{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "stored academic settings are invalid")
	}
	return *saved, nil
}

// Save validates and stores the settings. A missing weight map is filled with
// even weights for the requested period count.
func (s *SettingsService) Save(ctx context.Context, settings models.AcademicSettings) (models.AcademicSettings, error) {
	if len(settings.PeriodWeights) == 0 && settings.PeriodCount > 0 {
		settings.PeriodWeights = models.DefaultAcademicSettings(settings.PeriodCount).PeriodWeights
	}
	if err := settings.Validate(); err != nil {
		return models.AcademicSettings{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if err := s.settings.Save(ctx, &settings); err != nil {
		return models.AcademicSettings{}, appErrors.Store(err, "failed to save academic settings")
	}
	s.logger.Info("academic settings saved", zap.Int("period_count", settings.PeriodCount))
	return settings, nil
}
