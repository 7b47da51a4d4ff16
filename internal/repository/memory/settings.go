package memory

import (
	"context"
	"database/sql"
	"time"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// SettingsRepository holds the single academic settings value.
type SettingsRepository struct {
	db *settingsTable
}

// NewSettingsRepository binds the repository to db.
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db.settings}
}

// Get returns the saved settings. Returns sql.ErrNoRows when none were saved.
func (r *SettingsRepository) Get(_ context.Context) (*models.AcademicSettings, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	if r.db.v == nil {
		return nil, sql.ErrNoRows
	}
	return copySettings(*r.db.v), nil
}

// Save replaces the settings.
func (r *SettingsRepository) Save(_ context.Context, settings *models.AcademicSettings) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()
	settings.UpdatedAt = time.Now().UTC()
	r.db.v = copySettings(*settings)
	return nil
}

func copySettings(s models.AcademicSettings) *models.AcademicSettings {
	weights := make(map[int]float64, len(s.PeriodWeights))
	for p, w := range s.PeriodWeights {
		weights[p] = w
	}
	s.PeriodWeights = weights
	return &s
}
