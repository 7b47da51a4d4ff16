package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// SettingsRepository persists the single academic settings row.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs the repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

const academicSettingsID = 1

type settingsRow struct {
	ID            int       `db:"id"`
	PeriodCount   int       `db:"period_count"`
	PeriodWeights []byte    `db:"period_weights"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Get returns the saved settings. Returns sql.ErrNoRows when none were saved.
func (r *SettingsRepository) Get(ctx context.Context) (*models.AcademicSettings, error) {
	const query = `SELECT id, period_count, period_weights, updated_at FROM academic_settings WHERE id = $1`
	var row settingsRow
	if err := r.db.GetContext(ctx, &row, query, academicSettingsID); err != nil {
		return nil, err
	}
	weights := map[int]float64{}
	if err := json.Unmarshal(row.PeriodWeights, &weights); err != nil {
		return nil, fmt.Errorf("decode period weights: %w", err)
	}
	return &models.AcademicSettings{PeriodCount: row.PeriodCount, PeriodWeights: weights, UpdatedAt: row.UpdatedAt}, nil
}

// Save inserts or replaces the settings row.
func (r *SettingsRepository) Save(ctx context.Context, settings *models.AcademicSettings) error {
	weights, err := json.Marshal(settings.PeriodWeights)
	if err != nil {
		return fmt.Errorf("encode period weights: %w", err)
	}
	settings.UpdatedAt = time.Now().UTC()
	row := settingsRow{
		ID:            academicSettingsID,
		PeriodCount:   settings.PeriodCount,
		PeriodWeights: weights,
		UpdatedAt:     settings.UpdatedAt,
	}
	const query = `INSERT INTO academic_settings (id, period_count, period_weights, updated_at)
VALUES (:id, :period_count, :period_weights, :updated_at)
ON CONFLICT (id)
DO UPDATE SET period_count = EXCLUDED.period_count, period_weights = EXCLUDED.period_weights,
              updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return classify(err, "save academic settings")
	}
	return nil
}
