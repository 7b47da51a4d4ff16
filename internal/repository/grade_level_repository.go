package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// GradeLevelRepository reads grade levels.
type GradeLevelRepository struct {
	db *sqlx.DB
}

// NewGradeLevelRepository constructs the repository.
func NewGradeLevelRepository(db *sqlx.DB) *GradeLevelRepository {
	return &GradeLevelRepository{db: db}
}

// List returns all grade levels.
func (r *GradeLevelRepository) List(ctx context.Context) ([]models.GradeLevel, error) {
	const query = `SELECT id, name, director_id FROM grade_levels ORDER BY name ASC`
	var levels []models.GradeLevel
	if err := r.db.SelectContext(ctx, &levels, query); err != nil {
		return nil, classify(err, "list grade levels")
	}
	return levels, nil
}

// FindByID fetches one grade level. Returns sql.ErrNoRows when absent.
func (r *GradeLevelRepository) FindByID(ctx context.Context, id string) (*models.GradeLevel, error) {
	const query = `SELECT id, name, director_id FROM grade_levels WHERE id = $1`
	var level models.GradeLevel
	if err := r.db.GetContext(ctx, &level, query, id); err != nil {
		return nil, err
	}
	return &level, nil
}
