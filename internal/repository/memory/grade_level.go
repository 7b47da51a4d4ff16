package memory

import (
	"context"
	"database/sql"
	"sort"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// GradeLevelRepository is the in-memory grade level table.
type GradeLevelRepository struct {
	db *gradeLevelTable
}

// NewGradeLevelRepository binds the repository to db.
func NewGradeLevelRepository(db *DB) *GradeLevelRepository {
	return &GradeLevelRepository{db: db.gradeLevels}
}

// List returns all grade levels ordered by name.
func (r *GradeLevelRepository) List(_ context.Context) ([]models.GradeLevel, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	levels := make([]models.GradeLevel, 0, len(r.db.t))
	for _, level := range r.db.t {
		levels = append(levels, level)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Name < levels[j].Name })
	return levels, nil
}

// FindByID fetches one grade level. Returns sql.ErrNoRows when absent.
func (r *GradeLevelRepository) FindByID(_ context.Context, id string) (*models.GradeLevel, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()
	level, ok := r.db.t[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &level, nil
}
