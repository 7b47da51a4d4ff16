package models

import "time"

// Student represents a learner enrolled in a grade level.
type Student struct {
	ID           string    `db:"id" json:"id"`
	FullName     string    `db:"full_name" json:"full_name"`
	GradeLevelID string    `db:"grade_level_id" json:"grade_level_id"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
