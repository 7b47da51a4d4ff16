package service

import (
	"context"
	"errors"
	"testing"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	"github.com/noah-isme/sma-gradebook-api/internal/repository/memory"
)

var errStoreDown = errors.New("connection refused")

// schoolFixture seeds an in-memory store with one teacher teaching math to
// two grade levels and art to one.
func schoolFixture(t *testing.T) *memory.DB {
	t.Helper()
	db := memory.Open()
	db.Load(memory.Seed{
		GradeLevels: []models.GradeLevel{
			{ID: "g10", Name: "10°"},
			{ID: "g6", Name: "6°"},
			{ID: "gt", Name: "Transición"},
		},
		Courses: []models.Course{
			{
				ID: "math", SubjectID: "sub-math", SubjectName: "Matemáticas", TeacherID: "t1",
				GradeLevelIDs: []string{"g10", "g6", "ghost"},
				TaskActivities: models.ActivityPlan{
					1: {{ID: "a1", Name: "Quiz 1"}, {ID: "a2", Name: "Quiz 2"}},
				},
				WorkshopActivities: models.ActivityPlan{
					1: {{ID: "w1", Name: "Taller 1"}},
				},
			},
			{
				ID: "art", SubjectID: "sub-art", SubjectName: "Artes", TeacherID: "t1",
				GradeLevelIDs: []string{"gt"},
			},
			{
				ID: "bio", SubjectID: "sub-bio", SubjectName: "Biología", TeacherID: "t2",
				GradeLevelIDs: []string{"g10"},
			},
		},
		Students: []models.Student{
			{ID: "s1", FullName: "ana lopez", GradeLevelID: "g6", Active: true},
			{ID: "s2", FullName: "bruno diaz", GradeLevelID: "g6", Active: true},
			{ID: "s3", FullName: "carla ruiz", GradeLevelID: "g10", Active: true},
			{ID: "s4", FullName: "dario gil", GradeLevelID: "gt", Active: true},
		},
	})
	return db
}

type failingCourses struct{}

func (failingCourses) ListByTeacher(context.Context, string) ([]models.Course, error) {
	return nil, errStoreDown
}

func (failingCourses) FindByID(context.Context, string) (*models.Course, error) {
	return nil, errStoreDown
}

func (failingCourses) UpdateActivities(context.Context, *models.Course) error {
	return errStoreDown
}
