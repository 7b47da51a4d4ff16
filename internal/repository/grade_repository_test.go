package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

func TestGradeRepositoryListByCourse(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	rows := sqlmock.NewRows([]string{"id", "course_id", "student_id", "period", "data", "updated_at"}).
		AddRow("r1", "c1", "s1", 1, []byte(`{"tasks":{"a1":9.5,"a2":null},"workshops":[7],"exam":8,"attitude":null}`), time.Now())
	mock.ExpectQuery("FROM grade_records WHERE course_id = \\$1").
		WithArgs("c1").
		WillReturnRows(rows)

	result, err := repo.ListByCourse(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, result, 1)
	data := result[0].Data
	assert.Equal(t, 9.5, *data.Tasks.Values()["a1"])
	assert.True(t, data.Tasks.Has("a2"))
	assert.True(t, data.Workshops.Legacy())
	assert.Nil(t, data.Attitude)
	assert.Equal(t, 8.0, *data.Exam)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryUpsertIsTransactional(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	exam := 7.0
	rows := []models.GradeRow{
		{CourseID: "c1", StudentID: "s1", Period: 1, Data: models.PeriodGradeData{Exam: &exam}},
		{CourseID: "c1", StudentID: "s2", Period: 1},
	}

	mock.ExpectBegin()
	mock.ExpectExec("(?s)INSERT INTO grade_records.*ON CONFLICT \\(course_id, student_id, period\\)").
		WithArgs(sqlmock.AnyArg(), "c1", "s1", 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO grade_records").
		WithArgs(sqlmock.AnyArg(), "c1", "s2", 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Upsert(context.Background(), rows))
	assert.NotEmpty(t, rows[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryUpsertRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO grade_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO grade_records").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.Upsert(context.Background(), []models.GradeRow{
		{CourseID: "c1", StudentID: "s1", Period: 1},
		{CourseID: "c1", StudentID: "s2", Period: 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert grade record")
	assert.NoError(t, mock.ExpectationsWereMet())
}
