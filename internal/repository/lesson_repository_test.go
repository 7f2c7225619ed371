package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lessons-api/internal/models"
)

var lessonRowColumns = []string{"id", "title", "description", "teacher_id", "student_id", "start_time", "end_time", "status", "created_at", "updated_at"}

func TestListLessonsDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(lessonRowColumns).
		AddRow("l1", "Algebra", "", "t1", "s1", now, now.Add(time.Hour), "scheduled", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + lessonColumns + " FROM lessons WHERE 1=1 ORDER BY start_time DESC, id LIMIT 20 OFFSET 0")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lessons WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	lessons, total, err := repo.List(context.Background(), models.LessonFilter{})
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, models.LessonStatusScheduled, lessons[0].Status)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLessonsWithFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	status := models.LessonStatusScheduled
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	filter := models.LessonFilter{Status: &status, StartsAfter: &after, StudentID: "s1", Page: 2, PageSize: 5}

	where := "FROM lessons WHERE 1=1 AND status = $1 AND start_time > $2 AND student_id = $3"
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+lessonColumns+" "+where+" ORDER BY start_time DESC, id LIMIT 5 OFFSET 5")).
		WithArgs("scheduled", after, "s1").
		WillReturnRows(sqlmock.NewRows(lessonRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) "+where)).
		WithArgs("scheduled", after, "s1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	lessons, total, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Empty(t, lessons)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLessonsQueryError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectQuery("SELECT .* FROM lessons").WillReturnError(errors.New("boom"))

	_, _, err := repo.List(context.Background(), models.LessonFilter{})
	assert.ErrorContains(t, err, "list lessons")
}

func TestFindLessonByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM lessons WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestFindStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM lessons WHERE id = $1")).
		WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("in_progress"))

	status, err := repo.FindStatus(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, models.LessonStatusInProgress, status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLesson(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectExec("INSERT INTO lessons").WillReturnResult(sqlmock.NewResult(1, 1))

	start := time.Now().Add(time.Hour)
	lesson := models.NewLesson("Algebra", "", "t1", "s1", start, start.Add(time.Hour))
	require.NoError(t, repo.Create(context.Background(), lesson))
	assert.NotEmpty(t, lesson.ID)
	assert.False(t, lesson.UpdatedAt.Before(lesson.CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusWritesOnlyStatusColumns(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	lesson := &models.Lesson{ID: "l1", Status: models.LessonStatusCompleted, UpdatedAt: time.Now().UTC()}
	mock.ExpectExec(regexp.QuoteMeta("UPDATE lessons SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("l1", "completed", lesson.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), lesson))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectExec("UPDATE lessons").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), &models.Lesson{ID: "gone", Status: models.LessonStatusCancelled})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestFindLessonByMalformedIDIsNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM lessons WHERE id = $1")).
		WithArgs("abc").
		WillReturnError(&pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`})

	_, err := repo.FindByID(context.Background(), "abc")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLessonByIDKeepsOtherDriverErrors(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM lessons WHERE id = $1")).
		WillReturnError(&pq.Error{Code: "57P01", Message: "terminating connection"})

	_, err := repo.FindByID(context.Background(), "l1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, sql.ErrNoRows))
}

func TestUpdateStatusMalformedIDIsNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLessonRepository(db)

	mock.ExpectExec("UPDATE lessons").WillReturnError(&pq.Error{Code: "22P02"})

	err := repo.UpdateStatus(context.Background(), &models.Lesson{ID: "abc", Status: models.LessonStatusInProgress})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
