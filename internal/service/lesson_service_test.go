package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lessons-api/internal/dto"
	"github.com/noah-isme/lessons-api/internal/models"
	appErrors "github.com/noah-isme/lessons-api/pkg/errors"
)

type lessonFixture struct {
	svc   *LessonService
	repo  *stubLessonRepo
	store *memoryStore
	queue *recordingQueue
	clock *fakeClock
}

func newLessonFixture(t *testing.T, lessons ...*models.Lesson) *lessonFixture {
	t.Helper()
	clock := newFakeClock()
	repo := newStubLessonRepo(lessons...)
	store := newMemoryStore(clock)
	queue := &recordingQueue{}
	metrics := NewMetricsService()
	detector := newTestDetector(store, repo, clock)
	dispatcher := NewNotificationDispatcher(queue, metrics, zap.NewNop())
	users := &stubUserRepo{users: map[string]*models.User{
		"t1": {ID: "t1", Role: models.RoleTeacher},
		"s1": {ID: "s1", Role: models.RoleStudent},
	}}
	svc := NewLessonService(repo, users, detector, dispatcher, validator.New(), zap.NewNop())
	svc.now = clock.Now
	return &lessonFixture{svc: svc, repo: repo, store: store, queue: queue, clock: clock}
}

func lessonWithStatus(id string, status models.LessonStatus) *models.Lesson {
	start := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	return &models.Lesson{ID: id, Title: "Physics", TeacherID: "t1", StudentID: "s1", StartTime: start, EndTime: start.Add(time.Hour), Status: status}
}

func teacherCaller() *models.JWTClaims {
	return &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestCreateLessonEnqueuesCreated(t *testing.T) {
	f := newLessonFixture(t)
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	lesson, err := f.svc.Create(context.Background(), teacherCaller(), dto.CreateLessonRequest{
		Title:     "Biology",
		Student:   "s1",
		StartTime: timePtr(start),
		EndTime:   timePtr(start.Add(time.Hour)),
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", lesson.TeacherID)
	assert.Equal(t, models.LessonStatusDraft, lesson.Status)
	assert.Equal(t, []string{string(models.NotificationLessonCreated)}, f.queue.Types())
}

func TestCreateLessonEndBeforeStart(t *testing.T) {
	f := newLessonFixture(t)
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	_, err := f.svc.Create(context.Background(), teacherCaller(), dto.CreateLessonRequest{
		Title:     "Biology",
		Student:   "s1",
		StartTime: timePtr(start),
		EndTime:   timePtr(start.Add(-time.Hour)),
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Details, "end_time")
	assert.Empty(t, f.queue.Types())
}

func TestCreateLessonSelfAsStudent(t *testing.T) {
	f := newLessonFixture(t)
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	_, err := f.svc.Create(context.Background(), teacherCaller(), dto.CreateLessonRequest{
		Title:     "Biology",
		Student:   "t1",
		StartTime: timePtr(start),
		EndTime:   timePtr(start.Add(time.Hour)),
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Details, "student")
}

func TestCreateLessonMissingFields(t *testing.T) {
	f := newLessonFixture(t)

	_, err := f.svc.Create(context.Background(), teacherCaller(), dto.CreateLessonRequest{Student: "s1"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Details, "title")
	assert.Contains(t, appErr.Details, "start_time")
	assert.Contains(t, appErr.Details, "end_time")
}

func TestCreateLessonUnknownStudent(t *testing.T) {
	f := newLessonFixture(t)
	start := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	_, err := f.svc.Create(context.Background(), teacherCaller(), dto.CreateLessonRequest{
		Title:     "Biology",
		Student:   "nobody",
		StartTime: timePtr(start),
		EndTime:   timePtr(start.Add(time.Hour)),
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "student does not exist", appErr.Details["student"])
}

func TestCreateLessonRequiresCaller(t *testing.T) {
	f := newLessonFixture(t)
	_, err := f.svc.Create(context.Background(), nil, dto.CreateLessonRequest{})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestStartScheduledLesson(t *testing.T) {
	f := newLessonFixture(t, lessonWithStatus("l1", models.LessonStatusScheduled))

	lesson, applied, err := f.svc.Start(context.Background(), "l1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.LessonStatusInProgress, lesson.Status)
	assert.Equal(t, []string{string(models.NotificationLessonStarted)}, f.queue.Types())
	assert.Zero(t, f.store.Len())

	lesson, applied, err = f.svc.Start(context.Background(), "l1")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.LessonStatusInProgress, lesson.Status)
	assert.Len(t, f.queue.Types(), 1)
}

func TestCompleteFromInProgress(t *testing.T) {
	f := newLessonFixture(t, lessonWithStatus("l1", models.LessonStatusInProgress))

	lesson, applied, err := f.svc.Complete(context.Background(), "l1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.LessonStatusCompleted, lesson.Status)
	assert.Equal(t, []string{string(models.NotificationLessonCompleted)}, f.queue.Types())
}

func TestCancelDraftEnqueuesCancelled(t *testing.T) {
	f := newLessonFixture(t, lessonWithStatus("l1", models.LessonStatusDraft))

	_, applied, err := f.svc.Cancel(context.Background(), "l1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, []string{string(models.NotificationLessonCancelled)}, f.queue.Types())
}

func TestCancelCompletedIsNoop(t *testing.T) {
	f := newLessonFixture(t, lessonWithStatus("l1", models.LessonStatusCompleted))

	lesson, applied, err := f.svc.Cancel(context.Background(), "l1")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.LessonStatusCompleted, lesson.Status)
	assert.Zero(t, f.repo.updates)
	assert.Empty(t, f.queue.Types())
}

func TestStartStampsUpdatedAtFromServiceClock(t *testing.T) {
	f := newLessonFixture(t, lessonWithStatus("l1", models.LessonStatusScheduled))
	f.clock.Advance(90 * time.Minute)

	lesson, applied, err := f.svc.Start(context.Background(), "l1")
	require.NoError(t, err)
	require.True(t, applied)
	assert.Equal(t, f.clock.Now(), lesson.UpdatedAt)

	stored, err := f.repo.FindByID(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), stored.UpdatedAt)
}

func TestTransitionRevalidatesStoredLesson(t *testing.T) {
	cases := []struct {
		name       string
		corrupt    func(*models.Lesson)
		transition LessonTransition
		field      string
	}{
		{"zero length window", func(l *models.Lesson) { l.EndTime = l.StartTime }, TransitionStart, "end_time"},
		{"teacher is student", func(l *models.Lesson) { l.StudentID = l.TeacherID }, TransitionCancel, "student"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lesson := lessonWithStatus("l1", models.LessonStatusScheduled)
			tc.corrupt(lesson)
			f := newLessonFixture(t, lesson)

			_, applied, err := f.svc.Transition(context.Background(), "l1", tc.transition)
			require.Error(t, err)
			assert.False(t, applied)
			assert.ErrorIs(t, err, appErrors.ErrValidation)
			var appErr *appErrors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Contains(t, appErr.Details, tc.field)

			assert.Zero(t, f.repo.updates)
			assert.Empty(t, f.queue.Types())
			assert.Zero(t, f.store.Len())
			stored, _ := f.repo.FindByID(context.Background(), "l1")
			assert.Equal(t, models.LessonStatusScheduled, stored.Status)
		})
	}
}

func TestTransitionMissingLesson(t *testing.T) {
	f := newLessonFixture(t)
	_, _, err := f.svc.Start(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestTransitionDetectorOutageStillWrites(t *testing.T) {
	f := newLessonFixture(t, lessonWithStatus("l1", models.LessonStatusScheduled))
	f.store.setErr = errors.New("redis down")

	lesson, applied, err := f.svc.Start(context.Background(), "l1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.LessonStatusInProgress, lesson.Status)
	assert.Equal(t, 1, f.repo.updates)
	assert.Empty(t, f.queue.Types())
}

func TestTransitionEnqueueFailureDoesNotFailWrite(t *testing.T) {
	f := newLessonFixture(t, lessonWithStatus("l1", models.LessonStatusScheduled))
	f.queue.err = errors.New("queue stopped")

	_, applied, err := f.svc.Complete(context.Background(), "l1")
	require.NoError(t, err)
	assert.True(t, applied)
	stored, _ := f.repo.FindByID(context.Background(), "l1")
	assert.Equal(t, models.LessonStatusCompleted, stored.Status)
}

func TestTransitionUpdateFailure(t *testing.T) {
	f := newLessonFixture(t, lessonWithStatus("l1", models.LessonStatusScheduled))
	f.repo.updateErr = errors.New("deadlock")

	_, _, err := f.svc.Start(context.Background(), "l1")
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Empty(t, f.queue.Types())
}

func TestListRoleFilterNeedsCaller(t *testing.T) {
	f := newLessonFixture(t, lessonWithStatus("l1", models.LessonStatusScheduled))

	_, _, err := f.svc.List(context.Background(), nil, dto.LessonListQuery{Role: "teacher"})
	require.NoError(t, err)
	assert.Empty(t, f.repo.lastQuery.TeacherID)

	_, _, err = f.svc.List(context.Background(), teacherCaller(), dto.LessonListQuery{Role: "teacher"})
	require.NoError(t, err)
	assert.Equal(t, "t1", f.repo.lastQuery.TeacherID)
}

func TestListFilters(t *testing.T) {
	f := newLessonFixture(t, lessonWithStatus("l1", models.LessonStatusScheduled), lessonWithStatus("l2", models.LessonStatusDraft))

	lessons, page, err := f.svc.List(context.Background(), nil, dto.LessonListQuery{Status: "scheduled", Upcoming: "true", Limit: 500})
	require.NoError(t, err)
	assert.Len(t, lessons, 1)
	assert.Equal(t, 20, page.PageSize)
	require.NotNil(t, f.repo.lastQuery.StartsAfter)
	assert.Equal(t, f.clock.Now(), *f.repo.lastQuery.StartsAfter)
}

func TestListInvalidFilter(t *testing.T) {
	f := newLessonFixture(t)

	_, _, err := f.svc.List(context.Background(), nil, dto.LessonListQuery{Status: "archived", Upcoming: "maybe"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Details, "status")
	assert.Contains(t, appErr.Details, "upcoming")
}

func TestExportCSV(t *testing.T) {
	f := newLessonFixture(t, lessonWithStatus("l1", models.LessonStatusScheduled))

	res, err := f.svc.Export(context.Background(), nil, dto.LessonListQuery{}, ExportFormatCSV)
	require.NoError(t, err)
	assert.Contains(t, string(res.Body), "Physics")
}
