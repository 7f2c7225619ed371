package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/lessons-api/internal/models"
	"github.com/noah-isme/lessons-api/pkg/jobs"
	"github.com/noah-isme/lessons-api/pkg/notify"
)

const notificationTimeLayout = "Mon, 02 Jan 2006 15:04 MST"

type notificationLessonReader interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
}

type notificationUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// NotificationWorker executes lesson notification jobs. It only reads, so
// running the same job twice delivers the message twice and changes nothing else.
type NotificationWorker struct {
	lessons  notificationLessonReader
	users    notificationUserReader
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewNotificationWorker constructs a worker.
func NewNotificationWorker(lessons notificationLessonReader, users notificationUserReader, notifier notify.Notifier, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{lessons: lessons, users: users, notifier: notifier, logger: logger}
}

// Register binds every notification type to the worker.
func (w *NotificationWorker) Register(router *jobs.Router) {
	for _, t := range models.NotificationTypes {
		router.Register(string(t), w.Handle)
	}
}

// Handle processes a queue job. A returned error schedules a retry.
func (w *NotificationWorker) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(models.NotificationPayload)
	if !ok {
		w.logger.Error("dropping notification job with unexpected payload",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.String("payload", fmt.Sprintf("%T", job.Payload)),
		)
		return nil
	}

	result, err := w.Process(ctx, models.NotificationType(job.Type), payload.LessonID)
	if err != nil {
		return err
	}
	w.logger.Info("notification job finished",
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.String("lesson_id", result.LessonID),
		zap.String("status", string(result.Status)),
		zap.String("reason", result.Reason),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}

// Process runs one notification. A lesson that no longer exists yields a
// skipped result and no error so the job is not retried.
func (w *NotificationWorker) Process(ctx context.Context, notificationType models.NotificationType, lessonID string) (*models.NotificationResult, error) {
	lesson, err := w.lessons.FindByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.NotificationResult{
				Status:   models.NotificationResultSkipped,
				Task:     notificationType,
				LessonID: lessonID,
				Reason:   models.ReasonLessonNotFound,
			}, nil
		}
		return nil, fmt.Errorf("load lesson %s: %w", lessonID, err)
	}

	msg, err := w.compose(ctx, notificationType, lesson)
	if err != nil {
		return nil, err
	}
	if err := w.notifier.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("deliver %s for lesson %s: %w", notificationType, lessonID, err)
	}

	return &models.NotificationResult{
		Status:   models.NotificationResultSuccess,
		Task:     notificationType,
		LessonID: lessonID,
	}, nil
}

func (w *NotificationWorker) compose(ctx context.Context, notificationType models.NotificationType, lesson *models.Lesson) (notify.Message, error) {
	window := fmt.Sprintf("%s - %s", lesson.StartTime.Format(notificationTimeLayout), lesson.EndTime.Format(notificationTimeLayout))

	var subject, body string
	switch notificationType {
	case models.NotificationLessonCreated:
		subject = "New lesson: " + lesson.Title
		body = fmt.Sprintf("A lesson %q has been created for %s.", lesson.Title, window)
	case models.NotificationLessonStarted:
		subject = "Lesson started: " + lesson.Title
		body = fmt.Sprintf("Your lesson %q has started. It runs %s.", lesson.Title, window)
	case models.NotificationLessonCompleted:
		subject = "Lesson completed: " + lesson.Title
		body = fmt.Sprintf("Your lesson %q has been completed.", lesson.Title)
	case models.NotificationLessonCancelled:
		subject = "Lesson cancelled: " + lesson.Title
		body = fmt.Sprintf("The lesson %q planned for %s has been cancelled.", lesson.Title, window)
	default:
		return notify.Message{}, fmt.Errorf("unknown notification type %q", notificationType)
	}

	student, err := w.recipient(ctx, lesson.StudentID)
	if err != nil {
		return notify.Message{}, err
	}
	teacher, err := w.recipient(ctx, lesson.TeacherID)
	if err != nil {
		return notify.Message{}, err
	}

	return notify.Message{
		Event:    string(notificationType),
		LessonID: lesson.ID,
		Subject:  subject,
		Body:     body,
		To:       []notify.Recipient{student},
		Cc:       []notify.Recipient{teacher},
	}, nil
}

// recipient resolves contact details. A user missing from the directory is
// still addressed by id so log-only channels keep working.
func (w *NotificationWorker) recipient(ctx context.Context, userID string) (notify.Recipient, error) {
	if w.users == nil {
		return notify.Recipient{UserID: userID}, nil
	}
	user, err := w.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notify.Recipient{UserID: userID}, nil
		}
		return notify.Recipient{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	return notify.Recipient{UserID: user.ID, Name: user.FullName, Email: user.Email}, nil
}
