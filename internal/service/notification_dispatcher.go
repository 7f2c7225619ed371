package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/lessons-api/internal/models"
	"github.com/noah-isme/lessons-api/pkg/jobs"
)

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// SaveEvent describes one completed lesson write.
type SaveEvent struct {
	LessonID  string
	Created   bool
	OldStatus models.LessonStatus
	HasOld    bool
	NewStatus models.LessonStatus
}

// NotificationDispatcher turns lesson writes into at most one notification job.
type NotificationDispatcher struct {
	queue   jobEnqueuer
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationDispatcher constructs a dispatcher.
func NewNotificationDispatcher(queue jobEnqueuer, metrics *MetricsService, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationDispatcher{queue: queue, metrics: metrics, logger: logger}
}

// Resolve returns the notification a write should produce, if any.
func Resolve(evt SaveEvent) (models.NotificationType, bool) {
	if evt.Created {
		return models.NotificationLessonCreated, true
	}
	if !evt.HasOld || evt.OldStatus == evt.NewStatus {
		return "", false
	}
	return models.NotificationForStatus(evt.NewStatus)
}

// Dispatch enqueues the job for evt. Failures are logged and never returned
// because the write that produced evt has already been committed.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, evt SaveEvent) {
	notification, ok := Resolve(evt)
	if !ok {
		if !evt.Created && !evt.HasOld {
			d.logger.Debug("no prior status for lesson write, skipping notification", zap.String("lesson_id", evt.LessonID))
		}
		return
	}

	err := d.queue.Enqueue(jobs.Job{
		Type:    string(notification),
		Payload: models.NotificationPayload{LessonID: evt.LessonID},
	})
	d.metrics.RecordEnqueue(string(notification), err)
	if err != nil {
		d.logger.Error("failed to enqueue notification",
			zap.String("type", string(notification)),
			zap.String("lesson_id", evt.LessonID),
			zap.Error(err),
		)
		return
	}
	d.logger.Debug("notification enqueued", zap.String("type", string(notification)), zap.String("lesson_id", evt.LessonID))
}
