package models

// NotificationType names a lesson notification job.
type NotificationType string

const (
	NotificationLessonCreated   NotificationType = "lesson_created"
	NotificationLessonStarted   NotificationType = "lesson_started"
	NotificationLessonCompleted NotificationType = "lesson_completed"
	NotificationLessonCancelled NotificationType = "lesson_cancelled"
)

// NotificationTypes lists every job type the worker handles.
var NotificationTypes = []NotificationType{
	NotificationLessonCreated,
	NotificationLessonStarted,
	NotificationLessonCompleted,
	NotificationLessonCancelled,
}

// NotificationForStatus maps the status a lesson moved into to its notification.
// Moves into draft or scheduled have none.
func NotificationForStatus(s LessonStatus) (NotificationType, bool) {
	switch s {
	case LessonStatusInProgress:
		return NotificationLessonStarted, true
	case LessonStatusCompleted:
		return NotificationLessonCompleted, true
	case LessonStatusCancelled:
		return NotificationLessonCancelled, true
	}
	return "", false
}

// NotificationPayload is the queue payload of every lesson notification job.
type NotificationPayload struct {
	LessonID string `json:"lesson_id"`
}

// NotificationResultStatus reports how a notification job ended.
type NotificationResultStatus string

const (
	NotificationResultSuccess NotificationResultStatus = "success"
	NotificationResultSkipped NotificationResultStatus = "skipped"
)

// ReasonLessonNotFound marks jobs whose lesson vanished before execution.
const ReasonLessonNotFound = "lesson_not_found"

// NotificationResult is the outcome of one notification job execution.
type NotificationResult struct {
	Status   NotificationResultStatus `json:"status"`
	Task     NotificationType         `json:"task"`
	LessonID string                   `json:"lesson_id"`
	Reason   string                   `json:"reason,omitempty"`
}
