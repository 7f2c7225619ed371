package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// LessonStatus is the lifecycle state of a lesson.
type LessonStatus string

const (
	LessonStatusDraft      LessonStatus = "draft"
	LessonStatusScheduled  LessonStatus = "scheduled"
	LessonStatusInProgress LessonStatus = "in_progress"
	LessonStatusCompleted  LessonStatus = "completed"
	LessonStatusCancelled  LessonStatus = "cancelled"
)

// TitleMaxLength mirrors the lessons.title column size.
const TitleMaxLength = 200

// allowedSources lists, per target status, the statuses a lesson may leave to reach it.
// draft -> scheduled is an administrative action and has no entry here.
var allowedSources = map[LessonStatus][]LessonStatus{
	LessonStatusInProgress: {LessonStatusScheduled},
	LessonStatusCompleted:  {LessonStatusScheduled, LessonStatusInProgress},
	LessonStatusCancelled:  {LessonStatusDraft, LessonStatusScheduled},
}

// Valid reports whether s is a known status.
func (s LessonStatus) Valid() bool {
	switch s {
	case LessonStatusDraft, LessonStatusScheduled, LessonStatusInProgress, LessonStatusCompleted, LessonStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s LessonStatus) IsTerminal() bool {
	return s == LessonStatusCompleted || s == LessonStatusCancelled
}

// ParseLessonStatus normalises user input into a LessonStatus.
func ParseLessonStatus(raw string) (LessonStatus, error) {
	s := LessonStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown lesson status %q", raw)
	}
	return s, nil
}

// Lesson is a single teaching session between a teacher and a student.
type Lesson struct {
	ID          string       `db:"id" json:"id"`
	Title       string       `db:"title" json:"title"`
	Description string       `db:"description" json:"description"`
	TeacherID   string       `db:"teacher_id" json:"teacher"`
	StudentID   string       `db:"student_id" json:"student"`
	StartTime   time.Time    `db:"start_time" json:"start_time"`
	EndTime     time.Time    `db:"end_time" json:"end_time"`
	Status      LessonStatus `db:"status" json:"status"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// NewLesson builds a draft lesson. The result still has to pass Validate before it is stored.
func NewLesson(title, description, teacherID, studentID string, start, end time.Time) *Lesson {
	return &Lesson{
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		TeacherID:   teacherID,
		StudentID:   studentID,
		StartTime:   start.UTC(),
		EndTime:     end.UTC(),
		Status:      LessonStatusDraft,
	}
}

// Validate checks every persisted invariant. It is run before each write.
func (l *Lesson) Validate() error {
	fields := make(map[string]string)

	if strings.TrimSpace(l.Title) == "" {
		fields["title"] = "title is required"
	} else if len([]rune(l.Title)) > TitleMaxLength {
		fields["title"] = fmt.Sprintf("title must be at most %d characters", TitleMaxLength)
	}
	if l.TeacherID == "" {
		fields["teacher"] = "teacher is required"
	}
	if l.StudentID == "" {
		fields["student"] = "student is required"
	}
	if l.TeacherID != "" && l.TeacherID == l.StudentID {
		msg := "teacher and student cannot be the same user"
		fields["teacher"] = msg
		fields["student"] = msg
	}
	if l.StartTime.IsZero() {
		fields["start_time"] = "start_time is required"
	}
	if l.EndTime.IsZero() {
		fields["end_time"] = "end_time is required"
	} else if !l.StartTime.IsZero() && !l.EndTime.After(l.StartTime) {
		fields["end_time"] = "end_time must be after start_time"
	}
	if !l.Status.Valid() {
		fields["status"] = fmt.Sprintf("unknown status %q", l.Status)
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// CanTransition reports whether the lesson may move to target from its current status.
func (l *Lesson) CanTransition(target LessonStatus) bool {
	for _, src := range allowedSources[target] {
		if l.Status == src {
			return true
		}
	}
	return false
}

func (l *Lesson) transition(target LessonStatus, now time.Time) bool {
	if !l.CanTransition(target) {
		return false
	}
	l.Status = target
	l.Touch(now)
	return true
}

// Start moves a scheduled lesson in progress, stamping updated_at with now.
// It returns false and leaves the lesson untouched from any other status.
func (l *Lesson) Start(now time.Time) bool {
	return l.transition(LessonStatusInProgress, now)
}

// Complete finishes a scheduled or in-progress lesson.
func (l *Lesson) Complete(now time.Time) bool {
	return l.transition(LessonStatusCompleted, now)
}

// Cancel cancels a draft or scheduled lesson.
func (l *Lesson) Cancel(now time.Time) bool {
	return l.transition(LessonStatusCancelled, now)
}

// Touch refreshes UpdatedAt without ever moving it backwards.
func (l *Lesson) Touch(now time.Time) {
	now = now.UTC()
	if now.Before(l.UpdatedAt) {
		return
	}
	l.UpdatedAt = now
}

// IsActive reports whether the lesson is in progress and now falls within its time window.
func (l *Lesson) IsActive(now time.Time) bool {
	if l.Status != LessonStatusInProgress {
		return false
	}
	return !now.Before(l.StartTime) && !now.After(l.EndTime)
}

// ValidationError carries per-field invariant violations.
type ValidationError struct {
	Fields map[string]string
}

// Error implements the error interface with a stable field order.
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid lesson: " + strings.Join(parts, "; ")
}

// LessonFilter captures listing criteria resolved by the service layer.
type LessonFilter struct {
	Status      *LessonStatus
	StartsAfter *time.Time
	TeacherID   string
	StudentID   string
	Page        int
	PageSize    int
}
