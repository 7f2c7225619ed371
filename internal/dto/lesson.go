package dto

import (
	"time"

	"github.com/noah-isme/lessons-api/internal/models"
)

// CreateLessonRequest captures the POST /lessons payload. The teacher is the caller.
type CreateLessonRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=5000"`
	Student     string     `json:"student" validate:"required"`
	StartTime   *time.Time `json:"start_time" validate:"required"`
	EndTime     *time.Time `json:"end_time" validate:"required"`
}

// LessonListQuery holds the GET /lessons query string.
type LessonListQuery struct {
	Status   string `form:"status"`
	Upcoming string `form:"upcoming"`
	Role     string `form:"role"`
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
}

// LessonExportQuery adds the output format to the list filters.
type LessonExportQuery struct {
	LessonListQuery
	Format string `form:"format"`
}

// LessonTransitionResponse is returned by start, complete and cancel.
type LessonTransitionResponse struct {
	Status models.LessonStatus `json:"status"`
	Lesson *models.Lesson      `json:"lesson"`
}
