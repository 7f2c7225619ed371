package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lessons-api/internal/dto"
	"github.com/noah-isme/lessons-api/internal/models"
	"github.com/noah-isme/lessons-api/internal/service"
	appErrors "github.com/noah-isme/lessons-api/pkg/errors"
	"github.com/noah-isme/lessons-api/pkg/response"
)

type lessonService interface {
	List(ctx context.Context, caller *models.JWTClaims, query dto.LessonListQuery) ([]models.Lesson, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Lesson, error)
	Create(ctx context.Context, caller *models.JWTClaims, req dto.CreateLessonRequest) (*models.Lesson, error)
	Transition(ctx context.Context, id string, transition service.LessonTransition) (*models.Lesson, bool, error)
	Export(ctx context.Context, caller *models.JWTClaims, query dto.LessonListQuery, format service.ExportFormat) (*service.ExportResult, error)
}

// LessonHandler exposes lesson endpoints.
type LessonHandler struct {
	service lessonService
}

// NewLessonHandler constructs a lesson handler.
func NewLessonHandler(svc lessonService) *LessonHandler {
	return &LessonHandler{service: svc}
}

// List godoc
// @Summary List lessons
// @Description List lessons ordered by start time, newest first
// @Tags Lessons
// @Produce json
// @Param status query string false "Lesson status"
// @Param upcoming query bool false "Only lessons starting in the future"
// @Param role query string false "teacher or student, applied to the authenticated caller"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /lessons/ [get]
func (h *LessonHandler) List(c *gin.Context) {
	var query dto.LessonListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}

	lessons, pagination, err := h.service.List(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, pagination)
}

// Get godoc
// @Summary Get lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id}/ [get]
func (h *LessonHandler) Get(c *gin.Context) {
	lesson, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, lesson)
}

// Create godoc
// @Summary Create lesson
// @Description Create a draft lesson taught by the authenticated caller
// @Tags Lessons
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateLessonRequest true "Lesson payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /lessons/ [post]
func (h *LessonHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	lesson, err := h.service.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// Start godoc
// @Summary Start lesson
// @Description Move a scheduled lesson in progress
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id}/start/ [post]
func (h *LessonHandler) Start(c *gin.Context) {
	h.transition(c, service.TransitionStart)
}

// Complete godoc
// @Summary Complete lesson
// @Description Complete a scheduled or in-progress lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id}/complete/ [post]
func (h *LessonHandler) Complete(c *gin.Context) {
	h.transition(c, service.TransitionComplete)
}

// Cancel godoc
// @Summary Cancel lesson
// @Description Cancel a draft or scheduled lesson
// @Tags Lessons
// @Produce json
// @Param id path string true "Lesson ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /lessons/{id}/cancel/ [post]
func (h *LessonHandler) Cancel(c *gin.Context) {
	h.transition(c, service.TransitionCancel)
}

func (h *LessonHandler) transition(c *gin.Context, transition service.LessonTransition) {
	lesson, applied, err := h.service.Transition(c.Request.Context(), c.Param("id"), transition)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !applied {
		msg := fmt.Sprintf("cannot %s a lesson that is %s", transition, lesson.Status)
		response.Error(c, appErrors.Clone(appErrors.ErrTransitionNotAllowed, msg))
		return
	}
	response.OK(c, dto.LessonTransitionResponse{Status: lesson.Status, Lesson: lesson})
}

// Export godoc
// @Summary Export lessons
// @Description Download the filtered lessons as CSV or PDF
// @Tags Lessons
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param status query string false "Lesson status"
// @Param upcoming query bool false "Only lessons starting in the future"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /lessons/export/ [get]
func (h *LessonHandler) Export(c *gin.Context) {
	var query dto.LessonExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	format, err := service.ParseExportFormat(query.Format)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.service.Export(c.Request.Context(), claimsFromContext(c), query.LessonListQuery, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Body)
}
