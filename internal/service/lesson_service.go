package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lessons-api/internal/dto"
	"github.com/noah-isme/lessons-api/internal/models"
	appErrors "github.com/noah-isme/lessons-api/pkg/errors"
)

const (
	defaultLessonPageSize = 20
	maxLessonPageSize     = 100
	maxExportRows         = 5000
)

type lessonStore interface {
	List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error)
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	Create(ctx context.Context, lesson *models.Lesson) error
	UpdateStatus(ctx context.Context, lesson *models.Lesson) error
}

type lessonUserDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type lessonChangeDetector interface {
	Capture(ctx context.Context, lessonID string) (string, error)
	Consume(ctx context.Context, key string) (models.LessonStatus, bool)
}

type lessonDispatcher interface {
	Dispatch(ctx context.Context, evt SaveEvent)
}

// LessonTransition names a guarded status change exposed by the API.
type LessonTransition string

const (
	TransitionStart    LessonTransition = "start"
	TransitionComplete LessonTransition = "complete"
	TransitionCancel   LessonTransition = "cancel"
)

var createLessonFields = map[string]string{
	"Title":       "title",
	"Description": "description",
	"Student":     "student",
	"StartTime":   "start_time",
	"EndTime":     "end_time",
}

// LessonService implements the lesson use cases. Every successful write runs
// through the change detector and the notification dispatcher.
type LessonService struct {
	repo       lessonStore
	users      lessonUserDirectory
	detector   lessonChangeDetector
	dispatcher lessonDispatcher
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewLessonService constructs a LessonService.
func NewLessonService(repo lessonStore, users lessonUserDirectory, detector lessonChangeDetector, dispatcher lessonDispatcher, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &LessonService{
		repo:       repo,
		users:      users,
		detector:   detector,
		dispatcher: dispatcher,
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
}

// List returns lessons matching the query. The role filter only applies when a caller is known.
func (s *LessonService) List(ctx context.Context, caller *models.JWTClaims, query dto.LessonListQuery) ([]models.Lesson, *models.Pagination, error) {
	filter, err := s.buildFilter(caller, query)
	if err != nil {
		return nil, nil, err
	}

	lessons, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	if lessons == nil {
		lessons = []models.Lesson{}
	}

	return lessons, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a single lesson.
func (s *LessonService) Get(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	return lesson, nil
}

// Create stores a new draft lesson taught by the caller and enqueues its creation notice.
func (s *LessonService) Create(ctx context.Context, caller *models.JWTClaims, req dto.CreateLessonRequest) (*models.Lesson, error) {
	if caller == nil || caller.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, s.requestValidationError(err)
	}

	if _, err := s.users.FindByID(ctx, req.Student); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid lesson"),
				map[string]string{"student": "student does not exist"})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	lesson := models.NewLesson(req.Title, req.Description, caller.UserID, req.Student, *req.StartTime, *req.EndTime)
	if err := validateLesson(lesson); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}

	s.dispatcher.Dispatch(ctx, SaveEvent{LessonID: lesson.ID, Created: true, NewStatus: lesson.Status})
	s.logger.Info("lesson created", zap.String("lesson_id", lesson.ID), zap.String("teacher_id", lesson.TeacherID))
	return lesson, nil
}

// Start moves a scheduled lesson in progress.
func (s *LessonService) Start(ctx context.Context, id string) (*models.Lesson, bool, error) {
	return s.Transition(ctx, id, TransitionStart)
}

// Complete completes a scheduled or in-progress lesson.
func (s *LessonService) Complete(ctx context.Context, id string) (*models.Lesson, bool, error) {
	return s.Transition(ctx, id, TransitionComplete)
}

// Cancel cancels a draft or scheduled lesson.
func (s *LessonService) Cancel(ctx context.Context, id string) (*models.Lesson, bool, error) {
	return s.Transition(ctx, id, TransitionCancel)
}

// Transition applies a guarded status change. applied is false, with a nil
// error and the unchanged lesson, when the guard rejects the current status.
func (s *LessonService) Transition(ctx context.Context, id string, transition LessonTransition) (*models.Lesson, bool, error) {
	lesson, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	var applied bool
	switch transition {
	case TransitionStart:
		applied = lesson.Start(now)
	case TransitionComplete:
		applied = lesson.Complete(now)
	case TransitionCancel:
		applied = lesson.Cancel(now)
	default:
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "unknown transition "+string(transition))
	}
	if !applied {
		return lesson, false, nil
	}

	if err := validateLesson(lesson); err != nil {
		return nil, false, err
	}

	key, err := s.detector.Capture(ctx, lesson.ID)
	if err != nil {
		s.logger.Warn("change record not captured", zap.String("lesson_id", lesson.ID), zap.Error(err))
		key = ""
	}

	if err := s.repo.UpdateStatus(ctx, lesson); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}

	old, ok := s.detector.Consume(ctx, key)
	s.dispatcher.Dispatch(ctx, SaveEvent{LessonID: lesson.ID, OldStatus: old, HasOld: ok, NewStatus: lesson.Status})

	s.logger.Info("lesson status changed",
		zap.String("lesson_id", lesson.ID),
		zap.String("transition", string(transition)),
		zap.String("status", string(lesson.Status)),
	)
	return lesson, true, nil
}

// Export renders the lessons matching the query as CSV or PDF.
func (s *LessonService) Export(ctx context.Context, caller *models.JWTClaims, query dto.LessonListQuery, format ExportFormat) (*ExportResult, error) {
	filter, err := s.buildFilter(caller, query)
	if err != nil {
		return nil, err
	}
	filter.PageSize = maxLessonPageSize

	var lessons []models.Lesson
	for filter.Page = 1; len(lessons) < maxExportRows; filter.Page++ {
		page, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
		}
		lessons = append(lessons, page...)
		if len(page) < filter.PageSize || len(lessons) >= total {
			break
		}
	}
	if len(lessons) > maxExportRows {
		lessons = lessons[:maxExportRows]
	}

	result, err := renderLessons(lessons, format, s.now())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return result, nil
}

func (s *LessonService) buildFilter(caller *models.JWTClaims, query dto.LessonListQuery) (models.LessonFilter, error) {
	filter := models.LessonFilter{Page: query.Page, PageSize: query.Limit}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > maxLessonPageSize {
		filter.PageSize = defaultLessonPageSize
	}

	details := make(map[string]string)
	if query.Status != "" {
		status, err := models.ParseLessonStatus(query.Status)
		if err != nil {
			details["status"] = err.Error()
		} else {
			filter.Status = &status
		}
	}
	if query.Upcoming != "" {
		upcoming, err := strconv.ParseBool(query.Upcoming)
		if err != nil {
			details["upcoming"] = "upcoming must be a boolean"
		} else if upcoming {
			now := s.now().UTC()
			filter.StartsAfter = &now
		}
	}
	if query.Role != "" {
		switch strings.ToLower(strings.TrimSpace(query.Role)) {
		case "teacher":
			if caller != nil {
				filter.TeacherID = caller.UserID
			}
		case "student":
			if caller != nil {
				filter.StudentID = caller.UserID
			}
		default:
			details["role"] = "role must be teacher or student"
		}
	}

	if len(details) > 0 {
		return filter, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid lesson filter"), details)
	}
	return filter, nil
}

func (s *LessonService) requestValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field, ok := createLessonFields[fe.Field()]
		if !ok {
			field = strings.ToLower(fe.Field())
		}
		switch fe.Tag() {
		case "required":
			details[field] = field + " is required"
		case "max":
			details[field] = field + " must be at most " + fe.Param() + " characters"
		default:
			details[field] = field + " is invalid"
		}
	}
	wrapped := appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	return appErrors.WithDetails(wrapped, details)
}

func validateLesson(lesson *models.Lesson) error {
	err := lesson.Validate()
	if err == nil {
		return nil
	}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid lesson"), verr.Fields)
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson")
}
