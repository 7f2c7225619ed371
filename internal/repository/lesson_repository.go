package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lessons-api/internal/models"
)

const lessonColumns = "id, title, description, teacher_id, student_id, start_time, end_time, status, created_at, updated_at"

// LessonRepository persists lessons in PostgreSQL.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs a lesson repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// List returns lessons matching the filter ordered by start_time descending, with the total count.
func (r *LessonRepository) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error) {
	baseQuery := `FROM lessons WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(*filter.Status))
	}
	if filter.StartsAfter != nil {
		conditions = append(conditions, fmt.Sprintf("start_time > $%d", len(args)+1))
		args = append(args, *filter.StartsAfter)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY start_time DESC, id LIMIT %d OFFSET %d", lessonColumns, baseQuery, pageSize, offset)

	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list lessons: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count lessons: %w", err)
	}

	return lessons, total, nil
}

// FindByID returns a lesson or sql.ErrNoRows.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons WHERE id = $1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		err = notFoundOnMalformedID(err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find lesson by id: %w", err)
	}
	return &lesson, nil
}

// FindStatus reads the currently persisted status of a lesson.
func (r *LessonRepository) FindStatus(ctx context.Context, id string) (models.LessonStatus, error) {
	const query = `SELECT status FROM lessons WHERE id = $1`
	var status string
	if err := r.db.GetContext(ctx, &status, query, id); err != nil {
		err = notFoundOnMalformedID(err)
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("find lesson status: %w", err)
	}
	return models.LessonStatus(status), nil
}

// Create inserts a lesson, assigning its identifier and timestamps.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if lesson.CreatedAt.IsZero() {
		lesson.CreatedAt = now
	}
	lesson.Touch(now)

	const query = `INSERT INTO lessons (id, title, description, teacher_id, student_id, start_time, end_time, status, created_at, updated_at) VALUES (:id, :title, :description, :teacher_id, :student_id, :start_time, :end_time, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// UpdateStatus persists only status and updated_at.
func (r *LessonRepository) UpdateStatus(ctx context.Context, lesson *models.Lesson) error {
	const query = `UPDATE lessons SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, lesson.ID, string(lesson.Status), lesson.UpdatedAt)
	if err != nil {
		if err = notFoundOnMalformedID(err); errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("update lesson status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update lesson status: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Ping checks database connectivity for readiness probes.
func (r *LessonRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
