package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lessons-api/internal/models"
	appErrors "github.com/noah-isme/lessons-api/pkg/errors"
)

const (
	defaultChangeRecordTTL    = 10 * time.Second
	defaultChangeRecordPrefix = "lesson_old_status"
)

type changeRecordStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type lessonStatusReader interface {
	FindStatus(ctx context.Context, id string) (models.LessonStatus, error)
}

// ChangeDetectorConfig tunes change record keys and expiry.
type ChangeDetectorConfig struct {
	TTL       time.Duration
	KeyPrefix string
}

// ChangeDetector records the persisted status of a lesson right before a write
// so the caller can compare it with the status it is about to store.
type ChangeDetector struct {
	store   changeRecordStore
	lessons lessonStatusReader
	metrics *MetricsService
	logger  *zap.Logger
	ttl     time.Duration
	prefix  string
	now     func() time.Time
	seq     atomic.Uint64
}

// NewChangeDetector constructs a ChangeDetector.
func NewChangeDetector(store changeRecordStore, lessons lessonStatusReader, cfg ChangeDetectorConfig, metrics *MetricsService, logger *zap.Logger) *ChangeDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultChangeRecordTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultChangeRecordPrefix
	}
	return &ChangeDetector{
		store:   store,
		lessons: lessons,
		metrics: metrics,
		logger:  logger,
		ttl:     cfg.TTL,
		prefix:  cfg.KeyPrefix,
		now:     time.Now,
	}
}

// Capture stashes the stored status of lessonID and returns the record key.
// An empty key means there is no prior row.
func (d *ChangeDetector) Capture(ctx context.Context, lessonID string) (string, error) {
	if lessonID == "" {
		return "", nil
	}
	status, err := d.lessons.FindStatus(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read prior status: %w", err)
	}

	key := d.key(lessonID)
	if err := d.store.Set(ctx, key, string(status), d.ttl); err != nil {
		return "", fmt.Errorf("stash prior status: %w", err)
	}
	return key, nil
}

// Consume reads and deletes the record stored under key. ok is false when the
// record expired, was never written or the store failed.
func (d *ChangeDetector) Consume(ctx context.Context, key string) (models.LessonStatus, bool) {
	if key == "" {
		return "", false
	}
	raw, err := d.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			d.logger.Debug("change record missing", zap.String("key", key))
		} else {
			d.logger.Warn("change record lookup failed", zap.String("key", key), zap.Error(err))
		}
		d.metrics.RecordChangeRecord(false)
		return "", false
	}
	if err := d.store.Delete(ctx, key); err != nil {
		d.logger.Warn("change record cleanup failed", zap.String("key", key), zap.Error(err))
	}
	d.metrics.RecordChangeRecord(true)
	return models.LessonStatus(raw), true
}

// key appends a nanosecond timestamp and a process-wide counter so concurrent
// writes to the same lesson never share a record.
func (d *ChangeDetector) key(lessonID string) string {
	return fmt.Sprintf("%s:%s:%d-%d", d.prefix, lessonID, d.now().UnixNano(), d.seq.Add(1))
}
