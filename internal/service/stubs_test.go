package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/noah-isme/lessons-api/internal/models"
	appErrors "github.com/noah-isme/lessons-api/pkg/errors"
	"github.com/noah-isme/lessons-api/pkg/jobs"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// memoryStore is an in-memory change record store with TTL driven by fakeClock.
type memoryStore struct {
	mu     sync.Mutex
	clock  *fakeClock
	items  map[string]memoryEntry
	setErr error
	getErr error
}

func newMemoryStore(clock *fakeClock) *memoryStore {
	return &memoryStore{clock: clock, items: make(map[string]memoryEntry)}
}

func (s *memoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = memoryEntry{value: value, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[key]
	if !ok || !s.clock.Now().Before(entry.expiresAt) {
		delete(s.items, key)
		return "", appErrors.ErrCacheMiss
	}
	return entry.value, nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *memoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// stubLessonRepo keeps lessons in a map and returns sql.ErrNoRows when missing.
type stubLessonRepo struct {
	mu        sync.Mutex
	lessons   map[string]*models.Lesson
	listErr   error
	updateErr error
	findErr   error
	updates   int
	lastQuery models.LessonFilter
}

func newStubLessonRepo(lessons ...*models.Lesson) *stubLessonRepo {
	r := &stubLessonRepo{lessons: make(map[string]*models.Lesson)}
	for _, l := range lessons {
		r.lessons[l.ID] = l
	}
	return r
}

func (r *stubLessonRepo) List(ctx context.Context, filter models.LessonFilter) ([]models.Lesson, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastQuery = filter
	if r.listErr != nil {
		return nil, 0, r.listErr
	}
	var out []models.Lesson
	for _, l := range r.lessons {
		if filter.Status != nil && l.Status != *filter.Status {
			continue
		}
		if filter.TeacherID != "" && l.TeacherID != filter.TeacherID {
			continue
		}
		if filter.StudentID != "" && l.StudentID != filter.StudentID {
			continue
		}
		out = append(out, *l)
	}
	return out, len(out), nil
}

func (r *stubLessonRepo) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	l, ok := r.lessons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *l
	return &cp, nil
}

func (r *stubLessonRepo) FindStatus(ctx context.Context, id string) (models.LessonStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lessons[id]
	if !ok {
		return "", sql.ErrNoRows
	}
	return l.Status, nil
}

func (r *stubLessonRepo) Create(ctx context.Context, lesson *models.Lesson) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lesson.ID == "" {
		lesson.ID = "lesson-" + string(rune('a'+len(r.lessons)))
	}
	cp := *lesson
	r.lessons[lesson.ID] = &cp
	return nil
}

func (r *stubLessonRepo) UpdateStatus(ctx context.Context, lesson *models.Lesson) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.lessons[lesson.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.Status = lesson.Status
	stored.UpdatedAt = lesson.UpdatedAt
	r.updates++
	return nil
}

func (r *stubLessonRepo) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lessons, id)
}

type stubUserRepo struct {
	users map[string]*models.User
	err   error
}

func (r *stubUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

// recordingQueue captures enqueued jobs instead of running them.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Types() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.Type)
	}
	return out
}
