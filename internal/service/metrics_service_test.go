package service

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/lessons-api/pkg/jobs"
)

func TestMetricsServiceCountsJobs(t *testing.T) {
	m := NewMetricsService()
	job := jobs.Job{Type: "lesson_completed"}

	m.JobSucceeded(job, time.Millisecond)
	m.JobRetried(job, errors.New("boom"))
	m.JobRetried(job, errors.New("boom"))
	m.JobAbandoned(job, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("lesson_completed", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("lesson_completed", "retried")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("lesson_completed", "abandoned")))
}

func TestMetricsServiceDetectorAndEnqueue(t *testing.T) {
	m := NewMetricsService()
	m.RecordChangeRecord(true)
	m.RecordChangeRecord(false)
	m.RecordChangeRecord(false)
	m.RecordEnqueue("lesson_created", nil)
	m.RecordEnqueue("lesson_created", errors.New("full"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.detectorLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.detectorLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.enqueued.WithLabelValues("lesson_created", "failed")))
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest("GET", "/", 200, time.Millisecond)
	m.RecordChangeRecord(true)
	m.JobAbandoned(jobs.Job{}, nil)
	assert.NotNil(t, m.Handler())
}
