package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/lessons-api/pkg/jobs"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface,
// the change detector and the notification queue.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	detectorLookups *prometheus.CounterVec
	enqueued        *prometheus.CounterVec
	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	detectorLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_change_records_total",
		Help: "Change record lookups after a lesson write, by result",
	}, []string{"result"})

	enqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_enqueued_total",
		Help: "Notification jobs handed to the queue, by type and outcome",
	}, []string{"type", "outcome"})

	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_jobs_total",
		Help: "Notification job executions, by type and result",
	}, []string{"type", "result"})

	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notification_job_duration_seconds",
		Help:    "Duration of successful notification jobs",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, detectorLookups, enqueued, jobsTotal, jobDuration, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		detectorLookups: detectorLookups,
		enqueued:        enqueued,
		jobsTotal:       jobsTotal,
		jobDuration:     jobDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordChangeRecord counts a change detector hit or miss.
func (m *MetricsService) RecordChangeRecord(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.detectorLookups.WithLabelValues(result).Inc()
}

// RecordEnqueue counts a dispatch attempt for a notification type.
func (m *MetricsService) RecordEnqueue(notificationType string, err error) {
	if m == nil {
		return
	}
	outcome := "queued"
	if err != nil {
		outcome = "failed"
	}
	m.enqueued.WithLabelValues(notificationType, outcome).Inc()
}

// JobSucceeded implements jobs.Observer.
func (m *MetricsService) JobSucceeded(job jobs.Job, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(job.Type, "success").Inc()
	m.jobDuration.WithLabelValues(job.Type).Observe(duration.Seconds())
}

// JobRetried implements jobs.Observer.
func (m *MetricsService) JobRetried(job jobs.Job, _ error) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(job.Type, "retried").Inc()
}

// JobAbandoned implements jobs.Observer.
func (m *MetricsService) JobAbandoned(job jobs.Job, _ error) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(job.Type, "abandoned").Inc()
}

var _ jobs.Observer = (*MetricsService)(nil)
