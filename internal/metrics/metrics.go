// Package metrics exposes Prometheus instruments for HTTP traffic, background
// jobs and outgoing email.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry. A nil *Recorder records nothing, so
// callers never need to check whether metrics are enabled.
type Recorder struct {
	registry       *prometheus.Registry
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
	jobRuns        *prometheus.CounterVec
	jobLatency     *prometheus.HistogramVec
	emailsSent     *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	chatMessages   *prometheus.CounterVec
	sseSubscribers prometheus.Gauge
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grudge_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grudge_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grudge_job_runs_total",
			Help: "Background job runs by outcome.",
		}, []string{"job", "outcome"}),
		jobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grudge_job_duration_seconds",
			Help:    "Background job duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		emailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grudge_emails_total",
			Help: "Outgoing emails by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grudge_notifications_total",
			Help: "Notifications created by kind.",
		}, []string{"kind"}),
		chatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grudge_chat_messages_total",
			Help: "Chat messages posted by channel kind.",
		}, []string{"channel"}),
		sseSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "grudge_chat_stream_subscribers",
			Help: "Open chat event streams.",
		}),
	}
	reg.MustRegister(
		r.httpRequests, r.httpLatency,
		r.jobRuns, r.jobLatency,
		r.emailsSent, r.notifications,
		r.chatMessages, r.sseSubscribers,
	)
	return r
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest uses the route pattern, not the raw path, to bound label cardinality.
func (r *Recorder) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (r *Recorder) RecordJobRun(job string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	r.jobRuns.WithLabelValues(job, outcome(err)).Inc()
	r.jobLatency.WithLabelValues(job).Observe(duration.Seconds())
}

func (r *Recorder) RecordEmail(err error) {
	if r == nil {
		return
	}
	r.emailsSent.WithLabelValues(outcome(err)).Inc()
}

func (r *Recorder) RecordNotification(kind string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordChatMessage(channel string) {
	if r == nil {
		return
	}
	r.chatMessages.WithLabelValues(channel).Inc()
}

// StreamOpened returns a func that marks the stream closed.
func (r *Recorder) StreamOpened() func() {
	if r == nil {
		return func() {}
	}
	r.sseSubscribers.Inc()
	return r.sseSubscribers.Dec
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
