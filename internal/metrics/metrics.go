package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Webhook metrics
	WebhookDurationSeconds *prometheus.HistogramVec
	WebhookRequestsTotal   *prometheus.CounterVec

	// Assistant metrics
	AssistantRunsTotal      *prometheus.CounterVec
	AssistantRunSeconds     prometheus.Histogram
	AssistantThreadsCreated prometheus.Counter

	// Coach (chat completion) metrics
	CoachRequestsTotal   *prometheus.CounterVec
	CoachDurationSeconds *prometheus.HistogramVec

	// Voice pipeline metrics
	VoiceJobsTotal       *prometheus.CounterVec
	VoiceDurationSeconds prometheus.Histogram

	// Dispatcher metrics
	DispatchJobsTotal      *prometheus.CounterVec
	DispatchQueueDepth     prometheus.Gauge
	DispatchJobSeconds     *prometheus.HistogramVec

	// Session store metrics
	SessionOpsTotal *prometheus.CounterVec

	// Question log metrics
	QuestionsLoggedTotal prometheus.Counter

	// Weekly report metrics
	ReportRunsTotal      *prometheus.CounterVec
	ReportDurationSecond prometheus.Histogram

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec
	RateLimiterActive  prometheus.Gauge

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// Webhook metrics
		WebhookDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tcmbot_webhook_duration_seconds",
				Help:    "Webhook event processing duration in seconds by event type",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15},
			},
			[]string{"event_type"}, // event_type: message, audio, postback, follow
		),

		WebhookRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tcmbot_webhook_requests_total",
				Help: "Total number of webhook events by event type and status",
			},
			[]string{"event_type", "status"}, // status: success, error, reply_error
		),

		// Assistant metrics
		AssistantRunsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tcmbot_assistant_runs_total",
				Help: "Total number of assistant runs by status",
			},
			[]string{"status"}, // status: success, timeout, error
		),

		AssistantRunSeconds: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tcmbot_assistant_run_seconds",
				Help:    "Assistant run round-trip duration in seconds",
				Buckets: []float64{1, 2, 5, 10, 15, 20, 25, 28, 30},
			},
		),

		AssistantThreadsCreated: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "tcmbot_assistant_threads_created_total",
				Help: "Total number of new assistant threads created",
			},
		),

		// Coach metrics
		CoachRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tcmbot_coach_requests_total",
				Help: "Total number of chat-completion requests by task, provider and status",
			},
			[]string{"task", "provider", "status"},
		),

		CoachDurationSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tcmbot_coach_duration_seconds",
				Help:    "Chat-completion request duration in seconds by task",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"task"}, // task: quiz_generate, quiz_judge, speech_eval, writing_revise, concept_label, ...
		),

		// Voice pipeline metrics
		VoiceJobsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tcmbot_voice_jobs_total",
				Help: "Total number of voice pipeline stages by stage and status",
			},
			[]string{"stage", "status"}, // stage: download, transcribe, evaluate, tts, upload
		),

		VoiceDurationSeconds: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tcmbot_voice_duration_seconds",
				Help:    "Full voice pipeline duration in seconds",
				Buckets: []float64{2, 5, 10, 20, 30, 60, 90},
			},
		),

		// Dispatcher metrics
		DispatchJobsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tcmbot_dispatch_jobs_total",
				Help: "Total number of background jobs by job name and status",
			},
			[]string{"job", "status"}, // status: success, error, panic, dropped
		),

		DispatchQueueDepth: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "tcmbot_dispatch_queue_depth",
				Help: "Number of jobs waiting in the dispatcher queue",
			},
		),

		DispatchJobSeconds: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tcmbot_dispatch_job_seconds",
				Help:    "Background job duration in seconds by job name",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"job"},
		),

		// Session store metrics
		SessionOpsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tcmbot_session_ops_total",
				Help: "Total number of session store operations by operation and status",
			},
			[]string{"op", "status"}, // op: get_mode, set_mode, quiz_state, ...
		),

		// Question log metrics
		QuestionsLoggedTotal: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "tcmbot_questions_logged_total",
				Help: "Total number of questions written to the durable log",
			},
		),

		// Weekly report metrics
		ReportRunsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tcmbot_report_runs_total",
				Help: "Total number of weekly report runs by status",
			},
			[]string{"status"}, // status: success, empty, error
		),

		ReportDurationSecond: promauto.With(registry).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tcmbot_report_duration_seconds",
				Help:    "Weekly report job duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),

		// Rate limiter metrics
		RateLimiterDropped: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tcmbot_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter_type"}, // limiter_type: user, global
		),

		RateLimiterActive: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "tcmbot_rate_limiter_active_users",
				Help: "Number of user buckets currently tracked by the per-user limiter",
			},
		),

		// HTTP metrics
		HTTPErrorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tcmbot_http_errors_total",
				Help: "Total HTTP errors by type and route",
			},
			[]string{"error_type", "route"}, // error_type: unauthorized, not_found, internal
		),
	}

	return m
}

// RecordWebhook records a webhook event
func (m *Metrics) RecordWebhook(eventType, status string, duration float64) {
	m.WebhookRequestsTotal.WithLabelValues(eventType, status).Inc()
	m.WebhookDurationSeconds.WithLabelValues(eventType).Observe(duration)
}

// RecordAssistantRun records an assistant round-trip
func (m *Metrics) RecordAssistantRun(status string, duration float64) {
	m.AssistantRunsTotal.WithLabelValues(status).Inc()
	m.AssistantRunSeconds.Observe(duration)
}

// RecordThreadCreated records creation of a new assistant thread
func (m *Metrics) RecordThreadCreated() {
	m.AssistantThreadsCreated.Inc()
}

// RecordCoachRequest records a chat-completion request
func (m *Metrics) RecordCoachRequest(task, provider, status string, duration float64) {
	m.CoachRequestsTotal.WithLabelValues(task, provider, status).Inc()
	m.CoachDurationSeconds.WithLabelValues(task).Observe(duration)
}

// RecordVoiceStage records one stage of the voice pipeline
func (m *Metrics) RecordVoiceStage(stage, status string) {
	m.VoiceJobsTotal.WithLabelValues(stage, status).Inc()
}

// RecordVoiceDuration records the full voice pipeline duration
func (m *Metrics) RecordVoiceDuration(duration float64) {
	m.VoiceDurationSeconds.Observe(duration)
}

// RecordDispatchJob records a completed background job
func (m *Metrics) RecordDispatchJob(job, status string, duration float64) {
	m.DispatchJobsTotal.WithLabelValues(job, status).Inc()
	m.DispatchJobSeconds.WithLabelValues(job).Observe(duration)
}

// SetDispatchQueueDepth updates the pending job gauge
func (m *Metrics) SetDispatchQueueDepth(depth int) {
	m.DispatchQueueDepth.Set(float64(depth))
}

// RecordSessionOp records a session store operation
func (m *Metrics) RecordSessionOp(op, status string) {
	m.SessionOpsTotal.WithLabelValues(op, status).Inc()
}

// RecordQuestionLogged records a question written to the durable log
func (m *Metrics) RecordQuestionLogged() {
	m.QuestionsLoggedTotal.Inc()
}

// RecordReportRun records a weekly report run
func (m *Metrics) RecordReportRun(status string, duration float64) {
	m.ReportRunsTotal.WithLabelValues(status).Inc()
	m.ReportDurationSecond.Observe(duration)
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}

// SetRateLimiterActive updates the active user bucket gauge
func (m *Metrics) SetRateLimiterActive(count int) {
	m.RateLimiterActive.Set(float64(count))
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, route string) {
	m.HTTPErrorsTotal.WithLabelValues(errorType, route).Inc()
}
