// Package config provides centralized timeout constants for the application.
//
// These values are tuned around two external constraints:
//   - LINE Messaging API timing (webhook acknowledgment, reply token lifetime,
//     loading animation maximum of 60 seconds)
//   - OpenAI latency (assistant runs can take tens of seconds; Whisper and TTS
//     round-trips depend on audio length)
//
// The webhook handler acknowledges immediately and all AI work happens on
// background goroutines, so these budgets bound background work rather than
// the HTTP response.
package config

import "time"

// Webhook timeouts
const (
	// WebhookProcessing is the timeout for processing a single webhook event.
	// This covers session reads, routing, and the immediate reply. It does NOT
	// cover assistant runs or the voice pipeline, which run on the dispatcher
	// with their own budgets.
	WebhookProcessing = 15 * time.Second

	// WebhookHTTPRead is the HTTP server read timeout for webhook requests.
	// Should be short since LINE sends small JSON payloads.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout.
	WebhookHTTPWrite = 30 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second
)

// Assistant timeouts
const (
	// AssistantRunBudget is the hard deadline for one assistant round-trip:
	// append message, create run, poll, fetch answer. Runs still in progress
	// at the deadline produce a "still thinking" push instead of an answer.
	AssistantRunBudget = 28 * time.Second

	// AssistantPollInterval is how often run status is polled.
	AssistantPollInterval = 1 * time.Second

	// CoachRequest is the timeout for a single chat-completion call
	// (quiz generation, judging, speech evaluation, writing revision).
	CoachRequest = 30 * time.Second
)

// Voice pipeline timeouts
const (
	// VoicePipeline bounds the full voice flow: blob download, Whisper
	// transcription, evaluation, TTS synthesis and upload.
	VoicePipeline = 90 * time.Second

	// TranscribeRequest is the timeout for one Whisper transcription call.
	TranscribeRequest = 60 * time.Second

	// TTSAudioTTL is how long Redis-served TTS audio stays downloadable
	// when the media store is not configured.
	TTSAudioTTL = 10 * time.Minute
)

// Learning-state lifetimes
const (
	// QuizStateTTL is how long a pending quiz stays answerable.
	QuizStateTTL = time.Hour

	// ReviewAskCooldown is the minimum gap between review-note offers
	// for the same user.
	ReviewAskCooldown = 7 * 24 * time.Hour
)

// Database timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 30 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour
)

// Background job intervals
const (
	// RateLimiterCleanupInterval is how often inactive user rate limiters are cleaned.
	RateLimiterCleanupInterval = 5 * time.Minute

	// ReportJobTimeout bounds one weekly report run end to end:
	// log query, concept labeling, chart, PDF, email.
	ReportJobTimeout = 10 * time.Minute

	// SessionPingInterval is how often the session store connection is verified
	// for the readiness gauge.
	SessionPingInterval = time.Minute
)

// Graceful shutdown
const (
	// GracefulShutdown is the timeout for graceful server shutdown.
	// Allows in-flight webhook goroutines and dispatcher jobs to complete.
	GracefulShutdown = 30 * time.Second
)
