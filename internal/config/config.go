// Package config provides application configuration management.
// It loads settings from environment variables and provides defaults for
// server mode, AI budgets, session storage, and the weekly report job.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// LINE Bot Configuration
	LineChannelToken  string
	LineChannelSecret string

	// OpenAI Configuration
	OpenAIAPIKey      string // API key used for assistant, chat, whisper and TTS
	OpenAIAssistantID string // Assistants API assistant ID (RAG-backed course tutor)
	OpenAIBaseURL     string // Optional custom endpoint (empty = api.openai.com)

	// Model Configuration (optional, defaults apply if empty)
	CoachModel   string // Chat-completion model for quiz/writing/speech tasks
	WhisperModel string // Transcription model
	TTSModel     string // Speech synthesis model
	TTSVoice     string // Speech synthesis voice

	// Gemini Configuration (optional fallback coach provider)
	GeminiAPIKey     string
	GeminiCoachModel string

	// Session Store Configuration
	RedisURL string // Redis connection URL (redis:// or rediss://)

	// Internal Task Authentication
	TaskSecret string // Shared secret for /api/tasks/* and /api/cron/* endpoints

	// Public URL Configuration
	PublicBaseURL string // Base URL of this deployment, used for /audio fallback links

	// Media Store Configuration (S3-compatible, for TTS audio)
	MediaEndpoint      string
	MediaAccessKeyID   string
	MediaSecretKey     string
	MediaBucket        string
	MediaPublicBaseURL string // Public URL prefix for uploaded objects

	// Weekly Report Configuration
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	ReportSender    string
	ReportRecipient string
	ReportWeekday   time.Weekday // Day the in-process scheduler fires (default Monday)
	ReportHour      int          // Hour of day (local time) the scheduler fires
	PDFLicenseKey   string       // unipdf metered license key (optional)

	// Error Tracking (Better Stack via Sentry SDK)
	ErrorsToken string
	ErrorsHost  string

	// Log Shipping (Better Stack)
	LogsToken    string
	LogsEndpoint string

	// Metrics Authentication
	MetricsUsername string // Username for /metrics endpoint Basic Auth (default: "prometheus")
	MetricsPassword string // Password for /metrics endpoint Basic Auth (empty = no auth)

	// Server Configuration
	Port            string
	LogLevel        string
	Environment     string
	ShutdownTimeout time.Duration

	// Data Configuration
	DataDir      string // Data directory for the SQLite question log
	SyllabusPath string // Path to the syllabus JSON file

	// Bot Configuration (embedded)
	Bot BotConfig
}

// BotConfig holds bot-specific configuration
type BotConfig struct {
	// Timeouts
	WebhookTimeout    time.Duration // Timeout for webhook bot processing (see config/timeouts.go)
	AssistantBudget   time.Duration // Hard deadline for one assistant run round-trip
	VoicePipelineTime time.Duration // Timeout for the full voice pipeline

	// Rate Limits (Token Bucket Algorithm)
	UserRateLimitBurst        float64 // Maximum burst tokens per user (default: 10)
	UserRateLimitRefillPerSec float64 // Tokens refilled per second (default: 0.2 = 1 per 5s)
	GlobalRateLimitRPS        float64 // Global LINE API rate limit in requests per second

	// LINE API Constraints
	MaxMessagesPerReply int // Maximum messages per reply (LINE API limit: 5)
	MaxEventsPerWebhook int // Maximum events per webhook (default: 100)
	MinReplyTokenLength int // Minimum reply token length (default: 10)
	MaxMessageLength    int // Maximum message length (LINE API limit: 20000)
	MaxPostbackDataSize int // Maximum postback data size (LINE API limit: 300)

	// Dispatcher
	DispatchWorkers   int // Background worker goroutines (default: 4)
	DispatchQueueSize int // Pending job queue capacity (default: 64)

	// Report
	ReportBatchSize   int // Questions per concept-labeling LLM call (default: 20)
	ReportTopConcepts int // Concepts listed in the weekly report (default: 10)
}

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		// LINE Bot Configuration
		LineChannelToken:  getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineChannelSecret: getEnv("LINE_CHANNEL_SECRET", ""),

		// OpenAI Configuration
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIAssistantID: getEnv("OPENAI_ASSISTANT_ID", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),

		// Model Configuration
		CoachModel:   getEnv("COACH_MODEL", "gpt-4o-mini"),
		WhisperModel: getEnv("WHISPER_MODEL", "whisper-1"),
		TTSModel:     getEnv("TTS_MODEL", "tts-1"),
		TTSVoice:     getEnv("TTS_VOICE", "shimmer"),

		// Gemini Configuration
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiCoachModel: getEnv("GEMINI_COACH_MODEL", "gemini-2.0-flash"),

		// Session Store Configuration
		RedisURL: getEnv("REDIS_URL", ""),

		// Internal Task Authentication
		TaskSecret: getEnv("TASK_SECRET", ""),

		// Public URL Configuration
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		// Media Store Configuration
		MediaEndpoint:      getEnv("MEDIA_ENDPOINT", ""),
		MediaAccessKeyID:   getEnv("MEDIA_ACCESS_KEY_ID", ""),
		MediaSecretKey:     getEnv("MEDIA_SECRET_ACCESS_KEY", ""),
		MediaBucket:        getEnv("MEDIA_BUCKET", ""),
		MediaPublicBaseURL: getEnv("MEDIA_PUBLIC_BASE_URL", ""),

		// Weekly Report Configuration
		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getIntEnv("SMTP_PORT", 587),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		ReportSender:    getEnv("REPORT_SENDER", ""),
		ReportRecipient: getEnv("REPORT_RECIPIENT", ""),
		ReportWeekday:   time.Weekday(getIntEnv("REPORT_WEEKDAY", int(time.Monday))),
		ReportHour:      getIntEnv("REPORT_HOUR", 8),
		PDFLicenseKey:   getEnv("UNIPDF_LICENSE_KEY", ""),

		// Error Tracking
		ErrorsToken: getEnv("BETTERSTACK_ERRORS_TOKEN", ""),
		ErrorsHost:  getEnv("BETTERSTACK_ERRORS_HOST", "errors.betterstack.com"),

		// Log Shipping
		LogsToken:    getEnv("BETTERSTACK_LOGS_TOKEN", ""),
		LogsEndpoint: getEnv("BETTERSTACK_LOGS_ENDPOINT", ""),

		// Metrics Authentication
		MetricsUsername: getEnv("METRICS_USERNAME", "prometheus"),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),

		// Server Configuration
		Port:            getEnv("PORT", "10000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Environment:     getEnv("ENVIRONMENT", "production"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		// Data Configuration
		DataDir:      getEnv("DATA_DIR", getDefaultDataDir()),
		SyllabusPath: getEnv("SYLLABUS_PATH", "config/syllabus.json"),

		// Bot Configuration
		Bot: BotConfig{
			WebhookTimeout:            getDurationEnv("WEBHOOK_TIMEOUT", WebhookProcessing),
			AssistantBudget:           getDurationEnv("ASSISTANT_BUDGET", AssistantRunBudget),
			VoicePipelineTime:         getDurationEnv("VOICE_PIPELINE_TIMEOUT", VoicePipeline),
			UserRateLimitBurst:        getFloatEnv("USER_RATE_LIMIT_BURST", 10.0),
			UserRateLimitRefillPerSec: getFloatEnv("USER_RATE_LIMIT_REFILL_PER_SEC", 0.2), // 1 per 5s
			GlobalRateLimitRPS:        getFloatEnv("GLOBAL_RATE_LIMIT_RPS", 100.0),
			MaxMessagesPerReply:       LINEMaxMessagesPerReply,
			MaxEventsPerWebhook:       100,
			MinReplyTokenLength:       10,
			MaxMessageLength:          LINEMaxTextMessageLength,
			MaxPostbackDataSize:       LINEMaxPostbackDataLength,
			DispatchWorkers:           getIntEnv("DISPATCH_WORKERS", 4),
			DispatchQueueSize:         getIntEnv("DISPATCH_QUEUE_SIZE", 64),
			ReportBatchSize:           getIntEnv("REPORT_BATCH_SIZE", 20),
			ReportTopConcepts:         getIntEnv("REPORT_TOP_CONCEPTS", 10),
		},
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LINE API hard limits.
const (
	LINEMaxMessagesPerReply   = 5
	LINEMaxTextMessageLength  = 5000
	LINEMaxPostbackDataLength = 300
)

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.LineChannelToken == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_ACCESS_TOKEN is required"))
	}
	if c.LineChannelSecret == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_SECRET is required"))
	}
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.OpenAIAssistantID == "" {
		errs = append(errs, errors.New("OPENAI_ASSISTANT_ID is required"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR is required"))
	}
	if c.ReportWeekday < time.Sunday || c.ReportWeekday > time.Saturday {
		errs = append(errs, fmt.Errorf("REPORT_WEEKDAY must be 0-6, got %d", c.ReportWeekday))
	}
	if c.ReportHour < 0 || c.ReportHour > 23 {
		errs = append(errs, fmt.Errorf("REPORT_HOUR must be 0-23, got %d", c.ReportHour))
	}
	if err := c.Bot.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("bot config: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks bot configuration bounds.
func (b *BotConfig) Validate() error {
	var errs []error

	if b.WebhookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_TIMEOUT must be positive, got %v", b.WebhookTimeout))
	}
	if b.AssistantBudget <= 0 {
		errs = append(errs, fmt.Errorf("ASSISTANT_BUDGET must be positive, got %v", b.AssistantBudget))
	}
	if b.UserRateLimitBurst <= 0 {
		errs = append(errs, fmt.Errorf("USER_RATE_LIMIT_BURST must be positive, got %v", b.UserRateLimitBurst))
	}
	if b.UserRateLimitRefillPerSec <= 0 {
		errs = append(errs, fmt.Errorf("USER_RATE_LIMIT_REFILL_PER_SEC must be positive, got %v", b.UserRateLimitRefillPerSec))
	}
	if b.DispatchWorkers <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_WORKERS must be positive, got %d", b.DispatchWorkers))
	}
	if b.DispatchQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_QUEUE_SIZE must be positive, got %d", b.DispatchQueueSize))
	}
	if b.ReportBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("REPORT_BATCH_SIZE must be positive, got %d", b.ReportBatchSize))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "questions.db")
}

// HasSessionStore returns true if a Redis URL is configured.
func (c *Config) HasSessionStore() bool {
	return c.RedisURL != ""
}

// HasMediaStore returns true if the S3-compatible media store is configured.
func (c *Config) HasMediaStore() bool {
	return c.MediaEndpoint != "" && c.MediaAccessKeyID != "" && c.MediaSecretKey != "" && c.MediaBucket != ""
}

// HasMailer returns true if SMTP settings are complete enough to send the weekly report.
func (c *Config) HasMailer() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != "" && c.ReportRecipient != ""
}

// HasGeminiFallback returns true if a Gemini API key is configured.
func (c *Config) HasGeminiFallback() bool {
	return c.GeminiAPIKey != ""
}
