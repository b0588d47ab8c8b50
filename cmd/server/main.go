// Package main provides the LINE bot server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tcm-emi/linebot-go/internal/assistant"
	"github.com/tcm-emi/linebot-go/internal/bot"
	"github.com/tcm-emi/linebot-go/internal/buildinfo"
	"github.com/tcm-emi/linebot-go/internal/coach"
	"github.com/tcm-emi/linebot-go/internal/config"
	"github.com/tcm-emi/linebot-go/internal/dispatch"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/mediastore"
	"github.com/tcm-emi/linebot-go/internal/metrics"
	"github.com/tcm-emi/linebot-go/internal/modules/courseops"
	"github.com/tcm-emi/linebot-go/internal/modules/quiz"
	"github.com/tcm-emi/linebot-go/internal/modules/speaking"
	"github.com/tcm-emi/linebot-go/internal/modules/tutor"
	"github.com/tcm-emi/linebot-go/internal/modules/writing"
	"github.com/tcm-emi/linebot-go/internal/ratelimit"
	"github.com/tcm-emi/linebot-go/internal/report"
	"github.com/tcm-emi/linebot-go/internal/sentry"
	"github.com/tcm-emi/linebot-go/internal/session"
	"github.com/tcm-emi/linebot-go/internal/storage"
	"github.com/tcm-emi/linebot-go/internal/syllabus"
	"github.com/tcm-emi/linebot-go/internal/voice"
	"github.com/tcm-emi/linebot-go/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithHandlers(cfg.LogLevel,
		logger.NewBetterStackHandler(cfg.LogLevel, cfg.LogsToken, cfg.LogsEndpoint))
	log.WithField("version", buildinfo.Version).Info("Starting TCM course bot server")

	if err := sentry.Initialize(sentry.Config{
		Token:       cfg.ErrorsToken,
		Host:        cfg.ErrorsHost,
		Environment: cfg.Environment,
		Release:     buildinfo.Version,
	}); err != nil {
		log.WithError(err).Warn("Error tracking disabled")
	}
	defer sentry.Flush(2 * time.Second)

	if err := report.SetupLicense(cfg.PDFLicenseKey); err != nil {
		log.WithError(err).Warn("PDF license not applied; weekly report generation may fail")
	}

	// Question log (SQLite)
	db, err := storage.New(cfg.SQLitePath())
	if err != nil {
		log.WithError(err).Fatal("Failed to open question log database")
	}
	defer func() { _ = db.Close() }()
	log.WithField("path", db.Path()).Info("Question log connected")

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewBuildInfoCollector())
	m := metrics.New(registry)

	// Session store. A missing Redis URL degrades every user to the default
	// mode instead of failing startup.
	sessions, err := session.New(cfg.RedisURL, log, m)
	if err != nil {
		log.WithError(err).Fatal("Failed to create session store")
	}
	defer func() { _ = sessions.Close() }()
	if !sessions.Enabled() {
		log.Warn("REDIS_URL not set; per-user modes and quiz state are disabled")
	}

	// Syllabus
	syl, err := syllabus.Load(cfg.SyllabusPath)
	if err != nil {
		log.WithError(err).WithField("path", cfg.SyllabusPath).
			Warn("Syllabus file not loaded; using built-in defaults")
		syl = syllabus.Default()
	}

	// Coach providers
	primary, err := coach.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.CoachModel, cfg.OpenAIBaseURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to create OpenAI coach provider")
	}
	var fallback coach.Provider
	if cfg.HasGeminiFallback() {
		gemini, gerr := coach.NewGeminiProvider(context.Background(), cfg.GeminiAPIKey, cfg.GeminiCoachModel)
		if gerr != nil {
			log.WithError(gerr).Warn("Gemini fallback disabled")
		} else {
			fallback = gemini
			log.Info("Gemini coach fallback enabled")
		}
	}
	coachClient := coach.New(primary, fallback, log, m)

	// Assistant (RAG-backed tutor) and audio clients
	assistantClient := assistant.New(cfg, sessions, log, m)
	audioClient := assistant.NewAudioClient(cfg)

	// Media store for TTS audio (optional)
	media, err := mediastore.New(context.Background(), mediastore.Config{
		Endpoint:      cfg.MediaEndpoint,
		AccessKeyID:   cfg.MediaAccessKeyID,
		SecretKey:     cfg.MediaSecretKey,
		Bucket:        cfg.MediaBucket,
		PublicBaseURL: cfg.MediaPublicBaseURL,
	})
	if err != nil {
		log.WithError(err).Warn("Media store disabled; TTS audio will be served from Redis")
		media = nil
	}

	// LINE messenger with the global API rate limit
	messenger, err := bot.NewMessenger(cfg.LineChannelToken, cfg.Bot.GlobalRateLimitRPS, log, m)
	if err != nil {
		log.WithError(err).Fatal("Failed to create LINE messenger")
	}

	// Background job dispatcher
	dispatcher := dispatch.New(cfg.Bot.DispatchWorkers, cfg.Bot.DispatchQueueSize, log, m)

	// Bot module registry. Order matters: the quiz handler must see replies
	// before the speaking keywords, and the tutor is the catch-all.
	botRegistry := bot.NewRegistry()
	tutorHandler := tutor.New(sessions, assistantClient, syl, messenger, db, log, m)
	botRegistry.Register(writing.New(sessions, coachClient, syl, messenger, log))
	botRegistry.Register(courseops.New(syl, log))
	botRegistry.Register(quiz.New(sessions, coachClient, syl, messenger, tutorHandler, log))
	botRegistry.Register(speaking.New(sessions, log))
	botRegistry.Register(tutorHandler)

	// Voice pipeline
	fetcher, err := voice.NewContentFetcher(cfg.LineChannelToken)
	if err != nil {
		log.WithError(err).Fatal("Failed to create LINE content fetcher")
	}
	voicePipeline := voice.New(voice.Config{
		Fetcher:       fetcher,
		Audio:         audioClient,
		Sessions:      sessions,
		Coach:         coachClient,
		Syllabus:      syl,
		Registry:      botRegistry,
		Pusher:        messenger,
		Media:         media,
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        log,
		Metrics:       m,
	})

	// Per-user rate limiter
	userLimiter := ratelimit.NewPerKeyLimiter(ratelimit.PerKeyLimiterConfig{
		MaxTokens:     cfg.Bot.UserRateLimitBurst,
		RefillRate:    cfg.Bot.UserRateLimitRefillPerSec,
		CleanupPeriod: 5 * time.Minute,
	})
	defer userLimiter.Stop()
	userLimiter.OnUpdate(m.SetRateLimiterActive)

	processor := bot.NewProcessor(bot.ProcessorConfig{
		Registry:     botRegistry,
		Sessions:     sessions,
		UserLimiter:  userLimiter,
		Voice:        voicePipeline,
		VoiceTimeout: cfg.Bot.VoicePipelineTime,
		Logger:       log,
		Metrics:      m,
	})

	webhookHandler := webhook.NewHandler(webhook.HandlerConfig{
		ChannelSecret: cfg.LineChannelSecret,
		BotConfig:     &cfg.Bot,
		Messenger:     messenger,
		Processor:     processor,
		Dispatcher:    dispatcher,
		Metrics:       m,
		Logger:        log,
	})

	// Weekly report
	var mailer report.Mailer
	if cfg.HasMailer() {
		mailer = report.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername,
			cfg.SMTPPassword, cfg.ReportSender, cfg.ReportRecipient)
		log.WithField("recipient", cfg.ReportRecipient).Info("Weekly report mailer configured")
	} else {
		log.Info("SMTP not configured; weekly reports will not be emailed")
	}
	reportGen := report.New(db, coachClient, mailer,
		cfg.Bot.ReportBatchSize, cfg.Bot.ReportTopConcepts, log, m)

	// HTTP server
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(log))

	setupRoutes(router, &routeDeps{
		cfg:        cfg,
		log:        log,
		registry:   registry,
		webhook:    webhookHandler,
		sessions:   sessions,
		db:         db,
		media:      media,
		voice:      voicePipeline,
		dispatcher: dispatcher,
		report:     reportGen,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  config.WebhookHTTPRead,
		WriteTimeout: config.WebhookHTTPWrite,
		IdleTimeout:  config.WebhookHTTPIdle,
	}

	// Background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	jobsDone := startBackgroundJobs(jobCtx, reportGen, db, cfg, log)

	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	// Let in-flight webhook events and queued jobs finish.
	if err := webhookHandler.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Webhook processing did not drain in time")
	}
	if err := dispatcher.Stop(cfg.ShutdownTimeout); err != nil {
		log.WithError(err).Warn("Dispatcher did not drain in time")
	}

	cancelJobs()
	select {
	case <-jobsDone:
	case <-time.After(5 * time.Second):
		log.Warn("Timeout waiting for background jobs to stop")
	}

	log.Info("Server stopped")
}
