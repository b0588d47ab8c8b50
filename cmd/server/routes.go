// Package main provides the LINE bot server entry point.
package main

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tcm-emi/linebot-go/internal/config"
	"github.com/tcm-emi/linebot-go/internal/dispatch"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/mediastore"
	"github.com/tcm-emi/linebot-go/internal/report"
	"github.com/tcm-emi/linebot-go/internal/session"
	"github.com/tcm-emi/linebot-go/internal/storage"
	"github.com/tcm-emi/linebot-go/internal/voice"
	"github.com/tcm-emi/linebot-go/internal/webhook"
)

// weeklyReportBudget bounds one on-demand report run: labeling up to a week
// of questions plus PDF rendering and SMTP delivery.
const weeklyReportBudget = 10 * time.Minute

type routeDeps struct {
	cfg        *config.Config
	log        *logger.Logger
	registry   *prometheus.Registry
	webhook    *webhook.Handler
	sessions   *session.Store
	db         *storage.DB
	media      *mediastore.Client
	voice      *voice.Pipeline
	dispatcher *dispatch.Dispatcher
	report     *report.Generator
}

// setupRoutes configures all HTTP routes.
func setupRoutes(router *gin.Engine, deps *routeDeps) {
	rootHandler := func(c *gin.Context) {
		c.String(http.StatusOK, "tcm-emi-linebot")
	}
	router.GET("/", rootHandler)
	router.HEAD("/", rootHandler)

	// Liveness probe: process is up, nothing else.
	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/healthz", healthHandler)
	router.HEAD("/healthz", healthHandler)

	// Readiness probe. The question log is required; a Redis outage only
	// degrades modes, so it is reported but never fails the probe.
	readyHandler := func(c *gin.Context) {
		if err := deps.db.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": err.Error(),
			})
			return
		}

		sessionStatus := "disabled"
		if deps.sessions.Enabled() {
			sessionStatus = "connected"
			if err := deps.sessions.Ping(c.Request.Context()); err != nil {
				sessionStatus = "degraded"
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":        "ready",
			"database":      "connected",
			"session_store": sessionStatus,
		})
	}
	router.GET("/ready", readyHandler)
	router.HEAD("/ready", readyHandler)

	// LINE webhook callback endpoint
	router.POST("/callback", deps.webhook.Handle)

	// TTS audio fallback when no media store is configured. Tokens are UUIDs
	// minted by the voice pipeline; entries expire with their Redis TTL.
	router.GET("/audio/:token", func(c *gin.Context) {
		token := c.Param("token")
		if _, err := uuid.Parse(token); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown audio token"})
			return
		}

		if data, err := deps.sessions.Audio(c.Request.Context(), token); err == nil {
			c.Data(http.StatusOK, "audio/mpeg", data)
			return
		}
		if deps.media.Enabled() {
			if rc, err := deps.media.Download(c.Request.Context(), "tts/"+token+".mp3"); err == nil {
				defer func() { _ = rc.Close() }()
				c.DataFromReader(http.StatusOK, -1, "audio/mpeg", rc, nil)
				return
			}
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown audio token"})
	})

	// Internal task endpoints, protected by the shared task secret.
	api := router.Group("/api", taskAuthMiddleware(deps.cfg.TaskSecret))

	api.POST("/tasks/voice", func(c *gin.Context) {
		var req struct {
			UserID    string `json:"user_id" binding:"required"`
			MessageID string `json:"message_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and message_id are required"})
			return
		}

		job := dispatch.Job{
			Name:    "voice_pipeline",
			Timeout: deps.cfg.Bot.VoicePipelineTime,
			Run: func(ctx context.Context) error {
				return deps.voice.Run(ctx, req.UserID, req.MessageID)
			},
		}
		if err := deps.dispatcher.Submit(job); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue full, retry later"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	})

	weeklyHandler := func(c *gin.Context) {
		// Detached from the request context so a dropped cron connection
		// does not abort a half-generated report.
		ctx, cancel := context.WithTimeout(context.Background(), weeklyReportBudget)
		defer cancel()

		summary, err := deps.report.Run(ctx)
		if err != nil {
			deps.log.WithError(err).Error("On-demand weekly report failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "report generation failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"questions": summary.Questions,
			"concepts":  len(summary.Concepts),
			"emailed":   summary.Emailed,
		})
	}
	api.GET("/cron/weekly", weeklyHandler)
	api.POST("/cron/weekly", weeklyHandler)

	// Prometheus metrics endpoint
	router.GET("/metrics",
		metricsAuthMiddleware(deps.cfg.MetricsPassword != "", deps.cfg.MetricsUsername, deps.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{})))
}

// taskAuthMiddleware checks the Authorization header against the shared task
// secret, accepting both the raw value and a Bearer-prefixed one. An empty
// secret disables the endpoints entirely.
func taskAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if secret == "" || !secretMatches(auth, secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func secretMatches(header, secret string) bool {
	raw := subtle.ConstantTimeCompare([]byte(header), []byte(secret)) == 1
	bearer := subtle.ConstantTimeCompare([]byte(header), []byte("Bearer "+secret)) == 1
	return raw || bearer
}

// metricsAuthMiddleware enforces Basic Auth for /metrics when a password is
// configured.
func metricsAuthMiddleware(enabled bool, username, password string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		user, pass, hasAuth := c.Request.BasicAuth()
		if !hasAuth {
			c.Header("WWW-Authenticate", `Basic realm="metrics"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
		if !userMatch || !passMatch {
			c.Header("WWW-Authenticate", `Basic realm="metrics"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Next()
	}
}
