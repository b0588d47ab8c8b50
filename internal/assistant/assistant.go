// Package assistant wraps the OpenAI Assistants API round-trip used for the
// knowledge-base Q&A path: one thread per user, polled runs under a hard
// deadline, newest assistant message as the answer.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/tcm-emi/linebot-go/internal/config"
	apperrors "github.com/tcm-emi/linebot-go/internal/errors"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/metrics"
	"github.com/tcm-emi/linebot-go/internal/session"
)

// SafetyDisclaimer is appended to every TCM-mode answer.
const SafetyDisclaimer = "\n\n⚠️ 僅供教學用途，不具醫療建議。"

// AppendDisclaimer attaches the safety disclaimer to an answer.
func AppendDisclaimer(answer string) string {
	return strings.TrimRight(answer, " \t\n") + SafetyDisclaimer
}

// Client runs assistant conversations. One OpenAI thread is kept per user,
// its ID persisted in the session store.
type Client struct {
	api          openai.Client
	assistantID  string
	runBudget    time.Duration
	pollInterval time.Duration
	sessions     *session.Store
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

// newAPIClient builds the shared OpenAI API client from configuration.
func newAPIClient(cfg *config.Config) openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey)}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	return openai.NewClient(opts...)
}

// New creates an assistant client.
func New(cfg *config.Config, sessions *session.Store, log *logger.Logger, m *metrics.Metrics) *Client {
	return &Client{
		api:          newAPIClient(cfg),
		assistantID:  cfg.OpenAIAssistantID,
		runBudget:    cfg.Bot.AssistantBudget,
		pollInterval: config.AssistantPollInterval,
		sessions:     sessions,
		logger:       log.WithModule("assistant"),
		metrics:      m,
	}
}

// threadFor returns the user's assistant thread ID, creating and persisting a
// new thread when none exists yet.
func (c *Client) threadFor(ctx context.Context, userID string) (string, error) {
	if threadID := c.sessions.ThreadID(ctx, userID); threadID != "" {
		return threadID, nil
	}

	thread, err := c.api.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return "", fmt.Errorf("assistant: create thread: %w", err)
	}

	if c.metrics != nil {
		c.metrics.RecordThreadCreated()
	}
	if err := c.sessions.SetThreadID(ctx, userID, thread.ID); err != nil {
		// Thread still works for this request; next request creates a new one.
		c.logger.WithError(err).WithUserID(userID).Warn("Failed to persist thread ID")
	}
	return thread.ID, nil
}

// Ask appends content to the user's thread, runs the assistant, and returns
// the newest assistant message. A run that does not complete within the run
// budget returns ErrAssistantTimeout.
func (c *Client) Ask(ctx context.Context, userID, content string) (string, error) {
	start := time.Now()
	answer, err := c.ask(ctx, userID, content)
	duration := time.Since(start).Seconds()

	if c.metrics != nil {
		status := "success"
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrAssistantTimeout):
			status = "timeout"
		default:
			status = "error"
		}
		c.metrics.RecordAssistantRun(status, duration)
	}
	return answer, err
}

func (c *Client) ask(ctx context.Context, userID, content string) (string, error) {
	threadID, err := c.threadFor(ctx, userID)
	if err != nil {
		return "", err
	}

	_, err = c.api.Beta.Threads.Messages.New(ctx, threadID, openai.BetaThreadMessageNewParams{
		Role: openai.BetaThreadMessageNewParamsRoleUser,
		Content: openai.BetaThreadMessageNewParamsContentUnion{
			OfString: openai.String(content),
		},
	})
	if err != nil {
		return "", fmt.Errorf("assistant: append message: %w", err)
	}

	run, err := c.api.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{
		AssistantID: c.assistantID,
	})
	if err != nil {
		return "", fmt.Errorf("assistant: create run: %w", err)
	}

	run, err = c.pollRun(ctx, threadID, run)
	if err != nil {
		return "", err
	}
	if run.Status != openai.RunStatusCompleted {
		c.logger.WithUserID(userID).
			WithField("run_status", string(run.Status)).
			Warn("Assistant run did not complete in budget")
		return "", apperrors.ErrAssistantTimeout
	}

	return c.newestAssistantMessage(ctx, threadID)
}

// pollRun polls the run until it leaves queued/in_progress or the run budget
// elapses. The in-flight run object is returned either way so the caller can
// inspect its final status.
func (c *Client) pollRun(ctx context.Context, threadID string, run *openai.Run) (*openai.Run, error) {
	deadline := time.Now().Add(c.runBudget)

	for run.Status == openai.RunStatusQueued || run.Status == openai.RunStatusInProgress {
		if time.Now().After(deadline) {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		updated, err := c.api.Beta.Threads.Runs.Get(ctx, threadID, run.ID)
		if err != nil {
			return run, fmt.Errorf("assistant: poll run: %w", err)
		}
		run = updated
	}
	return run, nil
}

// newestAssistantMessage fetches the latest message on the thread.
func (c *Client) newestAssistantMessage(ctx context.Context, threadID string) (string, error) {
	page, err := c.api.Beta.Threads.Messages.List(ctx, threadID, openai.BetaThreadMessageListParams{
		Limit: openai.Int(1),
		Order: openai.BetaThreadMessageListParamsOrderDesc,
	})
	if err != nil {
		return "", fmt.Errorf("assistant: list messages: %w", err)
	}
	if len(page.Data) == 0 {
		return "", fmt.Errorf("assistant: thread %s has no messages", threadID)
	}

	for _, block := range page.Data[0].Content {
		if block.Type == "text" {
			return strings.TrimSpace(block.Text.Value), nil
		}
	}
	return "", fmt.Errorf("assistant: no text content in newest message")
}
