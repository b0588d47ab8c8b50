// Package webhook receives LINE platform callbacks: it verifies the request
// signature, acknowledges immediately, and processes events asynchronously so
// the callback endpoint never blocks on a model call.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/tcm-emi/linebot-go/internal/bot"
	"github.com/tcm-emi/linebot-go/internal/config"
	"github.com/tcm-emi/linebot-go/internal/ctxutil"
	"github.com/tcm-emi/linebot-go/internal/dispatch"
	"github.com/tcm-emi/linebot-go/internal/lineutil"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/metrics"
)

// LINE API: loadingSeconds must be 5-60 in multiples of 5. Max matches the
// longest synchronous handler work before the ack reply goes out.
const loadingSeconds int32 = 60

// Handler handles LINE webhook events.
type Handler struct {
	channelSecret string
	messenger     *bot.Messenger
	processor     *bot.Processor
	dispatcher    *dispatch.Dispatcher
	metrics       *metrics.Metrics
	logger        *logger.Logger
	wg            sync.WaitGroup

	// LINE API constraints (from config.BotConfig)
	maxMessagesPerReply int
	maxEventsPerWebhook int
	minReplyTokenLength int
}

// HandlerConfig holds configuration for creating a new Handler.
type HandlerConfig struct {
	ChannelSecret string
	BotConfig     *config.BotConfig
	Messenger     *bot.Messenger
	Processor     *bot.Processor
	Dispatcher    *dispatch.Dispatcher
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		channelSecret:       cfg.ChannelSecret,
		messenger:           cfg.Messenger,
		processor:           cfg.Processor,
		dispatcher:          cfg.Dispatcher,
		metrics:             cfg.Metrics,
		logger:              cfg.Logger.WithModule("webhook"),
		maxMessagesPerReply: cfg.BotConfig.MaxMessagesPerReply,
		maxEventsPerWebhook: cfg.BotConfig.MaxEventsPerWebhook,
		minReplyTokenLength: cfg.BotConfig.MinReplyTokenLength,
	}
}

// Handle is the Gin handler for the webhook endpoint.
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn("Invalid webhook signature")
			c.Status(http.StatusBadRequest)
		} else {
			h.logger.WithError(err).Error("Failed to parse webhook request")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	// LINE requires an immediate 200; all work happens after the ack.
	c.Status(http.StatusOK)

	start := time.Now()

	if len(cb.Events) > h.maxEventsPerWebhook {
		h.logger.WithField("event_count", len(cb.Events)).
			WithField("limit", h.maxEventsPerWebhook).
			Warn("Too many events in webhook batch; truncating")
		cb.Events = cb.Events[:h.maxEventsPerWebhook]
	}

	// Copy events so processing never races the HTTP response teardown.
	events := make([]webhook.EventInterface, len(cb.Events))
	copy(events, cb.Events)

	h.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.WithField("panic", r).Error("Panic in async event processing")
			}
		}()

		ctx := context.Background()
		for _, event := range events {
			h.processEvent(ctx, event, start)
		}
	})
}

// processEvent handles a single webhook event asynchronously.
func (h *Handler) processEvent(ctx context.Context, event webhook.EventInterface, webhookStart time.Time) {
	eventStart := time.Now()

	eventID, eventTimestamp, isRedelivery := extractEventMeta(event)
	if eventID != "" {
		ctx = ctxutil.WithRequestID(ctx, eventID)
	}

	log := h.logger
	if eventID != "" {
		log = log.WithRequestID(eventID)
	}
	if isRedelivery != nil {
		log = log.WithField("is_redelivery", *isRedelivery)
	}
	if eventTimestamp > 0 {
		log = log.WithField("event_timestamp_ms", eventTimestamp)
	}

	chatID := personalChatID(event)
	if chatID != "" && wantsLoading(event) {
		h.messenger.ShowLoading(chatID, loadingSeconds)
	}

	var (
		reply     *bot.Reply
		eventType string
		err       error
	)

	switch e := event.(type) {
	case webhook.MessageEvent:
		switch e.Message.(type) {
		case webhook.TextMessageContent:
			eventType = "message"
			reply, err = h.processor.ProcessText(ctx, e)
		case webhook.AudioMessageContent:
			eventType = "audio"
			reply, err = h.processor.ProcessAudio(ctx, e)
		default:
			log.WithField("message_type", e.Message.GetType()).Debug("Unsupported message type")
			return
		}
	case webhook.PostbackEvent:
		eventType = "postback"
		reply, err = h.processor.ProcessPostback(ctx, e)
	case webhook.FollowEvent:
		eventType = "follow"
		reply = h.processor.ProcessFollow(e)
	default:
		log.WithField("event_type", fmt.Sprintf("%T", e)).Debug("Unsupported event type")
		return
	}

	status := "success"
	if err != nil {
		status = "error"
		log.WithError(err).WithField("event_type", eventType).Error("Failed to handle event")
	}
	h.metrics.RecordWebhook(eventType, status, time.Since(eventStart).Seconds())

	if reply != nil && err == nil {
		h.deliver(ctx, log, eventType, event, chatID, reply, eventStart)
	}

	log.WithField("event_type", eventType).
		WithField("event_duration_ms", time.Since(eventStart).Milliseconds()).
		WithField("batch_duration_ms", time.Since(webhookStart).Milliseconds()).
		Info("Event processed")
}

// deliver sends the synchronous reply and queues the background job, if any.
func (h *Handler) deliver(ctx context.Context, log *logger.Logger, eventType string, event webhook.EventInterface, chatID string, reply *bot.Reply, eventStart time.Time) {
	messages := reply.Messages
	if len(messages) > h.maxMessagesPerReply {
		log.WithField("message_count", len(messages)).
			WithField("limit", h.maxMessagesPerReply).
			Warn("Message count exceeds limit; truncating")
		messages = messages[:h.maxMessagesPerReply]
	}

	if len(messages) > 0 {
		replyToken := getReplyToken(event)
		switch {
		case replyToken == "":
			log.Debug("Empty reply token, skipping reply")
		case len(replyToken) < h.minReplyTokenLength:
			log.WithField("token_length", len(replyToken)).Debug("Invalid reply token format")
		default:
			if sendErr := h.messenger.Reply(ctx, replyToken, messages...); sendErr != nil {
				h.logReplyError(log, sendErr, replyToken)
				h.metrics.RecordWebhook(eventType, "reply_error", time.Since(eventStart).Seconds())
			}
		}
	}

	if reply.Job == nil {
		return
	}
	if submitErr := h.dispatcher.Submit(*reply.Job); submitErr != nil {
		log.WithError(submitErr).WithField("job", reply.Job.Name).Error("Background job rejected")
		if chatID != "" {
			if pushErr := h.messenger.Push(ctx, chatID,
				lineutil.TextWithMainQuickReplies("系統目前忙碌中，請稍後再試一次。")); pushErr != nil {
				log.WithError(pushErr).Warn("Busy notice not delivered")
			}
		}
	}
}

// Reply token failures are routine (tokens are single-use and expire in about
// a minute), so they log at debug; everything else is a real send failure.
func (h *Handler) logReplyError(log *logger.Logger, err error, replyToken string) {
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "Invalid reply token"):
		log.WithError(err).Debug("Reply token already used or invalid")
	case strings.Contains(errMsg, "rate limit"):
		log.WithError(err).Error("Rate limit exceeded")
	default:
		tokenTag := replyToken
		if len(tokenTag) > 8 {
			tokenTag = tokenTag[:8] + "..."
		}
		log.WithError(err).WithField("reply_token", tokenTag).Error("Failed to send reply")
	}
}

func extractEventMeta(event webhook.EventInterface) (string, int64, *bool) {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.WebhookEventId, e.Timestamp, redeliveryFlag(e.DeliveryContext)
	case webhook.PostbackEvent:
		return e.WebhookEventId, e.Timestamp, redeliveryFlag(e.DeliveryContext)
	case webhook.FollowEvent:
		return e.WebhookEventId, e.Timestamp, redeliveryFlag(e.DeliveryContext)
	default:
		return "", 0, nil
	}
}

func redeliveryFlag(dc *webhook.DeliveryContext) *bool {
	if dc == nil {
		return nil
	}
	val := dc.IsRedelivery
	return &val
}

// wantsLoading reports whether the event leads to a visible response worth a
// typing indicator. Follows get a greeting instantly, so no indicator there.
func wantsLoading(event webhook.EventInterface) bool {
	switch e := event.(type) {
	case webhook.MessageEvent:
		switch e.Message.(type) {
		case webhook.TextMessageContent, webhook.AudioMessageContent:
			return true
		default:
			return false
		}
	case webhook.PostbackEvent:
		return true
	default:
		return false
	}
}

// getReplyToken extracts the reply token from an event.
func getReplyToken(event webhook.EventInterface) string {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.ReplyToken
	case webhook.PostbackEvent:
		return e.ReplyToken
	case webhook.FollowEvent:
		return e.ReplyToken
	default:
		return ""
	}
}

// personalChatID returns the user ID for 1-on-1 chats, "" for anything else.
// Group and room events are ignored throughout.
func personalChatID(event webhook.EventInterface) string {
	var source webhook.SourceInterface
	switch e := event.(type) {
	case webhook.MessageEvent:
		source = e.Source
	case webhook.PostbackEvent:
		source = e.Source
	case webhook.FollowEvent:
		source = e.Source
	default:
		return ""
	}
	if s, ok := source.(webhook.UserSource); ok {
		return s.UserId
	}
	return ""
}

// Shutdown waits for all async event processing to complete.
// It returns an error if the context is canceled before completion.
func (h *Handler) Shutdown(ctx context.Context) error {
	c := make(chan struct{})
	go func() {
		defer close(c)
		h.wg.Wait()
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
