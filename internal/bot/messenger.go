package bot

import (
	"context"
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/metrics"
	"github.com/tcm-emi/linebot-go/internal/ratelimit"
)

// Messenger wraps the LINE messaging API client with the global rate limiter.
// Reply and push both count against the same LINE API budget.
type Messenger struct {
	client  *messaging_api.MessagingApiAPI
	limiter *ratelimit.Limiter
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewMessenger creates a rate-limited LINE messenger.
func NewMessenger(channelToken string, globalRPS float64, log *logger.Logger, m *metrics.Metrics) (*Messenger, error) {
	client, err := messaging_api.NewMessagingApiAPI(channelToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging API client: %w", err)
	}
	return &Messenger{
		client:  client,
		limiter: ratelimit.New(globalRPS, globalRPS),
		logger:  log.WithModule("messenger"),
		metrics: m,
	}, nil
}

// Reply sends messages on a reply token. Reply tokens are single-use and
// expire quickly, so a blocked limiter only waits, never drops.
func (m *Messenger) Reply(ctx context.Context, replyToken string, messages ...messaging_api.MessageInterface) error {
	if len(messages) == 0 {
		return nil
	}
	m.waitLimiter(ctx)

	if _, err := m.client.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	}); err != nil {
		return fmt.Errorf("reply message: %w", err)
	}
	return nil
}

// Push sends messages directly to a user.
func (m *Messenger) Push(ctx context.Context, to string, messages ...messaging_api.MessageInterface) error {
	if len(messages) == 0 {
		return nil
	}
	m.waitLimiter(ctx)

	if _, err := m.client.PushMessage(&messaging_api.PushMessageRequest{
		To:       to,
		Messages: messages,
	}, ""); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

// ShowLoading displays the typing indicator in a 1-on-1 chat. Failures are
// cosmetic and only logged.
func (m *Messenger) ShowLoading(chatID string, seconds int32) {
	if _, err := m.client.ShowLoadingAnimation(&messaging_api.ShowLoadingAnimationRequest{
		ChatId:         chatID,
		LoadingSeconds: seconds,
	}); err != nil {
		m.logger.WithError(err).Debug("Loading animation failed")
	}
}

func (m *Messenger) waitLimiter(ctx context.Context) {
	if m.limiter.Allow() {
		return
	}
	if m.metrics != nil {
		m.metrics.RecordRateLimiterDrop("global")
	}
	if err := m.limiter.Wait(ctx); err != nil {
		m.logger.WithError(err).Warn("Rate limiter wait aborted")
	}
}
