package bot

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/tcm-emi/linebot-go/internal/ctxutil"
	"github.com/tcm-emi/linebot-go/internal/dispatch"
	"github.com/tcm-emi/linebot-go/internal/lineutil"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/metrics"
	"github.com/tcm-emi/linebot-go/internal/ratelimit"
	"github.com/tcm-emi/linebot-go/internal/session"
)

// VoiceRunner executes the background voice pipeline for one audio message.
type VoiceRunner interface {
	Run(ctx context.Context, userID, messageID string) error
}

// Processor normalizes LINE events, applies per-user rate limiting, loads the
// session snapshot and routes through the handler registry. It serves 1-on-1
// chats only; group and room events are ignored.
type Processor struct {
	registry     *Registry
	sessions     *session.Store
	userLimiter  *ratelimit.PerKeyLimiter
	voice        VoiceRunner
	voiceTimeout time.Duration
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

// ProcessorConfig holds dependencies for creating a Processor.
type ProcessorConfig struct {
	Registry     *Registry
	Sessions     *session.Store
	UserLimiter  *ratelimit.PerKeyLimiter
	Voice        VoiceRunner
	VoiceTimeout time.Duration
	Logger       *logger.Logger
	Metrics      *metrics.Metrics
}

// NewProcessor creates an event processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		registry:     cfg.Registry,
		sessions:     cfg.Sessions,
		userLimiter:  cfg.UserLimiter,
		voice:        cfg.Voice,
		voiceTimeout: cfg.VoiceTimeout,
		logger:       cfg.Logger.WithModule("bot"),
		metrics:      cfg.Metrics,
	}
}

// ProcessText handles a text message event.
func (p *Processor) ProcessText(ctx context.Context, event webhook.MessageEvent) (*Reply, error) {
	userID := personalUserID(event.Source)
	if userID == "" {
		return nil, nil
	}
	ctx = ctxutil.WithUserID(ctx, userID)

	textMsg, ok := event.Message.(webhook.TextMessageContent)
	if !ok {
		return nil, nil
	}
	text := strings.TrimSpace(textMsg.Text)
	if text == "" {
		return nil, nil
	}

	if !p.allowUser(userID) {
		return NewReply(lineutil.NewTextMessage("⏳ 訊息過於頻繁，請稍後再試")), nil
	}

	ev := &Event{
		UserID:     userID,
		ReplyToken: event.ReplyToken,
		Text:       text,
		Mode:       p.sessions.Mode(ctx, userID),
		State:      p.sessions.State(ctx, userID),
	}

	p.logger.WithUserID(userID).
		WithField("mode", ev.Mode).
		WithField("state", ev.State).
		Debug("Routing text event")

	reply, handler, err := p.registry.Dispatch(ctx, ev)
	if err != nil {
		p.logger.WithError(err).WithField("handler", handler).Warn("Handler failed")
		return NewReply(lineutil.TextWithMainQuickReplies("處理訊息時發生錯誤，請再試一次。")), nil
	}
	return reply, nil
}

// ProcessAudio handles an audio message event: acknowledge immediately, then
// run the voice pipeline in the background.
func (p *Processor) ProcessAudio(ctx context.Context, event webhook.MessageEvent) (*Reply, error) {
	userID := personalUserID(event.Source)
	if userID == "" {
		return nil, nil
	}

	audioMsg, ok := event.Message.(webhook.AudioMessageContent)
	if !ok {
		return nil, nil
	}
	messageID := audioMsg.Id

	if !p.allowUser(userID) {
		return NewReply(lineutil.NewTextMessage("⏳ 訊息過於頻繁，請稍後再試")), nil
	}
	if p.voice == nil {
		return NewReply(lineutil.TextWithMainQuickReplies("目前無法處理語音訊息，請改用文字提問。")), nil
	}

	reply := NewReply(lineutil.NewTextMessage("🎙️ 正在轉換語音..."))
	reply.Job = &dispatch.Job{
		Name:    "voice_pipeline",
		Timeout: p.voiceTimeout,
		Run: func(jobCtx context.Context) error {
			return p.voice.Run(ctxutil.WithUserID(jobCtx, userID), userID, messageID)
		},
	}
	return reply, nil
}

// ProcessPostback handles rich menu and Flex button postbacks. Payloads are
// query-string encoded: "mode=speaking", "action=course", "action=weekly".
func (p *Processor) ProcessPostback(ctx context.Context, event webhook.PostbackEvent) (*Reply, error) {
	userID := personalUserID(event.Source)
	if userID == "" {
		return nil, nil
	}
	ctx = ctxutil.WithUserID(ctx, userID)

	data := strings.TrimSpace(event.Postback.Data)
	if data == "" {
		return nil, nil
	}

	params, err := url.ParseQuery(data)
	if err != nil {
		p.logger.WithError(err).WithField("data", data).Warn("Bad postback payload")
		return NewReply(lineutil.TextWithMainQuickReplies("操作已過期或無效，請重新使用選單。")), nil
	}

	if mode := params.Get("mode"); mode != "" {
		return p.switchMode(ctx, userID, mode), nil
	}

	reply, handler, err := p.registry.DispatchPostback(ctx, userID, params)
	if err != nil {
		p.logger.WithError(err).WithField("handler", handler).Warn("Postback handler failed")
		return NewReply(lineutil.TextWithMainQuickReplies("選單處理發生錯誤，請再試一次。")), nil
	}
	if reply == nil {
		return NewReply(lineutil.TextWithMainQuickReplies("操作已過期或無效，請重新使用選單。")), nil
	}
	return reply, nil
}

// ProcessFollow greets a new follower.
func (p *Processor) ProcessFollow(event webhook.FollowEvent) *Reply {
	p.logger.Info("New user followed the bot")
	return NewReply(lineutil.TextWithMainQuickReplies(
		"歡迎加入中醫課程小助教！🩺\n\n" +
			"直接輸入課程相關問題，我會查閱課程資料回答你。\n" +
			"也可以用下方選單切換口說練習、寫作修訂，或查詢課務資訊。",
	))
}

// SwitchMode persists the mode change and returns the confirmation message.
// Exposed for the mode-switch text keywords handled inside modules.
func (p *Processor) SwitchMode(ctx context.Context, userID, mode string) *Reply {
	return p.switchMode(ctx, userID, mode)
}

func (p *Processor) switchMode(ctx context.Context, userID, mode string) *Reply {
	if !session.ValidMode(mode) {
		mode = session.ModeTCM
	}
	if err := p.sessions.SetMode(ctx, userID, mode); err != nil {
		p.logger.WithError(err).WithUserID(userID).Warn("Mode switch not persisted")
	}

	switch mode {
	case session.ModeWriting:
		return NewReply(lineutil.NewTextMessageWithQuickReply(
			"已切換至【✍️ 寫作修訂】模式，請貼上要修改的段落。",
			lineutil.WritingQuickReplies()...,
		))
	case session.ModeSpeaking:
		return NewReply(lineutil.TextWithMainQuickReplies("已切換至【🗣️ 口說練習】模式，可傳送語音或文字。"))
	default:
		return NewReply(lineutil.TextWithMainQuickReplies("已切換至【🩺 中醫問答】模式"))
	}
}

func (p *Processor) allowUser(userID string) bool {
	if p.userLimiter == nil || p.userLimiter.Allow(userID) {
		return true
	}
	if p.metrics != nil {
		p.metrics.RecordRateLimiterDrop("user")
	}
	p.logger.WithUserID(userID).Warn("User rate limit exceeded")
	return false
}

// personalUserID returns the user ID for 1-on-1 chats, "" otherwise.
func personalUserID(source webhook.SourceInterface) string {
	if s, ok := source.(webhook.UserSource); ok {
		return s.UserId
	}
	return ""
}
