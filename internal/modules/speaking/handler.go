// Package speaking implements the speaking-practice mode switches and the
// practice-loop keywords. The actual speech evaluation lives in the voice
// pipeline; this handler only manages the conversational loop around it.
package speaking

import (
	"context"

	"github.com/tcm-emi/linebot-go/internal/bot"
	"github.com/tcm-emi/linebot-go/internal/lineutil"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/session"
)

const (
	enterKeyword = "口說練習"
	nextKeyword  = "練習下一句"
	endKeyword   = "結束練習"
)

// Handler owns the speaking-practice keywords.
type Handler struct {
	sessions *session.Store
	logger   *logger.Logger
}

// New creates the speaking-practice handler.
func New(sessions *session.Store, log *logger.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		logger:   log.WithModule("speaking"),
	}
}

func (h *Handler) Name() string { return "speaking" }

// CanHandle claims the enter/end keywords from any mode; the next-sentence
// prompt only counts inside speaking mode, elsewhere it falls through as a
// normal question.
func (h *Handler) CanHandle(_ context.Context, ev *bot.Event) bool {
	switch ev.Text {
	case enterKeyword, endKeyword:
		return true
	case nextKeyword:
		return ev.Mode == session.ModeSpeaking
	default:
		return false
	}
}

func (h *Handler) Handle(ctx context.Context, ev *bot.Event) (*bot.Reply, error) {
	switch ev.Text {
	case enterKeyword:
		h.setMode(ctx, ev.UserID, session.ModeSpeaking)
		return bot.NewReply(lineutil.TextWithMainQuickReplies("已切換至【🗣️ 口說練習】模式，可傳送語音或文字。")), nil
	case nextKeyword:
		return bot.NewReply(lineutil.NewTextMessageWithQuickReply(
			"請傳送語音訊息開始練習～我會幫你分析發音與文法。\n\n要再練習下一句嗎？",
			lineutil.SpeakingQuickReplies()...,
		)), nil
	default: // endKeyword
		h.setMode(ctx, ev.UserID, session.ModeTCM)
		return bot.NewReply(lineutil.TextWithMainQuickReplies("已結束口說練習，已切換回中醫問答模式。")), nil
	}
}

func (h *Handler) setMode(ctx context.Context, userID, mode string) {
	if err := h.sessions.SetMode(ctx, userID, mode); err != nil {
		h.logger.WithError(err).WithUserID(userID).Warn("Mode switch not persisted")
	}
}
