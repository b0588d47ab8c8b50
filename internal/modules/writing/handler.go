// Package writing implements the writing-revision mode. It is fully isolated
// from the TCM assistant path: revisions run on plain chat completions with a
// writing-tutor system prompt and never touch the knowledge base.
package writing

import (
	"context"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tcm-emi/linebot-go/internal/bot"
	"github.com/tcm-emi/linebot-go/internal/coach"
	"github.com/tcm-emi/linebot-go/internal/dispatch"
	"github.com/tcm-emi/linebot-go/internal/lineutil"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/session"
	"github.com/tcm-emi/linebot-go/internal/syllabus"
)

// Mode entry/exit keywords.
const (
	enterKeyword    = "寫作修改"
	leaveKeyword    = "離開模式"
	continueKeyword = "繼續練習"
)

// Handler owns everything typed while the user is in writing mode, plus the
// keyword that enters it.
type Handler struct {
	sessions *session.Store
	coach    *coach.Coach
	syl      *syllabus.Syllabus
	pusher   bot.Pusher
	logger   *logger.Logger
}

// New creates the writing-revision handler.
func New(sessions *session.Store, c *coach.Coach, syl *syllabus.Syllabus, pusher bot.Pusher, log *logger.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		coach:    c,
		syl:      syl,
		pusher:   pusher,
		logger:   log.WithModule("writing"),
	}
}

func (h *Handler) Name() string { return "writing" }

// CanHandle claims every message while in writing mode (mode isolation has
// top routing priority) and the enter keyword from any other mode.
func (h *Handler) CanHandle(_ context.Context, ev *bot.Event) bool {
	return ev.Mode == session.ModeWriting || ev.Text == enterKeyword
}

func (h *Handler) Handle(ctx context.Context, ev *bot.Event) (*bot.Reply, error) {
	if ev.Mode != session.ModeWriting {
		return h.enterMode(ctx, ev.UserID, "已切換至【✍️ 寫作修訂】模式，請貼上要修改的段落。"), nil
	}

	switch ev.Text {
	case enterKeyword:
		return bot.NewReply(writingText("你已在【✍️ 寫作修訂】模式～請貼上要修改的段落。")), nil
	case leaveKeyword:
		if err := h.sessions.SetMode(ctx, ev.UserID, session.ModeTCM); err != nil {
			h.logger.WithError(err).WithUserID(ev.UserID).Warn("Mode switch not persisted")
		}
		return bot.NewReply(lineutil.TextWithMainQuickReplies("已離開寫作修訂模式，已切換回中醫問答模式。")), nil
	case continueKeyword:
		return bot.NewReply(writingText("請貼上要修改的段落。")), nil
	}

	return h.reviseAsync(ev), nil
}

func (h *Handler) enterMode(ctx context.Context, userID, confirmation string) *bot.Reply {
	if err := h.sessions.SetMode(ctx, userID, session.ModeWriting); err != nil {
		h.logger.WithError(err).WithUserID(userID).Warn("Mode switch not persisted")
	}
	return bot.NewReply(writingText(confirmation))
}

// reviseAsync acknowledges immediately and runs the revision in the
// background so the reply token is never held across a model call.
func (h *Handler) reviseAsync(ev *bot.Event) *bot.Reply {
	userID, text := ev.UserID, ev.Text

	reply := bot.NewReply(lineutil.NewTextMessage("正在分析你的寫作..."))
	reply.Job = &dispatch.Job{
		Name: "writing_revision",
		Run: func(ctx context.Context) error {
			feedback, err := h.coach.ReviseWriting(ctx, h.syl.WritingInstructions(), text)
			if err != nil {
				h.logger.WithError(err).WithUserID(userID).Warn("Writing revision failed")
				return h.pusher.Push(ctx, userID, writingText("處理時發生錯誤，請再試一次。"))
			}
			return h.pusher.Push(ctx, userID, writingText(feedback))
		},
	}
	return reply
}

func writingText(text string) *messaging_api.TextMessage {
	return lineutil.NewTextMessageWithQuickReply(text, lineutil.WritingQuickReplies()...)
}
