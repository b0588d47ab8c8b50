// Package tutor is the default route: TCM questions answered by the course
// assistant over the lecture knowledge base. It also applies the off-topic
// filter and the lecture-date lockdown before any model call.
package tutor

import (
	"context"
	"errors"
	"time"

	"github.com/tcm-emi/linebot-go/internal/assistant"
	"github.com/tcm-emi/linebot-go/internal/bot"
	"github.com/tcm-emi/linebot-go/internal/dispatch"
	apperrors "github.com/tcm-emi/linebot-go/internal/errors"
	"github.com/tcm-emi/linebot-go/internal/lineutil"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/metrics"
	"github.com/tcm-emi/linebot-go/internal/session"
	"github.com/tcm-emi/linebot-go/internal/storage"
	"github.com/tcm-emi/linebot-go/internal/syllabus"
)

const (
	timeoutMessage = "正在努力翻閱典籍/資料中，請稍候再問我一次。"
	quizOfferText  = "\n\n是否要進行一題小測驗？"
)

// Asker runs one question against the course assistant.
// Satisfied by *assistant.Client.
type Asker interface {
	Ask(ctx context.Context, userID, content string) (string, error)
}

// Handler answers everything no other handler claimed.
type Handler struct {
	sessions  *session.Store
	assistant Asker
	syl       *syllabus.Syllabus
	pusher    bot.Pusher
	questions *storage.DB
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// New creates the tutor handler. questions may be nil when the question log
// is disabled.
func New(sessions *session.Store, a Asker, syl *syllabus.Syllabus, pusher bot.Pusher, questions *storage.DB, log *logger.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		sessions:  sessions,
		assistant: a,
		syl:       syl,
		pusher:    pusher,
		questions: questions,
		logger:    log.WithModule("tutor"),
		metrics:   m,
		now:       time.Now,
	}
}

func (h *Handler) Name() string { return "tutor" }

// CanHandle always claims; the tutor must be registered last.
func (h *Handler) CanHandle(context.Context, *bot.Event) bool { return true }

func (h *Handler) Handle(_ context.Context, ev *bot.Event) (*bot.Reply, error) {
	if h.syl.IsOffTopic(ev.Text) {
		return bot.NewReply(lineutil.TextWithMainQuickReplies(syllabus.OffTopicReply)), nil
	}
	if reply, ok := h.syl.FutureTopicReply(ev.Text, h.now()); ok {
		return bot.NewReply(lineutil.TextWithMainQuickReplies(reply)), nil
	}

	ack := "正在以【" + session.ModeLabel(ev.Mode) + "】模式分析中..."
	return h.AskReply(ev, ack), nil
}

// AskReply acknowledges immediately and runs the assistant in the background.
// Other handlers reuse it when a message degrades into an ordinary question.
func (h *Handler) AskReply(ev *bot.Event, ackText string) *bot.Reply {
	userID, text, mode := ev.UserID, ev.Text, ev.Mode

	reply := bot.NewReply(lineutil.NewTextMessage(ackText))
	reply.Job = &dispatch.Job{
		Name: "assistant_run",
		Run: func(ctx context.Context) error {
			answer, err := h.assistant.Ask(ctx, userID, h.buildContent(text, mode))
			if err != nil {
				return h.pushFailure(ctx, userID, err)
			}

			h.recordQuestion(ctx, userID, text, answer)

			if mode == session.ModeTCM || mode == "" {
				answer = assistant.AppendDisclaimer(answer)
				return h.pusher.Push(ctx, userID, lineutil.NewTextMessageWithQuickReply(
					answer+quizOfferText,
					lineutil.QuizOfferQuickReplies()...,
				))
			}
			return h.pusher.Push(ctx, userID, lineutil.TextWithMainQuickReplies(answer))
		},
	}
	return reply
}

// buildContent frames the student's message with the retrieval rules and the
// active mode so the assistant answers in the right register.
func (h *Handler) buildContent(text, mode string) string {
	content := h.syl.RetrievalInstructions(h.now()) +
		"\n\n【" + session.ModeLabel(mode) + "】\n使用者的話：" + text
	if mode == session.ModeTCM || mode == "" {
		content += "\n(提醒：回答末尾請提供參考資料出處)"
	}
	return content
}

func (h *Handler) pushFailure(ctx context.Context, userID string, err error) error {
	if errors.Is(err, apperrors.ErrAssistantTimeout) {
		h.logger.WithUserID(userID).Warn("Assistant run timed out")
		return h.pusher.Push(ctx, userID, lineutil.TextWithMainQuickReplies(timeoutMessage))
	}
	h.logger.WithError(err).WithUserID(userID).Error("Assistant run failed")
	return h.pusher.Push(ctx, userID, lineutil.TextWithMainQuickReplies("處理時發生錯誤，請再試一次。"))
}

// recordQuestion feeds the weekly report and the quiz generator. Neither is
// allowed to fail the answer delivery.
func (h *Handler) recordQuestion(ctx context.Context, userID, text, answer string) {
	if h.questions != nil {
		if err := h.questions.InsertQuestion(ctx, userID, text, h.now()); err != nil {
			h.logger.WithError(err).WithUserID(userID).Warn("Question not logged")
		} else {
			h.metrics.RecordQuestionLogged()
		}
	}
	if err := h.sessions.SetLastQuestion(ctx, userID, text); err != nil {
		h.logger.WithError(err).WithUserID(userID).Warn("Last question not persisted")
	}
	if err := h.sessions.SetLastAnswer(ctx, userID, answer); err != nil {
		h.logger.WithError(err).WithUserID(userID).Warn("Last answer not persisted")
	}
}
