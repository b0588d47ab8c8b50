// Package quiz implements the micro-quiz loop: the yes/no offer after TCM
// answers, quiz generation from the last discussed topic, answer judging with
// weak-category bookkeeping, and proactive review-note offers.
package quiz

import (
	"context"
	"sort"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tcm-emi/linebot-go/internal/bot"
	"github.com/tcm-emi/linebot-go/internal/coach"
	"github.com/tcm-emi/linebot-go/internal/dispatch"
	"github.com/tcm-emi/linebot-go/internal/lineutil"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/session"
	"github.com/tcm-emi/linebot-go/internal/syllabus"
)

const (
	acceptQuiz    = "是"
	declineQuiz   = "否"
	acceptReview  = "要複習筆記"
	declineReview = "不要複習筆記"

	// QuizTTL bounds how long an unanswered quiz stays judgeable.
	QuizTTL = time.Hour

	// Review offers need this many wrong answers in one category.
	weakThreshold = 2

	// reviewCooldown is the minimum gap between proactive review offers.
	reviewCooldown = 7 * 24 * time.Hour
)

// Tutor runs the default question-answering path. The quiz handler delegates
// to it when a stale quiz state turns a reply back into an ordinary question.
type Tutor interface {
	AskReply(ev *bot.Event, ackText string) *bot.Reply
}

// Handler owns the quiz state machine and review-note offers.
type Handler struct {
	sessions *session.Store
	coach    *coach.Coach
	syl      *syllabus.Syllabus
	pusher   bot.Pusher
	tutor    Tutor
	logger   *logger.Logger
	now      func() time.Time
}

// New creates the quiz handler.
func New(sessions *session.Store, c *coach.Coach, syl *syllabus.Syllabus, pusher bot.Pusher, tutor Tutor, log *logger.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		coach:    c,
		syl:      syl,
		pusher:   pusher,
		tutor:    tutor,
		logger:   log.WithModule("quiz"),
		now:      time.Now,
	}
}

func (h *Handler) Name() string { return "quiz" }

// CanHandle claims quiz-waiting replies, the quiz/review keywords, and any
// message from a user who qualifies for a proactive review offer.
func (h *Handler) CanHandle(ctx context.Context, ev *bot.Event) bool {
	if ev.State == session.StateQuizWaiting {
		return true
	}
	switch ev.Text {
	case acceptQuiz, declineQuiz, acceptReview, declineReview:
		return true
	}
	return h.reviewOfferCategory(ctx, ev.UserID) != ""
}

func (h *Handler) Handle(ctx context.Context, ev *bot.Event) (*bot.Reply, error) {
	if ev.State == session.StateQuizWaiting {
		return h.handleQuizReply(ctx, ev), nil
	}

	switch ev.Text {
	case acceptReview:
		return h.handleAcceptReview(ctx, ev.UserID), nil
	case declineReview:
		h.clearPendingReview(ctx, ev.UserID)
		return bot.NewReply(lineutil.TextWithMainQuickReplies("好的，有需要再跟我說～")), nil
	}

	if category := h.reviewOfferCategory(ctx, ev.UserID); category != "" {
		return h.offerReview(ctx, ev.UserID, category), nil
	}

	switch ev.Text {
	case declineQuiz:
		return bot.NewReply(lineutil.TextWithMainQuickReplies("沒問題！如果有其他想了解的，歡迎隨時提問。")), nil
	default: // acceptQuiz
		return h.generateQuizAsync(ev.UserID), nil
	}
}

// handleQuizReply judges the student's answer against the stored quiz. An
// expired quiz clears the stale state and routes the text as a new question.
func (h *Handler) handleQuizReply(ctx context.Context, ev *bot.Event) *bot.Reply {
	userID := ev.UserID

	quiz, err := h.sessions.Quiz(ctx, userID)
	if err != nil {
		if clearErr := h.sessions.ClearState(ctx, userID); clearErr != nil {
			h.logger.WithError(clearErr).WithUserID(userID).Warn("State clear failed")
		}
		return h.tutor.AskReply(ev, "正在分析中...")
	}

	answer := ev.Text
	reply := bot.NewReply(lineutil.NewTextMessage("收到！正在批改你的回答..."))
	reply.Job = &dispatch.Job{
		Name: "quiz_judge",
		Run: func(jobCtx context.Context) error {
			defer h.clearQuizState(jobCtx, userID)

			judgement := h.coach.JudgeQuizAnswer(jobCtx, quiz.Question, answer, quiz.AnswerCriteria)
			category := judgement.Category
			if category == "" || category == coach.DefaultCategory {
				if quiz.Category != "" {
					category = quiz.Category
				}
			}

			feedback := judgement.Feedback
			if !judgement.Correct {
				if _, err := h.sessions.IncrWeakCategory(jobCtx, userID, category); err != nil {
					h.logger.WithError(err).WithUserID(userID).Warn("Weak category not recorded")
				}
				feedback += "\n\n💡 " + h.coach.RevealQuizAnswer(jobCtx, quiz.Question, quiz.AnswerCriteria)
			}
			return h.pusher.Push(jobCtx, userID, lineutil.TextWithMainQuickReplies(feedback))
		},
	}
	return reply
}

// generateQuizAsync acknowledges, then generates and pushes the quiz bubble.
func (h *Handler) generateQuizAsync(userID string) *bot.Reply {
	reply := bot.NewReply(lineutil.NewTextMessage("正在出題中..."))
	reply.Job = &dispatch.Job{
		Name: "quiz_generate",
		Run: func(ctx context.Context) error {
			discussed := h.sessions.LastQuestion(ctx, userID)
			lastAnswer := h.sessions.LastAnswer(ctx, userID)
			weekTopic := ""
			if lec, ok := h.syl.CurrentWeekLecture(h.now()); ok {
				weekTopic = lec.Title
			}

			item := h.coach.GenerateQuiz(ctx, discussed, lastAnswer, weekTopic)
			if err := h.sessions.SetQuiz(ctx, userID, session.QuizData{
				Question:       item.Question,
				AnswerCriteria: item.AnswerCriteria,
				Category:       item.Category,
			}, QuizTTL); err != nil {
				h.logger.WithError(err).WithUserID(userID).Warn("Quiz not persisted")
			}
			if err := h.sessions.SetState(ctx, userID, session.StateQuizWaiting); err != nil {
				h.logger.WithError(err).WithUserID(userID).Warn("Quiz state not persisted")
			}
			return h.pusher.Push(ctx, userID, quizFlexMessage(item.Question))
		},
	}
	return reply
}

func (h *Handler) handleAcceptReview(ctx context.Context, userID string) *bot.Reply {
	category := h.sessions.PendingReviewCategory(ctx, userID)
	h.clearPendingReview(ctx, userID)
	if category == "" {
		return bot.NewReply(lineutil.TextWithMainQuickReplies("好的，有需要再跟我說～"))
	}

	reply := bot.NewReply(lineutil.NewTextMessage("正在為你整理複習筆記..."))
	reply.Job = &dispatch.Job{
		Name: "review_note",
		Run: func(jobCtx context.Context) error {
			note := h.coach.GenerateReviewNote(jobCtx, category)
			if err := h.sessions.ClearWeakCategory(jobCtx, userID, category); err != nil {
				h.logger.WithError(err).WithUserID(userID).Warn("Weak category not cleared")
			}
			return h.pusher.Push(jobCtx, userID,
				lineutil.TextWithMainQuickReplies("📝 【"+category+"】複習筆記\n\n"+note))
		},
	}
	return reply
}

func (h *Handler) offerReview(ctx context.Context, userID, category string) *bot.Reply {
	if err := h.sessions.MarkReviewAsked(ctx, userID); err != nil {
		h.logger.WithError(err).WithUserID(userID).Warn("Review cooldown not persisted")
	}
	if err := h.sessions.SetPendingReviewCategory(ctx, userID, category); err != nil {
		h.logger.WithError(err).WithUserID(userID).Warn("Pending review category not persisted")
	}
	return bot.NewReply(lineutil.NewTextMessageWithQuickReply(
		"發現你對「"+category+"」這部分較不熟，需要幫你整理複習筆記嗎？",
		lineutil.ReviewOfferQuickReplies()...,
	))
}

// reviewOfferCategory returns the weak category to offer a review note for,
// or "" when the user does not qualify (threshold or cooldown).
func (h *Handler) reviewOfferCategory(ctx context.Context, userID string) string {
	if h.sessions.ReviewAskedWithin(ctx, userID, reviewCooldown) {
		return ""
	}
	weak, err := h.sessions.WeakCategories(ctx, userID)
	if err != nil || len(weak) == 0 {
		return ""
	}

	type entry struct {
		category string
		count    int64
	}
	var candidates []entry
	for category, count := range weak {
		if count >= weakThreshold {
			candidates = append(candidates, entry{category, count})
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].count != candidates[j].count {
			return candidates[i].count > candidates[j].count
		}
		return candidates[i].category < candidates[j].category
	})
	return candidates[0].category
}

func (h *Handler) clearQuizState(ctx context.Context, userID string) {
	if err := h.sessions.ClearState(ctx, userID); err != nil {
		h.logger.WithError(err).WithUserID(userID).Warn("State clear failed")
	}
	if err := h.sessions.ClearQuiz(ctx, userID); err != nil {
		h.logger.WithError(err).WithUserID(userID).Warn("Quiz clear failed")
	}
}

func (h *Handler) clearPendingReview(ctx context.Context, userID string) {
	if err := h.sessions.ClearPendingReviewCategory(ctx, userID); err != nil {
		h.logger.WithError(err).WithUserID(userID).Warn("Pending review category not cleared")
	}
}

// quizFlexMessage renders the quiz bubble. The student's next text message is
// judged as the answer.
func quizFlexMessage(question string) *messaging_api.FlexMessage {
	body := lineutil.NewFlexBox("vertical",
		lineutil.NewFlexText("📝 一題小測驗").WithWeight("bold").WithSize("lg").FlexText,
		lineutil.NewFlexText(question).WithWrap(true).WithSize("sm").WithMargin("md").FlexText,
	).WithSpacing("md")

	bubble := lineutil.NewFlexBubble(nil, nil, body, nil)
	alt := lineutil.TruncateRunes("小測驗："+question, 83)
	return lineutil.NewFlexMessage(alt, bubble.FlexBubble)
}
