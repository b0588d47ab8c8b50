// Package courseops answers course-operations inquiries (grading, schedule,
// assignments, weekly focus) with a Flex bubble built from the syllabus.
// No AI call is involved; answers are canned course data.
package courseops

import (
	"context"
	"net/url"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/tcm-emi/linebot-go/internal/bot"
	"github.com/tcm-emi/linebot-go/internal/lineutil"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/syllabus"
)

const altText = "📋 課務查詢與本週重點"

// Handler serves course-inquiry keywords and the course/weekly postbacks.
type Handler struct {
	syl    *syllabus.Syllabus
	logger *logger.Logger
	now    func() time.Time
}

// New creates the course-operations handler.
func New(syl *syllabus.Syllabus, log *logger.Logger) *Handler {
	return &Handler{
		syl:    syl,
		logger: log.WithModule("courseops"),
		now:    time.Now,
	}
}

func (h *Handler) Name() string { return "courseops" }

// CanHandle claims grading / schedule / assignment / weekly-focus intents.
func (h *Handler) CanHandle(_ context.Context, ev *bot.Event) bool {
	return h.syl.IsCourseInquiry(ev.Text)
}

func (h *Handler) Handle(_ context.Context, _ *bot.Event) (*bot.Reply, error) {
	return bot.NewReply(h.flexMessage()), nil
}

// HandlePostback serves the rich menu's course cell and the weekly-focus
// button; both return the same bubble.
func (h *Handler) HandlePostback(_ context.Context, _ string, params url.Values) (*bot.Reply, bool, error) {
	switch params.Get("action") {
	case "course", "weekly":
		return bot.NewReply(h.flexMessage()), true, nil
	default:
		return nil, false, nil
	}
}

func (h *Handler) flexMessage() *messaging_api.FlexMessage {
	today := h.now()
	info := h.syl.Info()

	body := lineutil.NewBodyContentBuilder()
	if current, ok := h.syl.CurrentWeekLecture(today); ok {
		body.AddInfoRow("📌", "本週重點", lectureLine(current), lineutil.InfoRowStyle{
			ValueSize:   "sm",
			ValueWeight: "bold",
			ValueColor:  lineutil.ColorText,
			Wrap:        true,
		})
	}
	if next, ok := h.syl.NextLecture(today); ok {
		body.AddInfoRow("🔜", "下週預告", lectureLine(next), lineutil.DefaultInfoRowStyle())
	}
	body.AddInfoRowIf("🧮", "評分方式", info.Grading, lineutil.DefaultInfoRowStyle())
	body.AddInfoRowIf("🗓️", "課程進度", info.Schedule, lineutil.DefaultInfoRowStyle())
	body.AddInfoRowIf("📝", "作業與報告", info.Assignments, lineutil.DefaultInfoRowStyle())

	bubble := lineutil.NewFlexBubble(
		nil,
		lineutil.NewHeroBox("📋 課務查詢", "本週重點與課程資訊").FlexBox,
		body.Build(),
		nil,
	)
	return lineutil.NewFlexMessageWithQuickReply(altText, bubble.FlexBubble, lineutil.MainQuickReplies()...)
}

func lectureLine(lec syllabus.Lecture) string {
	return lec.Date.Format("01/02") + " " + lec.Title
}
