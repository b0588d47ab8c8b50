package quiz

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcm-emi/linebot-go/internal/bot"
	"github.com/tcm-emi/linebot-go/internal/coach"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/metrics"
	"github.com/tcm-emi/linebot-go/internal/session"
	"github.com/tcm-emi/linebot-go/internal/syllabus"
)

type stubProvider struct {
	reply string
}

func (s *stubProvider) Name() string { return coach.ProviderOpenAI }

func (s *stubProvider) Complete(context.Context, coach.Request) (string, error) {
	return s.reply, nil
}

type capturePusher struct {
	to       string
	messages []messaging_api.MessageInterface
}

func (c *capturePusher) Push(_ context.Context, to string, messages ...messaging_api.MessageInterface) error {
	c.to = to
	c.messages = append(c.messages, messages...)
	return nil
}

type stubTutor struct {
	asked   *bot.Event
	ackText string
}

func (s *stubTutor) AskReply(ev *bot.Event, ackText string) *bot.Reply {
	s.asked = ev
	s.ackText = ackText
	return bot.NewReply(&messaging_api.TextMessage{Text: ackText})
}

type fixture struct {
	handler  *Handler
	sessions *session.Store
	pusher   *capturePusher
	tutor    *stubTutor
}

func newFixture(t *testing.T, providerReply string) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	log := logger.NewWithWriter("error", io.Discard)
	m := metrics.New(prometheus.NewRegistry())
	sessions := session.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), log, m)
	c := coach.New(&stubProvider{reply: providerReply}, nil, log, m)

	pusher := &capturePusher{}
	tutor := &stubTutor{}
	return &fixture{
		handler:  New(sessions, c, syllabus.Default(), pusher, tutor, log),
		sessions: sessions,
		pusher:   pusher,
		tutor:    tutor,
	}
}

func TestCanHandle(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	ctx := context.Background()

	assert.True(t, f.handler.CanHandle(ctx, &bot.Event{UserID: "U1", State: session.StateQuizWaiting, Text: "anything"}))
	assert.True(t, f.handler.CanHandle(ctx, &bot.Event{UserID: "U1", Text: "是"}))
	assert.True(t, f.handler.CanHandle(ctx, &bot.Event{UserID: "U1", Text: "否"}))
	assert.True(t, f.handler.CanHandle(ctx, &bot.Event{UserID: "U1", Text: "要複習筆記"}))
	assert.True(t, f.handler.CanHandle(ctx, &bot.Event{UserID: "U1", Text: "不要複習筆記"}))
	assert.False(t, f.handler.CanHandle(ctx, &bot.Event{UserID: "U1", Text: "經絡是什麼"}))
}

func TestCanHandleReviewOffer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	ctx := context.Background()

	ev := &bot.Event{UserID: "U2", Text: "隨便問個問題"}
	assert.False(t, f.handler.CanHandle(ctx, ev))

	for i := 0; i < 2; i++ {
		_, err := f.sessions.IncrWeakCategory(ctx, "U2", "五行")
		require.NoError(t, err)
	}
	assert.True(t, f.handler.CanHandle(ctx, ev))

	// Inside the cooldown window no further offers are made.
	require.NoError(t, f.sessions.MarkReviewAsked(ctx, "U2"))
	assert.False(t, f.handler.CanHandle(ctx, ev))
}

func TestDeclineQuiz(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	reply, err := f.handler.Handle(context.Background(), &bot.Event{UserID: "U3", Text: "否"})
	require.NoError(t, err)

	txt := reply.Messages[0].(*messaging_api.TextMessage)
	assert.Equal(t, "沒問題！如果有其他想了解的，歡迎隨時提問。", txt.Text)
	assert.Nil(t, reply.Job)
}

func TestAcceptQuizGeneratesAndArms(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `{"question":"請說明陰陽的相互關係。","answer_criteria":"對立制約、互根互用","category":"陰陽"}`)
	ctx := context.Background()
	require.NoError(t, f.sessions.SetLastQuestion(ctx, "U4", "陰陽是什麼？"))
	require.NoError(t, f.sessions.SetLastAnswer(ctx, "U4", "陰陽是中醫理論中描述事物兩面性的基礎概念，彼此對立又互相依存。"))

	reply, err := f.handler.Handle(ctx, &bot.Event{UserID: "U4", Text: "是"})
	require.NoError(t, err)

	txt := reply.Messages[0].(*messaging_api.TextMessage)
	assert.Equal(t, "正在出題中...", txt.Text)
	require.NotNil(t, reply.Job)
	assert.Equal(t, "quiz_generate", reply.Job.Name)

	require.NoError(t, reply.Job.Run(ctx))

	require.Len(t, f.pusher.messages, 1)
	flex := f.pusher.messages[0].(*messaging_api.FlexMessage)
	assert.Contains(t, flex.AltText, "小測驗")

	assert.Equal(t, session.StateQuizWaiting, f.sessions.State(ctx, "U4"))
	quiz, err := f.sessions.Quiz(ctx, "U4")
	require.NoError(t, err)
	assert.Equal(t, "陰陽", quiz.Category)
	assert.Contains(t, quiz.Question, "陰陽的相互關係")
}

func TestJudgeWrongAnswerRecordsWeakCategory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `{"feedback":"謝謝作答！不過方向不太對。","category":"五行","correct":false}`)
	ctx := context.Background()
	require.NoError(t, f.sessions.SetQuiz(ctx, "U5", session.QuizData{
		Question:       "小測驗：五行相生的順序為何？",
		AnswerCriteria: "木生火、火生土、土生金、金生水、水生木",
		Category:       "五行",
	}, time.Hour))
	require.NoError(t, f.sessions.SetState(ctx, "U5", session.StateQuizWaiting))

	reply, err := f.handler.Handle(ctx, &bot.Event{UserID: "U5", State: session.StateQuizWaiting, Text: "金生木？"})
	require.NoError(t, err)

	txt := reply.Messages[0].(*messaging_api.TextMessage)
	assert.Equal(t, "收到！正在批改你的回答...", txt.Text)
	require.NotNil(t, reply.Job)
	assert.Equal(t, "quiz_judge", reply.Job.Name)

	require.NoError(t, reply.Job.Run(ctx))

	require.Len(t, f.pusher.messages, 1)
	pushed := f.pusher.messages[0].(*messaging_api.TextMessage)
	assert.Contains(t, pushed.Text, "方向不太對")
	assert.Contains(t, pushed.Text, "💡")

	weak, err := f.sessions.WeakCategories(ctx, "U5")
	require.NoError(t, err)
	assert.Equal(t, int64(1), weak["五行"])

	// The answered quiz is consumed.
	assert.Empty(t, f.sessions.State(ctx, "U5"))
	_, err = f.sessions.Quiz(ctx, "U5")
	assert.Error(t, err)
}

func TestJudgeCorrectAnswerLeavesNoWeakCategory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, `{"feedback":"完全正確，講得很好！","category":"五行","correct":true}`)
	ctx := context.Background()
	require.NoError(t, f.sessions.SetQuiz(ctx, "U6", session.QuizData{
		Question:       "小測驗：五行相生的順序為何？",
		AnswerCriteria: "木生火、火生土、土生金、金生水、水生木",
		Category:       "五行",
	}, time.Hour))
	require.NoError(t, f.sessions.SetState(ctx, "U6", session.StateQuizWaiting))

	reply, err := f.handler.Handle(ctx, &bot.Event{UserID: "U6", State: session.StateQuizWaiting, Text: "木生火，火生土，土生金，金生水，水生木"})
	require.NoError(t, err)
	require.NoError(t, reply.Job.Run(ctx))

	weak, err := f.sessions.WeakCategories(ctx, "U6")
	require.NoError(t, err)
	assert.Empty(t, weak)
}

func TestExpiredQuizFallsBackToTutor(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	ctx := context.Background()
	require.NoError(t, f.sessions.SetState(ctx, "U7", session.StateQuizWaiting))

	ev := &bot.Event{UserID: "U7", State: session.StateQuizWaiting, Text: "針灸有什麼禁忌？"}
	reply, err := f.handler.Handle(ctx, ev)
	require.NoError(t, err)

	require.NotNil(t, f.tutor.asked)
	assert.Equal(t, "針灸有什麼禁忌？", f.tutor.asked.Text)
	assert.Equal(t, "正在分析中...", f.tutor.ackText)
	assert.Empty(t, f.sessions.State(ctx, "U7"))

	txt := reply.Messages[0].(*messaging_api.TextMessage)
	assert.Equal(t, "正在分析中...", txt.Text)
}

func TestReviewOfferAndAccept(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "複習要點：\n- 木生火\n- 火生土")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.sessions.IncrWeakCategory(ctx, "U8", "五行")
		require.NoError(t, err)
	}

	reply, err := f.handler.Handle(ctx, &bot.Event{UserID: "U8", Text: "經絡是什麼"})
	require.NoError(t, err)

	txt := reply.Messages[0].(*messaging_api.TextMessage)
	assert.Contains(t, txt.Text, "「五行」")
	require.NotNil(t, txt.QuickReply)
	assert.Equal(t, "五行", f.sessions.PendingReviewCategory(ctx, "U8"))
	assert.True(t, f.sessions.ReviewAskedWithin(ctx, "U8", time.Hour))

	reply, err = f.handler.Handle(ctx, &bot.Event{UserID: "U8", Text: "要複習筆記"})
	require.NoError(t, err)
	require.NotNil(t, reply.Job)
	assert.Equal(t, "review_note", reply.Job.Name)
	require.NoError(t, reply.Job.Run(ctx))

	require.Len(t, f.pusher.messages, 1)
	pushed := f.pusher.messages[0].(*messaging_api.TextMessage)
	assert.Contains(t, pushed.Text, "📝 【五行】複習筆記")
	assert.Contains(t, pushed.Text, "木生火")

	weak, err := f.sessions.WeakCategories(ctx, "U8")
	require.NoError(t, err)
	assert.Empty(t, weak)
	assert.Empty(t, f.sessions.PendingReviewCategory(ctx, "U8"))
}

func TestAcceptReviewWithoutPendingCategory(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	reply, err := f.handler.Handle(context.Background(), &bot.Event{UserID: "U9", Text: "要複習筆記"})
	require.NoError(t, err)

	txt := reply.Messages[0].(*messaging_api.TextMessage)
	assert.Equal(t, "好的，有需要再跟我說～", txt.Text)
	assert.Nil(t, reply.Job)
}

func TestDeclineReview(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "")
	ctx := context.Background()
	require.NoError(t, f.sessions.SetPendingReviewCategory(ctx, "U10", "五行"))

	reply, err := f.handler.Handle(ctx, &bot.Event{UserID: "U10", Text: "不要複習筆記"})
	require.NoError(t, err)

	txt := reply.Messages[0].(*messaging_api.TextMessage)
	assert.Equal(t, "好的，有需要再跟我說～", txt.Text)
	assert.Empty(t, f.sessions.PendingReviewCategory(ctx, "U10"))
}
