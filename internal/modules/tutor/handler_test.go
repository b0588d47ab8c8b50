package tutor

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
	apperrors "github.com/tcm-emi/linebot-go/internal/errors"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/metrics"
	"github.com/tcm-emi/linebot-go/internal/session"
	"github.com/tcm-emi/linebot-go/internal/storage"
	"github.com/tcm-emi/linebot-go/internal/syllabus"
)

const testConfig = `{
	"acupoint_lecture_date": "2026-04-01",
	"tcm_related_keywords": ["中醫", "經絡", "陰陽"],
	"lectures": [
		{"date": "2026-03-04", "title": "經絡系統", "keywords": ["經絡"]},
		{"date": "2026-04-01", "title": "腧穴總論", "keywords": ["穴位"]}
	]
}`

type stubAsker struct {
	answer  string
	err     error
	content string
}

func (s *stubAsker) Ask(_ context.Context, _, content string) (string, error) {
	s.content = content
	return s.answer, s.err
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

type fixture struct {
	handler  *Handler
	sessions *session.Store
	asker    *stubAsker
	pusher   *capturePusher
	db       *storage.DB
}

func newFixture(t *testing.T, asker *stubAsker) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	log := logger.NewWithWriter("error", io.Discard)
	m := metrics.New(prometheus.NewRegistry())
	sessions := session.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), log, m)

	syl, err := syllabus.Parse([]byte(testConfig))
	require.NoError(t, err)

	db, err := storage.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pusher := &capturePusher{}
	h := New(sessions, asker, syl, pusher, db, log, m)
	h.now = func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) }
	return &fixture{handler: h, sessions: sessions, asker: asker, pusher: pusher, db: db}
}

func TestCanHandleIsCatchAll(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubAsker{})
	assert.True(t, f.handler.CanHandle(context.Background(), &bot.Event{Text: "whatever"}))
}

func TestOffTopicFiltered(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubAsker{})
	reply, err := f.handler.Handle(context.Background(), &bot.Event{UserID: "U1", Text: "今晚吃什麼"})
	require.NoError(t, err)

	txt := reply.Messages[0].(*messaging_api.TextMessage)
	assert.Equal(t, syllabus.OffTopicReply, txt.Text)
	assert.Nil(t, reply.Job)
}

func TestFutureTopicLockdown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubAsker{})
	reply, err := f.handler.Handle(context.Background(), &bot.Event{UserID: "U1", Text: "穴位要怎麼找？"})
	require.NoError(t, err)

	txt := reply.Messages[0].(*messaging_api.TextMessage)
	assert.Contains(t, txt.Text, "2026-04-01")
	assert.Contains(t, txt.Text, "腧穴總論")
	assert.Nil(t, reply.Job)
}

func TestTCMAnswerFlow(t *testing.T) {
	t.Parallel()

	asker := &stubAsker{answer: "經絡是氣血運行的通道。\n\n參考資料：課本第三章"}
	f := newFixture(t, asker)
	ctx := context.Background()

	reply, err := f.handler.Handle(ctx, &bot.Event{UserID: "U2", Mode: session.ModeTCM, Text: "經絡是什麼？"})
	require.NoError(t, err)

	ack := reply.Messages[0].(*messaging_api.TextMessage)
	assert.Equal(t, "正在以【🩺 中醫問答】模式分析中...", ack.Text)
	require.NotNil(t, reply.Job)
	assert.Equal(t, "assistant_run", reply.Job.Name)

	require.NoError(t, reply.Job.Run(ctx))

	assert.Contains(t, asker.content, "使用者的話：經絡是什麼？")
	assert.Contains(t, asker.content, "參考資料出處")

	require.Len(t, f.pusher.messages, 1)
	pushed := f.pusher.messages[0].(*messaging_api.TextMessage)
	assert.Contains(t, pushed.Text, "經絡是氣血運行的通道")
	assert.Contains(t, pushed.Text, "僅供教學用途")
	assert.Contains(t, pushed.Text, "是否要進行一題小測驗？")
	require.NotNil(t, pushed.QuickReply)
	assert.Len(t, pushed.QuickReply.Items, 2)

	// The exchange is recorded for quiz generation and the weekly report.
	assert.Equal(t, "經絡是什麼？", f.sessions.LastQuestion(ctx, "U2"))
	assert.NotEmpty(t, f.sessions.LastAnswer(ctx, "U2"))
	count, err := f.db.CountQuestionsSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSpeakingModeAnswerSkipsQuizOffer(t *testing.T) {
	t.Parallel()

	asker := &stubAsker{answer: "Meridians are pathways of qi."}
	f := newFixture(t, asker)
	ctx := context.Background()

	reply, err := f.handler.Handle(ctx, &bot.Event{UserID: "U3", Mode: session.ModeSpeaking, Text: "經絡英文怎麼說？"})
	require.NoError(t, err)
	require.NoError(t, reply.Job.Run(ctx))

	assert.NotContains(t, asker.content, "參考資料出處")
	pushed := f.pusher.messages[0].(*messaging_api.TextMessage)
	assert.NotContains(t, pushed.Text, "小測驗")
	assert.NotContains(t, pushed.Text, "僅供教學用途")
}

func TestTimeoutPushesWaitMessage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubAsker{err: apperrors.ErrAssistantTimeout})
	ctx := context.Background()

	reply, err := f.handler.Handle(ctx, &bot.Event{UserID: "U4", Mode: session.ModeTCM, Text: "經絡是什麼？"})
	require.NoError(t, err)
	require.NoError(t, reply.Job.Run(ctx))

	pushed := f.pusher.messages[0].(*messaging_api.TextMessage)
	assert.Equal(t, timeoutMessage, pushed.Text)

	// Nothing is recorded for a failed run.
	assert.Empty(t, f.sessions.LastQuestion(ctx, "U4"))
}

func TestAskReplyCustomAck(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubAsker{answer: "好的"})
	reply := f.handler.AskReply(&bot.Event{UserID: "U5", Mode: session.ModeTCM, Text: "陰陽是什麼？"}, "正在分析中...")

	ack := reply.Messages[0].(*messaging_api.TextMessage)
	assert.Equal(t, "正在分析中...", ack.Text)
	require.NotNil(t, reply.Job)
}
