package writing

import (
	"context"
	"io"
	"testing"

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

func newTestHandler(t *testing.T, reply string) (*Handler, *session.Store, *capturePusher) {
	t.Helper()
	mr := miniredis.RunT(t)
	log := logger.NewWithWriter("error", io.Discard)
	m := metrics.New(prometheus.NewRegistry())
	sessions := session.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), log, m)
	c := coach.New(&stubProvider{reply: reply}, nil, log, m)
	pusher := &capturePusher{}
	return New(sessions, c, syllabus.Default(), pusher, log), sessions, pusher
}

func TestCanHandle(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t, "")
	assert.True(t, h.CanHandle(context.Background(), &bot.Event{Mode: session.ModeWriting, Text: "any text"}))
	assert.True(t, h.CanHandle(context.Background(), &bot.Event{Mode: session.ModeTCM, Text: "寫作修改"}))
	assert.False(t, h.CanHandle(context.Background(), &bot.Event{Mode: session.ModeTCM, Text: "經絡是什麼"}))
}

func TestEnterMode(t *testing.T) {
	t.Parallel()

	h, sessions, _ := newTestHandler(t, "")
	reply, err := h.Handle(context.Background(), &bot.Event{UserID: "U1", Mode: session.ModeTCM, Text: "寫作修改"})
	require.NoError(t, err)

	txt := reply.Messages[0].(*messaging_api.TextMessage)
	assert.Contains(t, txt.Text, "已切換至【✍️ 寫作修訂】模式")
	assert.NotNil(t, txt.QuickReply)
	assert.Equal(t, session.ModeWriting, sessions.Mode(context.Background(), "U1"))
}

func TestModeKeywords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{"寫作修改", "你已在【✍️ 寫作修訂】模式"},
		{"繼續練習", "請貼上要修改的段落。"},
		{"離開模式", "已離開寫作修訂模式"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			h, _, _ := newTestHandler(t, "")
			reply, err := h.Handle(context.Background(), &bot.Event{UserID: "U2", Mode: session.ModeWriting, Text: tt.text})
			require.NoError(t, err)
			txt := reply.Messages[0].(*messaging_api.TextMessage)
			assert.Contains(t, txt.Text, tt.want)
		})
	}
}

func TestLeaveModeResetsSession(t *testing.T) {
	t.Parallel()

	h, sessions, _ := newTestHandler(t, "")
	require.NoError(t, sessions.SetMode(context.Background(), "U3", session.ModeWriting))

	_, err := h.Handle(context.Background(), &bot.Event{UserID: "U3", Mode: session.ModeWriting, Text: "離開模式"})
	require.NoError(t, err)
	assert.Equal(t, session.ModeTCM, sessions.Mode(context.Background(), "U3"))
}

func TestRevisionRunsInBackground(t *testing.T) {
	t.Parallel()

	h, _, pusher := newTestHandler(t, "**很好！** 這個句子文法正確。")
	reply, err := h.Handle(context.Background(), &bot.Event{UserID: "U4", Mode: session.ModeWriting, Text: "The qi flow through meridians."})
	require.NoError(t, err)

	txt := reply.Messages[0].(*messaging_api.TextMessage)
	assert.Equal(t, "正在分析你的寫作...", txt.Text)
	require.NotNil(t, reply.Job)
	assert.Equal(t, "writing_revision", reply.Job.Name)

	require.NoError(t, reply.Job.Run(context.Background()))
	assert.Equal(t, "U4", pusher.to)
	require.Len(t, pusher.messages, 1)
	pushed := pusher.messages[0].(*messaging_api.TextMessage)
	assert.Contains(t, pushed.Text, "很好")
	assert.NotNil(t, pushed.QuickReply)
}
