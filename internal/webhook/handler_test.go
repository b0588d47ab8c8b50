package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcm-emi/linebot-go/internal/bot"
	"github.com/tcm-emi/linebot-go/internal/config"
	"github.com/tcm-emi/linebot-go/internal/dispatch"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/metrics"
	"github.com/tcm-emi/linebot-go/internal/session"
)

const testChannelSecret = "test_channel_secret"

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	mr := miniredis.RunT(t)
	log := logger.NewWithWriter("error", io.Discard)
	m := metrics.New(prometheus.NewRegistry())
	sessions := session.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), log, m)

	messenger, err := bot.NewMessenger("test_channel_token", 100, log, m)
	require.NoError(t, err)

	processor := bot.NewProcessor(bot.ProcessorConfig{
		Registry: bot.NewRegistry(),
		Sessions: sessions,
		Logger:   log,
		Metrics:  m,
	})

	dispatcher := dispatch.New(1, 4, log, m)
	t.Cleanup(func() { _ = dispatcher.Stop(time.Second) })

	return NewHandler(HandlerConfig{
		ChannelSecret: testChannelSecret,
		BotConfig: &config.BotConfig{
			MaxMessagesPerReply: 5,
			MaxEventsPerWebhook: 100,
			MinReplyTokenLength: 10,
		},
		Messenger:  messenger,
		Processor:  processor,
		Dispatcher: dispatcher,
		Metrics:    m,
		Logger:     log,
	})
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testChannelSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postWebhook(h *Handler, body []byte, signature string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	req := httptest.NewRequest(http.MethodPost, "/callback", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-line-signature", signature)
	c.Request = req

	h.Handle(c)
	c.Writer.WriteHeaderNow()
	return rec
}

func TestHandlerInitialization(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	assert.Equal(t, testChannelSecret, h.channelSecret)
	assert.Equal(t, 5, h.maxMessagesPerReply)
	assert.Equal(t, 100, h.maxEventsPerWebhook)
	assert.Equal(t, 10, h.minReplyTokenLength)
	assert.NotNil(t, h.messenger)
	assert.NotNil(t, h.dispatcher)
}

func TestHandleInvalidSignature(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	body := []byte(`{"destination":"xxx","events":[]}`)
	rec := postWebhook(h, body, "bogus-signature")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleValidSignature(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	body := []byte(`{"destination":"xxx","events":[]}`)
	rec := postWebhook(h, body, signBody(body))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, h.Shutdown(context.Background()))
}

func TestHandleMalformedBody(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	body := []byte(`{"destination":`)
	rec := postWebhook(h, body, signBody(body))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetReplyToken(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "msg-token", getReplyToken(webhook.MessageEvent{ReplyToken: "msg-token"}))
	assert.Equal(t, "pb-token", getReplyToken(webhook.PostbackEvent{ReplyToken: "pb-token"}))
	assert.Equal(t, "follow-token", getReplyToken(webhook.FollowEvent{ReplyToken: "follow-token"}))
	assert.Empty(t, getReplyToken(webhook.UnfollowEvent{}))
}

func TestPersonalChatID(t *testing.T) {
	t.Parallel()

	user := webhook.MessageEvent{Source: webhook.UserSource{UserId: "U123"}}
	assert.Equal(t, "U123", personalChatID(user))

	group := webhook.MessageEvent{Source: webhook.GroupSource{GroupId: "G123"}}
	assert.Empty(t, personalChatID(group))

	assert.Equal(t, "U456", personalChatID(webhook.FollowEvent{Source: webhook.UserSource{UserId: "U456"}}))
	assert.Empty(t, personalChatID(webhook.UnfollowEvent{}))
}

func TestWantsLoading(t *testing.T) {
	t.Parallel()

	text := webhook.MessageEvent{Message: webhook.TextMessageContent{Text: "hi"}}
	assert.True(t, wantsLoading(text))

	audio := webhook.MessageEvent{Message: webhook.AudioMessageContent{Id: "m1"}}
	assert.True(t, wantsLoading(audio))

	sticker := webhook.MessageEvent{Message: webhook.StickerMessageContent{}}
	assert.False(t, wantsLoading(sticker))

	assert.True(t, wantsLoading(webhook.PostbackEvent{}))
	assert.False(t, wantsLoading(webhook.FollowEvent{}))
}

func TestExtractEventMeta(t *testing.T) {
	t.Parallel()

	ev := webhook.MessageEvent{
		WebhookEventId:  "evt-1",
		Timestamp:       1700000000000,
		DeliveryContext: &webhook.DeliveryContext{IsRedelivery: true},
	}
	id, ts, redelivery := extractEventMeta(ev)
	assert.Equal(t, "evt-1", id)
	assert.EqualValues(t, 1700000000000, ts)
	require.NotNil(t, redelivery)
	assert.True(t, *redelivery)

	id, ts, redelivery = extractEventMeta(webhook.UnfollowEvent{})
	assert.Empty(t, id)
	assert.Zero(t, ts)
	assert.Nil(t, redelivery)
}

func TestShutdownCanceledContext(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t)

	// Nothing in flight: even a canceled context may win the race, so only
	// check that Shutdown returns promptly.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = h.Shutdown(ctx)
}
