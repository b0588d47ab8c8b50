package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tcm-emi/linebot-go/internal/errors"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/metrics"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.NewWithWriter("error", io.Discard)
	m := metrics.New(prometheus.NewRegistry())
	return NewWithClient(rdb, log, m), mr
}

func TestDisabledStore(t *testing.T) {
	t.Parallel()

	log := logger.NewWithWriter("error", io.Discard)
	store, err := New("", log, metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)

	assert.False(t, store.Enabled())
	assert.Equal(t, ModeTCM, store.Mode(context.Background(), "U1"))
	assert.Equal(t, StateNormal, store.State(context.Background(), "U1"))
	assert.ErrorIs(t, store.SetMode(context.Background(), "U1", ModeSpeaking), apperrors.ErrSessionUnavailable)
	assert.ErrorIs(t, store.Ping(context.Background()), apperrors.ErrSessionUnavailable)
}

func TestNewRejectsBadURL(t *testing.T) {
	t.Parallel()

	log := logger.NewWithWriter("error", io.Discard)
	_, err := New("not-a-url", log, metrics.New(prometheus.NewRegistry()))
	assert.Error(t, err)
}

func TestModeRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	// Default before any write.
	assert.Equal(t, ModeTCM, store.Mode(ctx, "U1"))

	require.NoError(t, store.SetMode(ctx, "U1", ModeSpeaking))
	assert.Equal(t, ModeSpeaking, store.Mode(ctx, "U1"))

	require.NoError(t, store.SetMode(ctx, "U1", ModeWriting))
	assert.Equal(t, ModeWriting, store.Mode(ctx, "U1"))

	// Unknown modes are rejected before touching Redis.
	var verr *apperrors.ValidationError
	err := store.SetMode(ctx, "U1", "karaoke")
	require.Error(t, err)
	assert.True(t, errors.As(err, &verr))
}

func TestModeDefaultsOnCorruptValue(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	require.NoError(t, mr.Set("user_mode:U1", "garbage"))
	assert.Equal(t, ModeTCM, store.Mode(context.Background(), "U1"))
}

func TestThreadID(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.Empty(t, store.ThreadID(ctx, "U1"))
	require.NoError(t, store.SetThreadID(ctx, "U1", "thread_abc"))
	assert.Equal(t, "thread_abc", store.ThreadID(ctx, "U1"))
}

func TestStateRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.Equal(t, StateNormal, store.State(ctx, "U1"))

	require.NoError(t, store.SetState(ctx, "U1", StateQuizWaiting))
	assert.Equal(t, StateQuizWaiting, store.State(ctx, "U1"))

	require.NoError(t, store.ClearState(ctx, "U1"))
	assert.Equal(t, StateNormal, store.State(ctx, "U1"))
}

func TestQuizLifecycle(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.Quiz(ctx, "U1")
	assert.ErrorIs(t, err, apperrors.ErrQuizExpired)

	quiz := QuizData{
		Question:       "Which organ stores blood in TCM theory?",
		AnswerCriteria: "the liver",
		Category:       "zang-fu organs",
	}
	require.NoError(t, store.SetQuiz(ctx, "U1", quiz, time.Hour))

	got, err := store.Quiz(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, quiz, *got)

	// TTL expiry surfaces as ErrQuizExpired.
	mr.FastForward(2 * time.Hour)
	_, err = store.Quiz(ctx, "U1")
	assert.ErrorIs(t, err, apperrors.ErrQuizExpired)

	require.NoError(t, store.SetQuiz(ctx, "U1", quiz, time.Hour))
	require.NoError(t, store.ClearQuiz(ctx, "U1"))
	_, err = store.Quiz(ctx, "U1")
	assert.ErrorIs(t, err, apperrors.ErrQuizExpired)
}

func TestWeakCategories(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	n, err := store.IncrWeakCategory(ctx, "U1", "pulse diagnosis")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.IncrWeakCategory(ctx, "U1", "pulse diagnosis")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = store.IncrWeakCategory(ctx, "U1", "five elements")
	require.NoError(t, err)

	cats, err := store.WeakCategories(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"pulse diagnosis": 2, "five elements": 1}, cats)

	require.NoError(t, store.ClearWeakCategory(ctx, "U1", "pulse diagnosis"))
	cats, err = store.WeakCategories(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"five elements": 1}, cats)
}

func TestReviewAskCooldown(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.False(t, store.ReviewAskedWithin(ctx, "U1", 7*24*time.Hour))

	require.NoError(t, store.MarkReviewAsked(ctx, "U1"))
	assert.True(t, store.ReviewAskedWithin(ctx, "U1", 7*24*time.Hour))
	assert.False(t, store.ReviewAskedWithin(ctx, "U1", 0))
}

func TestPendingReviewCategory(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.Empty(t, store.PendingReviewCategory(ctx, "U1"))

	require.NoError(t, store.SetPendingReviewCategory(ctx, "U1", "meridians"))
	assert.Equal(t, "meridians", store.PendingReviewCategory(ctx, "U1"))

	require.NoError(t, store.ClearPendingReviewCategory(ctx, "U1"))
	assert.Empty(t, store.PendingReviewCategory(ctx, "U1"))
}

func TestLastQuestionAndAnswer(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetLastQuestion(ctx, "U1", "什麼是氣?"))
	require.NoError(t, store.SetLastAnswer(ctx, "U1", "Qi is the vital energy..."))

	assert.Equal(t, "什麼是氣?", store.LastQuestion(ctx, "U1"))
	assert.Equal(t, "Qi is the vital energy...", store.LastAnswer(ctx, "U1"))
}

func TestAudioRoundTrip(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.Audio(ctx, "tok1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	payload := []byte{0xff, 0xf1, 0x50, 0x80}
	require.NoError(t, store.PutAudio(ctx, "tok1", payload, 10*time.Minute))

	got, err := store.Audio(ctx, "tok1")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	mr.FastForward(11 * time.Minute)
	_, err = store.Audio(ctx, "tok1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestValidMode(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidMode(ModeTCM))
	assert.True(t, ValidMode(ModeSpeaking))
	assert.True(t, ValidMode(ModeWriting))
	assert.False(t, ValidMode(""))
	assert.False(t, ValidMode("quiz"))
}
