// Package session provides the per-user conversation state store backed by Redis.
// It tracks the active pedagogical mode, the assistant thread, the quiz state
// machine, weak-category counters and short-lived TTS audio blobs.
//
// All reads degrade gracefully: when Redis is unreachable the caller gets the
// default mode and the failure is logged, never surfaced to the user.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/tcm-emi/linebot-go/internal/errors"
	"github.com/tcm-emi/linebot-go/internal/logger"
	"github.com/tcm-emi/linebot-go/internal/metrics"
)

// Pedagogical modes.
const (
	ModeTCM      = "tcm"
	ModeSpeaking = "speaking"
	ModeWriting  = "writing"
)

// Conversation states.
const (
	StateNormal      = "normal"
	StateQuizWaiting = "quiz_waiting"
)

// ModeLabel returns the user-facing label for a mode. Unknown modes fall
// back to the TCM Q&A label.
func ModeLabel(mode string) string {
	switch mode {
	case ModeSpeaking:
		return "🗣️ 口說練習"
	case ModeWriting:
		return "✍️ 寫作修訂"
	default:
		return "🩺 中醫問答"
	}
}

// ValidMode reports whether mode is one of the known pedagogical modes.
func ValidMode(mode string) bool {
	switch mode {
	case ModeTCM, ModeSpeaking, ModeWriting:
		return true
	default:
		return false
	}
}

// QuizData is the pending quiz payload stored while a user answer is awaited.
type QuizData struct {
	Question       string `json:"question"`
	AnswerCriteria string `json:"answer_criteria"`
	Category       string `json:"category"`
}

// Store wraps a Redis client with the bot's key schema.
// A Store with a nil client is valid and reports Enabled() == false;
// every read then returns defaults and every write is a no-op.
type Store struct {
	rdb     *redis.Client
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// New creates a session store from a Redis URL (redis:// or rediss://).
// An empty URL returns a disabled store, not an error.
func New(redisURL string, log *logger.Logger, m *metrics.Metrics) (*Store, error) {
	if redisURL == "" {
		return &Store{logger: log, metrics: m}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("session: parse redis url: %w", err)
	}

	return &Store{
		rdb:     redis.NewClient(opts),
		logger:  log,
		metrics: m,
	}, nil
}

// NewWithClient creates a store around an existing Redis client.
func NewWithClient(rdb *redis.Client, log *logger.Logger, m *metrics.Metrics) *Store {
	return &Store{rdb: rdb, logger: log, metrics: m}
}

// Enabled returns true if a Redis client is configured.
func (s *Store) Enabled() bool {
	return s.rdb != nil
}

// Ping verifies connectivity to Redis.
func (s *Store) Ping(ctx context.Context) error {
	if s.rdb == nil {
		return apperrors.ErrSessionUnavailable
	}
	return s.rdb.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Key builders. User IDs are opaque LINE identifiers.

func modeKey(userID string) string            { return "user_mode:" + userID }
func threadKey(userID string) string          { return "user_thread:" + userID }
func stateKey(userID string) string           { return "user_state:" + userID }
func quizKey(userID string) string            { return "quiz_data:" + userID }
func weakKey(userID string) string            { return "user_weak:" + userID }
func reviewAskKey(userID string) string       { return "last_review_ask:" + userID }
func pendingReviewKey(userID string) string   { return "pending_review_category:" + userID }
func lastQuestionKey(userID string) string    { return "last_question:" + userID }
func lastAnswerKey(userID string) string      { return "last_assistant_message:" + userID }
func audioKey(token string) string            { return "tts_audio:" + token }

// Mode returns the user's active mode, defaulting to ModeTCM when the key is
// missing, the value is unknown, or Redis is unavailable.
func (s *Store) Mode(ctx context.Context, userID string) string {
	if s.rdb == nil {
		return ModeTCM
	}

	val, err := s.rdb.Get(ctx, modeKey(userID)).Result()
	switch {
	case err == redis.Nil:
		s.record("get_mode", "miss")
		return ModeTCM
	case err != nil:
		s.record("get_mode", "error")
		s.logger.WithError(err).WithUserID(userID).Warn("Session read failed, defaulting mode")
		return ModeTCM
	}

	if !ValidMode(val) {
		return ModeTCM
	}
	s.record("get_mode", "hit")
	return val
}

// SetMode stores the user's active mode and verifies the write at debug level.
func (s *Store) SetMode(ctx context.Context, userID, mode string) error {
	if !ValidMode(mode) {
		return apperrors.NewValidationError("mode", "unknown mode "+mode)
	}
	if s.rdb == nil {
		return apperrors.ErrSessionUnavailable
	}

	if err := s.rdb.Set(ctx, modeKey(userID), mode, 0).Err(); err != nil {
		s.record("set_mode", "error")
		return fmt.Errorf("session: set mode: %w", err)
	}
	s.record("set_mode", "success")

	// Read-back verification, diagnostic only.
	if back, err := s.rdb.Get(ctx, modeKey(userID)).Result(); err == nil {
		s.logger.WithUserID(userID).
			WithField("mode", mode).
			WithField("read_back", back).
			Debug("Mode updated")
	}
	return nil
}

// ThreadID returns the stored assistant thread ID for the user, or "" when absent.
func (s *Store) ThreadID(ctx context.Context, userID string) string {
	return s.getString(ctx, "get_thread", threadKey(userID))
}

// SetThreadID stores the assistant thread ID for the user.
func (s *Store) SetThreadID(ctx context.Context, userID, threadID string) error {
	return s.setString(ctx, "set_thread", threadKey(userID), threadID, 0)
}

// State returns the conversation state, defaulting to StateNormal.
func (s *Store) State(ctx context.Context, userID string) string {
	val := s.getString(ctx, "get_state", stateKey(userID))
	if val == "" {
		return StateNormal
	}
	return val
}

// SetState stores the conversation state.
func (s *Store) SetState(ctx context.Context, userID, state string) error {
	return s.setString(ctx, "set_state", stateKey(userID), state, 0)
}

// ClearState resets the conversation state to normal.
func (s *Store) ClearState(ctx context.Context, userID string) error {
	return s.setString(ctx, "set_state", stateKey(userID), StateNormal, 0)
}

// SetQuiz stores the pending quiz payload with the given TTL.
func (s *Store) SetQuiz(ctx context.Context, userID string, quiz QuizData, ttl time.Duration) error {
	if s.rdb == nil {
		return apperrors.ErrSessionUnavailable
	}

	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("session: marshal quiz: %w", err)
	}
	if err := s.rdb.Set(ctx, quizKey(userID), data, ttl).Err(); err != nil {
		s.record("set_quiz", "error")
		return fmt.Errorf("session: set quiz: %w", err)
	}
	s.record("set_quiz", "success")
	return nil
}

// Quiz returns the pending quiz payload.
// Returns ErrQuizExpired when no quiz is stored (missing or TTL elapsed).
func (s *Store) Quiz(ctx context.Context, userID string) (*QuizData, error) {
	if s.rdb == nil {
		return nil, apperrors.ErrSessionUnavailable
	}

	raw, err := s.rdb.Get(ctx, quizKey(userID)).Result()
	if err == redis.Nil {
		s.record("get_quiz", "miss")
		return nil, apperrors.ErrQuizExpired
	}
	if err != nil {
		s.record("get_quiz", "error")
		return nil, fmt.Errorf("session: get quiz: %w", err)
	}

	var quiz QuizData
	if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
		return nil, fmt.Errorf("session: unmarshal quiz: %w", err)
	}
	s.record("get_quiz", "hit")
	return &quiz, nil
}

// ClearQuiz deletes the pending quiz payload.
func (s *Store) ClearQuiz(ctx context.Context, userID string) error {
	if s.rdb == nil {
		return apperrors.ErrSessionUnavailable
	}
	return s.rdb.Del(ctx, quizKey(userID)).Err()
}

// IncrWeakCategory increments the miss counter for a category and returns the
// new count.
func (s *Store) IncrWeakCategory(ctx context.Context, userID, category string) (int64, error) {
	if s.rdb == nil {
		return 0, apperrors.ErrSessionUnavailable
	}
	count, err := s.rdb.HIncrBy(ctx, weakKey(userID), category, 1).Result()
	if err != nil {
		s.record("weak_incr", "error")
		return 0, fmt.Errorf("session: incr weak category: %w", err)
	}
	s.record("weak_incr", "success")
	return count, nil
}

// WeakCategories returns all weak-category counters for the user.
func (s *Store) WeakCategories(ctx context.Context, userID string) (map[string]int64, error) {
	if s.rdb == nil {
		return nil, apperrors.ErrSessionUnavailable
	}
	raw, err := s.rdb.HGetAll(ctx, weakKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: weak categories: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for cat, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[cat] = n
	}
	return out, nil
}

// ClearWeakCategory removes one category counter after a review note is issued.
func (s *Store) ClearWeakCategory(ctx context.Context, userID, category string) error {
	if s.rdb == nil {
		return apperrors.ErrSessionUnavailable
	}
	return s.rdb.HDel(ctx, weakKey(userID), category).Err()
}

// ReviewAskedWithin reports whether a review offer was made within the window.
func (s *Store) ReviewAskedWithin(ctx context.Context, userID string, window time.Duration) bool {
	raw := s.getString(ctx, "review_ask", reviewAskKey(userID))
	if raw == "" {
		return false
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return time.Since(time.Unix(ts, 0)) < window
}

// MarkReviewAsked records the current time as the last review offer.
func (s *Store) MarkReviewAsked(ctx context.Context, userID string) error {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	return s.setString(ctx, "review_ask", reviewAskKey(userID), now, 0)
}

// SetPendingReviewCategory stores the category awaiting a yes/no review answer.
func (s *Store) SetPendingReviewCategory(ctx context.Context, userID, category string) error {
	return s.setString(ctx, "pending_review", pendingReviewKey(userID), category, 0)
}

// PendingReviewCategory returns the category awaiting a review answer, or "".
func (s *Store) PendingReviewCategory(ctx context.Context, userID string) string {
	return s.getString(ctx, "pending_review", pendingReviewKey(userID))
}

// ClearPendingReviewCategory removes the pending review marker.
func (s *Store) ClearPendingReviewCategory(ctx context.Context, userID string) error {
	if s.rdb == nil {
		return apperrors.ErrSessionUnavailable
	}
	return s.rdb.Del(ctx, pendingReviewKey(userID)).Err()
}

// SetLastQuestion stores the most recent question text for quiz topic seeding.
func (s *Store) SetLastQuestion(ctx context.Context, userID, question string) error {
	return s.setString(ctx, "last_question", lastQuestionKey(userID), question, 0)
}

// LastQuestion returns the most recent question text, or "".
func (s *Store) LastQuestion(ctx context.Context, userID string) string {
	return s.getString(ctx, "last_question", lastQuestionKey(userID))
}

// SetLastAnswer stores the most recent assistant answer.
func (s *Store) SetLastAnswer(ctx context.Context, userID, answer string) error {
	return s.setString(ctx, "last_answer", lastAnswerKey(userID), answer, 0)
}

// LastAnswer returns the most recent assistant answer, or "".
func (s *Store) LastAnswer(ctx context.Context, userID string) string {
	return s.getString(ctx, "last_answer", lastAnswerKey(userID))
}

// PutAudio stores a TTS audio blob under an opaque token with the given TTL.
// Used as the fallback delivery path when no media store is configured.
func (s *Store) PutAudio(ctx context.Context, token string, data []byte, ttl time.Duration) error {
	if s.rdb == nil {
		return apperrors.ErrSessionUnavailable
	}
	if err := s.rdb.Set(ctx, audioKey(token), data, ttl).Err(); err != nil {
		s.record("put_audio", "error")
		return fmt.Errorf("session: put audio: %w", err)
	}
	s.record("put_audio", "success")
	return nil
}

// Audio returns a stored TTS audio blob.
// Returns ErrNotFound when the token is unknown or expired.
func (s *Store) Audio(ctx context.Context, token string) ([]byte, error) {
	if s.rdb == nil {
		return nil, apperrors.ErrSessionUnavailable
	}
	data, err := s.rdb.Get(ctx, audioKey(token)).Bytes()
	if err == redis.Nil {
		s.record("get_audio", "miss")
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		s.record("get_audio", "error")
		return nil, fmt.Errorf("session: get audio: %w", err)
	}
	s.record("get_audio", "hit")
	return data, nil
}

func (s *Store) getString(ctx context.Context, op, key string) string {
	if s.rdb == nil {
		return ""
	}
	val, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		s.record(op, "miss")
		return ""
	}
	if err != nil {
		s.record(op, "error")
		s.logger.WithError(err).WithField("key", key).Warn("Session read failed")
		return ""
	}
	s.record(op, "hit")
	return val
}

func (s *Store) setString(ctx context.Context, op, key, val string, ttl time.Duration) error {
	if s.rdb == nil {
		return apperrors.ErrSessionUnavailable
	}
	if err := s.rdb.Set(ctx, key, val, ttl).Err(); err != nil {
		s.record(op, "error")
		return fmt.Errorf("session: set %s: %w", op, err)
	}
	s.record(op, "success")
	return nil
}

func (s *Store) record(op, status string) {
	if s.metrics != nil {
		s.metrics.RecordSessionOp(op, status)
	}
}
