package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	t.Parallel()

	t.Run("wrapped sentinel matches with errors.Is", func(t *testing.T) {
		t.Parallel()
		wrapped := fmt.Errorf("run poll: %w", ErrAssistantTimeout)
		if !errors.Is(wrapped, ErrAssistantTimeout) {
			t.Error("errors.Is() = false, want true for wrapped ErrAssistantTimeout")
		}
	})

	t.Run("distinct sentinels do not match", func(t *testing.T) {
		t.Parallel()
		if errors.Is(ErrNotFound, ErrSessionUnavailable) {
			t.Error("ErrNotFound should not match ErrSessionUnavailable")
		}
	})
}

func TestValidationError(t *testing.T) {
	t.Parallel()
	err := NewValidationError("mode", "unknown mode value")
	want := "validation failed on mode: unknown mode value"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestCoachError(t *testing.T) {
	t.Parallel()

	t.Run("includes status code when present", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("boom")
		err := NewCoachError("openai", "quiz_generate", 429, cause)
		got := err.Error()
		want := "coach error (provider=openai, task=quiz_generate, status=429): boom"
		if got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	})

	t.Run("omits status code when zero", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("boom")
		err := NewCoachError("gemini", "speech_eval", 0, cause)
		got := err.Error()
		want := "coach error (provider=gemini, task=speech_eval): boom"
		if got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	})

	t.Run("unwraps to cause", func(t *testing.T) {
		t.Parallel()
		cause := ErrRateLimitExceeded
		err := NewCoachError("openai", "writing_revise", 429, cause)
		if !errors.Is(err, ErrRateLimitExceeded) {
			t.Error("errors.Is() = false, want true for wrapped cause")
		}
	})
}

func TestWrappedError(t *testing.T) {
	t.Parallel()

	w := NewWrapper("quiz", "judge_answer")

	t.Run("nil error passes through", func(t *testing.T) {
		t.Parallel()
		if got := w.Wrap(nil, "ignored"); got != nil {
			t.Errorf("Wrap(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps cause and keeps user message", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("redis down")
		err := w.Wrap(cause, "測驗暫時無法使用")
		if !errors.Is(err, cause) {
			t.Error("wrapped error should unwrap to cause")
		}
		if got := GetUserMessage(err); got != "測驗暫時無法使用" {
			t.Errorf("GetUserMessage() = %q", got)
		}
	})

	t.Run("GetUserMessage falls back to Error()", func(t *testing.T) {
		t.Parallel()
		plain := errors.New("plain failure")
		if got := GetUserMessage(plain); got != "plain failure" {
			t.Errorf("GetUserMessage() = %q", got)
		}
	})
}
