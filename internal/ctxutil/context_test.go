package ctxutil

import (
	"context"
	"testing"
	"time"
)

func TestUserID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if got := GetUserID(ctx); got != "" {
		t.Errorf("GetUserID(empty) = %q, want empty", got)
	}

	ctx = WithUserID(ctx, "U12345")
	if got := GetUserID(ctx); got != "U12345" {
		t.Errorf("GetUserID() = %q, want U12345", got)
	}
}

func TestChatID(t *testing.T) {
	t.Parallel()

	ctx := WithChatID(context.Background(), "C999")
	if got := GetChatID(ctx); got != "C999" {
		t.Errorf("GetChatID() = %q, want C999", got)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if _, ok := GetRequestID(ctx); ok {
		t.Error("GetRequestID(empty) ok = true, want false")
	}

	ctx = WithRequestID(ctx, "evt-1")
	id, ok := GetRequestID(ctx)
	if !ok || id != "evt-1" {
		t.Errorf("GetRequestID() = %q, %v, want evt-1, true", id, ok)
	}
}

func TestPreserveTracing(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	parent = WithUserID(parent, "U1")
	parent = WithChatID(parent, "C1")
	parent = WithRequestID(parent, "evt-9")

	detached := PreserveTracing(parent)

	// Tracing values survive.
	if GetUserID(detached) != "U1" || GetChatID(detached) != "C1" {
		t.Error("tracing values lost in detached context")
	}
	if id, ok := GetRequestID(detached); !ok || id != "evt-9" {
		t.Error("request ID lost in detached context")
	}

	// Parent deadline does not.
	if _, ok := detached.Deadline(); ok {
		t.Error("detached context inherited a deadline")
	}

	cancel()
	if detached.Err() != nil {
		t.Error("detached context canceled with parent")
	}
}
