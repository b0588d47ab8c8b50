package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestMultiHandler(t *testing.T) {
	t.Parallel()

	t.Run("fans out to all handlers", func(t *testing.T) {
		t.Parallel()
		var a, b bytes.Buffer
		mh := NewMultiHandler(
			slog.NewJSONHandler(&a, nil),
			slog.NewJSONHandler(&b, nil),
		)
		log := slog.New(mh)
		log.Info("both")

		if !strings.Contains(a.String(), "both") {
			t.Error("first handler missed record")
		}
		if !strings.Contains(b.String(), "both") {
			t.Error("second handler missed record")
		}
	})

	t.Run("skips nil handlers", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		mh := NewMultiHandler(nil, slog.NewJSONHandler(&buf, nil), nil)
		slog.New(mh).Info("one")
		if !strings.Contains(buf.String(), "one") {
			t.Error("record not delivered")
		}
	})

	t.Run("enabled when any handler is enabled", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		errOnly := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError})
		debug := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
		mh := NewMultiHandler(errOnly, debug)

		if !mh.Enabled(context.Background(), slog.LevelDebug) {
			t.Error("Enabled() = false, want true with a debug handler present")
		}
	})

	t.Run("WithAttrs applies to all handlers", func(t *testing.T) {
		t.Parallel()
		var a, b bytes.Buffer
		mh := NewMultiHandler(
			slog.NewJSONHandler(&a, nil),
			slog.NewJSONHandler(&b, nil),
		)
		log := slog.New(mh.WithAttrs([]slog.Attr{slog.String("mode", "speaking")}))
		log.Info("tagged")

		for name, buf := range map[string]*bytes.Buffer{"a": &a, "b": &b} {
			if !strings.Contains(buf.String(), `"mode":"speaking"`) {
				t.Errorf("handler %s missing attr: %s", name, buf.String())
			}
		}
	})
}
