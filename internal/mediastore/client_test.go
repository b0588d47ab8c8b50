package mediastore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
)

func TestNew_Disabled(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), Config{})
	if err != nil {
		t.Fatalf("New with empty endpoint: %v", err)
	}
	if c.Enabled() {
		t.Error("empty config should produce a disabled client")
	}

	if _, err := c.Upload(context.Background(), "audio/x.mp3", strings.NewReader("x"), "audio/mpeg"); err == nil {
		t.Error("Upload on disabled client should fail")
	}
	if _, err := c.Download(context.Background(), "audio/x.mp3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download on disabled client = %v, want ErrNotFound", err)
	}
}

func TestNew_IncompleteConfig(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Endpoint: "https://acct.r2.cloudflarestorage.com"})
	if err == nil {
		t.Error("endpoint without credentials should fail")
	}
}

func TestPublicURL(t *testing.T) {
	t.Parallel()

	c := &Client{publicBaseURL: "https://media.example.com"}
	got := c.PublicURL("/audio/tok.mp3")
	want := "https://media.example.com/audio/tok.mp3"
	if got != want {
		t.Errorf("PublicURL = %q, want %q", got, want)
	}
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	if !isNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}) {
		t.Error("NoSuchKey API error should be not-found")
	}
	if isNotFound(errors.New("connection refused")) {
		t.Error("transport error should not be not-found")
	}
}
