package logger

import (
	"log/slog"

	slogbetterstack "github.com/samber/slog-betterstack"
)

// NewBetterStackHandler returns a slog handler that ships records to Better
// Stack. Returns nil when no token is configured, which NewWithHandlers
// silently skips.
func NewBetterStackHandler(level, token, endpoint string) slog.Handler {
	if token == "" {
		return nil
	}

	option := slogbetterstack.Option{
		Token: token,
		Level: ParseLevel(level),
	}
	if endpoint != "" {
		option.Endpoint = endpoint
	}

	return option.NewBetterstackHandler()
}
