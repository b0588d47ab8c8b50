package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextReportTime(t *testing.T) {
	t.Parallel()

	// Wednesday 2026-03-11 10:30 UTC
	now := time.Date(2026, 3, 11, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		weekday time.Weekday
		hour    int
		want    time.Time
	}{
		{
			name:    "later this week",
			weekday: time.Friday,
			hour:    8,
			want:    time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC),
		},
		{
			name:    "same day later hour",
			weekday: time.Wednesday,
			hour:    18,
			want:    time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC),
		},
		{
			name:    "same day earlier hour rolls a week",
			weekday: time.Wednesday,
			hour:    8,
			want:    time.Date(2026, 3, 18, 8, 0, 0, 0, time.UTC),
		},
		{
			name:    "earlier weekday rolls into next week",
			weekday: time.Monday,
			hour:    8,
			want:    time.Date(2026, 3, 16, 8, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, nextReportTime(now, tt.weekday, tt.hour))
		})
	}
}

func TestSecretMatches(t *testing.T) {
	t.Parallel()

	assert.True(t, secretMatches("s3cret", "s3cret"))
	assert.True(t, secretMatches("Bearer s3cret", "s3cret"))
	assert.False(t, secretMatches("wrong", "s3cret"))
	assert.False(t, secretMatches("", "s3cret"))
	assert.False(t, secretMatches("Bearer wrong", "s3cret"))
}
