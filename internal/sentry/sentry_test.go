package sentry

import "testing"

func TestInitialize(t *testing.T) {
	t.Parallel()

	t.Run("empty token disables sentry", func(t *testing.T) {
		t.Parallel()
		if err := Initialize(Config{}); err != nil {
			t.Errorf("Initialize() = %v, want nil", err)
		}
	})

	t.Run("token without host fails", func(t *testing.T) {
		t.Parallel()
		err := Initialize(Config{Token: "abc"})
		if err == nil {
			t.Error("Initialize() = nil, want error")
		}
	})
}
