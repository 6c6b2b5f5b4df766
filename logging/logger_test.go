package logging

import (
	"context"
	"errors"
	"os"
	"testing"

	syncErrors "github.com/c0deZ3R0/timeline-sync-kit/errors"
)

func TestNewLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		l := NewLogger(Config{Level: level, Format: "text"})
		if l == nil || l.Logger == nil {
			t.Fatalf("NewLogger(%q) returned nil", level)
		}
	}
}

func TestGetConfigFromEnv(t *testing.T) {
	os.Setenv("LOG_LEVEL", "WARN")
	os.Setenv("ENVIRONMENT", "production")
	defer os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("ENVIRONMENT")

	config := GetConfigFromEnv()
	if config.Level != "warn" {
		t.Errorf("Level = %q, want warn", config.Level)
	}
	if config.Format != "json" {
		t.Errorf("Format = %q, want json for production", config.Format)
	}
	if config.AddSource {
		t.Error("AddSource should be disabled in production")
	}
}

func TestLogErrorWithSyncError(t *testing.T) {
	l := NewLogger(Config{Level: "error", Format: "text"})
	err := syncErrors.NewRemoteWriteError(syncErrors.OpUpdateElement, errors.New("refused"))
	// Must not panic with either error shape.
	l.LogError(context.Background(), err, "remote write failed")
	l.LogError(context.Background(), errors.New("plain"), "plain error")
}

func TestLogOperationPropagatesError(t *testing.T) {
	l := NewLogger(Config{Level: "error", Format: "text"})
	want := errors.New("boom")
	got := l.LogOperation(context.Background(), Operation("merge"), Component("merge"), func() error {
		return want
	})
	if !errors.Is(got, want) {
		t.Errorf("LogOperation returned %v, want %v", got, want)
	}

	if err := l.LogOperation(context.Background(), Operation("merge"), Component("merge"), func() error {
		return nil
	}); err != nil {
		t.Errorf("LogOperation returned %v, want nil", err)
	}
}
