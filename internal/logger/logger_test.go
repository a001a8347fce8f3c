package logger

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
)

func TestInitAndLogging(t *testing.T) {
	Init("debug", "json")

	if !L.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug level to be enabled")
	}

	Info("test info message", "key", "value")
}

func TestInitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	if err := InitFile(path, "info", "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Info("written to file")

	if L.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug level to be disabled at info")
	}
}

func TestInitFileBadPath(t *testing.T) {
	// Opening a file under a missing directory fails, but the logger must
	// still be usable afterwards.
	err := InitFile(filepath.Join(t.TempDir(), "missing", "client.log"), "info", "text")
	if err == nil {
		t.Fatal("expected error for unwritable path")
	}
	Info("discarded, must not panic")
}

func TestContextLogger(t *testing.T) {
	Init("info", "text")

	custom := L.With(slog.String("request_id", "12345"))
	ctx := WithContext(context.Background(), custom)

	if FromContext(ctx) != custom {
		t.Error("expected logger from context")
	}
	if FromContext(context.Background()) != L {
		t.Error("expected global logger for bare context")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"unknown": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
