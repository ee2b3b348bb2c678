package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"clipd/internal/services"
)

func TestConsoleHandlerFormatsComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	NewComponentLogger(logger, "scheduler").Info("job started", String("job_id", "abc"))

	line := buf.String()
	if !strings.Contains(line, "INFO scheduler: job started") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "job_id=abc") {
		t.Fatalf("expected job_id attr, got: %q", line)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Warn("cut failed", String("reason", "exit status 1"))

	if !strings.Contains(buf.String(), `reason="exit status 1"`) {
		t.Fatalf("expected quoted value, got: %q", buf.String())
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Info("should be dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below level, got: %q", buf.String())
	}
}

func TestWithContextAddsJobFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	ctx := services.WithJobID(context.Background(), "job-1")
	ctx = services.WithOwnerID(ctx, 42)

	WithContext(ctx, logger).Info("working")

	line := buf.String()
	if !strings.Contains(line, "job_id=job-1") || !strings.Contains(line, "owner_id=42") {
		t.Fatalf("expected context fields, got: %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
