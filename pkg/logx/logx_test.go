package logx

import (
	"strings"
	"testing"
)

func TestLoggerBuffersEntries(t *testing.T) {
	logger := NewLogger("test-component")
	logger.Info("hello %s", "world")

	entries := GetRecentLogEntries("test-component")
	if len(entries) == 0 {
		t.Fatal("expected at least one buffered entry")
	}

	last := entries[len(entries)-1]
	if last.Level != string(LevelInfo) {
		t.Errorf("expected level INFO, got %s", last.Level)
	}
	if last.Message != "hello world" {
		t.Errorf("expected formatted message, got %q", last.Message)
	}
}

func TestDebugSuppressedWhenDisabled(t *testing.T) {
	SetDebug(false)
	defer SetDebug(false)

	logger := NewLogger("debug-check")
	logger.Debug("should not appear")
	if entries := GetRecentLogEntries("debug-check"); len(entries) != 0 {
		t.Errorf("expected no entries with debug disabled, got %d", len(entries))
	}

	SetDebug(true)
	logger.Debug("now visible")
	entries := GetRecentLogEntries("debug-check")
	if len(entries) != 1 {
		t.Fatalf("expected one entry with debug enabled, got %d", len(entries))
	}
	if entries[0].Level != string(LevelDebug) {
		t.Errorf("expected DEBUG level, got %s", entries[0].Level)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	if Wrap(nil, "noop") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	cause := Errorf("original failure")
	wrapped := Wrap(cause, "db connect")
	if wrapped == nil {
		t.Fatal("expected wrapped error")
	}
	if !strings.Contains(wrapped.Error(), "db connect: original failure") {
		t.Errorf("unexpected wrapped message: %s", wrapped.Error())
	}
}
