package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger_WritesJSONToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	log, err := NewLogger(dir, "debug")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	log.Debug("test_message_from_logging_test")
	_ = log.Sync()

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"test_message_from_logging_test"`) || !strings.Contains(line, `"ts":`) {
		t.Fatalf("unexpected log line: %s", line)
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	dir := t.TempDir()
	log, err := NewLogger(dir, "warn")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.Info("should_not_appear")
	log.Warn("should_appear")
	_ = log.Sync()

	data, _ := os.ReadFile(filepath.Join(dir, FileName))
	if strings.Contains(string(data), "should_not_appear") || !strings.Contains(string(data), "should_appear") {
		t.Fatalf("level filter not applied: %s", data)
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel(""); err != nil || lvl != zapcore.InfoLevel {
		t.Fatalf("empty level should be info, got %v %v", lvl, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
