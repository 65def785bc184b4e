package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("lendctl", "test", Options{Output: &buf})
	logger.Info("reserve refreshed", "slot", 12)
	logger.Debug("hidden at info level")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["severity"] != "INFO" || entry["message"] != "reserve refreshed" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["service"] != "lendctl" || entry["env"] != "test" {
		t.Fatalf("missing service attributes: %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", entry)
	}
}

func TestSetupWritesRotatedFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "lendctl.log")
	logger := Setup("lendctl", "", Options{Output: &buf, Level: slog.LevelDebug, File: path})
	logger.Debug("obligation refreshed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "obligation refreshed") {
		t.Fatalf("file missing entry: %q", data)
	}
	if strings.Contains(buf.String(), `"env"`) {
		t.Fatalf("empty env should be omitted: %q", buf.String())
	}
}
