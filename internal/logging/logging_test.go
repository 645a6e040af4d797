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

func TestJSONHandlerWritesStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, Options{Format: "json"}))
	logger.Info("push committed", "table", "sales", "synced", 2)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "push committed" || rec["table"] != "sales" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, Options{Level: slog.LevelInfo}))
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug record to be dropped, got %q", buf.String())
	}
}

func TestFileOutputIsTeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	logger, closer := New(Options{Format: "text", File: path})
	logger.Info("pull served", "table", "products")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "pull served") {
		t.Fatalf("expected log file to contain message, got %q", string(data))
	}
}
