package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithService("biosync-test"))

	logger.Info("sync complete", "date", "2025-01-02", "rows", 120)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Log output is not valid JSON: %v", err)
	}
	if entry["message"] != "sync complete" {
		t.Errorf("Expected message 'sync complete', got %v", entry["message"])
	}
	if entry["service"] != "biosync-test" {
		t.Errorf("Expected service biosync-test, got %v", entry["service"])
	}
	fields, ok := entry["fields"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected fields object in log entry")
	}
	if fields["date"] != "2025-01-02" {
		t.Errorf("Expected date field, got %v", fields["date"])
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelWarn))

	logger.Debug("noise")
	logger.Info("noise")
	if buf.Len() != 0 {
		t.Fatalf("Expected debug/info to be filtered, got %q", buf.String())
	}

	logger.Warn("something")
	if buf.Len() == 0 {
		t.Fatal("Expected warn to pass the filter")
	}
}

func TestLoggerRunIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf))

	ctx := WithRunID(context.Background(), "run-abc")
	logger.InfoWithContext(ctx, "fetch done", "resource", "stress")

	if !strings.Contains(buf.String(), `"run_id":"run-abc"`) {
		t.Errorf("Expected run_id in output, got %q", buf.String())
	}
}

func TestGetRunIDMissing(t *testing.T) {
	if id := GetRunID(context.Background()); id != "" {
		t.Errorf("Expected empty run ID, got %q", id)
	}
}

func TestNewRunIDUnique(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	if a == "" || a == b {
		t.Errorf("Expected distinct non-empty run IDs, got %q and %q", a, b)
	}
}
