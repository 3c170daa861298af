package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelInfo), WithService("svc"))

	logger.Debug("skip")
	if buf.Len() != 0 {
		t.Fatalf("expected no output for debug at info level")
	}

	logger.Info("hello", "foo", "bar", "num", 1)
	entry := decodeLastLog(t, buf.Bytes())

	if entry["message"] != "hello" {
		t.Fatalf("unexpected message: %v", entry["message"])
	}
	if entry["service"] != "svc" {
		t.Fatalf("unexpected service: %v", entry["service"])
	}

	fields := entry["fields"].(map[string]interface{})
	if fields["foo"] != "bar" {
		t.Fatalf("expected foo field")
	}
	if int(fields["num"].(float64)) != 1 {
		t.Fatalf("expected num field")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelWarn))

	logger.Info("skip")
	if buf.Len() != 0 {
		t.Fatalf("expected no output for info at warn level")
	}

	logger.Warn("warned", "k", "v")
	entry := decodeLastLog(t, buf.Bytes())
	if entry["message"] != "warned" {
		t.Fatalf("unexpected message: %v", entry["message"])
	}
}

func TestLoggerMarshalError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WithOutput(&buf), WithLevel(LevelDebug))

	logger.Info("bad", "field", func() {})
	if buf.Len() != 0 {
		t.Fatalf("expected no output when marshal fails")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != LevelDebug {
		t.Fatalf("expected debug level")
	}
	if ParseLevel("bogus") != LevelInfo {
		t.Fatalf("expected fallback to info level")
	}
}

func TestParseFields(t *testing.T) {
	fields := parseFields([]interface{}{"foo", 1, 42, "bad"})
	if fields["foo"] != 1 {
		t.Fatalf("expected foo field")
	}
	if len(fields) != 1 {
		t.Fatalf("unexpected fields length: %d", len(fields))
	}

	if parseFields(nil) != nil {
		t.Fatalf("expected nil map for empty fields")
	}
}

func decodeLastLog(t *testing.T, data []byte) map[string]interface{} {
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) == 0 {
		t.Fatalf("no log output")
	}
	line := lines[len(lines)-1]
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("failed to decode log entry: %v", err)
	}
	return entry
}
