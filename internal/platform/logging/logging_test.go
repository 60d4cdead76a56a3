package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "jobboard", Config{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.WithField("application_id", "app-1").Debug("transition committed")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["service"] != "jobboard" {
		t.Fatalf("service = %v, want jobboard", line["service"])
	}
	if line["application_id"] != "app-1" {
		t.Fatalf("application_id = %v, want app-1", line["application_id"])
	}
	if line["msg"] != "transition committed" {
		t.Fatalf("msg = %v, want transition committed", line["msg"])
	}
}

func TestNewWithWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "notifier", Config{Level: "warn", Format: "text"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("expected info line to be filtered, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected warn line, got %q", buf.String())
	}
}

func TestNewWithWriterRejectsBadConfig(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewWithWriter(&buf, "x", Config{Level: "loud"}); err == nil {
		t.Fatal("expected level error")
	}
	if _, err := NewWithWriter(&buf, "x", Config{Format: "xml"}); err == nil {
		t.Fatal("expected format error")
	}
}
