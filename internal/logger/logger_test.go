package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(WARN, &buf)

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("Expected DEBUG/INFO to be filtered, got %q", output)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("Expected WARN/ERROR to be logged, got %q", output)
	}
}

func TestEntryShape(t *testing.T) {
	var buf bytes.Buffer
	l := New(INFO, &buf)

	l.Info("something happened", map[string]interface{}{"user_id": "U1"})

	var e entry
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("Log line is not valid JSON: %v", err)
	}
	if e.Level != "INFO" || e.Message != "something happened" {
		t.Errorf("Unexpected entry: %+v", e)
	}
	if e.Fields["user_id"] != "U1" {
		t.Errorf("Expected user_id field, got %v", e.Fields)
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	l := New(INFO, &buf)

	l.Info("license issued", map[string]interface{}{
		"license_key": "ITP-1712345678901-DEADBEEF",
		"signature":   "short",
		"user_id":     "U1",
	})

	output := buf.String()
	if strings.Contains(output, "ITP-1712345678901-DEADBEEF") {
		t.Error("Full license key must not appear in logs")
	}
	if !strings.Contains(output, "ITP...EEF") {
		t.Errorf("Expected masked key, got %q", output)
	}
	if !strings.Contains(output, "[REDACTED]") {
		t.Errorf("Expected short sensitive value to be fully redacted, got %q", output)
	}
	if !strings.Contains(output, "U1") {
		t.Error("Non-sensitive fields must pass through")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"DEBUG": DEBUG,
		"debug": DEBUG,
		"WARN":  WARN,
		"ERROR": ERROR,
		"INFO":  INFO,
		"":      INFO,
		"bogus": INFO,
	}

	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
