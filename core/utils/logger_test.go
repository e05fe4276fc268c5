package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerWritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOptions(LoggerOptions{Level: "info", Output: &buf}).With("request_id", "req-1")
	logger.Printf("sync %s", "ok")
	logger.Debugf("hidden")
	out := buf.String()
	if !strings.Contains(out, `"message":"sync ok"`) {
		t.Fatalf("missing message: %s", out)
	}
	if !strings.Contains(out, `"request_id":"req-1"`) {
		t.Fatalf("missing field: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug should be filtered at info level: %s", out)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Printf("x")
	l.Errorf("y")
	if l.With("k", "v") != nil {
		t.Fatalf("expected nil child logger")
	}
}
