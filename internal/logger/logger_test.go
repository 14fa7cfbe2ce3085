package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/oggyb/matchchat/internal/config"
)

// captureOutput redirects stdout to a buffer during f()
func captureOutput(t *testing.T, f func()) string {
	t.Helper()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	_ = r.Close()

	return buf.String()
}

func TestLogger_TextFormat(t *testing.T) {
	out := captureOutput(t, func() {
		InitFromConfig(&config.Config{
			Log: config.LogConfig{
				Level:     "debug",
				Format:    "text",
				Component: "test",
			},
		})
		Info("hello matchchat", "key", "value")
	})

	if !strings.Contains(out, "hello matchchat") {
		t.Errorf("expected message, got: %s", out)
	}
	if !strings.Contains(out, "component=test") {
		t.Errorf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "key=value") {
		t.Errorf("expected structured field, got: %s", out)
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: FormatJSON, Component: "api", Output: &buf})

	l.Info("json works", "user_id", 7)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "json works" || line["component"] != "api" {
		t.Errorf("unexpected fields: %v", line)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})

	l.Info("should be filtered")
	l.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Errorf("info message leaked at warn level: %s", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("warn message missing: %s", out)
	}
}

func TestFrom_FallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	scoped := New(Config{Output: &buf}).With("request_id", "abc")
	ctx := Into(context.Background(), scoped)

	From(ctx).Info("scoped")
	if !strings.Contains(buf.String(), "request_id=abc") {
		t.Errorf("expected scoped logger, got: %s", buf.String())
	}
	if From(context.Background()) == nil {
		t.Error("expected global logger fallback")
	}
}
