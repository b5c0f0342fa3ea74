package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize text logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := InitWithFormat("json"); err != nil {
		t.Fatalf("failed to initialize json logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := InitWithFormat("xml"); err == nil {
		t.Fatal("expected an error for an unknown format")
	}
	if err := Sync(); err != nil {
		t.Errorf("failed to sync logger: %v", err)
	}
}

func TestLoggerJSONFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "json", slog.LevelDebug)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	l.Named("repository").With(String("key", "history.csv")).Info(context.Background(), "append committed",
		Int("attempts", 2),
		Float64("score", 81.25),
		Bool("duplicate", false),
		Duration("took", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"msg":       "append committed",
		"component": "repository",
		"key":       "history.csv",
		"attempts":  float64(2),
		"score":     81.25,
		"duplicate": false,
		"took":      "1.5s",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("field %s = %v, want %v", k, rec[k], v)
		}
	}
	src, _ := rec["source"].(string)
	if !strings.Contains(src, "logger_test.go") {
		t.Errorf("source = %q, want the calling test file", src)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	var lv slog.LevelVar
	lv.Set(slog.LevelWarn)
	l, err := New(&buf, "text", &lv)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	l.Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	l.Warn(context.Background(), "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn should be written, got %q", buf.String())
	}
}

func TestSetLevelString(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "", "WARN", "warning", "error"} {
		if err := SetLevelString(lvl); err != nil {
			t.Errorf("SetLevelString(%q) returned %v", lvl, err)
		}
	}
	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNopAndGetOrNop(t *testing.T) {
	NewNop().Error(context.Background(), "discarded")
	if GetOrNop() == nil {
		t.Fatal("GetOrNop returned nil")
	}
}

func TestInitWithWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithWriter(&buf, "json"); err != nil {
		t.Fatalf("InitWithWriter: %v", err)
	}
	t.Cleanup(func() { _ = Init() })

	Get().Info(context.Background(), "to buffer", String("k", "v"))
	if !strings.Contains(buf.String(), `"k":"v"`) {
		t.Fatalf("expected field in output, got %q", buf.String())
	}
}
