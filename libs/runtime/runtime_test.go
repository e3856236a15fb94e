package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerToTagsService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "scheduling-service", "info")
	logger.Debug("hidden")
	logger.Info("visible", "doctor", "Dr. Meera Shah")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid json log: %v", err)
	}
	if entry["service"] != "scheduling-service" || entry["doctor"] != "Dr. Meera Shah" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestProbesReadyz(t *testing.T) {
	h := Probes(
		ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
		ReadyCheck{Name: "redis"},
	)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}

	failing := Probes(ReadyCheck{Name: "kafka", Check: func(context.Context) error { return errors.New("down") }})
	rw = httptest.NewRecorder()
	failing.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "kafka: down") {
		t.Fatalf("unexpected body %q", rw.Body.String())
	}
}

func TestCheckAll(t *testing.T) {
	ok := CheckAll(ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }}, ReadyCheck{Name: "skip"})
	if err := ok(context.Background()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	bad := CheckAll(ReadyCheck{Name: "redis", Check: func(context.Context) error { return errors.New("down") }})
	err := bad(context.Background())
	if err == nil || !strings.Contains(err.Error(), "redis: down") {
		t.Fatalf("unexpected error %v", err)
	}
}
