package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{
		Component: component,
		Handler:   slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestComponentIsLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	lg := newBufferLogger(&buf, ComponentHTTP).WithComponent(ComponentAnalytics)
	lg.Info("hello", FieldYear, 2024)

	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=analytics") {
		t.Fatalf("unexpected component fields: %s", out)
	}
	if lg.Component() != ComponentAnalytics {
		t.Fatalf("unexpected component %q", lg.Component())
	}
}

func TestOperationCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := newBufferLogger(&buf, ComponentAnalytics)

	ctx := context.WithValue(context.Background(), RequestIDContextKey, "req-1")
	ctx = WithLogger(ctx, base)
	if RequestIDFromContext(ctx) != "req-1" || FromContext(ctx) != base {
		t.Fatalf("context values not stored")
	}

	FromContext(ctx).Operation(ctx, OpReport).Info("built", NewFields().WithFilter(2024, "Jan").ToSlice()...)
	out := buf.String()
	for _, want := range []string{"request_id=req-1", "operation=report", "year=2024", "month=Jan"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}

	buf.Reset()
	base.Operation(context.Background(), OpLoad).Info("no request")
	if strings.Contains(buf.String(), "request_id") {
		t.Fatalf("unexpected request id: %s", buf.String())
	}
}

func TestFromContextDefault(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatalf("expected fallback logger")
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf, ComponentHTTP))
	r := httptest.NewRequest(http.MethodGet, "/api/analytics/report?year=2024", nil)

	sl.LogHTTPEnd(context.Background(), r, http.StatusInternalServerError, 12, "10.0.0.1")
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "status_code=500") {
		t.Fatalf("unexpected output: %s", buf.String())
	}

	buf.Reset()
	sl.LogSnapshotLoaded(context.Background(), "memory", "abc", 10, 2)
	if !strings.Contains(buf.String(), "level=WARN") || !strings.Contains(buf.String(), "issues=2") {
		t.Fatalf("unexpected output: %s", buf.String())
	}

	buf.Reset()
	sl.LogError(context.Background(), "boom", errors.New("bad"), OpRefresh, nil)
	if !strings.Contains(buf.String(), "error=bad") || !strings.Contains(buf.String(), "operation=refresh") {
		t.Fatalf("unexpected output: %s", buf.String())
	}
}
