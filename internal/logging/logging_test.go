package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func capture(t *testing.T, level string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Init(Config{Level: level, Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Config{Level: "info"}) })
	return &buf
}

func TestInfoWritesFields(t *testing.T) {
	buf := capture(t, "info")
	Info("rank_done", map[string]any{"count": 3})
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("not json: %q", buf.String())
	}
	if got["message"] != "rank_done" || got["count"] != float64(3) {
		t.Fatalf("unexpected entry: %v", got)
	}
}

func TestLevelFilters(t *testing.T) {
	buf := capture(t, "error")
	Info("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered: %q", buf.String())
	}
}

func TestCtxCarriesRequestID(t *testing.T) {
	buf := capture(t, "debug")
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithUserID(ctx, "u1")
	Ctx(ctx).Info().Msg("hello")
	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-1"`) || !strings.Contains(out, `"user_id":"u1"`) {
		t.Fatalf("missing ids: %s", out)
	}
}

func TestSlogAdapter(t *testing.T) {
	buf := capture(t, "info")
	NewSlogLogger().With("svc", "hotness").Warn("restarting", "attempt", 2)
	out := buf.String()
	if !strings.Contains(out, `"svc":"hotness"`) || !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("unexpected slog output: %s", out)
	}
}
