package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewHandler_JSONByDefault(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, "info", ""))
	log.Info("fanout.delivered", "message_id", "m1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "fanout.delivered" || rec["message_id"] != "m1" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewHandler_PrettyHonorsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := newHandler(&buf, "warn", "pretty")
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info must be disabled at warn level")
	}

	slog.New(h).Warn("presence.drop", "session_id", "s1")
	out := buf.String()
	if !strings.Contains(out, "[WARN]") || !strings.Contains(out, "session_id=s1") {
		t.Fatalf("unexpected pretty output: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("buffer output must not be colored: %q", out)
	}
}
