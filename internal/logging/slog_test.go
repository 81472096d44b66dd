package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	l := slog.New(h)
	return NewSlogLogger(l), &buf
}

func TestSlogLogger_Levels_WriteExpectedOutput(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "polling", "attempt", 1)
	log.Info(ctx, "submitted", "fee", 100)
	log.Warn(ctx, "notify_failed", "kind", "payment")
	log.Error(ctx, "rejected", "code", "tx_bad_seq")

	out := buf.String()

	tests := []struct {
		level string
		msg   string
		key   string
		val   string
	}{
		{"DEBUG", "polling", "attempt", "1"},
		{"INFO", "submitted", "fee", "100"},
		{"WARN", "notify_failed", "kind", "payment"},
		{"ERROR", "rejected", "code", "tx_bad_seq"},
	}

	for _, tc := range tests {
		if !strings.Contains(out, "level="+tc.level) {
			t.Fatalf("expected line with level=%s in output:\n%s", tc.level, out)
		}
		if !strings.Contains(out, "msg="+tc.msg) {
			t.Fatalf("expected line with msg=%q in output:\n%s", tc.msg, out)
		}
		if !strings.Contains(out, tc.key+"="+tc.val) {
			t.Fatalf("expected attribute %s=%s in output:\n%s", tc.key, tc.val, out)
		}
	}
}

func TestSlogLogger_With_AddsAttributes(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log2 := log.With("module", "txengine", "account", "GABC")
	log2.Info(ctx, "hello", "k", "v")

	out := buf.String()
	wantSubs := []string{
		"level=INFO",
		"msg=hello",
		"module=txengine",
		"account=GABC",
		"k=v",
	}
	for _, s := range wantSubs {
		if !strings.Contains(out, s) {
			t.Fatalf("expected %q in output, got:\n%s", s, out)
		}
	}
}

func TestSlogLogger_LevelFiltered(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	ctx := context.Background()

	log.Debug(ctx, "poll tick", "hash", "abc")
	log.Info(ctx, "submitted", "hash", "abc")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got:\n%s", buf.String())
	}

	log.Warn(ctx, "token cache read failed")
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("expected warn line, got:\n%s", buf.String())
	}
}
