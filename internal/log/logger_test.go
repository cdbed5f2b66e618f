package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerAddsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Component: ComponentApp, Handler: slog.NewTextHandler(&buf, nil)})

	l.WithComponent(ComponentSync).Info("loaded", FieldKind, "budgets")

	out := buf.String()
	if strings.Count(out, "component=") != 1 {
		t.Fatalf("expected a single component attribute, got %q", out)
	}
	if !strings.Contains(out, "component=sync") || !strings.Contains(out, "kind=budgets") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatal("missing logger should fall back to the default")
	}
	l := Discard().WithComponent(ComponentWorker)
	ctx := WithContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatal("expected the logger stored in the context")
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithCollection("goals", "u1").
		WithRecord("g1").
		WithError(errors.New("boom")).
		WithError(nil)
	if len(f.ToSlice()) != 8 {
		t.Fatalf("unexpected fields %v", f)
	}
	if f[FieldError] != "boom" {
		t.Fatalf("nil error should not overwrite, got %v", f[FieldError])
	}
}
