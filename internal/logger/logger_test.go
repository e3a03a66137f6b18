package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{" error ", slog.LevelError, false},
		{"verbose", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseLevel(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "handover.log")
	lg, err := Config{Path: path, Level: "debug"}.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lg.Info("restart requested", "generation", 2)
	lg.Debug("drain pending")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "restart requested") || !strings.Contains(s, "generation=2") {
		t.Fatalf("log content missing records: %q", s)
	}
	if !strings.Contains(s, "drain pending") {
		t.Fatalf("debug record filtered despite debug level: %q", s)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := (Config{Level: "loud"}).New(); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestFileWriterDefaults(t *testing.T) {
	c := Config{Path: "x.log"}
	w := c.fileWriter()
	// fileWriter returns a lumberjack logger carrying the defaults.
	type sizer interface{ Rotate() error }
	if _, ok := w.(sizer); !ok {
		t.Fatalf("writer %T is not a rotating logger", w)
	}
}

func TestColorTextHandlerColorsLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	lg := slog.New(h)
	lg.Warn("socket stale")

	out := buf.String()
	if !strings.Contains(out, "\x1b[33m") {
		t.Fatalf("warn record not colored: %q", out)
	}
	if !strings.Contains(out, "socket stale") {
		t.Fatalf("message missing: %q", out)
	}
}

func TestColorTextHandlerKeepsWrapper(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, nil)

	wa := h.WithAttrs([]slog.Attr{slog.String("component", "restart")})
	if _, ok := wa.(*ColorTextHandler); !ok {
		t.Fatalf("WithAttrs returned %T, color wrapper lost", wa)
	}
	wg := h.WithGroup("drain")
	if _, ok := wg.(*ColorTextHandler); !ok {
		t.Fatalf("WithGroup returned %T, color wrapper lost", wg)
	}

	if err := wa.Handle(context.Background(), slog.Record{}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(buf.String(), "component=restart") {
		t.Fatalf("attrs not applied: %q", buf.String())
	}
}
