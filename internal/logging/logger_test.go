package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNopLoggerDoesNotPanic(t *testing.T) {
	l := OrNop(nil)
	l.Debug("debug", "k", "v")
	l.Info("info", "k", "v")
	l.Warn("warn", "k", "v")
	l.Error("error", "k", "v")
}

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New("debug", "json", &buf).With("run_id", "r1")
	l.Warn("data file unavailable", "table", "fd_group", "rows", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if entry["level"] != "warn" {
		t.Fatalf("expected warn level, got %v", entry["level"])
	}
	if entry["table"] != "fd_group" || entry["run_id"] != "r1" {
		t.Fatalf("missing fields: %v", entry)
	}
	if entry["rows"] != float64(3) {
		t.Fatalf("expected rows=3, got %v", entry["rows"])
	}
}

func TestLevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := New("error", "json", &buf)
	l.Info("quiet")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	l.Error("loud")
	if !strings.Contains(buf.String(), "loud") {
		t.Fatalf("expected error entry, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARNING": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithPrependsFields(t *testing.T) {
	mem := &Memory{}
	l := With(mem, "run_id", "r2")
	l.Warn("unresolved measure", "food_id", "01001")
	got := mem.Entries("warn")
	if len(got) != 1 || len(got[0].Args) != 4 || got[0].Args[0] != "run_id" || got[0].Args[3] != "01001" {
		t.Fatalf("entries = %#v", got)
	}
	if len(mem.Entries("info")) != 0 {
		t.Fatalf("unexpected info entries")
	}
	With(nil, "k", "v").Info("dropped")
}
