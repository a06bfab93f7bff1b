package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"componentId=c-17", "priority=2", "urgent=true", `title="a b"`, "note=x=y"})
	if err != nil {
		t.Fatalf("parseParams failed: %v", err)
	}
	want := map[string]any{
		"componentId": "c-17",
		"priority":    json.Number("2"),
		"urgent":      true,
		"title":       "a b",
		"note":        "x=y",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseParams([]string{bad}); err == nil {
			t.Errorf("parseParams(%q) should fail", bad)
		}
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC) // Wednesday

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-01T08:00:00Z", time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
		{"2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"48h", now.Add(-48 * time.Hour)},
	}
	for _, tt := range tests {
		got, err := parseSince(tt.in, now)
		if err != nil {
			t.Errorf("parseSince(%q) failed: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseSince(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	got, err := parseSince("yesterday", now)
	if err != nil {
		t.Fatalf("parseSince(yesterday) failed: %v", err)
	}
	if got.Year() != 2026 || got.Month() != 3 || got.Day() != 10 {
		t.Errorf("parseSince(yesterday) = %v, want March 10", got)
	}

	if _, err := parseSince("zzzz", now); err == nil {
		t.Error("expected error for gibberish")
	}
}

func TestCommandTree(t *testing.T) {
	want := [][]string{
		{"sync"}, {"daemon"}, {"tasks"}, {"claim"}, {"action"},
		{"requests", "list"}, {"requests", "create"},
		{"schema", "init"}, {"schema", "drop"}, {"export"},
		{"remote", "serve"}, {"config", "show"}, {"config", "init"},
		{"import"}, {"bench"},
	}
	for _, path := range want {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd == rootCmd {
			t.Errorf("command %v not registered", path)
		}
	}
}
