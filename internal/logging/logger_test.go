package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{in: "debug", want: Debug},
		{in: "", want: Info},
		{in: " WARNING ", want: Warn},
		{in: "severe", want: Error},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestTextFormatGroupsCounts(t *testing.T) {
	var buf bytes.Buffer
	l := New(Debug, Text, &buf).With(F("antenna", "ea01"))
	l.Info("template built", F("samples", 1234567), F("reason", errors.New("shape mismatch")))

	out := buf.String()
	for _, want := range []string{"[INFO] template built", "antenna=ea01", "samples=1,234,567", `reason="shape mismatch"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Warn, Text, &buf)
	l.Info("dropped")
	l.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Info, JSON, &buf).Warn("write failed", F("table", "rq.cal"), F("err", errors.New("boom")))

	line := buf.String()
	idx := strings.Index(line, "{")
	if idx < 0 {
		t.Fatalf("no JSON payload in %q", line)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line[idx:]), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["level"] != "WARN" || payload["table"] != "rq.cal" || payload["err"] != "boom" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestDefaultIsSilentUntilSet(t *testing.T) {
	if Default() == nil {
		t.Fatalf("default logger must never be nil")
	}
	var buf bytes.Buffer
	prev := Default()
	SetDefault(New(Info, Text, &buf))
	defer SetDefault(prev)
	OrDefault(nil).Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected default logger output, got %q", buf.String())
	}
}
