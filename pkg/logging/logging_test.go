package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		// Lowercase
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},

		// Uppercase
		{"DEBUG", LevelDebug},
		{"INFO", LevelInfo},
		{"WARN", LevelWarn},
		{"WARNING", LevelWarn},
		{"ERROR", LevelError},

		// Mixed case (the fix: these should all work now)
		{"Debug", LevelDebug},
		{"Info", LevelInfo},
		{"Warn", LevelWarn},
		{"Warning", LevelWarn},
		{"Error", LevelError},
		{"dEbUg", LevelDebug},

		// Empty string defaults to Info
		{"", LevelInfo},

		// Unrecognized defaults to Info
		{"trace", LevelInfo},
		{"fatal", LevelInfo},
		{"unknown", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
	}{
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"Json", FormatJSON},
		{"text", FormatText},
		{"TEXT", FormatText},
		{"", FormatText},
		{"yaml", FormatText}, // unrecognized defaults to text
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseFormat(tt.input)
			if result != tt.expected {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNew_Formats(t *testing.T) {
	var text, js bytes.Buffer

	New(Config{Level: LevelInfo, Format: FormatText, Output: &text}).Info("loaded tape", "tape", "a")
	New(Config{Level: LevelInfo, Format: FormatJSON, Output: &js}).Info("loaded tape", "tape", "a")

	if !strings.Contains(text.String(), `msg="loaded tape" tape=a`) {
		t.Errorf("unexpected text output: %q", text.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(js.Bytes(), &rec); err != nil {
		t.Fatalf("json output is not valid JSON: %v", err)
	}
	if rec["tape"] != "a" {
		t.Errorf("expected tape=a in %v", rec)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: LevelWarn, Output: &buf})
	log.Info("hidden")
	log.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn record should be written")
	}
}

func TestNewWithFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "tapedeck.log")

	log, closer, err := NewWithFile(Config{Level: LevelDebug, Output: &console}, path)
	if err != nil {
		t.Fatalf("NewWithFile() failed: %v", err)
	}
	log.With("component", "store").Debug("saved tape", "tape", "a")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(console.String(), "component=store") {
		t.Errorf("console missing record: %q", console.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("log file is not JSON lines: %v", err)
	}
	if rec["msg"] != "saved tape" || rec["component"] != "store" {
		t.Errorf("unexpected file record: %v", rec)
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error("discarded")
	if log.Enabled(context.Background(), LevelDebug) {
		t.Error("nop logger should not enable debug")
	}
}
