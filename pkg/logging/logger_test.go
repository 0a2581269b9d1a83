package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("Expected default level info, got %s", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Expected default pretty to be false")
	}
	if cfg.Output == nil {
		t.Error("Expected default output to be set")
	}
}

func TestSetup_WritesToOutput(t *testing.T) {
	tests := []struct {
		name  string
		level string
		emit  func(zerolog.Logger, string)
	}{
		{"debug", "debug", func(l zerolog.Logger, m string) { l.Debug().Msg(m) }},
		{"info", "info", func(l zerolog.Logger, m string) { l.Info().Msg(m) }},
		{"warn", "warn", func(l zerolog.Logger, m string) { l.Warn().Msg(m) }},
		{"error", "error", func(l zerolog.Logger, m string) { l.Error().Msg(m) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := Setup(Config{Level: tt.level, Output: buf})

			tt.emit(logger, "message at "+tt.level)

			if !strings.Contains(buf.String(), "message at "+tt.level) {
				t.Errorf("Expected output to contain message, got %q", buf.String())
			}
		})
	}
}

func TestSetup_Pretty(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: "info", Pretty: true, Output: buf})
	logger.Info().Msg("console line")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("Expected console output, got JSON: %q", out)
	}
	if !strings.Contains(out, "console line") {
		t.Errorf("Expected output to contain message, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{" Debug ", zerolog.DebugLevel},
		{"trace", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"invalid", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: "info", Output: buf})

	logger := NewLogger("catalog")
	logger.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, `"component":"catalog"`) {
		t.Errorf("Expected component field, got %q", output)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: "warn", Output: buf})

	logger := NewLogger("test")
	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")
	logger.Error().Msg("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("Messages below warn should be filtered, got %q", output)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("Warn and error messages should be kept, got %q", output)
	}
}

func TestFromContext(t *testing.T) {
	Setup(Config{Level: "info", Output: &bytes.Buffer{}})

	buf := &bytes.Buffer{}
	scoped := zerolog.New(buf).With().Str("request_id", "abc").Logger()
	fallback := zerolog.Nop()

	ctx := WithContext(context.Background(), scoped)
	got := FromContext(ctx, fallback)
	got.Info().Msg("scoped")

	if !strings.Contains(buf.String(), `"request_id":"abc"`) {
		t.Errorf("Expected scoped logger from context, got %q", buf.String())
	}

	if l := FromContext(context.Background(), fallback); l.GetLevel() != zerolog.Disabled {
		t.Errorf("Expected fallback logger for empty context, got level %v", l.GetLevel())
	}
}
