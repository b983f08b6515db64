package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/downlink/types"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	meta := &types.StreamMeta{RunID: "run-1", SatelliteID: "98", PlanID: "plan-1"}
	logger := newLoggerWithWriter(meta, &buf, zapcore.DebugLevel)

	logger.With(map[string]any{"stream_index": 2}).Info("stream opened", map[string]any{"attempt": 1})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e["message"] != "stream opened" || e["level"] != "info" {
		t.Errorf("entry = %v", e)
	}
	if e["run_id"] != "run-1" || e["satellite_id"] != "98" || e["plan_id"] != "plan-1" {
		t.Errorf("missing run context: %v", e)
	}
	if e["stream_index"] != float64(2) {
		t.Errorf("stream_index = %v, want 2", e["stream_index"])
	}
	fields, ok := e["fields"].(map[string]any)
	if !ok || fields["attempt"] != float64(1) {
		t.Errorf("fields = %v", e["fields"])
	}
	if _, ok := e["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestLogger_OmitsEmptyPlan(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerWithWriter(&types.StreamMeta{RunID: "run-1", SatelliteID: "98"}, &buf, zapcore.InfoLevel)
	logger.Info("hello", nil)

	entries := decodeLines(t, &buf)
	if _, ok := entries[0]["plan_id"]; ok {
		t.Error("plan_id should be omitted when empty")
	}
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerWithWriter(&types.StreamMeta{RunID: "r", SatelliteID: "s"}, &buf, zapcore.WarnLevel)

	logger.Debug("debug", nil)
	logger.Info("info", nil)
	logger.Warn("warn", nil)
	logger.Error("error", nil)

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0]["level"] != "warn" || entries[1]["level"] != "error" {
		t.Errorf("levels = %v, %v", entries[0]["level"], entries[1]["level"])
	}
}

func TestLogger_WithOutputKeepsLevel(t *testing.T) {
	var first, second bytes.Buffer
	logger := newLoggerWithWriter(&types.StreamMeta{RunID: "r", SatelliteID: "s"}, &first, zapcore.WarnLevel)
	redirected := logger.WithOutput(&second)

	redirected.Info("dropped", nil)
	redirected.Warn("kept", nil)

	if first.Len() != 0 {
		t.Errorf("original writer received output: %s", first.String())
	}
	entries := decodeLines(t, &second)
	if len(entries) != 1 || entries[0]["message"] != "kept" {
		t.Errorf("entries = %v", entries)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw    string
		want   zapcore.Level
		wantOK bool
	}{
		{"debug", zapcore.DebugLevel, true},
		{"INFO", zapcore.InfoLevel, true},
		{" warn ", zapcore.WarnLevel, true},
		{"warning", zapcore.WarnLevel, true},
		{"error", zapcore.ErrorLevel, true},
		{"", zapcore.InfoLevel, false},
		{"verbose", zapcore.InfoLevel, false},
	}

	for _, tt := range tests {
		got, ok := parseLevel(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseLevel(%q) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	if got := LevelFromEnv(); got != zapcore.ErrorLevel {
		t.Errorf("LevelFromEnv() = %v, want error", got)
	}

	t.Setenv(EnvLogLevel, "bogus")
	if got := LevelFromEnv(); got != zapcore.InfoLevel {
		t.Errorf("LevelFromEnv() = %v, want info", got)
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.With(map[string]any{"k": "v"}).Error("ignored", nil)
	logger.Sugar().Infof("ignored %d", 1)
}
