package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		want  zerolog.Level
		valid bool
	}{
		{"debug", zerolog.DebugLevel, true},
		{"INFO", zerolog.InfoLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"error", zerolog.ErrorLevel, true},
		{"verbose", zerolog.InfoLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
			assert.Equal(t, tt.valid, ValidLevel(tt.in))
		})
	}
}

func TestNewLoggerWithConfig_File(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	path := filepath.Join(t.TempDir(), "logs", "run.log")
	logger := NewLoggerWithConfig(LogConfig{
		Level:    "debug",
		File:     true,
		FilePath: path,
		MaxSize:  1,
	})
	l := WithRunID(logger, "run-1")
	l.Info().Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestContextHelpers(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)
	SetDebugLevel()

	var buf bytes.Buffer
	base := zerolog.New(&buf)

	logger := WithPosition(WithSymbol(WithOperation(base, "backtest"), "SPX"), 7, "Strangle")
	LogPosition(logger, "closed", 2, decimal.RequireFromString("125.5"), decimal.NewFromInt(1000))
	LogOptionTrade(logger, "open", "SPX-1", -2, decimal.RequireFromString("1.25"), decimal.NewFromInt(-250),
		time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var closed map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &closed))
	assert.Equal(t, "backtest", closed["operation"])
	assert.Equal(t, "SPX", closed["symbol"])
	assert.Equal(t, float64(7), closed["position_id"])
	assert.Equal(t, "Strangle", closed["combination"])
	assert.Equal(t, "125.5", closed["profit_loss"])
	assert.Equal(t, "Position closed", closed["message"])

	var trade map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[1], &trade))
	assert.Equal(t, "debug", trade["level"])
	assert.Equal(t, "open", trade["action"])
	assert.Equal(t, float64(-2), trade["quantity"])
	assert.Equal(t, "-250", trade["premium"])
}
