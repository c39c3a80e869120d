package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseEnv(t *testing.T) {
	tcases := map[string]Env{
		"":           EnvDev,
		"dev":        EnvDev,
		"PRODUCTION": EnvProd,
		" prod ":     EnvProd,
		"staging":    EnvStage,
		"preprod":    EnvStage,
		"unknown":    EnvDev,
	}

	for raw, want := range tcases {
		t.Run(raw, func(t *testing.T) {
			assert.Equal(t, want, ParseEnv(raw))
		})
	}
}

func TestNew_StdDev(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Env: EnvDev, Service: "plaza-test", Version: "1.2.3", InstanceID: "node-1", Output: &buf})

	logger.Debug("hidden")
	logger.Info("session connected", "user_id", 7)

	out := buf.String()
	assert.NotContains(t, out, "hidden", "expected debug to be filtered without Debug")
	assert.Contains(t, out, "msg=\"session connected\"")
	assert.Contains(t, out, "service=plaza-test")
	assert.Contains(t, out, "version=1.2.3")
	assert.Contains(t, out, "instance_id=node-1")
	assert.Contains(t, out, "user_id=7")
}

func TestNew_StdProdIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Env: EnvProd, Backend: BackendStd, Debug: true, Output: &buf})

	logger.Debug("visible", "topic", "online")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "visible", record["msg"])
	assert.Equal(t, "online", record["topic"])
	assert.Equal(t, "go-plaza", record["service"])
	assert.Equal(t, "prod", record["env"])
	assert.NotEmpty(t, record["instance_id"])
}

func TestNew_Zap(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Env: EnvStage, Service: "plaza-test", InstanceID: "node-2", Output: &buf})

	logger.Info("room listing published", "rooms", 3)
	logger.Debug("dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "room listing published", record["msg"])
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "plaza-test", record["service"])
	assert.Equal(t, "node-2", record["instance_id"])
	assert.EqualValues(t, 3, record["rooms"])
	assert.Contains(t, record, "ts")
}

func TestToZapLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, toZapLevel(slog.LevelDebug))
	assert.Equal(t, zapcore.InfoLevel, toZapLevel(slog.LevelInfo))
	assert.Equal(t, zapcore.WarnLevel, toZapLevel(slog.LevelWarn))
	assert.Equal(t, zapcore.ErrorLevel, toZapLevel(slog.LevelError))
}
