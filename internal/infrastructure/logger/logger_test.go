package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestFromAppConfig(t *testing.T) {
	tests := []struct {
		name       string
		cfg        *config.Config
		wantFormat string
		wantOutput string
	}{
		{
			name: "development keeps configured format",
			cfg: &config.Config{
				App: config.AppConfig{Name: "marketsync", Env: "development"},
				Log: config.LogConfig{Level: "debug", Format: "console", Output: "stderr"},
			},
			wantFormat: "console",
			wantOutput: "stderr",
		},
		{
			name: "production forces json",
			cfg: &config.Config{
				App: config.AppConfig{Name: "marketsync", Env: "production"},
				Log: config.LogConfig{Level: "info", Format: "console"},
			},
			wantFormat: "json",
			wantOutput: "stdout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromAppConfig(tt.cfg)
			assert.Equal(t, tt.wantFormat, got.Format)
			assert.Equal(t, tt.wantOutput, got.Output)
			assert.Equal(t, "marketsync", got.Service)
			assert.NotEmpty(t, got.TimeFormat)
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("console stdout", func(t *testing.T) {
		l, err := New(&Config{Level: "debug", Format: "console", Output: "stdout"})
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := New(&Config{Level: "verbose"})
		assert.Error(t, err)
	})

	t.Run("unwritable file", func(t *testing.T) {
		_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "app.log")})
		assert.Error(t, err)
	})

	t.Run("json file output carries service", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.log")
		l, err := New(&Config{Level: "info", Format: "json", Output: path, Service: "marketsync"})
		require.NoError(t, err)

		l.Info("sync finished", zap.Int("stores", 2))
		require.NoError(t, l.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
		assert.Equal(t, "sync finished", entry["msg"])
		assert.Equal(t, "marketsync", entry["service"])
		assert.Equal(t, "info", entry["level"])
		assert.EqualValues(t, 2, entry["stores"])
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"", zapcore.InfoLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"trace", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSync_NopLogger(t *testing.T) {
	assert.NoError(t, Sync(zap.NewNop()))
}
