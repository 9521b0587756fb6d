package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/amoylab/webconsole/internal/common/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
		"unknown": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, exp := range cases {
		assert.Equal(t, exp, parseLevel(in), in)
	}
}

func TestSetLoggerDefaults(t *testing.T) {
	cfg := &config.LoggerConfig{}
	setLoggerDefaults(cfg)
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, OutputStdout, cfg.Output)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 3, cfg.MaxBackups)
	assert.Equal(t, 7, cfg.MaxAge)
	assert.Equal(t, "Local", cfg.TimeZone)
	assert.NotEmpty(t, cfg.TimeFormat)
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "console.log")
	cfg := &config.LoggerConfig{Output: OutputFile, FilePath: path, Format: "console", Level: "debug", TimeZone: "UTC"}

	lg, level, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	lg.Debug("hello file")
	require.NoError(t, lg.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
}

func TestNewLogger_AtomicLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	lg, level, err := NewLogger(&config.LoggerConfig{Output: OutputFile, FilePath: path})
	require.NoError(t, err)

	lg.Debug("hidden")
	level.SetLevel(zapcore.DebugLevel)
	lg.Debug("visible")
	require.NoError(t, lg.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "visible")
}

func TestNewLogger_UnsupportedOutput(t *testing.T) {
	_, _, err := NewLogger(&config.LoggerConfig{Output: "syslog"})
	assert.Error(t, err)
}
