package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/config"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "studio.log")
	logger, closer, err := New(
		config.LoggingConfig{Level: "debug", Output: "file", FilePath: path},
		config.AppConfig{Name: "studio", Environment: "test", Version: "1.2.3"},
	)
	require.NoError(t, err)

	logger.Debug().Str("booking_id", "b-1").Msg("booking_confirmed")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "booking_confirmed", line["message"])
	assert.Equal(t, "studio", line["app"])
	assert.Equal(t, "test", line["env"])
	assert.Equal(t, "1.2.3", line["version"])
	assert.Equal(t, "b-1", line["booking_id"])
}

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, _, err := New(config.LoggingConfig{Level: tt.level, Output: "stderr"}, config.AppConfig{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestNewRejectsBadOutput(t *testing.T) {
	_, _, err := New(config.LoggingConfig{Output: "file"}, config.AppConfig{})
	assert.Error(t, err)

	_, _, err = New(config.LoggingConfig{Output: "syslog"}, config.AppConfig{})
	assert.Error(t, err)
}
