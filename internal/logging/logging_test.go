package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForServiceFileDisabledFallsBack(t *testing.T) {
	t.Parallel()

	logger, closeFn := ForServiceFile("pipeline", "logs/voicewire.log", false)
	require.NotNil(t, logger)
	require.NoError(t, closeFn())

	logger, closeFn = ForServiceFile("pipeline", "", true)
	require.NotNil(t, logger)
	require.NoError(t, closeFn())
}

func TestForServiceFileWritesServiceLog(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "logs", "voicewire.log")

	logger, closeFn := ForServiceFile("publisher", base, true)
	require.NotNil(t, logger)

	logger.Info("connected to broker", "broker", "tcp://localhost:1883")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(filepath.Join(filepath.Dir(base), "publisher.log"))
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "publisher", entry["service"])
	assert.Equal(t, "connected to broker", entry["msg"])
	assert.Equal(t, "tcp://localhost:1883", entry["broker"])
}

func TestNewFileLoggerCreatesDirectories(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "logs", "svc.log")

	logger, closeFn, err := NewFileLogger(path, "svc", slog.LevelInfo)
	require.NoError(t, err)

	logger.Info("first entry")
	require.NoError(t, closeFn())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
