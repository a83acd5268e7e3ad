package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, newLogger(&bytes.Buffer{}, "dev").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, newLogger(&bytes.Buffer{}, "prod").GetLevel())
}

func TestComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(newLogger(&buf, "prod"), "coordinator")
	logger.Info().Msg("coordinator: ready")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "coordinator", entry["component"])
	assert.Equal(t, "coordinator: ready", entry["message"])
	assert.Contains(t, entry, "time")
}
