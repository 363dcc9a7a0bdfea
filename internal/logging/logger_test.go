package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/wafbackup/internal/config"
)

func TestNewLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.Config{
		Source:   config.Tenant{Host: "src.example.com"},
		LogLevel: "debug",
	})

	logger.Debug().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "wafbackup", entry["service"])
	assert.Equal(t, "src.example.com", entry["source_host"])
	assert.NotContains(t, entry, "destination_host")
	assert.Equal(t, "hello", entry["message"])
}

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	logger := newLogger(&bytes.Buffer{}, &config.Config{LogLevel: "chatty"})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestNewLogger_EmptyLevelIsInfo(t *testing.T) {
	logger := newLogger(&bytes.Buffer{}, &config.Config{})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}
