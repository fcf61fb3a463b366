package logger_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/headline-radar/internal/logger"
)

func TestNewWithWriterText(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")

	var buf bytes.Buffer
	log := logger.NewWithWriter("cli", &buf)
	log.Debug("hidden")
	log.Info("enrichment finished", "processed", 3)

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "service=cli")
	require.Contains(t, out, "processed=3")
}

func TestNewWithWriterJSONDebug(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")

	var buf bytes.Buffer
	log := logger.NewWithWriter("enricher", &buf)
	log.Debug("subjectivity", "id", "h-1")

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &record))
	require.Equal(t, "enricher", record["service"])
	require.Equal(t, "h-1", record["id"])
	require.Equal(t, "DEBUG", record["level"])
}

func TestNewWithWriterLevelFilter(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "text")

	var buf bytes.Buffer
	log := logger.NewWithWriter("api", &buf)
	log.Warn("dropped")
	require.Empty(t, buf.String())
}
