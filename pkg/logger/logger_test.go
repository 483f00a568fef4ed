package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/emisor-fiscal/pkg/logger"
)

func TestComponent_AgregaCampoYFiltraNivel(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Env: "production", Level: "WARN", Output: &buf})

	engineLog := l.Component("engine")
	engineLog.Info().Msg("no debe salir")
	engineLog.Warn().Str("access_key", "3524").Msg("documento pendiente")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "3524", entry["access_key"])
}
