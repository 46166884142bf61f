package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"":        InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestJSONOutput(t *testing.T) {
	t.Setenv("ENV", "")
	var buf bytes.Buffer
	l := New(&buf, InfoLevel, false).With("conn", "abc")
	l.Debug("hidden")
	l.Warn("could not parse position", "axis", "azimuth")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "could not parse position", rec["msg"])
	assert.Equal(t, "abc", rec["conn"])
	assert.Equal(t, "azimuth", rec["axis"])
	assert.Contains(t, rec, "ts")
	assert.NotContains(t, rec, "time")
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, DebugLevel, true).Debug("sim->host", "text", "MOT>")
	assert.Contains(t, buf.String(), "sim->host")
	assert.Contains(t, buf.String(), "MOT>")
}
