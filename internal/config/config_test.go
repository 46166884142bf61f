package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w1xm/pathway_interface/pathway"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pathway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	c, err := Parse("test", nil)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:4533", c.Listen)
	assert.Equal(t, "/dev/ttyUSB0", c.Serial.Port)
	assert.Equal(t, 115200, c.Serial.Baud)
	assert.Equal(t, "angle", c.Encoding)
	assert.Equal(t, pathway.DefaultTiming(), c.SessionTiming())
	assert.Equal(t, 50*time.Millisecond, c.Timing.ReplyPause)
}

func TestFlags(t *testing.T) {
	c, err := Parse("test", []string{
		"-serial", "/dev/ttyACM0",
		"-encoding", "scaled",
		"-settle", "500ms",
		"-az_offset", "12.5",
		"-simulate",
	})
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM0", c.Serial.Port)
	assert.Equal(t, "scaled", c.Encoding)
	assert.Equal(t, 500*time.Millisecond, c.Timing.Settle)
	assert.Equal(t, 12.5, c.Offset.Azimuth)
	assert.True(t, c.Simulate)
}

func TestFileWithFlagOverride(t *testing.T) {
	path := writeFile(t, `
listen: 127.0.0.1:4533
http: 127.0.0.1:8080
serial:
  port: /dev/ttyS1
  baud: 9600
encoding: scaled
timing:
  settle: 1500ms
  axis_delay: 2s
offset:
  azimuth: 180
log:
  level: debug
`)
	c, err := Parse("test", []string{"-config", path, "-baud", "57600"})
	require.NoError(t, err)
	assert.Equal(t, path, c.File)
	assert.Equal(t, "127.0.0.1:4533", c.Listen)
	assert.Equal(t, "127.0.0.1:8080", c.HTTP)
	assert.Equal(t, "/dev/ttyS1", c.Serial.Port)
	assert.Equal(t, 57600, c.Serial.Baud)
	assert.Equal(t, "scaled", c.Encoding)
	assert.Equal(t, 1500*time.Millisecond, c.Timing.Settle)
	assert.Equal(t, 2*time.Second, c.Timing.AxisDelay)
	// Unset keys keep their defaults.
	assert.Equal(t, 100*time.Millisecond, c.Timing.Poll)
	assert.Equal(t, 180.0, c.Offset.Azimuth)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestInvalid(t *testing.T) {
	for _, args := range [][]string{
		{"-encoding", "degrees"},
		{"-baud", "0"},
		{"-settle", "0s"},
		{"-axis_delay", "-1s"},
		{"-log_level", "loud"},
		{"-listen", ""},
		{"-no_such_flag"},
		{"-config", "/nonexistent/pathway.yaml"},
	} {
		_, err := Parse("test", args)
		assert.Error(t, err, "%v", args)
	}

	_, err := Parse("test", []string{"-config", writeFile(t, "serial: [")})
	assert.Error(t, err)
}

func TestSessionOptions(t *testing.T) {
	c := Default()
	assert.Len(t, c.SessionOptions(nil), 3)
}
