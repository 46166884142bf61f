package pathway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsing(t *testing.T) {
	for _, test := range []struct {
		enc   *Encoding
		axis  Axis
		input string
		want  float64
		ok    bool
	}{
		{AngleEncoding, Azimuth, "Angle[0] = 123.45\r\nOK\r\n", 123.45, true},
		{AngleEncoding, Azimuth, "a 0\r\nAngle[0]=7\r\nMOT>", 7, true},
		{AngleEncoding, Azimuth, "Angle[0] = -.5", -0.5, true},
		{AngleEncoding, Elevation, "Angle[0] = 1.00\r\nAngle[1] = 45.25", 45.25, true},
		{AngleEncoding, Elevation, "Angle[0] = 1.00", 0, false},
		{AngleEncoding, Azimuth, "Angle[0] = 1.5\r\nAngle[0] = 2.5", 1.5, true},
		{AngleEncoding, Azimuth, "", 0, false},
		{AngleEncoding, Azimuth, "m 0 a 12345", 0, false},
		{ScaledEncoding, Azimuth, "m 0 a 12345\r\nMOT>", 123.45, true},
		{ScaledEncoding, Elevation, "m 0 a 100\r\nm 1 a -250", -2.5, true},
		{ScaledEncoding, Elevation, "Angle[1] = 45.00", 0, false},
		{ScaledEncoding, Azimuth, "a 0 12345", 0, false},
	} {
		t.Run(test.enc.Name+"/"+test.input, func(t *testing.T) {
			got, ok := test.enc.Parse(test.axis, test.input)
			assert.Equal(t, test.ok, ok)
			assert.InDelta(t, test.want, got, 1e-9)
		})
	}
}

func TestLookupEncoding(t *testing.T) {
	e, err := LookupEncoding("angle")
	require.NoError(t, err)
	assert.Same(t, AngleEncoding, e)

	e, err = LookupEncoding("Scaled")
	require.NoError(t, err)
	assert.Same(t, ScaledEncoding, e)

	_, err = LookupEncoding("degrees")
	assert.Error(t, err)
}

func TestNewEncoding(t *testing.T) {
	_, err := NewEncoding("bad", `Pos%d (`, 1)
	assert.Error(t, err)
	_, err = NewEncoding("nosub", `Pos%d = \d+`, 1)
	assert.Error(t, err)

	e, err := NewEncoding("pos", `Pos%d:\s*(\d+)`, 0.1)
	require.NoError(t, err)
	v, ok := e.Parse(Elevation, "Pos0: 1 Pos1: 455")
	assert.True(t, ok)
	assert.InDelta(t, 45.5, v, 1e-9)
}

func TestQueriedAxis(t *testing.T) {
	for _, test := range []struct {
		cmd  string
		axis Axis
		ok   bool
	}{
		{"a 0", Azimuth, true},
		{"a 0 180.00", Azimuth, true},
		{"a 1", Elevation, true},
		{"a 1 45.00", Elevation, true},
		{"", 0, false},
		{"mot", 0, false},
		{"a", 0, false},
	} {
		axis, ok := queriedAxis(test.cmd)
		assert.Equal(t, test.ok, ok, test.cmd)
		assert.Equal(t, test.axis, axis, test.cmd)
	}
	assert.Equal(t, "a 0 180.00", setCommand(Azimuth, 180))
	assert.Equal(t, "a 1", queryCommand(Elevation))
}
