package pathway

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Axis numbers a positioner axis as the console does.
type Axis int

const (
	Azimuth   Axis = 0
	Elevation Axis = 1
)

func (a Axis) String() string {
	switch a {
	case Azimuth:
		return "azimuth"
	case Elevation:
		return "elevation"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// Encoding describes how a firmware variant reports an axis position in
// its free-form console output.
type Encoding struct {
	Name string
	// Pattern is a format string taking the axis index; the first submatch
	// of the resulting expression is the reported value.
	Pattern string
	// Scale converts the reported value to decimal degrees.
	Scale float64

	re [2]*regexp.Regexp
}

var (
	// AngleEncoding matches "Angle[0] = 123.45".
	AngleEncoding = MustEncoding("angle", `Angle\[%d\]\s*=\s*([-+]?\d*\.\d+|[-+]?\d+)`, 1)
	// ScaledEncoding matches "m 0 a 12345", in hundredths of a degree.
	ScaledEncoding = MustEncoding("scaled", `\bm\s+%d\s+a\s+([-+]?\d+)`, 0.01)
)

var encodings = map[string]*Encoding{
	AngleEncoding.Name:  AngleEncoding,
	ScaledEncoding.Name: ScaledEncoding,
}

func NewEncoding(name, pattern string, scale float64) (*Encoding, error) {
	e := &Encoding{Name: name, Pattern: pattern, Scale: scale}
	for _, axis := range []Axis{Azimuth, Elevation} {
		re, err := regexp.Compile(fmt.Sprintf(pattern, int(axis)))
		if err != nil {
			return nil, fmt.Errorf("encoding %q: %w", name, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("encoding %q: pattern has no submatch", name)
		}
		e.re[axis] = re
	}
	return e, nil
}

func MustEncoding(name, pattern string, scale float64) *Encoding {
	e, err := NewEncoding(name, pattern, scale)
	if err != nil {
		panic(err)
	}
	return e
}

// LookupEncoding returns a built-in encoding by name.
func LookupEncoding(name string) (*Encoding, error) {
	e, ok := encodings[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown position encoding %q", name)
	}
	return e, nil
}

// Parse returns the first position reported for axis in text.
func (e *Encoding) Parse(axis Axis, text string) (float64, bool) {
	if axis != Azimuth && axis != Elevation {
		return 0, false
	}
	m := e.re[axis].FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v * e.Scale, true
}

func setCommand(axis Axis, degrees float64) string {
	return fmt.Sprintf("a %d %.2f", int(axis), degrees)
}

func queryCommand(axis Axis) string {
	return fmt.Sprintf("a %d", int(axis))
}

// queriedAxis reports which axis a command reads back, if any. Set commands
// share the prefix and the device echoes the angle for them too.
func queriedAxis(cmd string) (Axis, bool) {
	switch {
	case strings.HasPrefix(cmd, queryCommand(Azimuth)):
		return Azimuth, true
	case strings.HasPrefix(cmd, queryCommand(Elevation)):
		return Elevation, true
	}
	return 0, false
}
