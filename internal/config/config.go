// Package config loads daemon settings from flags and an optional YAML file.
// Flags given on the command line override values from the file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/w1xm/pathway_interface/internal/logger"
	"github.com/w1xm/pathway_interface/pathway"
	"gopkg.in/yaml.v3"
)

type Serial struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type Timing struct {
	Settle       time.Duration `yaml:"settle"`
	Poll         time.Duration `yaml:"poll"`
	AxisDelay    time.Duration `yaml:"axis_delay"`
	MaxDrain     time.Duration `yaml:"max_drain"`
	QueueTimeout time.Duration `yaml:"queue_timeout"`
	// ReplyPause follows each position reply to a rotctld client.
	ReplyPause time.Duration `yaml:"reply_pause"`
}

type Offset struct {
	Azimuth   float64 `yaml:"azimuth"`
	Elevation float64 `yaml:"elevation"`
}

type Log struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type Config struct {
	// File is the YAML file the config was loaded from, if any.
	File string `yaml:"-"`

	Listen   string `yaml:"listen"`
	HTTP     string `yaml:"http"`
	Serial   Serial `yaml:"serial"`
	Encoding string `yaml:"encoding"`
	Timing   Timing `yaml:"timing"`
	Offset   Offset `yaml:"offset"`
	Log      Log    `yaml:"log"`
	Simulate bool   `yaml:"simulate"`
}

func Default() *Config {
	t := pathway.DefaultTiming()
	return &Config{
		Listen:   "0.0.0.0:4533",
		Serial:   Serial{Port: "/dev/ttyUSB0", Baud: 115200},
		Encoding: pathway.AngleEncoding.Name,
		Timing: Timing{
			Settle:       t.Settle,
			Poll:         t.Poll,
			AxisDelay:    t.AxisDelay,
			MaxDrain:     t.MaxDrain,
			QueueTimeout: t.QueueTimeout,
			ReplyPause:   50 * time.Millisecond,
		},
		Log: Log{Level: "info"},
	}
}

func (c *Config) bind(fs *flag.FlagSet) {
	fs.StringVar(&c.File, "config", c.File, "YAML configuration file")
	fs.StringVar(&c.Listen, "listen", c.Listen, "address to accept rotctld clients on")
	fs.StringVar(&c.HTTP, "http", c.HTTP, "address for the HTTP status server (disabled if empty)")
	fs.StringVar(&c.Serial.Port, "serial", c.Serial.Port, "serial port name")
	fs.IntVar(&c.Serial.Baud, "baud", c.Serial.Baud, "serial baud rate")
	fs.StringVar(&c.Encoding, "encoding", c.Encoding, "position report encoding: angle or scaled")
	fs.DurationVar(&c.Timing.Settle, "settle", c.Timing.Settle, "wait after each command before reading")
	fs.DurationVar(&c.Timing.Poll, "poll", c.Timing.Poll, "quiet time that ends a device response")
	fs.DurationVar(&c.Timing.AxisDelay, "axis_delay", c.Timing.AxisDelay, "delay between azimuth and elevation commands")
	fs.DurationVar(&c.Timing.MaxDrain, "max_drain", c.Timing.MaxDrain, "longest time spent reading one response")
	fs.DurationVar(&c.Timing.QueueTimeout, "queue_timeout", c.Timing.QueueTimeout, "longest wait for the device")
	fs.DurationVar(&c.Timing.ReplyPause, "reply_pause", c.Timing.ReplyPause, "pause after each position reply")
	fs.Float64Var(&c.Offset.Azimuth, "az_offset", c.Offset.Azimuth, "azimuth mounting offset in degrees")
	fs.Float64Var(&c.Offset.Elevation, "el_offset", c.Offset.Elevation, "elevation mounting offset in degrees")
	fs.StringVar(&c.Log.Level, "log_level", c.Log.Level, "log level: debug, info, warn or error")
	fs.BoolVar(&c.Log.Console, "log_console", c.Log.Console, "human readable log output")
	fs.BoolVar(&c.Simulate, "simulate", c.Simulate, "use a simulated positioner instead of the serial port")
}

// Parse reads flags from args. If -config names a file, the file is loaded
// first and flags are applied on top of it.
func Parse(name string, args []string) (*Config, error) {
	c := Default()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	c.bind(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if c.File != "" {
		file := c.File
		c = Default()
		if err := c.Load(file); err != nil {
			return nil, err
		}
		c.File = file
		fs = flag.NewFlagSet(name, flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		c.bind(fs)
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load overlays values from a YAML file.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %q: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if !c.Simulate && c.Serial.Port == "" {
		errs = append(errs, errors.New("serial port is required"))
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("baud rate must be positive, got %d", c.Serial.Baud))
	}
	if _, err := pathway.LookupEncoding(c.Encoding); err != nil {
		errs = append(errs, err)
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"settle", c.Timing.Settle},
		{"poll", c.Timing.Poll},
		{"max_drain", c.Timing.MaxDrain},
		{"queue_timeout", c.Timing.QueueTimeout},
	} {
		if d.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", d.name, d.v))
		}
	}
	if c.Timing.AxisDelay < 0 || c.Timing.ReplyPause < 0 {
		errs = append(errs, errors.New("axis_delay and reply_pause must not be negative"))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SessionTiming returns the device session delays.
func (c *Config) SessionTiming() pathway.Timing {
	return pathway.Timing{
		Settle:       c.Timing.Settle,
		Poll:         c.Timing.Poll,
		AxisDelay:    c.Timing.AxisDelay,
		MaxDrain:     c.Timing.MaxDrain,
		QueueTimeout: c.Timing.QueueTimeout,
	}
}

// SessionOptions builds the pathway options shared by every command.
func (c *Config) SessionOptions(l logger.Logger) []pathway.Option {
	// Validate has already checked the name.
	enc, _ := pathway.LookupEncoding(c.Encoding)
	return []pathway.Option{
		pathway.WithEncoding(enc),
		pathway.WithTiming(c.SessionTiming()),
		pathway.WithLogger(l),
	}
}

// Logger builds the configured logger on stderr.
func (c *Config) Logger() logger.Logger {
	level, _ := logger.ParseLevel(c.Log.Level)
	return logger.New(os.Stderr, level, c.Log.Console)
}
