// Package simulator emulates the serial console of a Pathway positioner well
// enough to run the bridge without hardware.
package simulator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/w1xm/pathway_interface/internal/logger"
	"golang.org/x/sync/errgroup"
)

const (
	topPrompt  = ">"
	menuPrompt = "MOT>"
	// Discrete simulation step size
	stepSize = 25 * time.Millisecond
	// Default slew rate in degrees/second
	defaultSlewRate = 10
)

type Simulator struct {
	conn     io.ReadWriteCloser
	log      logger.Logger
	scaled   bool
	slewRate float64

	mu       sync.Mutex
	inMenu   bool
	pos      [2]float64
	target   [2]float64
	received []string
}

type Option func(*Simulator)

// WithScaledReports reports angles as "m <axis> a <hundredths>" instead of
// "Angle[<axis>] = <degrees>".
func WithScaledReports() Option {
	return func(s *Simulator) { s.scaled = true }
}

// WithMenu starts the console already inside the motor submenu.
func WithMenu() Option {
	return func(s *Simulator) { s.inMenu = true }
}

func WithPosition(az, el float64) Option {
	return func(s *Simulator) {
		s.pos = [2]float64{az, el}
		s.target = s.pos
	}
}

// WithSlewRate sets the axis speed in degrees/second. A rate <= 0 moves
// instantly.
func WithSlewRate(rate float64) Option {
	return func(s *Simulator) { s.slewRate = rate }
}

func WithLogger(l logger.Logger) Option {
	return func(s *Simulator) { s.log = l }
}

// New returns a simulator and the host end of its console.
func New(opts ...Option) (*Simulator, net.Conn) {
	a, b := net.Pipe()
	s := &Simulator{conn: a, log: logger.Default(), slewRate: defaultSlewRate}
	for _, opt := range opts {
		opt(s)
	}
	return s, b
}

// Run steps the simulation and answers commands until ctx is canceled or the
// host closes its end, in which case it returns io.EOF.
func (s *Simulator) Run(ctx context.Context) error {
	t := time.NewTicker(stepSize)
	defer t.Stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return s.conn.Close()
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			s.step()
		}
	})
	g.Go(s.reader)
	return g.Wait()
}

func (s *Simulator) reader() error {
	scanner := bufio.NewScanner(s.conn)
	for scanner.Scan() {
		input := scanner.Text()
		s.log.Debug("host->sim", "line", input)
		if err := s.send(s.handle(input)); err != nil {
			return fmt.Errorf("writing console: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading console: %w", err)
	}
	return io.EOF
}

// handle returns everything the console prints in response to one line,
// including the echo and the next prompt.
func (s *Simulator) handle(input string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, input)

	var out strings.Builder
	out.WriteString(input + "\r\n")
	fields := strings.Fields(input)
	switch {
	case !s.inMenu:
		switch {
		case len(fields) == 0:
		case fields[0] == "mot":
			s.inMenu = true
		default:
			fmt.Fprintf(&out, "Unknown command: %s\r\n", input)
		}
	case len(fields) == 0:
	case fields[0] == "q":
		s.inMenu = false
	case fields[0] == "a":
		s.angleCommand(&out, fields[1:])
	default:
		fmt.Fprintf(&out, "Invalid command: %s\r\n", input)
	}
	if s.inMenu {
		out.WriteString(menuPrompt)
	} else {
		out.WriteString(topPrompt)
	}
	return out.String()
}

func (s *Simulator) angleCommand(out *strings.Builder, args []string) {
	if len(args) == 0 {
		s.report(out, 0)
		s.report(out, 1)
		return
	}
	axis, err := strconv.Atoi(args[0])
	if err != nil || axis < 0 || axis > 1 {
		fmt.Fprintf(out, "Invalid axis: %s\r\n", args[0])
		return
	}
	if len(args) > 1 {
		target, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			fmt.Fprintf(out, "Invalid angle: %s\r\n", args[1])
			return
		}
		s.target[axis] = target
		if s.slewRate <= 0 {
			s.pos[axis] = target
		}
	}
	s.report(out, axis)
}

func (s *Simulator) report(out *strings.Builder, axis int) {
	if s.scaled {
		fmt.Fprintf(out, "m %d a %d\r\n", axis, int64(math.Round(s.pos[axis]*100)))
		return
	}
	fmt.Fprintf(out, "Angle[%d] = %.2f\r\n", axis, s.pos[axis])
}

func slew(pos, target, max float64) float64 {
	delta := target - pos
	if math.Abs(delta) <= max {
		return target
	}
	if delta < 0 {
		return pos - max
	}
	return pos + max
}

func (s *Simulator) step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.pos {
		if s.slewRate <= 0 {
			s.pos[i] = s.target[i]
			continue
		}
		s.pos[i] = slew(s.pos[i], s.target[i], s.slewRate*stepSize.Seconds())
	}
}

func (s *Simulator) send(text string) error {
	s.log.Debug("sim->host", "text", text)
	_, err := io.WriteString(s.conn, text)
	return err
}

// Position returns the current simulated position.
func (s *Simulator) Position() (az, el float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos[0], s.pos[1]
}

// Target returns the last commanded position.
func (s *Simulator) Target() (az, el float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target[0], s.target[1]
}

// InMenu reports whether the console is in the motor submenu.
func (s *Simulator) InMenu() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inMenu
}

// Received returns every line the simulator has read.
func (s *Simulator) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}
