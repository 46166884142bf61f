// Package pathway drives a Winegard Pathway style positioner through its
// serial console menu.
//
// The console has no framing: a command is a line of text and the reply is
// whatever the device prints before it goes quiet. Every exchange therefore
// writes the line, waits a fixed settle interval and then drains input until
// nothing more arrives within the poll interval. Exchanges are serialized by
// a single device lock.
package pathway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/w1xm/pathway_interface/internal/logger"
	"golang.org/x/sync/semaphore"
)

const (
	lineEnding = "\r\n"
	// menuPrompt is printed by the device while it is in the motor submenu.
	menuPrompt = "MOT>"
	enterMenu  = "mot"
)

// ErrClosed is returned by reads on a port after Close.
var ErrClosed = errors.New("pathway: port closed")

// Timing holds the fixed delays that stand in for acknowledgements.
type Timing struct {
	// Settle is how long to wait after writing a command before reading.
	Settle time.Duration
	// Poll is the quiescence window: draining stops once no bytes arrive
	// for this long.
	Poll time.Duration
	// AxisDelay separates the azimuth and elevation set commands.
	AxisDelay time.Duration
	// MaxDrain caps a single drain so a chatty device cannot hold the lock.
	MaxDrain time.Duration
	// QueueTimeout bounds how long a command waits for the device lock.
	QueueTimeout time.Duration
}

// DefaultTiming returns the delays the physical device was tuned with.
func DefaultTiming() Timing {
	return Timing{
		Settle:       1 * time.Second,
		Poll:         100 * time.Millisecond,
		AxisDelay:    1 * time.Second,
		MaxDrain:     5 * time.Second,
		QueueTimeout: 30 * time.Second,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithEncoding selects how position replies are decoded.
func WithEncoding(e *Encoding) Option {
	return func(s *Session) { s.enc = e }
}

// WithTiming overrides DefaultTiming.
func WithTiming(t Timing) Option {
	return func(s *Session) { s.timing = t }
}

// WithLogger sets the session logger; the default is logger.Default().
func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithStatusCallback registers a function called whenever the status
// changes. It runs with the device lock held and must not block.
func WithStatusCallback(cb StatusCallback) Option {
	return func(s *Session) { s.statusCallback = cb }
}

// Session owns the serial channel to one positioner.
type Session struct {
	port           io.ReadWriteCloser
	enc            *Encoding
	timing         Timing
	log            logger.Logger
	statusCallback StatusCallback

	// lock is the device lock. It is a semaphore so waiting can time out.
	lock *semaphore.Weighted
	// rx carries bytes read from the port by pump.
	rx chan []byte
	// done is closed by Close so a blocked pump can exit.
	done      chan struct{}
	closeOnce sync.Once

	initialized atomic.Bool

	// mu guards status. Position fields are only written with lock held.
	mu     sync.Mutex
	status Status
}

// New starts a session on an already open port. The session takes
// ownership of the port.
func New(port io.ReadWriteCloser, opts ...Option) *Session {
	s := &Session{
		port:   port,
		enc:    AngleEncoding,
		timing: DefaultTiming(),
		log:    logger.Default(),
		lock:   semaphore.NewWeighted(1),
		rx:     make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.pump()
	return s
}

// Close closes the port and stops the receive pump.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.port.Close()
}

// Status returns a snapshot of the last known device state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) pump() {
	defer close(s.rx)
	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			b := make([]byte, n)
			copy(b, buf[:n])
			select {
			case s.rx <- b:
			case <-s.done:
				return
			}
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, ErrClosed) {
				s.log.Error("reading port", "err", err)
			}
			return
		}
	}
}

func (s *Session) acquire(ctx context.Context) error {
	if s.timing.QueueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timing.QueueTimeout)
		defer cancel()
	}
	if err := s.lock.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for device: %w", err)
	}
	return nil
}

// Initialize enters the motor submenu once per process. Later calls return
// immediately without touching the port.
func (s *Session) Initialize(ctx context.Context) error {
	if s.initialized.Load() {
		return nil
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.lock.Release(1)
	if s.initialized.Load() {
		return nil
	}

	if resp := s.exchangeLocked(""); strings.Contains(resp, menuPrompt) {
		s.log.Info("already in motor submenu, skipping handshake")
	} else {
		resp := s.exchangeLocked(enterMenu)
		s.log.Info("sent menu entry command", "cmd", enterMenu, "response", resp)
		// Entry is not verified; the device gets one settle interval to
		// switch menus.
		time.Sleep(s.timing.Settle)
	}
	s.initialized.Store(true)
	s.update(func(st *Status) { st.Initialized = true })
	return nil
}

// SendCommand writes one command line and returns the device's trimmed
// reply. I/O errors are logged and yield an empty reply; the only error
// returned is a timeout waiting for the device lock.
//
// Replies to azimuth and elevation commands update the last known position
// when they can be parsed.
func (s *Session) SendCommand(ctx context.Context, cmd string) (string, error) {
	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.lock.Release(1)
	return s.exchangeLocked(cmd), nil
}

func (s *Session) exchangeLocked(cmd string) string {
	var resp string
	if _, err := io.WriteString(s.port, cmd+lineEnding); err != nil {
		s.log.Error("writing command", "cmd", cmd, "err", err)
	} else {
		time.Sleep(s.timing.Settle)
		resp = strings.ToValidUTF8(string(s.drainLocked()), "")
	}
	resp = strings.TrimSpace(resp)
	s.log.Debug("exchanged command", "cmd", cmd, "response", resp)
	s.parseLocked(cmd, resp)
	return resp
}

// drainLocked collects input until the port has been quiet for one poll
// interval, or MaxDrain elapses.
func (s *Session) drainLocked() []byte {
	var out []byte
	limit := time.NewTimer(s.timing.MaxDrain)
	defer limit.Stop()
	for {
		select {
		case b, ok := <-s.rx:
			if !ok {
				return out
			}
			out = append(out, b...)
		case <-time.After(s.timing.Poll):
			return out
		case <-limit.C:
			s.log.Warn("device did not go quiet", "limit", s.timing.MaxDrain, "bytes", len(out))
			return out
		}
	}
}

func (s *Session) parseLocked(cmd, resp string) {
	axis, ok := queriedAxis(cmd)
	if !ok {
		s.update(func(st *Status) {
			st.LastCommand = cmd
			st.LastResponse = resp
		})
		return
	}
	v, ok := s.enc.Parse(axis, resp)
	if !ok {
		s.log.Warn("could not parse position", "axis", axis.String(), "cmd", cmd, "encoding", s.enc.Name)
		s.update(func(st *Status) {
			st.LastCommand = cmd
			st.LastResponse = resp
		})
		return
	}
	s.log.Debug("parsed position", "axis", axis.String(), "degrees", v)
	s.update(func(st *Status) {
		if axis == Azimuth {
			st.AzPos = v
		} else {
			st.ElPos = v
		}
		st.Updated = time.Now()
		st.LastCommand = cmd
		st.LastResponse = resp
	})
}

func (s *Session) update(f func(*Status)) {
	s.mu.Lock()
	f(&s.status)
	status := s.status
	s.mu.Unlock()
	if s.statusCallback != nil {
		s.statusCallback(status)
	}
}

// MoveTo commands both axes. Every step runs even if an earlier one failed,
// so a partial move (azimuth set, elevation not) is possible; the returned
// error lists the failed steps.
func (s *Session) MoveTo(ctx context.Context, azimuth, elevation float64) error {
	var errs []error
	if err := s.Initialize(ctx); err != nil {
		s.log.Error("initializing", "err", err)
		errs = append(errs, err)
	}
	step := func(cmd string) {
		if _, err := s.SendCommand(ctx, cmd); err != nil {
			s.log.Error("move step failed", "cmd", cmd, "err", err)
			errs = append(errs, fmt.Errorf("%q: %w", cmd, err))
		}
	}
	step("")
	step(setCommand(Azimuth, azimuth))
	step("")
	time.Sleep(s.timing.AxisDelay)
	step(setCommand(Elevation, elevation))
	step("")
	return errors.Join(errs...)
}

// GetPosition queries both axes and returns the last known position. It
// never fails; if nothing was ever parsed the position is 0, 0.
func (s *Session) GetPosition(ctx context.Context) (float64, float64) {
	if err := s.Initialize(ctx); err != nil {
		s.log.Error("initializing", "err", err)
	}
	for _, axis := range []Axis{Azimuth, Elevation} {
		if _, err := s.SendCommand(ctx, queryCommand(axis)); err != nil {
			s.log.Error("querying position", "axis", axis.String(), "err", err)
		}
	}
	status := s.Status()
	return status.AzPos, status.ElPos
}
