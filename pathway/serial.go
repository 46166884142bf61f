package pathway

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"
)

// readTimeout lets a blocked read notice Close.
const readTimeout = 100 * time.Millisecond

// serialPort turns the timed-out reads of a serial port (0 bytes, io.EOF)
// back into blocking reads until the port is closed.
type serialPort struct {
	*serial.Port
	closed atomic.Bool
}

func (p *serialPort) Read(b []byte) (int, error) {
	for {
		n, err := p.Port.Read(b)
		if n > 0 || (err != nil && err != io.EOF) {
			if p.closed.Load() {
				return n, ErrClosed
			}
			return n, err
		}
		if p.closed.Load() {
			return 0, ErrClosed
		}
	}
}

func (p *serialPort) Close() error {
	p.closed.Store(true)
	return p.Port.Close()
}

// Dial opens a serial port and starts a session on it.
func Dial(name string, baud int, opts ...Option) (*Session, error) {
	c := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", name, err)
	}
	return New(&serialPort{Port: port}, opts...), nil
}
