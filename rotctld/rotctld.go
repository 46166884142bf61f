// Package rotctld serves the subset of the hamlib rotctld protocol that
// tracking programs such as gpredict use: set position and get position.
package rotctld

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/w1xm/pathway_interface/internal/logger"
	"github.com/w1xm/pathway_interface/rotator"
)

const (
	rprtOK   = "RPRT 0\n"
	rprtFail = "RPRT 1\n"

	DefaultReplyPause = 50 * time.Millisecond

	// fragmentWait is how long a partial line may sit before it is taken
	// as a whole command.
	fragmentWait = 100 * time.Millisecond
	maxCommand   = 64 * 1024
)

type Server struct {
	r          rotator.Rotator
	log        logger.Logger
	replyPause time.Duration

	conns *xsync.MapOf[string, net.Conn]
}

type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithReplyPause sets the pause after each position reply.
func WithReplyPause(d time.Duration) Option {
	return func(s *Server) { s.replyPause = d }
}

func NewServer(r rotator.Rotator, opts ...Option) *Server {
	s := &Server{
		r:          r,
		log:        logger.Default(),
		replyPause: DefaultReplyPause,
		conns:      xsync.NewMapOf[string, net.Conn](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds addr and serves it in the background until ctx is canceled.
func (s *Server) Listen(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := s.Serve(ctx, ln); err != nil {
			s.log.Error("rotctld listener stopped", "err", err)
		}
	}()
	return ln.Addr(), nil
}

// Serve accepts connections on ln until ctx is canceled, then closes the
// listener and every open connection.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		s.log.Info("shutdown; closing rotctld socket")
		ln.Close()
		s.conns.Range(func(id string, conn net.Conn) bool {
			conn.Close()
			return true
		})
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Warn("failed to accept", "err", err)
			continue
		}
		go s.handle(ctx, conn)
	}
}

// ActiveConnections returns the number of connected clients.
func (s *Server) ActiveConnections() int {
	return s.conns.Size()
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	id := uuid.New().String()
	log := s.log.With("conn", id, "addr", conn.RemoteAddr().String())
	s.conns.Store(id, conn)
	defer func() {
		s.conns.Delete(id)
		conn.Close()
		log.Info("client disconnected")
	}()
	if ctx.Err() != nil {
		return
	}
	log.Info("accepted connection")

	err := readCommands(conn, func(cmd string, tooLong bool) error {
		reply, pause := rprtFail, false
		if tooLong {
			log.Warn("command too long", "bytes", len(cmd))
		} else {
			reply, pause = s.dispatch(ctx, log, cmd)
		}
		if _, err := io.WriteString(conn, reply); err != nil {
			return fmt.Errorf("writing reply: %w", err)
		}
		if pause && s.replyPause > 0 {
			time.Sleep(s.replyPause)
		}
		return nil
	})
	if err != nil && !errors.Is(err, net.ErrClosed) {
		log.Warn("connection error", "err", err)
	}
}

// readCommands calls fn for every command the client sends. Commands end at
// a newline, or when a read leaves a partial line and nothing more arrives
// within fragmentWait. Lines longer than maxCommand are passed with tooLong
// set and their remainder is discarded. readCommands returns nil on EOF.
func readCommands(conn net.Conn, fn func(cmd string, tooLong bool) error) error {
	buf := make([]byte, 4096)
	var pending []byte
	discarding := false
	emit := func(line []byte) error {
		if discarding {
			discarding = false
			return nil
		}
		cmd := strings.TrimSpace(string(line))
		if len(cmd) == 0 {
			return nil
		}
		return fn(cmd, false)
	}
	for {
		var deadline time.Time
		if len(pending) > 0 {
			deadline = time.Now().Add(fragmentWait)
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			return err
		}
		n, err := conn.Read(buf)
		pending = append(pending, buf[:n]...)
		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			line := pending[:i]
			pending = pending[i+1:]
			if err := emit(line); err != nil {
				return err
			}
		}
		if len(pending) > maxCommand {
			if !discarding {
				if err := fn(string(pending), true); err != nil {
					return err
				}
				discarding = true
			}
			pending = pending[:0]
		}
		var ne net.Error
		switch {
		case err == nil:
		case errors.As(err, &ne) && ne.Timeout():
			line := pending
			pending = nil
			if err := emit(line); err != nil {
				return err
			}
		case errors.Is(err, io.EOF):
			return emit(pending)
		default:
			return err
		}
	}
}

// dispatch runs one command line and returns the reply. pause is set when
// the client should not be answered again right away.
func (s *Server) dispatch(ctx context.Context, log logger.Logger, cmd string) (reply string, pause bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("command failed", "cmd", cmd, "panic", r)
			reply, pause = rprtFail, false
		}
	}()
	if !utf8.ValidString(cmd) {
		log.Warn("command is not valid UTF-8", "cmd", cmd)
		return rprtFail, false
	}
	log.Debug("command", "cmd", cmd)
	switch cmd[0] {
	case 'P':
		az, el, err := parsePosition(cmd[1:])
		if err != nil {
			log.Warn("bad set_pos", "cmd", cmd, "err", err)
			return rprtFail, false
		}
		// A client that disconnects mid-move does not stop it.
		if err := s.r.MoveTo(ctx, az, el); err != nil {
			log.Warn("move incomplete", "azimuth", az, "elevation", el, "err", err)
		}
		return rprtOK, false
	case 'p':
		az, el := s.r.GetPosition(ctx)
		log.Debug("sending position", "azimuth", az, "elevation", el)
		return fmt.Sprintf("%.2f\n%.2f\n", az, el), true
	}
	return rprtOK, false
}

// parsePosition parses the arguments of a set_pos command. The space after
// the command letter is optional.
func parsePosition(args string) (az, el float64, err error) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("want 2 arguments, got %d", len(fields))
	}
	var v [2]float64
	for i, f := range fields {
		v[i], err = strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, 0, err
		}
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			return 0, 0, fmt.Errorf("%q is not a finite angle", f)
		}
	}
	return v[0], v[1], nil
}
