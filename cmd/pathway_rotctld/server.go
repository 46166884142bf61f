package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/w1xm/pathway_interface/internal/logger"
	"github.com/w1xm/pathway_interface/pathway"
	"github.com/w1xm/pathway_interface/rotator"
)

// Server publishes the positioner status over HTTP and a websocket.
type Server struct {
	r   rotator.Rotator
	log logger.Logger

	statusMu sync.RWMutex
	status   pathway.Status
	// changed is closed and replaced on every status update.
	changed chan struct{}
}

func NewServer(r rotator.Rotator, log logger.Logger) *Server {
	return &Server{r: r, log: log, changed: make(chan struct{})}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) snapshot() (pathway.Status, <-chan struct{}) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status, s.changed
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	status, _ := s.snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.log.Warn("writing status", "err", err)
	}
}

type Command struct {
	Command   string  `json:"command"`
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()
	log := s.log.With("remote", r.RemoteAddr)

	// Read and process incoming messages
	go func() {
		defer cancel()
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Command {
			case "move":
				if err := s.r.MoveTo(ctx, msg.Azimuth, msg.Elevation); err != nil {
					log.Warn("move incomplete", "err", err)
				}
			case "get_position":
				s.r.GetPosition(ctx)
			default:
				log.Warn("unknown websocket command", "command", msg.Command)
			}
		}
	}()

	for {
		status, changed := s.snapshot()
		data, err := json.Marshal(status)
		if err != nil {
			log.Error("encoding status", "err", err)
			return
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug("websocket closed", "err", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}

func (s *Server) statusCallback(status pathway.Status) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status = status
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	return r
}

// ListenAndServe runs the HTTP server until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Handler:     s.Router(),
		Addr:        addr,
		ReadTimeout: 15 * time.Second,
		// Websocket handlers end with ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("serving HTTP", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
