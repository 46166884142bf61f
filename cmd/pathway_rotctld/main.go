// Command pathway_rotctld accepts hamlib rotctld clients and drives a
// Pathway positioner on a serial port.
package main

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/w1xm/pathway_interface/internal/config"
	"github.com/w1xm/pathway_interface/internal/logger"
	"github.com/w1xm/pathway_interface/pathway"
	"github.com/w1xm/pathway_interface/pathway/simulator"
	"github.com/w1xm/pathway_interface/rotator"
	"github.com/w1xm/pathway_interface/rotctld"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Parse(os.Args[0], os.Args[1:])
	if err != nil {
		logger.Default().Fatal("invalid configuration", "err", err)
	}
	log := cfg.Logger()
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	var status *Server
	opts := cfg.SessionOptions(log)
	if cfg.HTTP != "" {
		// The session is not built yet; the rotator is filled in below.
		status = NewServer(nil, log)
		opts = append(opts, pathway.WithStatusCallback(status.statusCallback))
	}

	var session *pathway.Session
	if cfg.Simulate {
		sim, conn := simulator.New(simulator.WithLogger(log.With("component", "simulator")))
		g.Go(func() error {
			if err := sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				return err
			}
			return nil
		})
		session = pathway.New(conn, opts...)
		log.Info("using simulated positioner")
	} else {
		session, err = pathway.Dial(cfg.Serial.Port, cfg.Serial.Baud, opts...)
		if err != nil {
			log.Fatal("failed to open positioner", "err", err)
		}
		log.Info("opened serial port", "port", cfg.Serial.Port, "baud", cfg.Serial.Baud)
	}
	defer session.Close()

	var r rotator.Rotator = session
	if cfg.Offset.Azimuth != 0 || cfg.Offset.Elevation != 0 {
		r = rotator.NewOffset(session, cfg.Offset.Azimuth, cfg.Offset.Elevation)
		log.Info("applying mounting offset", "azimuth", cfg.Offset.Azimuth, "elevation", cfg.Offset.Elevation)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		log.Fatal("failed to listen", "addr", cfg.Listen, "err", err)
	}
	log.Info("listening for rotctld clients", "addr", ln.Addr().String())
	srv := rotctld.NewServer(r, rotctld.WithLogger(log), rotctld.WithReplyPause(cfg.Timing.ReplyPause))
	g.Go(func() error { return srv.Serve(ctx, ln) })

	if status != nil {
		status.r = r
		g.Go(func() error { return status.ListenAndServe(ctx, cfg.HTTP) })
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("notifying systemd", "err", err)
	}
	err = g.Wait()
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		log.Error("exiting", "err", err)
		os.Exit(1)
	}
	log.Info("stopped")
}
