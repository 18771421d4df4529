// Package serverapp wires together the accept loop, session registry,
// logging, and metrics into the running vsock-shell-server process,
// grounded on cmd/wtd/main.go's signal.NotifyContext shutdown shape.
package serverapp

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/vsockshell/vsockshell/internal/logging"
	"github.com/vsockshell/vsockshell/internal/metrics"
	"github.com/vsockshell/vsockshell/internal/session"
	"github.com/vsockshell/vsockshell/internal/vsocknet"
)

// Options configures a server run.
type Options struct {
	Port        uint32
	MetricsAddr string // empty disables the metrics HTTP server
}

// Run listens on Options.Port and serves connections until ctx's parent
// signal fires, then drains the session registry and returns.
func Run(opts Options) error {
	ln, err := vsocknet.Listen(opts.Port)
	if err != nil {
		return fmt.Errorf("serverapp: listen on port %d: %w", opts.Port, err)
	}
	defer ln.Close()

	m := metrics.New()
	reg := session.NewRegistry()

	if opts.MetricsAddr != "" {
		go func() {
			if err := m.Serve(opts.MetricsAddr); err != nil {
				logging.Error("metrics server stopped", "err", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	acceptErr := make(chan error, 1)
	go func() {
		acceptErr <- acceptLoop(ln, reg, m)
	}()

	select {
	case <-ctx.Done():
		logging.Info("shutting down", "port", opts.Port)
		reg.Shutdown()
		return nil
	case err := <-acceptErr:
		reg.Shutdown()
		return err
	}
}

func acceptLoop(ln *vsocknet.Listener, reg *session.Registry, m *metrics.Collector) error {
	for {
		conn, peerCID, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("serverapp: accept: %w", err)
		}
		s := session.New(conn, peerCID, m)
		logging.Info("session accepted", "session", s.ID, "peer_cid", peerCID)
		s.Run(reg)
	}
}
