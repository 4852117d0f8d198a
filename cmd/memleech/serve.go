// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeremyhahn/go-memleech/pkg/backend"
	"github.com/jeremyhahn/go-memleech/pkg/server"
)

// stopTimeout bounds the graceful shutdown of the device servers.
const stopTimeout = 10 * time.Second

// serveCmd runs one TCP device server per --listen address, all sharing a
// single backend and backend lock.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run TCP device servers",
	Long: `Run one device server per --listen address. All servers expose the same
memory backend and share one lock, so at most one connection across all of
them touches the backend at any time. Each server serves its connections
one after the other.

Settings come from built-in defaults, then the --config TOML file, then
flags given explicitly on the command line.`,
	RunE: runServe,
}

func init() {
	addDeviceFlags(serveCmd, true)
}

// runServe resolves the configuration, opens the backend and serves until
// SIGINT or SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	opts, err := resolveDeviceOptions(cmd)
	if err != nil {
		return err
	}

	be, closeBackend, err := openBackend(opts.Backend)
	if err != nil {
		return err
	}
	defer closeBackend()

	sigCtx, sigStop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer sigStop()

	return serveDevices(sigCtx, opts, be, func(addrs []net.Addr) {
		for _, addr := range addrs {
			slog.Info("listening", "addr", addr.String())
		}
	})
}

// serveDevices starts one server per listen address and blocks until ctx
// is done, then stops them all concurrently. ready, if not nil, receives
// the bound addresses once every server is running.
func serveDevices(ctx context.Context, opts deviceOptions, be backend.Backend, ready func([]net.Addr)) error {
	lock := &sync.Mutex{}

	servers := make([]*server.Server, 0, len(opts.Listen))
	stopAll := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		for _, srv := range servers {
			srv.Stop(stopCtx)
		}
	}

	for _, addr := range opts.Listen {
		srv, err := server.NewServer(&server.ServerConfig{
			ListenAddr:   addr,
			Backend:      be,
			BackendLock:  lock,
			MaxChunkSize: opts.ChunkSize,
			ByteOrder:    opts.ByteOrder,
			TagExtension: opts.TagExtension,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			RateLimit:    opts.RateLimit,
			RateBurst:    opts.RateBurst,
			Logger:       slog.Default().With("listen", addr),
		})
		if err != nil {
			stopAll()
			return fmt.Errorf("%w: %w", ErrServerStart, err)
		}
		if err := srv.Start(); err != nil {
			stopAll()
			return fmt.Errorf("%w: %w", ErrServerStart, err)
		}
		servers = append(servers, srv)
	}

	if ready != nil {
		addrs := make([]net.Addr, 0, len(servers))
		for _, srv := range servers {
			addrs = append(addrs, srv.Addr())
		}
		ready(addrs)
	}

	<-ctx.Done()
	slog.Info("shutdown signal received")

	// Servers share the backend lock, so each must cancel its own active
	// connection before any of them can raise its stop flag.
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(stopCtx)
	for _, srv := range servers {
		g.Go(func() error {
			return srv.Stop(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: stop: %w", ErrServerStart, err)
	}

	slog.Info("servers stopped", "count", len(servers))
	return nil
}
