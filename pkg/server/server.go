// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/errclass"
	"github.com/bassosimone/safeconn"

	"github.com/jeremyhahn/go-memleech/pkg/engine"
	"github.com/jeremyhahn/go-memleech/pkg/wire"
)

// maxAcceptBackoff caps the pause after a failed Accept.
const maxAcceptBackoff = time.Second

// Server exposes one backend to TCP clients, one connection at a time.
type Server struct {
	mu       sync.Mutex
	config   *ServerConfig
	lock     sync.Locker
	logger   *slog.Logger
	listener net.Listener
	limiter  *acceptLimiter
	cancel   context.CancelFunc
	done     chan struct{}
	run      *runState
	started  bool
}

// runState is the stop flag of one Start/Stop cycle. It is guarded by the
// backend lock, not mu.
type runState struct {
	stopping bool
}

// NewServer validates cfg, fills in defaults and returns a stopped server.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil || cfg.Backend == nil {
		return nil, ErrBackendRequired
	}
	if cfg.MaxChunkSize == 0 {
		cfg.MaxChunkSize = DefaultChunkSize
	}
	if cfg.MaxChunkSize < 0 || cfg.MaxChunkSize > engine.MaxMaxChunkSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, cfg.MaxChunkSize)
	}
	if !cfg.ByteOrder.Valid() {
		return nil, fmt.Errorf("%w: %s", wire.ErrInvalidByteOrder, cfg.ByteOrder)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = DefaultRateBurst
	}

	lock := cfg.BackendLock
	if lock == nil {
		lock = &sync.Mutex{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config: cfg,
		lock:   lock,
		logger: logger,
	}, nil
}

// Start binds the listener and launches the worker goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrServerAlreadyStarted
	}

	ln := s.config.Listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.config.ListenAddr)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrListenFailed, s.config.ListenAddr, err)
		}
	}
	s.config.Listener = nil

	ctx, cancel := context.WithCancel(context.Background())
	s.listener = ln
	s.cancel = cancel
	s.done = make(chan struct{})
	s.run = &runState{}
	s.limiter = newAcceptLimiter(s.config.RateLimit, s.config.RateBurst,
		rateLimiterStaleAge, rateLimiterCleanupInterval)
	s.started = true

	s.logger.Info("device server listening",
		"addr", ln.Addr().String(),
		"chunkSize", s.config.MaxChunkSize,
		"byteOrder", s.config.ByteOrder.String(),
		"tagExtension", s.config.TagExtension)

	go s.serve(ctx, ln, s.limiter, s.run, s.done)
	return nil
}

// Stop closes the active connection, raises the stop flag under the
// backend lock, closes the listener and waits for the worker to exit or
// for ctx to be done. The flag is raised in the background, so a sibling
// server holding a shared lock cannot block Stop past ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrServerNotStarted
	}
	s.started = false
	cancel, ln, limiter, st, done := s.cancel, s.listener, s.limiter, s.run, s.done
	s.mu.Unlock()

	cancel()

	go func() {
		s.lock.Lock()
		st.stopping = true
		s.lock.Unlock()
	}()

	ln.Close()
	limiter.Stop()

	select {
	case <-done:
		s.logger.Info("device server stopped", "addr", ln.Addr().String())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrStopTimeout, ctx.Err())
	}
}

// Addr returns the listener address, or nil if the server is not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	return s.listener.Addr()
}

// stopRequested reports whether ctx is done, else reads the stop flag
// under the backend lock.
func (s *Server) stopRequested(ctx context.Context, st *runState) bool {
	if ctx.Err() != nil {
		return true
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	return st.stopping
}

// serve is the worker: accept one connection, serve it, repeat.
func (s *Server) serve(ctx context.Context, ln net.Listener, limiter *acceptLimiter, st *runState, done chan struct{}) {
	defer close(done)

	var backoff time.Duration
	for {
		if s.stopRequested(ctx, st) {
			return
		}

		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.stopRequested(ctx, st) {
				return
			}
			backoff = min(max(2*backoff, 5*time.Millisecond), maxAcceptBackoff)
			s.logger.Error("accept failed",
				"errClass", errclass.New(err),
				"error", err,
				"retryIn", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		backoff = 0

		host := peerHost(conn.RemoteAddr())
		if !limiter.Admit(host) {
			s.logger.Warn("connection rejected",
				"remoteAddr", safeconn.RemoteAddr(conn),
				"error", ErrRateLimited)
			conn.Close()
			continue
		}

		s.serveConn(ctx, st, conn)
	}
}

// serveConn runs one session to completion while holding the backend lock.
func (s *Server) serveConn(ctx context.Context, st *runState, conn net.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(connCtx, func() {
		conn.Close()
	})
	defer stop()
	defer conn.Close()

	remoteAddr := safeconn.RemoteAddr(conn)

	s.lock.Lock()
	defer s.lock.Unlock()
	if st.stopping || ctx.Err() != nil {
		return
	}

	rw := withDeadlines(conn, s.config.ReadTimeout, s.config.WriteTimeout)
	session, err := engine.NewSession(&engine.SessionConfig{
		Backend:      s.config.Backend,
		Sender:       rw,
		MaxChunkSize: s.config.MaxChunkSize,
		ByteOrder:    s.config.ByteOrder,
		TagExtension: s.config.TagExtension,
		Logger:       s.logger,
	})
	if err != nil {
		s.logger.Error("session setup failed", "remoteAddr", remoteAddr, "error", err)
		return
	}

	s.logger.Info("connection accepted",
		"session", session.ID(),
		"localAddr", safeconn.LocalAddr(conn),
		"protocol", safeconn.Network(conn),
		"remoteAddr", remoteAddr)

	t0 := time.Now()
	err = session.Serve(connCtx, rw)
	stats := session.Stats()
	session.Close()

	args := []any{
		"session", session.ID(),
		"remoteAddr", remoteAddr,
		"headers", stats.Headers,
		"dropped", stats.Dropped,
		"bytesRead", stats.BytesRead,
		"bytesWritten", stats.BytesWritten,
		"duration", time.Since(t0),
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		args = append(args, "errClass", errclass.New(err), "error", err)
	}
	s.logger.Info("session closed", args...)
}
