// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package server

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jeremyhahn/go-memleech/pkg/backend"
	"github.com/jeremyhahn/go-memleech/pkg/chunk"
	"github.com/jeremyhahn/go-memleech/pkg/wire"
)

// Default configuration values for the server and client.
const (
	// DefaultListenAddr is the default TCP address the server binds to.
	DefaultListenAddr = ":9500"

	// DefaultChunkSize is the default bound on backend transactions.
	DefaultChunkSize = chunk.DefaultMaxChunkSize

	// DefaultConnectTimeout is the default deadline for dialing the server.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultOperationTimeout is the default deadline for one client request.
	DefaultOperationTimeout = 30 * time.Second

	// DefaultRateLimit is the default token refill rate (connections per second per IP).
	DefaultRateLimit = 10.0

	// DefaultRateBurst is the default maximum burst size for the rate limiter.
	DefaultRateBurst = 20

	// MaxReadLength bounds a single client read so the result fits in memory.
	MaxReadLength = 1 << 30

	// rateLimiterStaleAge is how long an idle per-IP entry is kept.
	rateLimiterStaleAge = 10 * time.Minute

	// rateLimiterCleanupInterval is how often idle entries are evicted.
	rateLimiterCleanupInterval = time.Minute
)

// ServerConfig configures a device server.
type ServerConfig struct {
	// ListenAddr is the TCP address to bind the listener to (e.g., ":9500").
	// Empty values are replaced with DefaultListenAddr. Ignored when
	// Listener is set.
	ListenAddr string

	// Listener is an optional pre-bound listener. The server takes
	// ownership and closes it on Stop.
	Listener net.Listener

	// Backend serves the memory transactions. Required.
	Backend backend.Backend

	// BackendLock is held while a connection is served. Servers exposing
	// the same backend share one lock. If nil, a private mutex is used.
	BackendLock sync.Locker

	// MaxChunkSize bounds every backend transaction. Zero is replaced
	// with DefaultChunkSize.
	MaxChunkSize int

	// ByteOrder is the header byte order agreed with clients.
	ByteOrder wire.ByteOrder

	// TagExtension enables the per-request byte order tag.
	TagExtension bool

	// ReadTimeout is the deadline applied before every read from a
	// client. Zero disables it.
	ReadTimeout time.Duration

	// WriteTimeout is the deadline applied before every write to a
	// client. Zero disables it.
	WriteTimeout time.Duration

	// RateLimit is the per-IP token refill rate in connections per second.
	// Zero value is replaced with DefaultRateLimit.
	RateLimit float64

	// RateBurst is the maximum number of connections accepted from one IP
	// in a burst. Zero value is replaced with DefaultRateBurst.
	RateBurst int

	// Logger is the structured logger for the server. If nil,
	// slog.Default() is used.
	Logger *slog.Logger
}

// ClientConfig configures a protocol client.
type ClientConfig struct {
	// ServerAddr is the TCP address of the device server (e.g., "localhost:9500").
	ServerAddr string

	// ChunkSize must match the server's MaxChunkSize: the client sends
	// write payloads in slices of this size and expects one response per
	// slice. Zero is replaced with DefaultChunkSize.
	ChunkSize int

	// ByteOrder is the header byte order agreed with the server.
	ByteOrder wire.ByteOrder

	// ConnectTimeout is the deadline for establishing the TCP connection.
	// Zero value is replaced with DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// OperationTimeout is the deadline for a complete request/response
	// cycle when the context carries none. Zero value is replaced with
	// DefaultOperationTimeout.
	OperationTimeout time.Duration

	// Logger is the structured logger for the client. If nil,
	// slog.Default() is used.
	Logger *slog.Logger
}
