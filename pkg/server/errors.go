// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package server exposes a memory backend to TCP clients using the
// pull-driven session loop, and provides the matching protocol client.
//
// A Server runs one worker goroutine that accepts a connection and serves
// it to completion while holding ServerConfig.BackendLock before accepting
// the next one. Servers that share a lock never touch the backend
// concurrently.
package server

import "errors"

// Sentinel errors for the server package.
var (
	// ErrServerNotStarted indicates an operation was attempted before the server was started.
	ErrServerNotStarted = errors.New("server: server not started")

	// ErrServerAlreadyStarted indicates Start was called on an already-running server.
	ErrServerAlreadyStarted = errors.New("server: server already started")

	// ErrBackendRequired indicates the server configuration has no backend.
	ErrBackendRequired = errors.New("server: backend required")

	// ErrInvalidChunkSize indicates a chunk size outside the accepted range.
	ErrInvalidChunkSize = errors.New("server: invalid chunk size")

	// ErrListenFailed indicates the listener could not be bound.
	ErrListenFailed = errors.New("server: listen failed")

	// ErrStopTimeout indicates the worker did not exit before the stop context was done.
	ErrStopTimeout = errors.New("server: stop timeout")

	// ErrRateLimited indicates a connection was rejected by per-IP rate limiting.
	ErrRateLimited = errors.New("server: rate limited")

	// ErrConnectionFailed indicates a TCP connection could not be established.
	ErrConnectionFailed = errors.New("server: connection failed")

	// ErrAlreadyConnected indicates Connect was called on a connected client.
	ErrAlreadyConnected = errors.New("server: already connected")

	// ErrNotConnected indicates a client operation was attempted before Connect.
	ErrNotConnected = errors.New("server: not connected")

	// ErrProtocol indicates the peer sent a response that does not match the request.
	ErrProtocol = errors.New("server: protocol violation")

	// ErrRequestTooLarge indicates a read whose result cannot be held in memory.
	ErrRequestTooLarge = errors.New("server: request too large")
)
