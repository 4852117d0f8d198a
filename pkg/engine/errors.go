// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package engine implements the memleech protocol state machine. A Session
// reassembles request headers from arbitrarily fragmented input, runs reads
// to completion in bounded chunks and accounts for write payloads that span
// many deliveries.
//
// The same Session serves both transport shapes: push-driven transports
// call Demand and Deliver (see transport.Pump), pull-driven transports call
// Serve, which blocks reading exactly Demand bytes at a time.
package engine

import "errors"

// Sentinel errors for the engine package.
var (
	// ErrBackendRequired indicates a SessionConfig without a Backend.
	ErrBackendRequired = errors.New("engine: backend required")

	// ErrSenderRequired indicates a SessionConfig without a Sender.
	ErrSenderRequired = errors.New("engine: sender required")

	// ErrInvalidChunkSize indicates a chunk size outside (0, MaxMaxChunkSize].
	ErrInvalidChunkSize = errors.New("engine: invalid max chunk size")

	// ErrOverDelivery indicates a transport delivered more bytes than the
	// session demanded.
	ErrOverDelivery = errors.New("engine: delivery exceeds demand")

	// ErrTransport indicates sending a response or receiving input failed.
	// It is fatal to the session.
	ErrTransport = errors.New("engine: transport failure")

	// ErrUnexpectedEOF indicates the stream ended inside a header or a
	// write payload.
	ErrUnexpectedEOF = errors.New("engine: unexpected end of stream")

	// ErrSessionClosed indicates the session was already closed.
	ErrSessionClosed = errors.New("engine: session closed")
)
