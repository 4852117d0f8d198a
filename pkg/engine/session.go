// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jeremyhahn/go-memleech/pkg/backend"
	"github.com/jeremyhahn/go-memleech/pkg/chunk"
	"github.com/jeremyhahn/go-memleech/pkg/transport"
	"github.com/jeremyhahn/go-memleech/pkg/wire"
)

// MaxMaxChunkSize is the upper bound for SessionConfig.MaxChunkSize.
const MaxMaxChunkSize = 1 << 20

// State is the protocol state of a session.
type State int

const (
	// StateAwaitingHeader waits for (the rest of) a request header.
	StateAwaitingHeader State = iota

	// StateAwaitingWritePayload waits for payload bytes of a write request.
	StateAwaitingWritePayload
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateAwaitingHeader:
		return "awaiting-header"
	case StateAwaitingWritePayload:
		return "awaiting-write-payload"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SessionConfig configures a protocol session.
type SessionConfig struct {
	// Backend performs the bounded memory transactions. Required.
	Backend backend.Backend

	// Sender receives response headers and read payloads. Required.
	Sender io.Writer

	// MaxChunkSize bounds every backend transaction and every read
	// response payload. Zero is replaced with chunk.DefaultMaxChunkSize.
	MaxChunkSize int

	// ByteOrder is the order agreed for the connection.
	ByteOrder wire.ByteOrder

	// TagExtension enables the per-request byte order tag.
	TagExtension bool

	// ID identifies the session in logs. Empty values are replaced with
	// NewSessionID().
	ID string

	// Logger receives protocol events. If nil, events are discarded.
	Logger *slog.Logger
}

// Stats counts what a session has processed.
type Stats struct {
	Headers         uint64
	Reads           uint64
	Writes          uint64
	Dropped         uint64
	BackendFailures uint64
	BytesRead       uint64
	BytesWritten    uint64
}

// pendingWrite tracks a write whose header was consumed but whose payload
// has not fully arrived.
type pendingWrite struct {
	request   wire.Request
	remaining uint64
}

// Session owns the state of one connection. It is not safe for concurrent
// use; transports guarantee a single delivery at a time.
type Session struct {
	id       string
	backend  backend.Backend
	sender   io.Writer
	codec    *wire.Codec
	maxChunk int
	logger   *slog.Logger

	partial    [wire.RequestHeaderSize]byte
	partialPos int
	pending    *pendingWrite

	// out holds one response header followed by up to maxChunk payload
	// bytes so that each read chunk leaves in a single write.
	out []byte
	// in is the receive buffer used by Serve.
	in []byte

	stats  Stats
	closed bool
}

// NewSession validates cfg and returns an idle session.
func NewSession(cfg *SessionConfig) (*Session, error) {
	if cfg == nil || cfg.Backend == nil {
		return nil, ErrBackendRequired
	}
	if cfg.Sender == nil {
		return nil, ErrSenderRequired
	}

	maxChunk := cfg.MaxChunkSize
	if maxChunk == 0 {
		maxChunk = chunk.DefaultMaxChunkSize
	}
	if maxChunk < 0 || maxChunk > MaxMaxChunkSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, cfg.MaxChunkSize)
	}

	if !cfg.ByteOrder.Valid() {
		return nil, fmt.Errorf("%w: %s", wire.ErrInvalidByteOrder, cfg.ByteOrder)
	}

	id := cfg.ID
	if id == "" {
		id = NewSessionID()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Session{
		id:       id,
		backend:  cfg.Backend,
		sender:   cfg.Sender,
		codec:    wire.NewCodec(cfg.ByteOrder, cfg.TagExtension),
		maxChunk: maxChunk,
		logger:   logger,
		out:      make([]byte, wire.ResponseHeaderSize+maxChunk),
		in:       make([]byte, max(maxChunk, wire.RequestHeaderSize)),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// MaxChunkSize returns the bound applied to every backend transaction.
func (s *Session) MaxChunkSize() int {
	return s.maxChunk
}

// State returns the current protocol state.
func (s *Session) State() State {
	if s.pending != nil {
		return StateAwaitingWritePayload
	}
	return StateAwaitingHeader
}

// Pending returns the number of write payload bytes still expected.
func (s *Session) Pending() (remaining uint64, ok bool) {
	if s.pending == nil {
		return 0, false
	}
	return s.pending.remaining, true
}

// Buffered returns how many bytes of a partial header are held.
func (s *Session) Buffered() int {
	return s.partialPos
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return s.stats
}

// Idle reports whether the session sits exactly between requests: no
// partial header is buffered and no write payload is outstanding.
func (s *Session) Idle() bool {
	return s.pending == nil && s.partialPos == 0
}

// Demand returns how many bytes the session is prepared to consume next:
// the rest of the current header, or the next payload chunk of a pending
// write. It is never zero.
func (s *Session) Demand() int {
	if s.pending != nil {
		return chunk.Next(s.pending.remaining, s.maxChunk)
	}
	return wire.RequestHeaderSize - s.partialPos
}

// Deliver consumes p, which must not exceed Demand(). Backend failures are
// reported to the client and never returned; a returned error means the
// session cannot continue.
func (s *Session) Deliver(p []byte) error {
	if s.closed {
		return ErrSessionClosed
	}
	if len(p) == 0 {
		return nil
	}
	if demand := s.Demand(); len(p) > demand {
		return fmt.Errorf("%w: got %d bytes, demand %d", ErrOverDelivery, len(p), demand)
	}

	s.logger.Debug("delivery",
		"session", s.id,
		"bytes", len(p),
		"state", s.State().String())

	if s.pending != nil {
		return s.acceptPayload(p)
	}
	return s.acceptHeader(p)
}

// acceptHeader appends header bytes and dispatches a completed header.
func (s *Session) acceptHeader(p []byte) error {
	s.partialPos += copy(s.partial[s.partialPos:], p)
	if s.partialPos < wire.RequestHeaderSize {
		return nil
	}

	req, err := s.codec.DecodeRequest(s.partial[:])
	s.partialPos = 0
	s.stats.Headers++
	if err != nil {
		s.drop(req, err)
		return nil
	}

	switch req.Command {
	case wire.CommandRead:
		s.stats.Reads++
		return s.processRead(req)
	case wire.CommandWrite:
		s.stats.Writes++
		if req.Length == 0 {
			s.logger.Debug("empty write completed",
				"session", s.id,
				"address", hexAddr(req.Address))
			return nil
		}
		s.pending = &pendingWrite{request: req, remaining: req.Length}
		return nil
	default:
		s.drop(req, nil)
		return nil
	}
}

// drop discards a header that cannot be served. No response is emitted,
// so the client cannot tell a dropped request from a pending one.
func (s *Session) drop(req wire.Request, err error) {
	s.stats.Dropped++
	args := []any{
		"session", s.id,
		"command", uint8(req.Command),
	}
	if err != nil {
		args = append(args, "error", err)
	}
	s.logger.Warn("dropping request header", args...)
}

// processRead streams one response header and payload per chunk, in
// ascending address order, until the whole range has been answered.
func (s *Session) processRead(req wire.Request) error {
	return chunk.Each(req.Length, s.maxChunk, func(span chunk.Span) error {
		address := req.Address + span.Offset
		frame := s.out[:wire.ResponseHeaderSize+span.Size]
		payload := frame[wire.ResponseHeaderSize:]

		status := s.backend.ReadMemory(address, payload)
		if !status.OK() {
			s.stats.BackendFailures++
			clear(payload)
			s.logger.Warn("read failed",
				"session", s.id,
				"address", hexAddr(address),
				"size", span.Size,
				"status", status.String())
		}

		wire.PutResponse(frame, wire.Response{
			Result: uint32(status),
			Length: uint64(span.Size),
		}, req.Order)

		if err := transport.WriteAll(s.sender, frame); err != nil {
			return fmt.Errorf("%w: read response at %s: %w", ErrTransport, hexAddr(address), err)
		}
		s.stats.BytesRead += uint64(span.Size)
		return nil
	})
}

// acceptPayload writes one payload delivery to the backend and answers it
// with a zero-length response.
func (s *Session) acceptPayload(p []byte) error {
	pw := s.pending
	address := pw.request.Address + (pw.request.Length - pw.remaining)

	status := s.backend.WriteMemory(address, p)
	if !status.OK() {
		s.stats.BackendFailures++
		s.logger.Warn("write failed",
			"session", s.id,
			"address", hexAddr(address),
			"size", len(p),
			"status", status.String())
	}

	pw.remaining -= uint64(len(p))
	s.stats.BytesWritten += uint64(len(p))
	if pw.remaining == 0 {
		s.pending = nil
	}

	var hdr [wire.ResponseHeaderSize]byte
	wire.PutResponse(hdr[:], wire.Response{Result: uint32(status)}, pw.request.Order)
	if err := transport.WriteAll(s.sender, hdr[:]); err != nil {
		return fmt.Errorf("%w: write response at %s: %w", ErrTransport, hexAddr(address), err)
	}
	return nil
}

// Serve runs the session over a pull-driven stream: it blocks reading
// exactly Demand() bytes from r, delivers them, and repeats. It returns nil
// when r ends cleanly between requests and ErrUnexpectedEOF when it ends
// inside a header or write payload. Cancelling ctx does not interrupt a
// blocked read; callers close the stream for that.
func (s *Session) Serve(ctx context.Context, r io.Reader) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		buf := s.in[:s.Demand()]
		if err := transport.ReadExactly(r, buf); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, io.EOF) && s.Idle() {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: in state %s", ErrUnexpectedEOF, s.State())
			}
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}

		if err := s.Deliver(buf); err != nil {
			return err
		}
	}
}

// Reset discards any partial header and pending write, returning the
// session to StateAwaitingHeader.
func (s *Session) Reset() {
	if !s.Idle() {
		s.logger.Debug("session reset",
			"session", s.id,
			"bufferedHeaderBytes", s.partialPos,
			"state", s.State().String())
	}
	s.partialPos = 0
	s.pending = nil
}

// Close ends the session and zeros its buffers, which hold device memory
// contents. Later deliveries fail with ErrSessionClosed. Closing twice
// returns ErrSessionClosed.
func (s *Session) Close() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	s.logger.Debug("session closed",
		"session", s.id,
		"headers", s.stats.Headers,
		"dropped", s.stats.Dropped,
		"bytesRead", s.stats.BytesRead,
		"bytesWritten", s.stats.BytesWritten,
		"incomplete", !s.Idle())
	s.Reset()
	clear(s.partial[:])
	clear(s.out)
	clear(s.in)
	return nil
}

func hexAddr(a uint64) string {
	return fmt.Sprintf("0x%X", a)
}
