// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jeremyhahn/go-memleech/pkg/backend"
	"github.com/jeremyhahn/go-memleech/pkg/chunk"
	"github.com/jeremyhahn/go-memleech/pkg/engine"
	"github.com/jeremyhahn/go-memleech/pkg/transport"
	"github.com/jeremyhahn/go-memleech/pkg/wire"
)

// ChunkStatus is the outcome of one response of a read or write.
type ChunkStatus struct {
	Address uint64
	Length  uint64
	Status  backend.Status
}

// StatusError reports the first chunk that did not complete.
type StatusError struct {
	Address uint64
	Length  uint64
	Status  backend.Status
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("server: %d bytes at 0x%X: %s", e.Length, e.Address, e.Status)
}

// firstFailure returns a StatusError for the first non-OK chunk.
func firstFailure(chunks []ChunkStatus) error {
	for _, c := range chunks {
		if !c.Status.OK() {
			return &StatusError{Address: c.Address, Length: c.Length, Status: c.Status}
		}
	}
	return nil
}

// ReadResult is the data returned by a read together with the status of
// every response. Failed chunks read as zeros.
type ReadResult struct {
	Data   []byte
	Chunks []ChunkStatus
}

// Err returns a *StatusError for the first failed chunk, or nil.
func (r *ReadResult) Err() error {
	return firstFailure(r.Chunks)
}

// WriteResult holds the status of every write response.
type WriteResult struct {
	Chunks []ChunkStatus
}

// Err returns a *StatusError for the first failed chunk, or nil.
func (r *WriteResult) Err() error {
	return firstFailure(r.Chunks)
}

// Client talks to a device server over one TCP connection. Requests are
// serialized; responses carry no request identifier.
type Client struct {
	mu     sync.Mutex
	config *ClientConfig
	conn   net.Conn
	codec  *wire.Codec
	logger *slog.Logger
}

// NewClient creates a client with the given configuration.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkSize < 0 || cfg.ChunkSize > engine.MaxMaxChunkSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, cfg.ChunkSize)
	}
	if !cfg.ByteOrder.Valid() {
		return nil, fmt.Errorf("%w: %s", wire.ErrInvalidByteOrder, cfg.ByteOrder)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = DefaultOperationTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config: cfg,
		codec:  wire.NewCodec(cfg.ByteOrder, false),
		logger: logger,
	}, nil
}

// Connect dials the server. The context bounds the dial together with
// ConnectTimeout. A connected client must be closed before it reconnects.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return ErrAlreadyConnected
	}

	dialer := &net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.ServerAddr)
	if err != nil {
		return fmt.Errorf("%w: dial: %w", ErrConnectionFailed, err)
	}
	c.conn = conn

	c.logger.Debug("connected", "server", c.config.ServerAddr)
	return nil
}

// deadline returns the context deadline, or now plus OperationTimeout.
func (c *Client) deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(c.config.OperationTimeout)
}

// arm applies the operation deadline and closes the connection if ctx is
// cancelled mid-request. The returned func disarms the watcher.
func (c *Client) arm(ctx context.Context) (func() bool, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	if err := c.conn.SetDeadline(c.deadline(ctx)); err != nil {
		return nil, fmt.Errorf("%w: set deadline: %w", ErrConnectionFailed, err)
	}
	conn := c.conn
	return context.AfterFunc(ctx, func() { conn.Close() }), nil
}

// readResponse reads one response header in the connection order.
func (c *Client) readResponse() (wire.Response, error) {
	var hdr [wire.ResponseHeaderSize]byte
	if err := transport.ReadExactly(c.conn, hdr[:]); err != nil {
		return wire.Response{}, fmt.Errorf("server: read response: %w", err)
	}
	return wire.DecodeResponse(hdr[:], c.config.ByteOrder)
}

// ReadMemory reads length bytes starting at address. Backend failures are
// reported through ReadResult.Err; a returned error means the connection
// is no longer usable.
func (c *Client) ReadMemory(ctx context.Context, address, length uint64) (*ReadResult, error) {
	if length > MaxReadLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrRequestTooLarge, length)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	disarm, err := c.arm(ctx)
	if err != nil {
		return nil, err
	}
	defer disarm()

	hdr := c.codec.EncodeRequest(nil, wire.Request{
		Command: wire.CommandRead,
		Address: address,
		Length:  length,
	})
	if err := transport.WriteAll(c.conn, hdr); err != nil {
		return nil, fmt.Errorf("server: write request: %w", err)
	}

	result := &ReadResult{Data: make([]byte, length)}
	var got uint64
	for got < length {
		resp, err := c.readResponse()
		if err != nil {
			return nil, err
		}
		if resp.Length == 0 || resp.Length > length-got {
			return nil, fmt.Errorf("%w: read response of %d bytes with %d outstanding",
				ErrProtocol, resp.Length, length-got)
		}
		payload := result.Data[got : got+resp.Length]
		if err := transport.ReadExactly(c.conn, payload); err != nil {
			return nil, fmt.Errorf("%w: short read payload: %w", ErrProtocol, err)
		}
		status := backend.Status(resp.Result)
		if !status.OK() {
			clear(payload)
		}
		result.Chunks = append(result.Chunks, ChunkStatus{
			Address: address + got,
			Length:  resp.Length,
			Status:  status,
		})
		got += resp.Length
	}

	c.logger.Debug("read completed",
		"address", fmt.Sprintf("0x%X", address),
		"length", length,
		"chunks", len(result.Chunks))
	return result, nil
}

// WriteMemory writes data starting at address. The payload is sent one
// ChunkSize slice at a time and each slice is acknowledged before the next
// is sent. An empty write sends the header and expects no response.
func (c *Client) WriteMemory(ctx context.Context, address uint64, data []byte) (*WriteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	disarm, err := c.arm(ctx)
	if err != nil {
		return nil, err
	}
	defer disarm()

	hdr := c.codec.EncodeRequest(nil, wire.Request{
		Command: wire.CommandWrite,
		Address: address,
		Length:  uint64(len(data)),
	})
	if err := transport.WriteAll(c.conn, hdr); err != nil {
		return nil, fmt.Errorf("server: write request: %w", err)
	}

	result := &WriteResult{}
	err = chunk.Each(uint64(len(data)), c.config.ChunkSize, func(span chunk.Span) error {
		if err := transport.WriteAll(c.conn, data[span.Offset:span.End()]); err != nil {
			return fmt.Errorf("server: write payload: %w", err)
		}
		resp, err := c.readResponse()
		if err != nil {
			return err
		}
		if resp.Length != 0 {
			return fmt.Errorf("%w: write response carries %d bytes", ErrProtocol, resp.Length)
		}
		result.Chunks = append(result.Chunks, ChunkStatus{
			Address: address + span.Offset,
			Length:  uint64(span.Size),
			Status:  backend.Status(resp.Result),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("write completed",
		"address", fmt.Sprintf("0x%X", address),
		"length", len(data),
		"chunks", len(result.Chunks))
	return result, nil
}

// Close shuts down the client connection. It is safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
