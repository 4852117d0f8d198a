// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package engine

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/bassosimone/slogstub"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-memleech/pkg/backend"
	"github.com/jeremyhahn/go-memleech/pkg/wire"
)

// memOp is one backend transaction observed by recordingBackend.
type memOp struct {
	Write   bool
	Address uint64
	Size    int
}

// recordingBackend forwards to an inner backend and records every call.
type recordingBackend struct {
	inner backend.Backend
	ops   []memOp
}

func (r *recordingBackend) ReadMemory(address uint64, p []byte) backend.Status {
	r.ops = append(r.ops, memOp{Address: address, Size: len(p)})
	return r.inner.ReadMemory(address, p)
}

func (r *recordingBackend) WriteMemory(address uint64, p []byte) backend.Status {
	r.ops = append(r.ops, memOp{Write: true, Address: address, Size: len(p)})
	return r.inner.WriteMemory(address, p)
}

// newPatternRAM returns a RAM region whose byte at offset i is i*7+3.
func newPatternRAM(t *testing.T, base, size uint64) *backend.RAM {
	t.Helper()
	ram, err := backend.NewRAM(base, size)
	require.NoError(t, err)
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	require.Equal(t, backend.StatusOK, ram.WriteMemory(base, data))
	return ram
}

// newTestSession returns a session writing responses into the returned
// buffer. mutate may adjust the config before the session is built.
func newTestSession(t *testing.T, be backend.Backend, mutate func(*SessionConfig)) (*Session, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	cfg := &SessionConfig{
		Backend:      be,
		Sender:       out,
		MaxChunkSize: 1024,
		ID:           "test-session",
	}
	if mutate != nil {
		mutate(cfg)
	}
	s, err := NewSession(cfg)
	require.NoError(t, err)
	return s, out
}

// encodeRequest encodes a little-endian request header.
func encodeRequest(cmd wire.Command, address, length uint64) []byte {
	return wire.NewCodec(wire.LittleEndian, false).EncodeRequest(nil, wire.Request{
		Command: cmd,
		Address: address,
		Length:  length,
	})
}

// response is one decoded response header with its payload.
type response struct {
	Result  uint32
	Length  uint64
	Payload []byte
}

// decodeResponses splits a response stream into header/payload pairs.
func decodeResponses(t *testing.T, data []byte, order wire.ByteOrder) []response {
	t.Helper()
	var out []response
	for len(data) > 0 {
		require.GreaterOrEqual(t, len(data), wire.ResponseHeaderSize, "truncated response header")
		hdr, err := wire.DecodeResponse(data[:wire.ResponseHeaderSize], order)
		require.NoError(t, err)
		data = data[wire.ResponseHeaderSize:]
		require.GreaterOrEqual(t, uint64(len(data)), hdr.Length, "truncated payload")
		out = append(out, response{
			Result:  hdr.Result,
			Length:  hdr.Length,
			Payload: data[:hdr.Length],
		})
		data = data[hdr.Length:]
	}
	return out
}

// deliverAll feeds data to s in the given fragment sizes. The last
// fragment takes whatever is left.
func deliverAll(t *testing.T, s *Session, data []byte, sizes ...int) {
	t.Helper()
	for _, n := range sizes {
		require.NoError(t, s.Deliver(data[:n]))
		data = data[n:]
	}
	if len(data) > 0 {
		require.NoError(t, s.Deliver(data))
	}
}

// newCapturingLogger returns a logger that captures all log records into
// the returned slice.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// messages returns the messages of records at or above level.
func messages(records []slog.Record, level slog.Level) []string {
	var out []string
	for _, r := range records {
		if r.Level >= level {
			out = append(out, r.Message)
		}
	}
	return out
}
