// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package transport realizes "give me N bytes" and "send these N bytes" for
// the two transport shapes the protocol engine supports.
//
// Push-driven transports (Pump) read whatever is available, bounded by the
// consumer's current demand, and hand it over. Pull-driven transports block
// in ReadExactly until the requested count is satisfied and in WriteAll
// until everything is sent.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Sentinel errors for the transport package.
var (
	// ErrNoDemand indicates a consumer asked for zero or negative bytes.
	ErrNoDemand = errors.New("transport: consumer has no demand")

	// ErrNoProgress indicates a reader returned zero bytes and no error
	// too many times in a row.
	ErrNoProgress = errors.New("transport: no progress")
)

// maxConsecutiveEmptyReads bounds how often a reader may return (0, nil)
// before it is treated as broken.
const maxConsecutiveEmptyReads = 100

// Consumer is the push-driven side of the protocol engine.
type Consumer interface {
	// Demand returns how many bytes the consumer is prepared to take next.
	Demand() int

	// Deliver hands over at most Demand() bytes.
	Deliver(p []byte) error

	// Idle reports whether the consumer sits between requests, so that the
	// stream may end there.
	Idle() bool
}

// Pump reads from r and delivers to c until r reports io.EOF, a read or
// delivery fails, or ctx is done. Each read is bounded by c.Demand(), so a
// delivery never exceeds what the consumer asked for. io.EOF returns nil
// when c is idle and io.ErrUnexpectedEOF when it ends a request part way.
//
// Pump checks ctx between deliveries only; to interrupt a blocked read the
// caller must close r.
func Pump(ctx context.Context, r io.Reader, c Consumer) error {
	var buf []byte
	empty := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		want := c.Demand()
		if want <= 0 {
			return fmt.Errorf("%w: %d", ErrNoDemand, want)
		}
		if cap(buf) < want {
			buf = make([]byte, want)
		}

		n, err := r.Read(buf[:want])
		if n > 0 {
			empty = 0
			if derr := c.Deliver(buf[:n]); derr != nil {
				return derr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if !c.Idle() {
					return io.ErrUnexpectedEOF
				}
				return nil
			}
			return err
		}
		if n == 0 {
			empty++
			if empty >= maxConsecutiveEmptyReads {
				return ErrNoProgress
			}
		}
	}
}

// ReadExactly fills buf from r, looping on short reads. It returns io.EOF
// only when no byte was read and io.ErrUnexpectedEOF when the stream ended
// part way. A closed stream always terminates the loop.
func ReadExactly(r io.Reader, buf []byte) error {
	got, empty := 0, 0
	for got < len(buf) {
		n, err := r.Read(buf[got:])
		got += n
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return err
			}
			switch {
			case got == len(buf):
				return nil
			case got == 0:
				return io.EOF
			default:
				return io.ErrUnexpectedEOF
			}
		}
		if n > 0 {
			empty = 0
			continue
		}
		empty++
		if empty >= maxConsecutiveEmptyReads {
			return ErrNoProgress
		}
	}
	return nil
}

// WriteAll writes all of p to w, looping on short writes. A write that
// makes no progress and reports no error yields io.ErrShortWrite.
func WriteAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if n < 0 || n > len(p) {
			return fmt.Errorf("transport: invalid write count %d", n)
		}
		p = p[n:]
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}
