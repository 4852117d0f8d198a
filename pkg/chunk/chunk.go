// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package chunk splits a logical transfer length into bounded-size spans
// that fit a fixed-capacity scratch buffer.
package chunk

import (
	"errors"
	"fmt"
)

// DefaultMaxChunkSize is the scratch buffer capacity of the device.
const DefaultMaxChunkSize = 1024

// ErrInvalidChunkSize indicates a non-positive maximum chunk size.
var ErrInvalidChunkSize = errors.New("chunk: invalid max chunk size")

// Span is one bounded unit of a larger transfer. Offset is relative to the
// start of the transfer.
type Span struct {
	Offset uint64
	Size   int
}

// End returns the offset one past the last byte of the span.
func (s Span) End() uint64 {
	return s.Offset + uint64(s.Size)
}

// Each calls fn for every span of a transfer of length bytes, in ascending
// offset order. It stops at the first error returned by fn.
func Each(length uint64, maxSize int, fn func(Span) error) error {
	if maxSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, maxSize)
	}
	step := uint64(maxSize)
	for off := uint64(0); off < length; {
		size := min(length-off, step)
		if err := fn(Span{Offset: off, Size: int(size)}); err != nil {
			return err
		}
		off += size
	}
	return nil
}

// Plan returns every span of a transfer of length bytes.
func Plan(length uint64, maxSize int) ([]Span, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, maxSize)
	}
	spans := make([]Span, 0, min(Count(length, maxSize), 1024))
	_ = Each(length, maxSize, func(s Span) error {
		spans = append(spans, s)
		return nil
	})
	return spans, nil
}

// Count returns the number of spans for a transfer of length bytes, i.e.
// ceil(length / maxSize). It returns 0 when maxSize is not positive.
func Count(length uint64, maxSize int) uint64 {
	if maxSize <= 0 {
		return 0
	}
	step := uint64(maxSize)
	return length/step + min(length%step, 1)
}

// Total returns the sum of the span sizes.
func Total(spans []Span) uint64 {
	var total uint64
	for _, s := range spans {
		total += uint64(s.Size)
	}
	return total
}

// Next returns the size of the next unit to request when remaining bytes
// of a transfer are still outstanding: min(remaining, maxSize).
func Next(remaining uint64, maxSize int) int {
	if maxSize <= 0 {
		return 0
	}
	if remaining < uint64(maxSize) {
		return int(remaining)
	}
	return maxSize
}
