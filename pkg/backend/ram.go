// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package backend

import (
	"errors"
	"fmt"
	"sync"
)

// MaxRAMSize bounds the size of an in-memory region.
const MaxRAMSize = 1 << 32

// ErrInvalidSize indicates a region size of zero or above the maximum.
var ErrInvalidSize = errors.New("backend: invalid region size")

// RAM is an in-memory region mapped at Base. Accesses that are not fully
// contained in the region fail with StatusDecodeError and touch nothing.
type RAM struct {
	mu       sync.RWMutex
	base     uint64
	data     []byte
	readOnly bool
}

var _ Backend = &RAM{}

// NewRAM allocates a zero-filled region of size bytes mapped at base.
func NewRAM(base uint64, size uint64) (*RAM, error) {
	if size == 0 || size > MaxRAMSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if base+size < base {
		return nil, fmt.Errorf("%w: region at 0x%X overflows the address space", ErrInvalidSize, base)
	}
	return &RAM{base: base, data: make([]byte, size)}, nil
}

// SetReadOnly makes subsequent writes fail with StatusAccessError.
func (r *RAM) SetReadOnly(readOnly bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readOnly = readOnly
}

// Base returns the address the region is mapped at.
func (r *RAM) Base() uint64 {
	return r.base
}

// Size returns the size of the region in bytes.
func (r *RAM) Size() uint64 {
	return uint64(len(r.data))
}

// Bytes returns a copy of the region contents.
func (r *RAM) Bytes() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out
}

// ReadMemory implements Backend.
func (r *RAM) ReadMemory(address uint64, p []byte) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !inRange(r.base, uint64(len(r.data)), address, len(p)) {
		return StatusDecodeError
	}
	off := address - r.base
	copy(p, r.data[off:off+uint64(len(p))])
	return StatusOK
}

// WriteMemory implements Backend.
func (r *RAM) WriteMemory(address uint64, p []byte) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !inRange(r.base, uint64(len(r.data)), address, len(p)) {
		return StatusDecodeError
	}
	if r.readOnly {
		return StatusAccessError
	}
	off := address - r.base
	copy(r.data[off:], p)
	return StatusOK
}
