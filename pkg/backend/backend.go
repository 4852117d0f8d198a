// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package backend defines the memory backend contract the protocol engine
// performs bounded reads and writes against, together with in-memory,
// file-backed and lock-serialized implementations.
package backend

import (
	"fmt"
	"sync"
)

// Status is the outcome of one bounded memory transaction. It is forwarded
// verbatim into the result field of a response header.
type Status uint32

// Status values follow the memory transaction results of a bus-attached
// device model.
const (
	// StatusOK indicates the transaction completed.
	StatusOK Status = 0

	// StatusError indicates a generic device error.
	StatusError Status = 1 << 0

	// StatusDecodeError indicates the address is not mapped.
	StatusDecodeError Status = 1 << 1

	// StatusAccessError indicates the access is not permitted.
	StatusAccessError Status = 1 << 2
)

// OK reports whether s indicates success.
func (s Status) OK() bool {
	return s == StatusOK
}

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusDecodeError:
		return "decode-error"
	case StatusAccessError:
		return "access-error"
	default:
		return fmt.Sprintf("status(0x%X)", uint32(s))
	}
}

// Backend performs one bounded read or write against addressable memory.
// Implementations decide which addresses are legal; the engine never
// interprets the returned status beyond Status.OK.
type Backend interface {
	// ReadMemory fills p with the bytes at address.
	ReadMemory(address uint64, p []byte) Status

	// WriteMemory stores p at address.
	WriteMemory(address uint64, p []byte) Status
}

// Func adapts a pair of functions to the Backend interface.
type Func struct {
	ReadFunc  func(address uint64, p []byte) Status
	WriteFunc func(address uint64, p []byte) Status
}

var _ Backend = &Func{}

// ReadMemory implements Backend. A nil ReadFunc reports StatusError.
func (f *Func) ReadMemory(address uint64, p []byte) Status {
	if f.ReadFunc == nil {
		return StatusError
	}
	return f.ReadFunc(address, p)
}

// WriteMemory implements Backend. A nil WriteFunc reports StatusError.
func (f *Func) WriteMemory(address uint64, p []byte) Status {
	if f.WriteFunc == nil {
		return StatusError
	}
	return f.WriteFunc(address, p)
}

// Serialized wraps a Backend so every transaction holds a shared lock.
// Several engines sharing one Serialized never touch the inner backend
// concurrently.
type Serialized struct {
	mu    sync.Locker
	inner Backend
}

var _ Backend = &Serialized{}

// NewSerialized returns a Backend that holds mu around every transaction on
// inner. A nil mu gets a private mutex.
func NewSerialized(inner Backend, mu sync.Locker) *Serialized {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &Serialized{mu: mu, inner: inner}
}

// ReadMemory implements Backend.
func (s *Serialized) ReadMemory(address uint64, p []byte) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.ReadMemory(address, p)
}

// WriteMemory implements Backend.
func (s *Serialized) WriteMemory(address uint64, p []byte) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.WriteMemory(address, p)
}

// inRange reports whether [address, address+n) lies within
// [base, base+size) without overflowing.
func inRange(base, size, address uint64, n int) bool {
	if address < base {
		return false
	}
	off := address - base
	if off > size {
		return false
	}
	return uint64(n) <= size-off
}
