// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package wire

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"strings"
)

// ByteOrder is the byte order of the multi-byte header fields.
type ByteOrder uint8

const (
	// LittleEndian is the default order, used by the reference device.
	LittleEndian ByteOrder = iota
	// BigEndian is network order.
	BigEndian
)

// nativeOrder is the order of the host running this process.
var nativeOrder = detectNativeOrder()

func detectNativeOrder() ByteOrder {
	var probe [2]byte
	binary.NativeEndian.PutUint16(probe[:], 0x0102)
	if probe[0] == 0x01 {
		return BigEndian
	}
	return LittleEndian
}

// NativeOrder returns the byte order of the host.
func NativeOrder() ByteOrder {
	return nativeOrder
}

// Valid reports whether o is LittleEndian or BigEndian.
func (o ByteOrder) Valid() bool {
	return o == LittleEndian || o == BigEndian
}

// NeedsSwap reports whether fields declared in order o must be byte-swapped
// after being loaded in native order. o must be valid.
func NeedsSwap(o ByteOrder) bool {
	return o != nativeOrder
}

// String implements fmt.Stringer.
func (o ByteOrder) String() string {
	switch o {
	case LittleEndian:
		return "little"
	case BigEndian:
		return "big"
	default:
		return fmt.Sprintf("ByteOrder(%d)", uint8(o))
	}
}

// ParseByteOrder parses "little", "le", "big", "be" or "network".
// The empty string yields LittleEndian.
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "little", "le", "little-endian":
		return LittleEndian, nil
	case "big", "be", "big-endian", "network":
		return BigEndian, nil
	default:
		return LittleEndian, fmt.Errorf("%w: %q", ErrInvalidByteOrder, s)
	}
}

// Swap16 reverses the bytes of v.
func Swap16(v uint16) uint16 { return bits.ReverseBytes16(v) }

// Swap32 reverses the bytes of v.
func Swap32(v uint32) uint32 { return bits.ReverseBytes32(v) }

// Swap64 reverses the bytes of v.
func Swap64(v uint64) uint64 { return bits.ReverseBytes64(v) }

// load32 reads a field declared in order o. The swap is applied at most once.
func load32(b []byte, o ByteOrder) uint32 {
	v := binary.NativeEndian.Uint32(b)
	if NeedsSwap(o) {
		v = Swap32(v)
	}
	return v
}

func load64(b []byte, o ByteOrder) uint64 {
	v := binary.NativeEndian.Uint64(b)
	if NeedsSwap(o) {
		v = Swap64(v)
	}
	return v
}

func store32(b []byte, v uint32, o ByteOrder) {
	if NeedsSwap(o) {
		v = Swap32(v)
	}
	binary.NativeEndian.PutUint32(b, v)
}

func store64(b []byte, v uint64, o ByteOrder) {
	if NeedsSwap(o) {
		v = Swap64(v)
	}
	binary.NativeEndian.PutUint64(b, v)
}
