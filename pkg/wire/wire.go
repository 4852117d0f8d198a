// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package wire

import "fmt"

// Header sizes. Both are fixed and never negotiated.
const (
	// RequestHeaderSize is the size of a request header in bytes.
	RequestHeaderSize = 24

	// ResponseHeaderSize is the size of a response header in bytes.
	ResponseHeaderSize = 16
)

// Request header field offsets.
const (
	offCommand  = 0
	offOrderTag = 1
	offAddress  = 8
	offLength   = 16
)

// Response header field offsets.
const (
	offResult  = 0
	offRespLen = 8
)

// Command identifies the operation carried by a request header.
type Command uint8

const (
	// CommandRead reads Length bytes starting at Address.
	CommandRead Command = 0
	// CommandWrite writes the Length payload bytes that follow the header.
	CommandWrite Command = 1
)

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	return c == CommandRead || c == CommandWrite
}

// String implements fmt.Stringer.
func (c Command) String() string {
	switch c {
	case CommandRead:
		return "read"
	case CommandWrite:
		return "write"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// OrderTag is the optional per-request byte order selector carried in
// header byte 1 when the tag extension is enabled.
type OrderTag uint8

const (
	// TagConnection selects the order agreed for the connection.
	TagConnection OrderTag = 0
	// TagLittle selects little-endian for this request and its responses.
	TagLittle OrderTag = 1
	// TagBig selects big-endian for this request and its responses.
	TagBig OrderTag = 2
)

// Request is a decoded request header.
type Request struct {
	Command Command
	Address uint64
	Length  uint64

	// Order is the byte order the header was decoded with. Responses to
	// this request must be encoded with the same order.
	Order ByteOrder
}

// Response is a response header. Length payload bytes follow it on the
// wire; write responses always carry zero.
type Response struct {
	Result uint32
	Length uint64
}
