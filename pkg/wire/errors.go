// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package wire implements the fixed-layout request and response headers of
// the memleech protocol, including byte-order normalization.
package wire

import "errors"

// Sentinel errors for the wire package.
var (
	// ErrShortHeader indicates a header buffer of the wrong size was supplied.
	ErrShortHeader = errors.New("wire: short header")

	// ErrUnknownOrderTag indicates a request carried an order tag that is
	// neither connection order, little-endian nor big-endian.
	ErrUnknownOrderTag = errors.New("wire: unknown byte order tag")

	// ErrInvalidByteOrder indicates an unparseable byte order name.
	ErrInvalidByteOrder = errors.New("wire: invalid byte order")
)
