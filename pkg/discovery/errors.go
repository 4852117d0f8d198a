// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package discovery locates device servers through DNS SRV records
// (RFC 2782), so clients can be pointed at a domain instead of a fixed
// host and port.
package discovery

import "errors"

var (
	// ErrNoRecords indicates the SRV query returned no usable targets.
	ErrNoRecords = errors.New("discovery: no SRV records found")

	// ErrLookupFailed indicates the DNS query failed or returned an error rcode.
	ErrLookupFailed = errors.New("discovery: DNS lookup failed")

	// ErrInvalidName indicates an empty or malformed service, protocol or domain.
	ErrInvalidName = errors.New("discovery: invalid name")

	// ErrResolverConfig indicates the resolver configuration is invalid.
	ErrResolverConfig = errors.New("discovery: invalid resolver configuration")
)
