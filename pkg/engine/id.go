// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package engine

import (
	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSessionID returns a time-ordered UUIDv7 identifying one session in
// logs. It panics only if the system random number generator fails.
func NewSessionID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}
