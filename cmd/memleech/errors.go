// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import "errors"

// Exit codes for the CLI.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitOperationFailed indicates a server, transfer or backend failure.
	ExitOperationFailed = 1

	// ExitConfigError indicates a configuration or input validation error.
	ExitConfigError = 2
)

// Sentinel errors for CLI operations.
var (
	// ErrInvalidInput is returned when required input parameters are missing or invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfigLoad is returned when the configuration file cannot be loaded.
	ErrConfigLoad = errors.New("config load failed")

	// ErrBackendSetup is returned when the memory backend cannot be created.
	ErrBackendSetup = errors.New("backend setup failed")

	// ErrServerStart is returned when a device server fails to start or stop.
	ErrServerStart = errors.New("server start failed")

	// ErrTransferFailed is returned when a read or write cannot be completed.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrDiscoveryFailed is returned when no server could be located via SRV.
	ErrDiscoveryFailed = errors.New("discovery failed")

	// ErrFileOperation is returned when a file read or write operation fails.
	ErrFileOperation = errors.New("file operation failed")
)

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrConfigLoad):
		return ExitConfigError
	default:
		return ExitOperationFailed
	}
}
