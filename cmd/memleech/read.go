// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var readCmd = &cobra.Command{
	Use:   "read <address> <length>",
	Short: "Read a memory range from a device server",
	Long: `Read <length> bytes starting at <address> from a device server and write
them to stdout (or --output) as a hex dump or raw bytes (--format).

Numbers accept decimal, 0x hex, 0o octal and 0b binary. Chunks the
backend could not serve read as zeros and make the command fail after the
data has been written.`,
	Args: cobra.ExactArgs(2),
	RunE: runRead,
}

func init() {
	addClientFlags(readCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	address, err := parseUint(args[0])
	if err != nil {
		return fmt.Errorf("%w: address: %w", ErrInvalidInput, err)
	}
	length, err := parseUint(args[1])
	if err != nil {
		return fmt.Errorf("%w: length: %w", ErrInvalidInput, err)
	}
	if _, err := formatOutput(nil); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()

	client, err := connectDevice(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.ReadMemory(ctx, address, length)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	out, err := formatOutput(result.Data)
	if err != nil {
		return err
	}
	if err := writeOutput(out); err != nil {
		return err
	}

	slog.Debug("read completed", "address", fmt.Sprintf("0x%X", address),
		"length", length, "chunks", len(result.Chunks))
	if err := result.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}
