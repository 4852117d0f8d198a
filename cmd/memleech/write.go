// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Flag variables for the write command.
var (
	writeHex   string
	writeInput string
)

var writeCmd = &cobra.Command{
	Use:   "write <address>",
	Short: "Write bytes to a device server",
	Long: `Write bytes starting at <address> on a device server. The payload is
given either as a hex string (--hex, whitespace and colons ignored) or as
the contents of a file (--input).

The payload is sent in --chunk-size slices; each slice is acknowledged by
the server before the next one is sent.`,
	Args: cobra.ExactArgs(1),
	RunE: runWrite,
}

func init() {
	addClientFlags(writeCmd)
	writeCmd.Flags().StringVar(&writeHex, "hex", "", "payload as a hex string")
	writeCmd.Flags().StringVar(&writeInput, "input", "", "file holding the payload")
}

// writePayload returns the payload selected by --hex or --input.
func writePayload() ([]byte, error) {
	switch {
	case writeHex != "" && writeInput != "":
		return nil, fmt.Errorf("%w: --hex and --input are mutually exclusive", ErrInvalidInput)
	case writeHex != "":
		cleaned := strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(writeHex)
		cleaned = strings.TrimPrefix(cleaned, "0x")
		data, err := hex.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("%w: --hex: %w", ErrInvalidInput, err)
		}
		return data, nil
	case writeInput != "":
		data, err := os.ReadFile(writeInput)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFileOperation, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: --hex or --input is required", ErrInvalidInput)
	}
}

func runWrite(cmd *cobra.Command, args []string) error {
	address, err := parseUint(args[0])
	if err != nil {
		return fmt.Errorf("%w: address: %w", ErrInvalidInput, err)
	}
	payload, err := writePayload()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
	defer cancel()

	client, err := connectDevice(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	result, err := client.WriteMemory(ctx, address, payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	if err := result.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	slog.Info("write completed",
		"address", fmt.Sprintf("0x%X", address),
		"bytes", len(payload),
		"chunks", len(result.Chunks))
	return nil
}
