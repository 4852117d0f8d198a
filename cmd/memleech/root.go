// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	quiet      bool
	debug      bool
	format     string
	outputFile string
	logFormat  string
)

// logLevel controls the global slog level at runtime.
var logLevel = new(slog.LevelVar)

// exitFunc is the function called to exit the program.
// This can be overridden in tests to capture exit calls.
var exitFunc = os.Exit

// stdout is where command output goes when --output is not set.
var stdout io.Writer = os.Stdout

var rootCmd = &cobra.Command{
	Use:   "memleech",
	Short: "Remote memory access device and client",
	Long: `memleech exposes a memory region over a small binary request/response
protocol and provides a client to read and write it remotely.

Commands:
  serve        - run one or more TCP device servers
  serve-stdio  - serve a single session over stdin/stdout
  read         - read a memory range from a device server
  write        - write bytes to a device server

Requests carry a 24-byte header (command, address, length). Reads are
answered with one response per chunk; writes with one response per
payload chunk received.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output (errors only)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&format, "format", "hex", "read output format (hex|raw)")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log output format (text|json)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(serveStdioCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
}

// initLogging configures the global slog logger based on CLI flags.
//
//	--debug: LevelDebug with source location
//	default: LevelInfo
//	--quiet: LevelError (only errors shown)
//
// --debug takes precedence over --quiet.
// --log-format selects the handler: "text" (default) or "json".
// Logs always go to stderr so that serve-stdio keeps stdout for protocol
// traffic.
func initLogging() {
	switch {
	case debug:
		logLevel.Set(slog.LevelDebug)
	case quiet:
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: debug,
	}

	handlers := map[string]func(io.Writer, *slog.HandlerOptions) slog.Handler{
		"text": func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewTextHandler(w, o) },
		"json": func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewJSONHandler(w, o) },
	}

	factory, ok := handlers[logFormat]
	if !ok {
		factory = handlers["text"]
	}

	slog.SetDefault(slog.New(factory(os.Stderr, opts)))
}

// formatOutput renders read data according to --format.
func formatOutput(data []byte) ([]byte, error) {
	switch format {
	case "hex", "":
		return []byte(hex.Dump(data)), nil
	case "raw":
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q (want hex or raw)", ErrInvalidInput, format)
	}
}

// writeOutput writes data to the configured output file or stdout.
func writeOutput(data []byte) error {
	if outputFile != "" {
		if err := os.WriteFile(outputFile, data, 0600); err != nil {
			return fmt.Errorf("%w: %w", ErrFileOperation, err)
		}
		slog.Info("written to file", "path", outputFile, "bytes", len(data))
		return nil
	}
	if _, err := stdout.Write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrFileOperation, err)
	}
	return nil
}
