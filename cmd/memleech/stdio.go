// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-memleech/pkg/backend"
	"github.com/jeremyhahn/go-memleech/pkg/engine"
	"github.com/jeremyhahn/go-memleech/pkg/transport"
)

// stdin is the request stream of serve-stdio.
var stdin io.Reader = os.Stdin

// serveStdioCmd serves one session over the process standard streams, for
// use behind ssh, socat or an inetd-style supervisor.
var serveStdioCmd = &cobra.Command{
	Use:   "serve-stdio",
	Short: "Serve one session over stdin/stdout",
	Long: `Serve a single protocol session: requests are read from stdin and
responses written to stdout. Bytes are handed to the session as they
arrive, never more than it asks for. The command exits when stdin is
closed. Logs go to stderr.`,
	RunE: runServeStdio,
}

func init() {
	addDeviceFlags(serveStdioCmd, false)
}

// runServeStdio resolves the configuration, opens the backend and pumps
// stdin into a session until EOF or a termination signal.
func runServeStdio(cmd *cobra.Command, args []string) error {
	opts, err := resolveDeviceOptions(cmd)
	if err != nil {
		return err
	}

	be, closeBackend, err := openBackend(opts.Backend)
	if err != nil {
		return err
	}
	defer closeBackend()

	sigCtx, sigStop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer sigStop()

	return serveStream(sigCtx, opts, be, stdin, stdout)
}

// serveStream runs one push-driven session from r to w.
func serveStream(ctx context.Context, opts deviceOptions, be backend.Backend, r io.Reader, w io.Writer) error {
	session, err := engine.NewSession(&engine.SessionConfig{
		Backend:      be,
		Sender:       w,
		MaxChunkSize: opts.ChunkSize,
		ByteOrder:    opts.ByteOrder,
		TagExtension: opts.TagExtension,
		Logger:       slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	defer session.Close()

	slog.Info("serving session on standard streams",
		"session", session.ID(),
		"chunkSize", session.MaxChunkSize(),
		"byteOrder", opts.ByteOrder.String())

	err = transport.Pump(ctx, r, session)
	stats := session.Stats()
	slog.Info("session ended",
		"session", session.ID(),
		"headers", stats.Headers,
		"bytesRead", stats.BytesRead,
		"bytesWritten", stats.BytesWritten)

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w: in state %s", ErrTransferFailed, engine.ErrUnexpectedEOF, session.State())
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}
