// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-memleech/pkg/discovery"
	"github.com/jeremyhahn/go-memleech/pkg/server"
	"github.com/jeremyhahn/go-memleech/pkg/wire"
)

// Flag variables shared by read and write.
var (
	clientAddr      string
	clientSRV       string
	clientResolver  string
	clientChunkSize int
	clientByteOrder string
	clientTimeout   time.Duration
)

// addClientFlags registers the connection flags on cmd.
func addClientFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&clientAddr, "addr", "localhost"+server.DefaultListenAddr, "device server address (host:port)")
	f.StringVar(&clientSRV, "srv", "", "locate the server via _memleech._tcp.<domain> SRV records")
	f.StringVar(&clientResolver, "resolver", "", "DNS server for --srv (default: system resolver)")
	f.IntVar(&clientChunkSize, "chunk-size", server.DefaultChunkSize, "chunk size configured on the server")
	f.StringVar(&clientByteOrder, "byte-order", "little", "header byte order (little|big)")
	f.DurationVar(&clientTimeout, "timeout", 30*time.Second, "overall operation timeout")
}

// candidateAddrs returns the server addresses to try, in order.
func candidateAddrs(ctx context.Context) ([]string, error) {
	if clientSRV == "" {
		if clientAddr == "" {
			return nil, fmt.Errorf("%w: --addr or --srv is required", ErrInvalidInput)
		}
		return []string{clientAddr}, nil
	}

	resolver, err := discovery.NewResolver(&discovery.ResolverConfig{
		Server: clientResolver,
		Logger: slog.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}
	endpoints, err := resolver.LookupEndpoints(ctx, discovery.DefaultService, discovery.DefaultProto, clientSRV)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}

	addrs := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		addrs = append(addrs, ep.Addr())
	}
	return addrs, nil
}

// connectDevice connects to the first reachable server.
func connectDevice(ctx context.Context) (*server.Client, error) {
	order, err := wire.ParseByteOrder(clientByteOrder)
	if err != nil {
		return nil, fmt.Errorf("%w: --byte-order: %w", ErrInvalidInput, err)
	}
	if clientChunkSize <= 0 {
		return nil, fmt.Errorf("%w: --chunk-size must be positive", ErrInvalidInput)
	}

	addrs, err := candidateAddrs(ctx)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, addr := range addrs {
		client, err := server.NewClient(&server.ClientConfig{
			ServerAddr: addr,
			ChunkSize:  clientChunkSize,
			ByteOrder:  order,
			Logger:     slog.Default(),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		if err := client.Connect(ctx); err != nil {
			slog.Debug("server unreachable", "addr", addr, "error", err)
			errs = append(errs, err)
			continue
		}
		slog.Debug("connected", "addr", addr)
		return client, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrTransferFailed, errors.Join(errs...))
}
