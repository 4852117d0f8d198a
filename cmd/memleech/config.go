// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-memleech/pkg/backend"
	"github.com/jeremyhahn/go-memleech/pkg/server"
	"github.com/jeremyhahn/go-memleech/pkg/wire"
)

// Backend kinds accepted by --backend and the [backend] table.
const (
	backendRAM  = "ram"
	backendFile = "file"
)

// defaultRAMSize is the RAM region size when neither --size nor an image
// file gives one.
const defaultRAMSize = 1 << 20

// deviceOptions is the resolved configuration shared by serve and
// serve-stdio.
type deviceOptions struct {
	Listen       []string
	ChunkSize    int
	ByteOrder    wire.ByteOrder
	TagExtension bool
	RateLimit    float64
	RateBurst    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Backend      backendOptions
}

// backendOptions selects and sizes the memory backend.
type backendOptions struct {
	Kind     string
	Base     uint64
	Size     uint64
	Path     string
	ReadOnly bool
}

// defaultDeviceOptions returns the built-in defaults.
func defaultDeviceOptions() deviceOptions {
	return deviceOptions{
		Listen:    []string{server.DefaultListenAddr},
		ChunkSize: server.DefaultChunkSize,
		ByteOrder: wire.LittleEndian,
		RateLimit: server.DefaultRateLimit,
		RateBurst: server.DefaultRateBurst,
		Backend:   backendOptions{Kind: backendRAM},
	}
}

// fileConfig mirrors the TOML configuration file.
type fileConfig struct {
	Listen       []string          `toml:"listen"`
	ChunkSize    int               `toml:"chunk_size"`
	ByteOrder    string            `toml:"byte_order"`
	TagExtension bool              `toml:"tag_extension"`
	RateLimit    float64           `toml:"rate_limit"`
	RateBurst    int               `toml:"rate_burst"`
	ReadTimeout  string            `toml:"read_timeout"`
	WriteTimeout string            `toml:"write_timeout"`
	Backend      fileBackendConfig `toml:"backend"`
}

type fileBackendConfig struct {
	Kind     string `toml:"kind"`
	Base     uint64 `toml:"base"`
	Size     uint64 `toml:"size"`
	Path     string `toml:"path"`
	ReadOnly bool   `toml:"read_only"`
}

// loadDeviceConfig applies the keys defined in the TOML file at path on
// top of opts. Unknown keys are rejected.
func loadDeviceConfig(path string, opts *deviceOptions) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConfigLoad, path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: %s: unknown key %q", ErrConfigLoad, path, undecoded[0].String())
	}

	if meta.IsDefined("listen") {
		opts.Listen = normalizeList(raw.Listen)
	}
	if meta.IsDefined("chunk_size") {
		opts.ChunkSize = raw.ChunkSize
	}
	if meta.IsDefined("byte_order") {
		order, err := wire.ParseByteOrder(strings.TrimSpace(raw.ByteOrder))
		if err != nil {
			return fmt.Errorf("%w: %s: byte_order: %w", ErrConfigLoad, path, err)
		}
		opts.ByteOrder = order
	}
	if meta.IsDefined("tag_extension") {
		opts.TagExtension = raw.TagExtension
	}
	if meta.IsDefined("rate_limit") {
		opts.RateLimit = raw.RateLimit
	}
	if meta.IsDefined("rate_burst") {
		opts.RateBurst = raw.RateBurst
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return fmt.Errorf("%w: %s: read_timeout: %w", ErrConfigLoad, path, err)
		}
		opts.ReadTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return fmt.Errorf("%w: %s: write_timeout: %w", ErrConfigLoad, path, err)
		}
		opts.WriteTimeout = d
	}

	if meta.IsDefined("backend", "kind") {
		opts.Backend.Kind = strings.ToLower(strings.TrimSpace(raw.Backend.Kind))
	}
	if meta.IsDefined("backend", "base") {
		opts.Backend.Base = raw.Backend.Base
	}
	if meta.IsDefined("backend", "size") {
		opts.Backend.Size = raw.Backend.Size
	}
	if meta.IsDefined("backend", "path") {
		opts.Backend.Path = strings.TrimSpace(raw.Backend.Path)
	}
	if meta.IsDefined("backend", "read_only") {
		opts.Backend.ReadOnly = raw.Backend.ReadOnly
	}
	return nil
}

// normalizeList trims entries and drops empty ones.
func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Flag variables shared by serve and serve-stdio.
var (
	deviceConfigFile   string
	deviceListen       []string
	deviceChunkSize    int
	deviceByteOrder    string
	deviceTagExtension bool
	deviceRateLimit    float64
	deviceRateBurst    int
	deviceReadTimeout  time.Duration
	deviceWriteTimeout time.Duration
	deviceBackendKind  string
	deviceBase         string
	deviceSize         string
	devicePath         string
	deviceReadOnly     bool
)

// addDeviceFlags registers the backend and protocol flags on cmd. When
// withNetwork is set the listener flags are registered too.
func addDeviceFlags(cmd *cobra.Command, withNetwork bool) {
	f := cmd.Flags()
	f.StringVar(&deviceConfigFile, "config", "", "path to TOML configuration file")
	f.IntVar(&deviceChunkSize, "chunk-size", server.DefaultChunkSize, "maximum bytes per backend transaction")
	f.StringVar(&deviceByteOrder, "byte-order", "little", "header byte order (little|big)")
	f.BoolVar(&deviceTagExtension, "tag-extension", false, "honour the per-request byte order tag")
	f.StringVar(&deviceBackendKind, "backend", backendRAM, "memory backend (ram|file)")
	f.StringVar(&deviceBase, "base", "0", "address the backend is mapped at")
	f.StringVar(&deviceSize, "size", "", "RAM region size (default: image size or 1MiB)")
	f.StringVar(&devicePath, "path", "", "backing file for file backends, or initial image for ram")
	f.BoolVar(&deviceReadOnly, "read-only", false, "reject writes with an access error")

	if withNetwork {
		f.StringSliceVar(&deviceListen, "listen", []string{server.DefaultListenAddr},
			"TCP listen address (repeatable; servers share one backend lock)")
		f.Float64Var(&deviceRateLimit, "rate-limit", server.DefaultRateLimit, "connections per second per client IP")
		f.IntVar(&deviceRateBurst, "rate-burst", server.DefaultRateBurst, "connection burst per client IP")
		f.DurationVar(&deviceReadTimeout, "read-timeout", 0, "per-read deadline (0 disables)")
		f.DurationVar(&deviceWriteTimeout, "write-timeout", 0, "per-write deadline (0 disables)")
	}
}

// resolveDeviceOptions merges defaults, the --config file and explicitly
// set flags, in that order.
func resolveDeviceOptions(cmd *cobra.Command) (deviceOptions, error) {
	opts := defaultDeviceOptions()
	if deviceConfigFile != "" {
		if err := loadDeviceConfig(deviceConfigFile, &opts); err != nil {
			return deviceOptions{}, err
		}
	}

	f := cmd.Flags()
	if f.Changed("listen") {
		opts.Listen = normalizeList(deviceListen)
	}
	if f.Changed("chunk-size") {
		opts.ChunkSize = deviceChunkSize
	}
	if f.Changed("byte-order") {
		order, err := wire.ParseByteOrder(deviceByteOrder)
		if err != nil {
			return deviceOptions{}, fmt.Errorf("%w: --byte-order: %w", ErrInvalidInput, err)
		}
		opts.ByteOrder = order
	}
	if f.Changed("tag-extension") {
		opts.TagExtension = deviceTagExtension
	}
	if f.Changed("rate-limit") {
		opts.RateLimit = deviceRateLimit
	}
	if f.Changed("rate-burst") {
		opts.RateBurst = deviceRateBurst
	}
	if f.Changed("read-timeout") {
		opts.ReadTimeout = deviceReadTimeout
	}
	if f.Changed("write-timeout") {
		opts.WriteTimeout = deviceWriteTimeout
	}
	if f.Changed("backend") {
		opts.Backend.Kind = strings.ToLower(deviceBackendKind)
	}
	if f.Changed("base") {
		base, err := parseUint(deviceBase)
		if err != nil {
			return deviceOptions{}, fmt.Errorf("%w: --base: %w", ErrInvalidInput, err)
		}
		opts.Backend.Base = base
	}
	if f.Changed("size") {
		size, err := parseUint(deviceSize)
		if err != nil {
			return deviceOptions{}, fmt.Errorf("%w: --size: %w", ErrInvalidInput, err)
		}
		opts.Backend.Size = size
	}
	if f.Changed("path") {
		opts.Backend.Path = devicePath
	}
	if f.Changed("read-only") {
		opts.Backend.ReadOnly = deviceReadOnly
	}

	if len(opts.Listen) == 0 {
		return deviceOptions{}, fmt.Errorf("%w: at least one listen address is required", ErrInvalidInput)
	}
	if opts.ChunkSize <= 0 {
		return deviceOptions{}, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidInput, opts.ChunkSize)
	}
	return opts, nil
}

// parseUint parses decimal, 0x-prefixed hex, 0o octal or 0b binary.
func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.ReplaceAll(strings.TrimSpace(s), "_", ""), 0, 64)
}

// openBackend builds the backend described by opts. The returned closer
// releases any file it holds.
func openBackend(opts backendOptions) (backend.Backend, func() error, error) {
	noop := func() error { return nil }

	switch opts.Kind {
	case backendRAM, "":
		var image []byte
		if opts.Path != "" {
			data, err := os.ReadFile(opts.Path)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %w", ErrBackendSetup, err)
			}
			image = data
		}
		size := opts.Size
		if size == 0 {
			size = uint64(len(image))
		}
		if size == 0 {
			size = defaultRAMSize
		}
		if uint64(len(image)) > size {
			return nil, nil, fmt.Errorf("%w: image of %d bytes exceeds region size %d",
				ErrBackendSetup, len(image), size)
		}
		ram, err := backend.NewRAM(opts.Base, size)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrBackendSetup, err)
		}
		if len(image) > 0 {
			if status := ram.WriteMemory(opts.Base, image); !status.OK() {
				return nil, nil, fmt.Errorf("%w: loading image: %s", ErrBackendSetup, status)
			}
		}
		ram.SetReadOnly(opts.ReadOnly)
		return ram, noop, nil

	case backendFile:
		if opts.Path == "" {
			return nil, nil, fmt.Errorf("%w: file backend requires a path", ErrInvalidInput)
		}
		f, err := backend.OpenFile(opts.Path, opts.Base, opts.ReadOnly)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrBackendSetup, err)
		}
		return f, f.Close, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown backend %q (want ram or file)", ErrInvalidInput, opts.Kind)
	}
}
