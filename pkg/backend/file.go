// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package backend

import (
	"errors"
	"fmt"
	"os"
)

// ErrOpenFailed indicates the backing file could not be opened.
var ErrOpenFailed = errors.New("backend: open failed")

// File exposes a file's contents as a region mapped at a base address.
// It is useful for serving memory dumps and device images.
type File struct {
	f        *os.File
	base     uint64
	size     uint64
	readOnly bool
}

var _ Backend = &File{}

// OpenFile opens path and maps its current contents at base. When readOnly
// is set the file is opened read-only and writes fail with
// StatusAccessError.
func OpenFile(path string, base uint64, readOnly bool) (*File, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %w", ErrOpenFailed, path, err)
	}
	if info.Size() <= 0 {
		f.Close()
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidSize, path)
	}
	size := uint64(info.Size())
	if base+size < base {
		f.Close()
		return nil, fmt.Errorf("%w: region at 0x%X overflows the address space", ErrInvalidSize, base)
	}
	return &File{f: f, base: base, size: size, readOnly: readOnly}, nil
}

// Size returns the size of the mapped region.
func (b *File) Size() uint64 {
	return b.size
}

// Close closes the underlying file.
func (b *File) Close() error {
	return b.f.Close()
}

// ReadMemory implements Backend.
func (b *File) ReadMemory(address uint64, p []byte) Status {
	if !inRange(b.base, b.size, address, len(p)) {
		return StatusDecodeError
	}
	// ReadAt may report io.EOF alongside a full read at the end of file.
	if n, _ := b.f.ReadAt(p, int64(address-b.base)); n != len(p) {
		return StatusError
	}
	return StatusOK
}

// WriteMemory implements Backend.
func (b *File) WriteMemory(address uint64, p []byte) Status {
	if !inRange(b.base, b.size, address, len(p)) {
		return StatusDecodeError
	}
	if b.readOnly {
		return StatusAccessError
	}
	if _, err := b.f.WriteAt(p, int64(address-b.base)); err != nil {
		return StatusError
	}
	return StatusOK
}
