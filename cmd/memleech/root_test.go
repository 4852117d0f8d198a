// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogging_Default(t *testing.T) {
	quiet = false
	debug = false
	logFormat = "text"
	initLogging()
}

func TestInitLogging_Debug(t *testing.T) {
	debug = true
	quiet = false
	logFormat = "text"
	initLogging()
	debug = false // reset
}

func TestInitLogging_Quiet(t *testing.T) {
	quiet = true
	debug = false
	logFormat = "text"
	initLogging()
	quiet = false // reset
}

func TestInitLogging_JSONFormat(t *testing.T) {
	quiet = false
	debug = false
	logFormat = "json"
	initLogging()
	logFormat = "text" // reset
}

func TestInitLogging_InvalidFormat(t *testing.T) {
	quiet = false
	debug = false
	logFormat = "invalid"
	initLogging()      // should fall back to text
	logFormat = "text" // reset
}

// captureStdout redirects command output into a buffer for the test.
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	old := stdout
	stdout = buf
	t.Cleanup(func() { stdout = old })
	return buf
}

func TestWriteOutput_Stdout(t *testing.T) {
	buf := captureStdout(t)
	outputFile = ""
	require.NoError(t, writeOutput([]byte("test data")))
	assert.Equal(t, "test data", buf.String())
}

func TestWriteOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.bin")
	outputFile = path
	defer func() { outputFile = "" }()

	require.NoError(t, writeOutput([]byte{0xDE, 0xAD}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD}, data)
}

func TestWriteOutput_InvalidPath(t *testing.T) {
	outputFile = "/nonexistent/dir/dump.bin"
	defer func() { outputFile = "" }()

	err := writeOutput([]byte("test"))
	assert.ErrorIs(t, err, ErrFileOperation)
}

func TestFormatOutput(t *testing.T) {
	defer func() { format = "hex" }()
	data := []byte{0x00, 0x41, 0xFF}

	format = "hex"
	out, err := formatOutput(data)
	require.NoError(t, err)
	assert.Equal(t, hex.Dump(data), string(out))

	format = "raw"
	out, err = formatOutput(data)
	require.NoError(t, err)
	assert.Equal(t, data, out)

	format = "pem"
	_, err = formatOutput(data)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRootCmd_HasExpectedSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["version"])
	assert.True(t, names["serve"])
	assert.True(t, names["serve-stdio"])
	assert.True(t, names["read"])
	assert.True(t, names["write"])
}

func TestRootCmd_HasExpectedFlags(t *testing.T) {
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("quiet"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("debug"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("format"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("output"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-format"))
}

func TestRootCmd_PersistentPreRun(t *testing.T) {
	oldVersion := version
	version = "test-prerun"
	defer func() { version = oldVersion }()

	rootCmd.SetArgs([]string{"version"})
	err := rootCmd.Execute()
	assert.NoError(t, err)
	rootCmd.SetArgs(nil) // reset
}
