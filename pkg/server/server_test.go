// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"

	"github.com/jeremyhahn/go-memleech/pkg/backend"
	"github.com/jeremyhahn/go-memleech/pkg/wire"
)

// newTestRAM returns a RAM region whose byte at offset i is byte(i).
func newTestRAM(t *testing.T, base, size uint64) *backend.RAM {
	t.Helper()
	ram, err := backend.NewRAM(base, size)
	require.NoError(t, err)
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	require.Equal(t, backend.StatusOK, ram.WriteMemory(base, data))
	return ram
}

// startTestServer starts a server on a local listener. mutate may adjust
// the config before the server is built.
func startTestServer(t *testing.T, be backend.Backend, mutate func(*ServerConfig)) *Server {
	t.Helper()

	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)

	cfg := &ServerConfig{
		Listener:     ln,
		Backend:      be,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		Logger:       slog.New(slog.DiscardHandler),
	}
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Stop(ctx)
		if err != nil && !errors.Is(err, ErrServerNotStarted) {
			t.Errorf("Stop failed: %v", err)
		}
	})
	return srv
}

// connectTestClient connects a client to srv.
func connectTestClient(t *testing.T, srv *Server, mutate func(*ClientConfig)) *Client {
	t.Helper()

	cfg := &ClientConfig{
		ServerAddr:       srv.Addr().String(),
		ConnectTimeout:   5 * time.Second,
		OperationTimeout: 5 * time.Second,
		Logger:           slog.New(slog.DiscardHandler),
	}
	if mutate != nil {
		mutate(cfg)
	}

	client, err := NewClient(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil)
	assert.ErrorIs(t, err, ErrBackendRequired)

	_, err = NewServer(&ServerConfig{})
	assert.ErrorIs(t, err, ErrBackendRequired)

	_, err = NewServer(&ServerConfig{Backend: newTestRAM(t, 0, 16), MaxChunkSize: -4})
	assert.ErrorIs(t, err, ErrInvalidChunkSize)

	_, err = NewServer(&ServerConfig{Backend: newTestRAM(t, 0, 16), ByteOrder: wire.ByteOrder(7)})
	assert.ErrorIs(t, err, wire.ErrInvalidByteOrder)
}

func TestNewServer_Defaults(t *testing.T) {
	cfg := &ServerConfig{Backend: newTestRAM(t, 0, 16)}
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultChunkSize, cfg.MaxChunkSize)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimit)
	assert.Equal(t, DefaultRateBurst, cfg.RateBurst)
	assert.NotNil(t, srv.lock)
	assert.NotNil(t, srv.logger)
	assert.Nil(t, srv.Addr())
}

func TestServer_StartStop(t *testing.T) {
	srv := startTestServer(t, newTestRAM(t, 0, 16), nil)
	require.NotNil(t, srv.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.Nil(t, srv.Addr())
}

func TestServer_DoubleStart(t *testing.T) {
	srv := startTestServer(t, newTestRAM(t, 0, 16), nil)
	assert.ErrorIs(t, srv.Start(), ErrServerAlreadyStarted)
}

func TestServer_StopWithoutStart(t *testing.T) {
	srv, err := NewServer(&ServerConfig{Backend: newTestRAM(t, 0, 16)})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.ErrorIs(t, srv.Stop(ctx), ErrServerNotStarted)
}

func TestServer_ListenFailed(t *testing.T) {
	ln, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)
	defer ln.Close()

	srv, err := NewServer(&ServerConfig{
		ListenAddr: ln.Addr().String(),
		Backend:    newTestRAM(t, 0, 16),
		Logger:     slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	assert.ErrorIs(t, srv.Start(), ErrListenFailed)
}

func TestServer_ReadWriteRoundTrip(t *testing.T) {
	ram := newTestRAM(t, 0x1000, 8192)
	srv := startTestServer(t, ram, nil)
	client := connectTestClient(t, srv, nil)
	ctx := context.Background()

	rr, err := client.ReadMemory(ctx, 0x1000, 2500)
	require.NoError(t, err)
	require.NoError(t, rr.Err())
	assert.Equal(t, ram.Bytes()[:2500], rr.Data)
	require.Len(t, rr.Chunks, 3)
	assert.Equal(t, ChunkStatus{Address: 0x1000, Length: 1024}, rr.Chunks[0])
	assert.Equal(t, ChunkStatus{Address: 0x1400, Length: 1024}, rr.Chunks[1])
	assert.Equal(t, ChunkStatus{Address: 0x1800, Length: 452}, rr.Chunks[2])

	payload := make([]byte, 3000)
	for i := range payload {
		payload[i] = 0xA5
	}
	wr, err := client.WriteMemory(ctx, 0x1100, payload)
	require.NoError(t, err)
	require.NoError(t, wr.Err())
	assert.Len(t, wr.Chunks, 3)
	assert.Equal(t, payload, ram.Bytes()[0x100:0x100+3000])

	rr, err = client.ReadMemory(ctx, 0x1100, 3000)
	require.NoError(t, err)
	assert.Equal(t, payload, rr.Data)
}

func TestServer_EmptyRequests(t *testing.T) {
	srv := startTestServer(t, newTestRAM(t, 0, 64), nil)
	client := connectTestClient(t, srv, nil)
	ctx := context.Background()

	wr, err := client.WriteMemory(ctx, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, wr.Chunks)

	rr, err := client.ReadMemory(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, rr.Data)

	// The connection stays in sync afterwards.
	rr, err = client.ReadMemory(ctx, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3}, rr.Data)
}

func TestServer_BackendFailureReported(t *testing.T) {
	ram := newTestRAM(t, 0, 2048)
	srv := startTestServer(t, ram, nil)
	client := connectTestClient(t, srv, nil)

	rr, err := client.ReadMemory(context.Background(), 1024, 2048)
	require.NoError(t, err)
	require.Len(t, rr.Chunks, 2)
	assert.Equal(t, backend.StatusOK, rr.Chunks[0].Status)
	assert.Equal(t, backend.StatusDecodeError, rr.Chunks[1].Status)
	assert.Equal(t, make([]byte, 1024), rr.Data[1024:])

	var se *StatusError
	require.ErrorAs(t, rr.Err(), &se)
	assert.Equal(t, uint64(2048), se.Address)
	assert.Equal(t, backend.StatusDecodeError, se.Status)

	ram.SetReadOnly(true)
	wr, err := client.WriteMemory(context.Background(), 0, []byte{1, 2, 3})
	require.NoError(t, err)
	require.ErrorAs(t, wr.Err(), &se)
	assert.Equal(t, backend.StatusAccessError, se.Status)
}

func TestServer_BigEndianConnection(t *testing.T) {
	ram := newTestRAM(t, 0x10, 64)
	srv := startTestServer(t, ram, func(c *ServerConfig) {
		c.ByteOrder = wire.BigEndian
		c.MaxChunkSize = 16
	})
	client := connectTestClient(t, srv, func(c *ClientConfig) {
		c.ByteOrder = wire.BigEndian
		c.ChunkSize = 16
	})

	rr, err := client.ReadMemory(context.Background(), 0x10, 40)
	require.NoError(t, err)
	assert.Len(t, rr.Chunks, 3)
	assert.Equal(t, ram.Bytes()[:40], rr.Data)
}

func TestServer_SequentialConnections(t *testing.T) {
	srv := startTestServer(t, newTestRAM(t, 0, 64), nil)

	for i := 0; i < 3; i++ {
		client := connectTestClient(t, srv, nil)
		rr, err := client.ReadMemory(context.Background(), uint64(i), 1)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, rr.Data)
		require.NoError(t, client.Close())
	}
}

// A connection holds the backend lock until it ends, so a second server
// sharing the lock cannot serve its own client in the meantime.
func TestServer_SharedLockSerializesServers(t *testing.T) {
	ram := newTestRAM(t, 0, 64)
	lock := &sync.Mutex{}
	srvA := startTestServer(t, ram, func(c *ServerConfig) { c.BackendLock = lock })
	srvB := startTestServer(t, ram, func(c *ServerConfig) { c.BackendLock = lock })

	clientA := connectTestClient(t, srvA, nil)
	_, err := clientA.ReadMemory(context.Background(), 0, 1)
	require.NoError(t, err)

	clientB := connectTestClient(t, srvB, nil)
	done := make(chan error, 1)
	go func() {
		_, err := clientB.ReadMemory(context.Background(), 0, 1)
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("second server served while the lock was held: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, clientA.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second server never served its client")
	}
}

// Stopping one server must not wait for a sibling's session to release
// the shared lock.
func TestServer_StopWhileSiblingHoldsLock(t *testing.T) {
	ram := newTestRAM(t, 0, 64)
	lock := &sync.Mutex{}
	srvA := startTestServer(t, ram, func(c *ServerConfig) {
		c.BackendLock = lock
		c.ReadTimeout = 0
	})
	srvB := startTestServer(t, ram, func(c *ServerConfig) {
		c.BackendLock = lock
		c.ReadTimeout = 0
	})

	clientB := connectTestClient(t, srvB, nil)
	_, err := clientB.ReadMemory(context.Background(), 0, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	t0 := time.Now()
	require.NoError(t, srvA.Stop(ctx))
	assert.Less(t, time.Since(t0), 300*time.Millisecond)
	assert.Nil(t, srvA.Addr())

	// The sibling keeps serving.
	rr, err := clientB.ReadMemory(context.Background(), 5, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{5}, rr.Data)
}

// A worker queued on a lock held by a sibling makes Stop time out instead
// of hanging, and exits once the lock is released.
func TestServer_StopHonorsDeadlineWhileQueuedOnLock(t *testing.T) {
	ram := newTestRAM(t, 0, 64)
	lock := &sync.Mutex{}
	srvA := startTestServer(t, ram, func(c *ServerConfig) {
		c.BackendLock = lock
		c.ReadTimeout = 0
	})
	srvB := startTestServer(t, ram, func(c *ServerConfig) {
		c.BackendLock = lock
		c.ReadTimeout = 0
	})

	clientB := connectTestClient(t, srvB, nil)
	_, err := clientB.ReadMemory(context.Background(), 0, 1)
	require.NoError(t, err)

	// srvA accepts this connection and then waits for the lock.
	connectTestClient(t, srvA, nil)
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	t0 := time.Now()
	err = srvA.Stop(ctx)
	assert.ErrorIs(t, err, ErrStopTimeout)
	assert.Less(t, time.Since(t0), 2*time.Second)

	require.NoError(t, clientB.Close())
	assert.Eventually(t, func() bool {
		select {
		case <-srvA.done:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServer_StopClosesActiveConnection(t *testing.T) {
	srv := startTestServer(t, newTestRAM(t, 0, 64), func(c *ServerConfig) {
		c.ReadTimeout = 0
	})
	client := connectTestClient(t, srv, nil)
	_, err := client.ReadMemory(context.Background(), 0, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	_, err = client.ReadMemory(context.Background(), 0, 1)
	assert.Error(t, err)
}

func TestServer_RateLimited(t *testing.T) {
	srv := startTestServer(t, newTestRAM(t, 0, 64), func(c *ServerConfig) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	first := connectTestClient(t, srv, nil)
	_, err := first.ReadMemory(context.Background(), 0, 1)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := connectTestClient(t, srv, nil)
	_, err = second.ReadMemory(context.Background(), 0, 1)
	assert.Error(t, err)
}

func TestServer_DropsUnknownCommand(t *testing.T) {
	srv := startTestServer(t, newTestRAM(t, 0, 64), nil)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	codec := wire.NewCodec(wire.LittleEndian, false)
	stream := codec.EncodeRequest(nil, wire.Request{Command: wire.Command(7), Length: 8})
	stream = codec.EncodeRequest(stream, wire.Request{Command: wire.CommandRead, Address: 2, Length: 2})
	_, err = conn.Write(stream)
	require.NoError(t, err)

	buf := make([]byte, wire.ResponseHeaderSize+2)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	resp, err := wire.DecodeResponse(buf[:wire.ResponseHeaderSize], wire.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), resp.Length)
	assert.Equal(t, []byte{2, 3}, buf[wire.ResponseHeaderSize:])
}

func TestDeadlineConn_ReadTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	conn := withDeadlines(a, 20*time.Millisecond, 0)
	_, err := conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestWithDeadlines_NoTimeouts(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	assert.Same(t, a, withDeadlines(a, 0, 0))
}
