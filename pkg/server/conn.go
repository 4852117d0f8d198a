// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package server

import (
	"net"
	"time"
)

// deadlineConn arms a fresh deadline before every read and write so that
// a stalled peer cannot hold the backend lock forever.
type deadlineConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// withDeadlines wraps conn when at least one timeout is set.
func withDeadlines(conn net.Conn, readTimeout, writeTimeout time.Duration) net.Conn {
	if readTimeout <= 0 && writeTimeout <= 0 {
		return conn
	}
	return &deadlineConn{Conn: conn, readTimeout: readTimeout, writeTimeout: writeTimeout}
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}
