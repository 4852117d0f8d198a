// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package server

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// peerBucket is the token bucket of one remote host.
type peerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// acceptLimiter decides whether a freshly accepted connection may be
// served, using one token bucket per remote host. Buckets idle for longer
// than staleAge are evicted by a background sweeper.
type acceptLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*peerBucket
	limit    rate.Limit
	burst    int
	staleAge time.Duration
	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// newAcceptLimiter returns a limiter and starts its sweeper.
func newAcceptLimiter(r float64, burst int, staleAge, sweepInterval time.Duration) *acceptLimiter {
	al := &acceptLimiter{
		buckets:  make(map[string]*peerBucket),
		limit:    rate.Limit(r),
		burst:    burst,
		staleAge: staleAge,
		done:     make(chan struct{}),
		now:      time.Now,
	}
	go al.sweep(sweepInterval)
	return al
}

// peerHost returns the host part of addr, or its full string form when it
// carries no port.
func peerHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// Admit reports whether a connection from host may be served now.
func (al *acceptLimiter) Admit(host string) bool {
	al.mu.Lock()
	defer al.mu.Unlock()

	b := al.buckets[host]
	if b == nil {
		b = &peerBucket{limiter: rate.NewLimiter(al.limit, al.burst)}
		al.buckets[host] = b
	}
	b.lastSeen = al.now()
	return b.limiter.AllowN(b.lastSeen, 1)
}

// Len returns the number of tracked hosts.
func (al *acceptLimiter) Len() int {
	al.mu.Lock()
	defer al.mu.Unlock()
	return len(al.buckets)
}

// Stop halts the sweeper. It is safe to call more than once.
func (al *acceptLimiter) Stop() {
	al.stopOnce.Do(func() { close(al.done) })
}

// sweep evicts idle buckets every interval until Stop is called.
func (al *acceptLimiter) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-al.done:
			return
		case <-ticker.C:
			al.evict()
		}
	}
}

// evict removes buckets not seen for longer than staleAge.
func (al *acceptLimiter) evict() {
	al.mu.Lock()
	defer al.mu.Unlock()
	cutoff := al.now().Add(-al.staleAge)
	for host, b := range al.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(al.buckets, host)
		}
	}
}
