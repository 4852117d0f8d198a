// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package discovery

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	// DefaultService is the SRV service label of device servers.
	DefaultService = "memleech"

	// DefaultProto is the SRV protocol label of device servers.
	DefaultProto = "tcp"

	// defaultTimeout is the default DNS query timeout.
	defaultTimeout = 5 * time.Second

	// defaultDNSPort is the standard DNS port.
	defaultDNSPort = "53"

	// resolvConf is the system resolver configuration consulted when no
	// server is configured.
	resolvConf = "/etc/resolv.conf"
)

// ResolverConfig configures SRV lookups.
type ResolverConfig struct {
	// Server is the DNS server to query ("host" or "host:port"). Empty
	// uses the first nameserver from /etc/resolv.conf.
	Server string

	// Timeout bounds one DNS exchange. Zero is replaced with 5 seconds.
	Timeout time.Duration

	// UseTCP queries over TCP instead of UDP.
	UseTCP bool

	// Logger is the structured logger for the resolver. If nil,
	// slog.Default() is used.
	Logger *slog.Logger
}

// Endpoint is one SRV target.
type Endpoint struct {
	Target   string
	Port     uint16
	Priority uint16
	Weight   uint16
}

// Addr returns the endpoint as a dialable "host:port".
func (e Endpoint) Addr() string {
	return net.JoinHostPort(strings.TrimSuffix(e.Target, "."), strconv.Itoa(int(e.Port)))
}

// Resolver performs SRV lookups against a single DNS server.
type Resolver struct {
	client *dns.Client
	server string
	logger *slog.Logger
}

// NewResolver creates a resolver, falling back to the system nameserver
// when cfg.Server is empty.
func NewResolver(cfg *ResolverConfig) (*Resolver, error) {
	if cfg == nil {
		return nil, ErrResolverConfig
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &dns.Client{Net: "udp", Timeout: timeout}
	if cfg.UseTCP {
		client.Net = "tcp"
	}

	server := cfg.Server
	if server != "" {
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, defaultDNSPort)
		}
	} else {
		systemCfg, err := dns.ClientConfigFromFile(resolvConf)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResolverConfig, err)
		}
		if len(systemCfg.Servers) == 0 {
			return nil, fmt.Errorf("%w: no nameservers in %s", ErrResolverConfig, resolvConf)
		}
		port := systemCfg.Port
		if port == "" {
			port = defaultDNSPort
		}
		server = net.JoinHostPort(systemCfg.Servers[0], port)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{client: client, server: server, logger: logger}, nil
}

// Server returns the "host:port" of the DNS server being queried.
func (r *Resolver) Server() string {
	return r.server
}

// LookupEndpoints queries _service._proto.name. for SRV records and returns
// the targets ordered by ascending priority, then descending weight. A
// single "." target means the service is explicitly unavailable and yields
// ErrNoRecords.
func (r *Resolver) LookupEndpoints(ctx context.Context, service, proto, name string) ([]Endpoint, error) {
	qname, err := srvName(service, proto, name)
	if err != nil {
		return nil, err
	}

	msg := new(dns.Msg)
	msg.SetQuestion(qname, dns.TypeSRV)
	msg.RecursionDesired = true

	t0 := time.Now()
	resp, rtt, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	if resp == nil {
		return nil, ErrLookupFailed
	}
	if resp.Rcode == dns.RcodeNameError {
		return nil, fmt.Errorf("%w: %s", ErrNoRecords, qname)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%w: rcode %s", ErrLookupFailed, dns.RcodeToString[resp.Rcode])
	}

	endpoints := make([]Endpoint, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		srv, ok := rr.(*dns.SRV)
		if !ok || srv.Target == "." || srv.Port == 0 {
			continue
		}
		endpoints = append(endpoints, Endpoint{
			Target:   srv.Target,
			Port:     srv.Port,
			Priority: srv.Priority,
			Weight:   srv.Weight,
		})
	}

	r.logger.Debug("srv lookup",
		"qname", qname,
		"server", r.server,
		"answers", len(resp.Answer),
		"endpoints", len(endpoints),
		"rtt", rtt,
		"elapsed", time.Since(t0))

	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRecords, qname)
	}

	slices.SortStableFunc(endpoints, func(a, b Endpoint) int {
		if c := cmp.Compare(a.Priority, b.Priority); c != 0 {
			return c
		}
		return cmp.Compare(b.Weight, a.Weight)
	})
	return endpoints, nil
}

// srvName builds the absolute SRV owner name "_service._proto.name.".
func srvName(service, proto, name string) (string, error) {
	service = strings.TrimPrefix(service, "_")
	proto = strings.TrimPrefix(proto, "_")
	if service == "" || proto == "" || name == "" {
		return "", ErrInvalidName
	}
	qname := dns.Fqdn(fmt.Sprintf("_%s._%s.%s", service, proto, name))
	if _, ok := dns.IsDomainName(qname); !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, qname)
	}
	return qname, nil
}
