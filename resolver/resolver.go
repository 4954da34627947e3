// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

// Package resolver is the fallback resolver wrapper of spec.md §4.7: a
// thin translation layer over the DNS wire-format codec and resolver
// client, which spec.md §1 names as an external collaborator rather than
// part of the activation engine's core. It exists only so the engine never
// imports github.com/miekg/dns itself for outbound queries.
package resolver

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/miekg/dns"
)

// Resolver forwards unmatched queries to a single upstream nameserver.
// A nil *Resolver is valid and behaves as "no fallback configured" -
// Configured reports false and Lookup returns (nil, false), matching
// spec.md's "otherwise return None".
type Resolver struct {
	upstream string
	client   *dns.Client
	logger   hclog.Logger
}

// New builds a Resolver that forwards to upstream ("host:port"). Passing
// an empty upstream yields a resolver that always reports not-configured,
// for callers that build one unconditionally from config.
func New(logger hclog.Logger, upstream string, timeout time.Duration) *Resolver {
	if upstream == "" {
		return nil
	}
	return &Resolver{
		upstream: upstream,
		client:   &dns.Client{Timeout: timeout, Net: "udp"},
		logger:   logger.Named("resolver"),
	}
}

// Configured reports whether a fallback upstream was set. Exists so
// callers that already have a *Resolver (possibly nil) can check before
// calling Lookup, mirroring the "if configured" branch of spec.md §4.7.
func (r *Resolver) Configured() bool {
	return r != nil
}

// Lookup issues (qname, qtype, qclass) upstream and returns the raw
// response message. Per spec.md §4.7, any upstream failure - timeout,
// transport error, or a non-success rcode - collapses to (nil, false); the
// caller (the activation engine) treats that identically to "no fallback
// configured".
func (r *Resolver) Lookup(qname string, qtype, qclass uint16) (*dns.Msg, bool) {
	if r == nil {
		return nil, false
	}

	q := new(dns.Msg)
	q.SetQuestion(dns.Fqdn(qname), qtype)
	q.Question[0].Qclass = qclass

	in, _, err := r.client.Exchange(q, r.upstream)
	if err != nil {
		r.logger.Warn("fallback query failed", "name", qname, "upstream", r.upstream, "error", err)
		return nil, false
	}
	if in.Rcode != dns.RcodeSuccess {
		r.logger.Debug("fallback query non-success rcode", "name", qname, "rcode", dns.RcodeToString[in.Rcode])
		return nil, false
	}

	return in, true
}

func (r *Resolver) String() string {
	if r == nil {
		return "<no fallback resolver>"
	}
	return fmt.Sprintf("fallback resolver %s", r.upstream)
}
