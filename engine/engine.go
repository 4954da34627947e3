// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

// Package engine implements the activation engine (spec.md §4.4), the core
// of the system: it ties a DNS query to a registry lookup, a hypervisor
// driver start/resume, an optional gARP notification, and the zone's
// answer.
package engine

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/miekg/dns"

	"github.com/crotsos/jitsu/driver"
	"github.com/crotsos/jitsu/garp"
	"github.com/crotsos/jitsu/resolver"
	"github.com/crotsos/jitsu/vm"
	"github.com/crotsos/jitsu/zone"
)

// Engine is the activation engine: it holds the one hypervisor driver in
// use, the VM registry, the DNS zone, and the two optional external
// collaborators (fallback resolver, gARP notifier).
type Engine struct {
	driver   driver.Driver
	registry *vm.Registry
	zone     *zone.Zone
	resolver *resolver.Resolver
	notifier garp.Notifier
	logger   hclog.Logger

	now   func() int64
	sleep func(time.Duration)

	queriesServed      uint64
	fallbackDelegation uint64
	activations        uint64
	activationFailures uint64
}

// Option configures an Engine at construction, mirroring the functional
// options the hypervisor drivers use.
type Option func(*Engine)

// WithResolver attaches a fallback resolver. Passing nil is equivalent to
// omitting the option (no fallback configured).
func WithResolver(r *resolver.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithNotifier attaches the gARP notifier. Passing nil is equivalent to
// omitting the option (gARP is skipped on every activation).
func WithNotifier(n garp.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// withClock overrides the time source; test-only.
func withClock(now func() int64) Option {
	return func(e *Engine) { e.now = now }
}

// withSleep overrides the response-delay sleep; test-only.
func withSleep(sleep func(time.Duration)) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// New builds an Engine around drv, reg and z. The registry and zone are
// expected to be populated via AddVm before the DNS server loop begins
// serving (spec.md §4.4 "Resources").
func New(logger hclog.Logger, drv driver.Driver, reg *vm.Registry, z *zone.Zone, opts ...Option) *Engine {
	e := &Engine{
		driver:   drv,
		registry: reg,
		zone:     z,
		logger:   logger.Named("engine"),
		now:      func() int64 { return time.Now().Unix() },
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats is the supplemented operational snapshot: total queries served,
// total fallback delegations, total activations attempted, and total
// activation failures, mirroring the counters the upstream program logged
// at shutdown.
type Stats struct {
	QueriesServed      uint64
	FallbackDelegation uint64
	Activations        uint64
	ActivationFailures uint64
}

// Stats returns a point-in-time snapshot of the engine's operational
// counters.
func (e *Engine) Stats() Stats {
	return Stats{
		QueriesServed:      atomic.LoadUint64(&e.queriesServed),
		FallbackDelegation: atomic.LoadUint64(&e.fallbackDelegation),
		Activations:        atomic.LoadUint64(&e.activations),
		ActivationFailures: atomic.LoadUint64(&e.activationFailures),
	}
}

// Process is the engine's single entry point, spec.md §4.4. It returns
// (nil, false) when no answer should be sent at all - a malformed question
// count, or a miss with no fallback configured.
func (e *Engine) Process(ctx context.Context, req *dns.Msg) (*dns.Msg, bool) {
	atomic.AddUint64(&e.queriesServed, 1)

	if len(req.Question) != 1 {
		e.logger.Debug("dropping malformed question count", "n", len(req.Question))
		return nil, false
	}
	q := req.Question[0]

	rcode, answers := e.zone.Answer(q.Name, q.Qtype)
	if rcode != dns.RcodeSuccess {
		return e.fallback(req, q)
	}

	meta, ok := e.registry.ByDomain(q.Name)
	if !ok {
		e.logger.Debug("query for unregistered name", "name", q.Name)
		return e.fallback(req, q)
	}

	e.activate(ctx, meta)

	reply := new(dns.Msg)
	reply.SetReply(req)
	reply.Answer = answers
	return reply, true
}

func (e *Engine) fallback(req *dns.Msg, q dns.Question) (*dns.Msg, bool) {
	atomic.AddUint64(&e.fallbackDelegation, 1)

	if !e.resolver.Configured() {
		return nil, false
	}
	in, ok := e.resolver.Lookup(q.Name, q.Qtype, q.Qclass)
	if !ok {
		return nil, false
	}

	reply := new(dns.Msg)
	reply.SetReply(req)
	reply.Answer = in.Answer
	reply.Rcode = in.Rcode
	return reply, true
}

// activate runs the activation sequence (spec.md §4.4) for a registry hit.
// Any BackendFailure is logged and aborts the sequence early; the caller
// still serves the zone's answer regardless of outcome.
func (e *Engine) activate(ctx context.Context, m *vm.Metadata) {
	atomic.AddUint64(&e.activations, 1)
	now := e.now()
	m.RecordRequest(now)

	state, err := e.driver.GetPowerState(ctx, m.Handle)
	if err != nil {
		e.logger.Warn("get power state failed", "vm", m.Name, "error", err)
		atomic.AddUint64(&e.activationFailures, 1)
		return
	}

	switch state {
	case vm.StateRunning:
		e.logger.Debug("vm already running", "vm", m.Name)
	case vm.StatePaused:
		err = e.driver.Resume(ctx, m.Handle)
	case vm.StateShutdown, vm.StateShutoff, vm.StateHalted:
		err = e.driver.Start(ctx, m.Handle)
	case vm.StateBlocked, vm.StateCrashed, vm.StateNoState, vm.StateSuspended:
		e.logger.Info("vm cannot be started from this state", "vm", m.Name, "state", state)
		return
	}

	if err != nil {
		e.logger.Warn("activation driver call failed", "vm", m.Name, "error", err)
		atomic.AddUint64(&e.activationFailures, 1)
		return
	}

	if state != vm.StateRunning {
		e.sendGarp(m)
		m.RecordStart(now)
		if m.ResponseDelay > 0 {
			e.sleep(m.ResponseDelay)
		}
	}
}

func (e *Engine) sendGarp(m *vm.Metadata) {
	if len(m.MAC) == 0 || e.notifier == nil {
		return
	}
	if err := e.notifier.SendGarp(m.MAC, m.IP); err != nil {
		e.logger.Warn("garp notify failed", "vm", m.Name, "error", err)
	}
}

// validateAddVm accumulates every argument problem via go-multierror before
// any driver or zone call is made, so a caller retrying AddVm sees every
// mistake at once rather than one per attempt.
func validateAddVm(domain, name string, ip net.IP, ttl int64) error {
	var result *multierror.Error
	if domain == "" {
		result = multierror.Append(result, fmt.Errorf("domain can not be empty"))
	}
	if name == "" {
		result = multierror.Append(result, fmt.Errorf("name can not be empty"))
	}
	if ip == nil {
		result = multierror.Append(result, fmt.Errorf("ip can not be empty"))
	}
	if ttl <= 0 {
		result = multierror.Append(result, fmt.Errorf("ttl must be positive, got %d", ttl))
	}
	return result.ErrorOrNil()
}

// AddVm registers or re-registers a VM, spec.md §4.6.
func (e *Engine) AddVm(ctx context.Context, domain, name string, ip net.IP, stopMode vm.StopMode, delay time.Duration, ttl int64) error {
	if err := validateAddVm(domain, name, ip, ttl); err != nil {
		return err
	}

	handle, err := e.driver.LookupByName(ctx, name)
	if err != nil {
		return err
	}

	mac, err := e.driver.GetMac(ctx, handle)
	if err != nil {
		e.logger.Warn("get mac failed", "vm", name, "error", err)
	} else if mac == nil {
		e.logger.Debug("vm has no mac on record", "vm", name)
	}

	base := zone.BaseDomain(domain)
	if err := e.zone.AddSOA(base, uint32(ttl)); err != nil {
		return err
	}
	if err := e.zone.AddA(domain, uint32(ttl), ip); err != nil {
		return err
	}

	meta, existing := e.registry.ByName(name)
	if !existing {
		meta = &vm.Metadata{
			Name:          name,
			Handle:        handle,
			MAC:           mac,
			IP:            ip,
			Domain:        domain,
			ResponseDelay: delay,
			TTL:           ttl * 2,
			StopMode:      stopMode,
		}
	}

	e.registry.Insert(domain, meta)
	return nil
}
