// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

// Package reaper implements the expiry reaper (spec.md §4.5): a
// ticker-driven sweep of the VM registry that stops any VM whose
// requested_ts is more than its TTL seconds in the past.
package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/crotsos/jitsu/driver"
	"github.com/crotsos/jitsu/vm"
)

// DefaultInterval is the reaper's default cadence, spec.md §4.5.
const DefaultInterval = 10 * time.Second

// Reaper periodically sweeps a registry and stops VMs past their TTL.
type Reaper struct {
	driver   driver.Driver
	registry *vm.Registry
	interval time.Duration
	logger   hclog.Logger
	now      func() int64
}

// Option configures a Reaper at construction.
type Option func(*Reaper)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(r *Reaper) { r.interval = d }
}

// withClock overrides the time source; test-only.
func withClock(now func() int64) Option {
	return func(r *Reaper) { r.now = now }
}

// New builds a Reaper over reg, controlling VMs through drv.
func New(logger hclog.Logger, drv driver.Driver, reg *vm.Registry, opts ...Option) *Reaper {
	r := &Reaper{
		driver:   drv,
		registry: reg,
		interval: DefaultInterval,
		logger:   logger.Named("reaper"),
		now:      func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run blocks, sweeping every r.interval until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs exactly one pass: snapshot the registry's by-name iterator,
// then stop every VM whose requested_ts is more than TTL seconds old.
// requested_ts == 0 (never queried) is treated as epoch, per spec.md §4.5.
// Per-VM failures are accumulated via go-multierror and returned at the end
// of the pass for operational visibility; they never abort the sweep and
// the VM stays in the registry to be retried on the next pass (spec.md §7).
func (r *Reaper) Sweep(ctx context.Context) error {
	now := r.now()

	var due []*vm.Metadata
	r.registry.IterateByName(func(m *vm.Metadata) {
		if now-m.RequestedTS() > m.TTL {
			due = append(due, m)
		}
	})

	var result *multierror.Error
	for _, m := range due {
		if err := r.stopVm(ctx, m); err != nil {
			result = multierror.Append(result, fmt.Errorf("vm %s: %w", m.Name, err))
		}
	}
	return result.ErrorOrNil()
}

// stopVm reads the VM's power state; only a Running VM is actually
// stopped (strictly Running, not Paused or Blocked, per spec.md §4.5's
// note on the corrected comparison). Other states are no-ops.
func (r *Reaper) stopVm(ctx context.Context, m *vm.Metadata) error {
	state, err := r.driver.GetPowerState(ctx, m.Handle)
	if err != nil {
		r.logger.Warn("reaper: get power state failed", "vm", m.Name, "error", err)
		return err
	}
	if state != vm.StateRunning {
		return nil
	}

	var stopErr error
	switch m.StopMode {
	case vm.StopShutdown:
		stopErr = r.driver.Shutdown(ctx, m.Handle)
	case vm.StopSuspend:
		stopErr = r.driver.Suspend(ctx, m.Handle)
	case vm.StopDestroy:
		stopErr = r.driver.Destroy(ctx, m.Handle)
	}
	if stopErr != nil {
		r.logger.Warn("reaper: stop failed", "vm", m.Name, "mode", m.StopMode, "error", stopErr)
		return stopErr
	}
	r.logger.Info("reaper: stopped expired vm", "vm", m.Name, "mode", m.StopMode)
	return nil
}
