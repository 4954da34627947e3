// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

// Package driver defines the hypervisor-agnostic VM control abstraction
// (spec.md §4.1): a single capability set implemented once per backend, so
// no call site outside a driver implementation ever examines which backend
// is in use. This is the re-architecture spec.md §9 asks for in place of
// the source's tagged-union dispatch.
package driver

import (
	"context"
	"fmt"
	"net"

	"github.com/crotsos/jitsu/vm"
)

// BackendFailure is the single internal error kind covering every
// hypervisor and notifier fault (spec.md §7). It carries a caller-supplied
// context string and the backend's own diagnostic, matching the teacher's
// fmt.Errorf("libvirt: unable to get node info: %w", err) idiom but as a
// named type so callers can errors.As it when they need to (e.g. the
// engine logs it without terminating the activation).
type BackendFailure struct {
	Context string
	Detail  error
}

func (e *BackendFailure) Error() string {
	return fmt.Sprintf("%s: %s", e.Context, e.Detail)
}

func (e *BackendFailure) Unwrap() error {
	return e.Detail
}

// Fail wraps err as a BackendFailure with the given context. Fail returns
// nil if err is nil, so call sites can write `return driver.Fail(..., err)`
// unconditionally.
func Fail(context string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendFailure{Context: context, Detail: err}
}

// Driver is the capability set every hypervisor backend implements
// (spec.md §4.1). All operations return a *BackendFailure on error.
type Driver interface {
	// LookupByName resolves a VM's name at the hypervisor to an opaque
	// handle.
	LookupByName(ctx context.Context, name string) (vm.Handle, error)

	// GetMac retrieves the VM's primary link-layer address. A nil return
	// with a nil error means the address could not be determined and
	// gARP should be skipped; this is not itself an error condition.
	GetMac(ctx context.Context, h vm.Handle) (net.HardwareAddr, error)

	// GetPowerState retrieves the VM's current power state, translated
	// into the shared vm.PowerState enum.
	GetPowerState(ctx context.Context, h vm.Handle) (vm.PowerState, error)

	// Start cold-starts a VM from a shutdown/shutoff/halted state.
	Start(ctx context.Context, h vm.Handle) error

	// Resume un-pauses a previously paused VM, preserving guest state.
	Resume(ctx context.Context, h vm.Handle) error

	// Shutdown requests a graceful guest shutdown.
	Shutdown(ctx context.Context, h vm.Handle) error

	// Destroy forcibly powers off the VM without guest cooperation.
	Destroy(ctx context.Context, h vm.Handle) error

	// Suspend saves VM state to disk and stops it.
	Suspend(ctx context.Context, h vm.Handle) error
}
