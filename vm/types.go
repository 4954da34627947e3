// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

// Package vm holds the metadata and statistics the activation engine and
// reaper share about a managed virtual machine, and the dual-indexed
// registry that stores them.
package vm

import (
	"errors"
	"net"
	"sync"
	"time"
)

// PowerState is the union of both hypervisor backends' power states.
// Drivers translate their native state into this enum so nothing above the
// driver layer ever examines a backend-specific value.
type PowerState int

const (
	StateNoState PowerState = iota
	StateRunning
	StatePaused
	StateShutdown
	StateShutoff
	StateCrashed
	StateSuspended
	StateHalted
	StateBlocked
)

func (s PowerState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateShutdown:
		return "shutdown"
	case StateShutoff:
		return "shutoff"
	case StateCrashed:
		return "crashed"
	case StateSuspended:
		return "suspended"
	case StateHalted:
		return "halted"
	case StateBlocked:
		return "blocked"
	default:
		return "nostate"
	}
}

// StopMode is the policy the reaper applies when it decides to stop a VM.
type StopMode int

const (
	StopShutdown StopMode = iota
	StopSuspend
	StopDestroy
)

func (m StopMode) String() string {
	switch m {
	case StopSuspend:
		return "suspend"
	case StopDestroy:
		return "destroy"
	default:
		return "shutdown"
	}
}

var (
	ErrEmptyName = errors.New("vm name can not be empty")
	ErrEmptyIP   = errors.New("vm ip can not be empty")
	ErrNotFound  = errors.New("vm not found")
)

// Handle is the opaque backend-specific identifier for a VM: a UUID for
// backend L, an object reference for backend X. Exactly one concrete
// implementation is ever stored on a Metadata record (invariant 5 of
// spec.md §3); which one is determined by the driver that registered it.
type Handle interface {
	// BackendName identifies which driver variant produced this handle,
	// for logging only - no call site outside a driver should switch on it.
	BackendName() string
	String() string
}

// Metadata is the per-VM record held by the Registry. The counters are
// mutated only by the activation engine (on query); the reaper only reads
// them to decide expiry, per spec.md §4.2.
type Metadata struct {
	Name          string
	Handle        Handle
	MAC           net.HardwareAddr // nil if absent; gARP is then skipped
	IP            net.IP
	Domain        string // the FQDN this VM answers to
	ResponseDelay time.Duration
	TTL           int64 // reap TTL in seconds, = 2 * DNS record TTL
	StopMode      StopMode

	mu            sync.Mutex
	startedTS     int64
	requestedTS   int64
	totalRequests uint64
	totalStarts   uint64
}

// Snapshot is a point-in-time, lock-free copy of a Metadata's mutable
// counters, safe to read after the lock has been released.
type Snapshot struct {
	StartedTS     int64
	RequestedTS   int64
	TotalRequests uint64
	TotalStarts   uint64
}

// Snapshot returns a copy of the record's current counters.
func (m *Metadata) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		StartedTS:     m.startedTS,
		RequestedTS:   m.requestedTS,
		TotalRequests: m.totalRequests,
		TotalStarts:   m.totalStarts,
	}
}

// RecordRequest increments total_requests and sets requested_ts, per the
// activation sequence's step 1 (spec.md §4.4).
func (m *Metadata) RecordRequest(now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalRequests++
	m.requestedTS = now
}

// RecordStart sets started_ts and increments total_starts, per the
// activation sequence's step 5.
func (m *Metadata) RecordStart(now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startedTS = now
	m.totalStarts++
}

// RequestedTS returns the last request timestamp, used by the reaper to
// decide expiry without taking part in the query-path mutation rules.
func (m *Metadata) RequestedTS() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestedTS
}
