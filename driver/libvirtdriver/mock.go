// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

package libvirtdriver

import (
	"fmt"

	"libvirt.org/go/libvirt"
)

// mockConn is a ConnectShim test double, following the shape of the
// teacher's libvirt/conn_mock.go.
type mockConn struct {
	domains map[string]*mockDomain // keyed by name
	byUUID  map[string]*mockDomain // keyed by uuid string
}

func newMockConn() *mockConn {
	return &mockConn{
		domains: make(map[string]*mockDomain),
		byUUID:  make(map[string]*mockDomain),
	}
}

func (m *mockConn) addDomain(name, uuidStr string, d *mockDomain) {
	m.domains[name] = d
	m.byUUID[uuidStr] = d
}

func (m *mockConn) LookupDomainByName(name string) (DomainShim, error) {
	d, ok := m.domains[name]
	if !ok {
		return nil, fmt.Errorf("domain not found: %s", name)
	}
	return d, nil
}

func (m *mockConn) LookupDomainByUUIDString(id string) (DomainShim, error) {
	d, ok := m.byUUID[id]
	if !ok {
		return nil, fmt.Errorf("domain not found: %s", id)
	}
	return d, nil
}

func (m *mockConn) Close() (int, error) { return 0, nil }

// mockDomain is a DomainShim test double.
type mockDomain struct {
	uuidStr string
	xmlDesc string
	state   libvirt.DomainState

	createErr   error
	resumeErr   error
	shutdownErr error
	destroyErr  error
	suspendErr  error

	createCalls   int
	resumeCalls   int
	shutdownCalls int
	destroyCalls  int
	suspendCalls  int
}

func (m *mockDomain) GetUUIDString() (string, error) { return m.uuidStr, nil }
func (m *mockDomain) GetXMLDesc(libvirt.DomainXMLFlags) (string, error) {
	return m.xmlDesc, nil
}
func (m *mockDomain) State() (libvirt.DomainState, int, error) { return m.state, 1, nil }
func (m *mockDomain) Create() error                            { m.createCalls++; return m.createErr }
func (m *mockDomain) Resume() error                             { m.resumeCalls++; return m.resumeErr }
func (m *mockDomain) Shutdown() error                           { m.shutdownCalls++; return m.shutdownErr }
func (m *mockDomain) Destroy() error                            { m.destroyCalls++; return m.destroyErr }
func (m *mockDomain) ManagedSave(uint32) error                  { m.suspendCalls++; return m.suspendErr }
