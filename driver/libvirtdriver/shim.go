// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

package libvirtdriver

import "libvirt.org/go/libvirt"

// ConnectShim is the shim interface wrapping libvirt connectivity. This
// allows a mock implementation for testing, following the same reasoning
// as the teacher's libvirt/conn_shim.go: we cannot assume a CI runner has
// a working libvirtd, especially on a public repository. Each method
// mirrors exactly one *libvirt.Connect method.
type ConnectShim interface {
	// LookupDomainByName returns a handle to the domain with the given
	// name, or an error if no such domain exists.
	LookupDomainByName(name string) (DomainShim, error)

	// LookupDomainByUUIDString returns a handle to the domain with the
	// given UUID, or an error if no such domain exists.
	LookupDomainByUUIDString(id string) (DomainShim, error)

	// Close releases the connection.
	Close() (int, error)
}

// DomainShim is the shim interface wrapping libvirt domain operations used
// by this driver, following the teacher's conn_shim.go one-method-per-call
// philosophy.
type DomainShim interface {
	GetUUIDString() (string, error)
	GetXMLDesc(flags libvirt.DomainXMLFlags) (string, error)
	State() (libvirt.DomainState, int, error)
	Create() error
	Resume() error
	Shutdown() error
	Destroy() error
	ManagedSave(flags uint32) error
}

// realConn adapts *libvirt.Connect to ConnectShim.
type realConn struct {
	conn *libvirt.Connect
}

func (r *realConn) LookupDomainByName(name string) (DomainShim, error) {
	dom, err := r.conn.LookupDomainByName(name)
	if err != nil {
		return nil, err
	}
	return &realDomain{dom: dom}, nil
}

func (r *realConn) LookupDomainByUUIDString(id string) (DomainShim, error) {
	dom, err := r.conn.LookupDomainByUUIDString(id)
	if err != nil {
		return nil, err
	}
	return &realDomain{dom: dom}, nil
}

func (r *realConn) Close() (int, error) {
	return r.conn.Close()
}

// realDomain adapts *libvirt.Domain to DomainShim.
type realDomain struct {
	dom *libvirt.Domain
}

func (r *realDomain) GetUUIDString() (string, error) {
	return r.dom.GetUUIDString()
}

func (r *realDomain) GetXMLDesc(flags libvirt.DomainXMLFlags) (string, error) {
	return r.dom.GetXMLDesc(flags)
}

func (r *realDomain) State() (libvirt.DomainState, int, error) {
	return r.dom.State()
}

func (r *realDomain) Create() error {
	return r.dom.Create()
}

func (r *realDomain) Resume() error {
	return r.dom.Resume()
}

func (r *realDomain) Shutdown() error {
	return r.dom.Shutdown()
}

func (r *realDomain) Destroy() error {
	return r.dom.Destroy()
}

func (r *realDomain) ManagedSave(flags uint32) error {
	return r.dom.ManagedSave(flags)
}
