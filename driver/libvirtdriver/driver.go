// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

// Package libvirtdriver is backend L: the local hypervisor API, spoken
// synchronously over libvirt.org/go/libvirt. Grounded on the teacher's
// libvirt/libvirt.go, generalized from "create a cloud-init domain from
// scratch" to "look up and drive the lifecycle of an already-defined
// domain", which is all spec.md §4.1 asks of backend L.
package libvirtdriver

import (
	"context"
	"encoding/xml"
	"errors"
	"net"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/crotsos/jitsu/driver"
	"github.com/crotsos/jitsu/vm"
	"libvirt.org/go/libvirt"
	"libvirt.org/go/libvirtxml"
)

var ErrEmptyURI = errors.New("connection URI can not be empty")

const defaultURI = "qemu:///system"

// Driver implements driver.Driver against a local libvirt connection.
type Driver struct {
	uri    string
	conn   ConnectShim
	logger hclog.Logger
}

// Option configures a Driver at construction, following the teacher's
// functional-option pattern (libvirt.WithConnectionURI, WithDataDirectory).
type Option func(*Driver)

// WithConnectionURI overrides the default "qemu:///system" libvirt URI.
func WithConnectionURI(uri string) Option {
	return func(d *Driver) { d.uri = uri }
}

// withConn injects a ConnectShim directly, for tests.
func withConn(c ConnectShim) Option {
	return func(d *Driver) { d.conn = c }
}

// New opens a libvirt connection and returns a ready Driver.
func New(logger hclog.Logger, opts ...Option) (*Driver, error) {
	d := &Driver{
		uri:    defaultURI,
		logger: logger.Named("libvirt"),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.uri == "" {
		return nil, ErrEmptyURI
	}

	if d.conn == nil {
		conn, err := libvirt.NewConnect(d.uri)
		if err != nil {
			return nil, err
		}
		d.conn = &realConn{conn: conn}
	}

	return d, nil
}

// Close releases the underlying libvirt connection.
func (d *Driver) Close() error {
	_, err := d.conn.Close()
	return err
}

func (d *Driver) LookupByName(_ context.Context, name string) (vm.Handle, error) {
	dom, err := d.conn.LookupDomainByName(name)
	if err != nil {
		return nil, driver.Fail("lookup domain "+name, err)
	}

	uuidStr, err := dom.GetUUIDString()
	if err != nil {
		return nil, driver.Fail("get uuid for domain "+name, err)
	}

	id, err := uuid.Parse(uuidStr)
	if err != nil {
		return nil, driver.Fail("parse uuid for domain "+name, err)
	}

	return Handle{UUID: id}, nil
}

// GetMac retrieves the domain's XML description and extracts the first
// <interface>'s <mac address="..."> attribute. An absent interface or an
// unparseable address yields (nil, nil), per spec.md §4.1 - this is not an
// error, gARP is simply skipped.
func (d *Driver) GetMac(_ context.Context, h vm.Handle) (net.HardwareAddr, error) {
	dom, err := d.domainFor(h)
	if err != nil {
		return nil, err
	}

	xmlDesc, err := dom.GetXMLDesc(0)
	if err != nil {
		return nil, driver.Fail("get xml for domain "+h.String(), err)
	}

	var domcfg libvirtxml.Domain
	if err := xml.Unmarshal([]byte(xmlDesc), &domcfg); err != nil {
		d.logger.Debug("unparseable domain xml, skipping mac", "handle", h, "error", err)
		return nil, nil
	}

	if domcfg.Devices == nil || len(domcfg.Devices.Interfaces) == 0 {
		d.logger.Debug("domain has no interfaces, skipping mac", "handle", h)
		return nil, nil
	}

	iface := domcfg.Devices.Interfaces[0]
	if iface.MAC == nil || iface.MAC.Address == "" {
		d.logger.Debug("first interface has no mac, skipping mac", "handle", h)
		return nil, nil
	}

	mac, err := net.ParseMAC(iface.MAC.Address)
	if err != nil {
		d.logger.Debug("unparseable mac address, skipping mac", "handle", h, "error", err)
		return nil, nil
	}

	return mac, nil
}

func (d *Driver) GetPowerState(_ context.Context, h vm.Handle) (vm.PowerState, error) {
	dom, err := d.domainFor(h)
	if err != nil {
		return vm.StateNoState, err
	}

	state, _, err := dom.State()
	if err != nil {
		return vm.StateNoState, driver.Fail("get state for domain "+h.String(), err)
	}

	return translateState(state), nil
}

func (d *Driver) Start(_ context.Context, h vm.Handle) error {
	dom, err := d.domainFor(h)
	if err != nil {
		return err
	}
	return driver.Fail("start domain "+h.String(), dom.Create())
}

func (d *Driver) Resume(_ context.Context, h vm.Handle) error {
	dom, err := d.domainFor(h)
	if err != nil {
		return err
	}
	return driver.Fail("resume domain "+h.String(), dom.Resume())
}

func (d *Driver) Shutdown(_ context.Context, h vm.Handle) error {
	dom, err := d.domainFor(h)
	if err != nil {
		return err
	}
	return driver.Fail("shutdown domain "+h.String(), dom.Shutdown())
}

func (d *Driver) Destroy(_ context.Context, h vm.Handle) error {
	dom, err := d.domainFor(h)
	if err != nil {
		return err
	}
	return driver.Fail("destroy domain "+h.String(), dom.Destroy())
}

// Suspend saves the domain to disk, matching the glossary's "Suspended
// (disk-backed)" state.
func (d *Driver) Suspend(_ context.Context, h vm.Handle) error {
	dom, err := d.domainFor(h)
	if err != nil {
		return err
	}
	return driver.Fail("suspend domain "+h.String(), dom.ManagedSave(0))
}

func (d *Driver) domainFor(h vm.Handle) (DomainShim, error) {
	lh, ok := h.(Handle)
	if !ok {
		return nil, driver.Fail("domain lookup", errors.New("handle is not a libvirt handle"))
	}
	dom, err := d.conn.LookupDomainByUUIDString(lh.UUID.String())
	if err != nil {
		return nil, driver.Fail("lookup domain "+lh.UUID.String(), err)
	}
	return dom, nil
}

func translateState(s libvirt.DomainState) vm.PowerState {
	switch s {
	case libvirt.DOMAIN_RUNNING:
		return vm.StateRunning
	case libvirt.DOMAIN_BLOCKED:
		return vm.StateBlocked
	case libvirt.DOMAIN_PAUSED:
		return vm.StatePaused
	case libvirt.DOMAIN_SHUTDOWN:
		return vm.StateShutdown
	case libvirt.DOMAIN_SHUTOFF:
		return vm.StateShutoff
	case libvirt.DOMAIN_CRASHED:
		return vm.StateCrashed
	case libvirt.DOMAIN_PMSUSPENDED:
		return vm.StateSuspended
	default:
		return vm.StateNoState
	}
}
