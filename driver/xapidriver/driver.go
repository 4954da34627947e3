// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

// Package xapidriver is backend X: the remote management API spoken over
// HTTP-RPC, per spec.md §4.1. A session is opened at construction by
// logging in with credentials; the username is the constant "root" and the
// connection string is of the form "URI:PASSWORD" (spec.md §4.1, §6).
package xapidriver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/crotsos/jitsu/driver"
	"github.com/crotsos/jitsu/vm"
)

const username = "root"

var (
	// ErrUnsupported is the detail wrapped into BackendFailure for the
	// two capabilities backend X never implements.
	ErrUnsupported  = errors.New("not supported for backend X")
	ErrMalformedURI = errors.New("xapi connection string must be URI:PASSWORD")
)

// Driver implements driver.Driver against a XenAPI-style remote management
// endpoint.
type Driver struct {
	logger     hclog.Logger
	caller     caller
	sessionRef string
}

// New opens a session against the backend described by connstr
// ("URI:PASSWORD"), using JSON-RPC if useJSONRPC is set, XML-RPC otherwise
// - the engine-wide transport flag of spec.md §4.1.
func New(logger hclog.Logger, connstr string, useJSONRPC bool) (*Driver, error) {
	uri, password, err := splitConnStr(connstr)
	if err != nil {
		return nil, err
	}

	var c caller
	if useJSONRPC {
		c = newJSONRPCCaller(uri)
	} else {
		xc, err := newXMLRPCCaller(uri)
		if err != nil {
			return nil, err
		}
		c = xc
	}

	d := &Driver{logger: logger.Named("xapi"), caller: c}

	ref, err := d.login(username, password)
	if err != nil {
		return nil, driver.Fail("xapi login", err)
	}
	d.sessionRef = ref

	return d, nil
}

// newWithCaller is used by tests to inject a fake caller and skip login.
func newWithCaller(logger hclog.Logger, c caller, sessionRef string) *Driver {
	return &Driver{logger: logger.Named("xapi"), caller: c, sessionRef: sessionRef}
}

func splitConnStr(connstr string) (uri, password string, err error) {
	idx := strings.LastIndex(connstr, ":")
	// A bare "scheme://host" has no password separator left of it once
	// the scheme's own "://" is accounted for; require at least one
	// colon after the scheme delimiter.
	schemeEnd := strings.Index(connstr, "://")
	if idx < 0 || (schemeEnd >= 0 && idx <= schemeEnd+2) {
		return "", "", ErrMalformedURI
	}
	return connstr[:idx], connstr[idx+1:], nil
}

func (d *Driver) login(user, password string) (string, error) {
	value, err := d.call("session.login_with_password", []interface{}{user, password})
	if err != nil {
		return "", err
	}
	ref, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("unexpected login response: %T", value)
	}
	return ref, nil
}

// call invokes method with params exactly as given (callers that need the
// session ref pass it themselves, see callVM) and unwraps the
// {Status, Value, ErrorDescription} envelope every XenAPI call returns.
func (d *Driver) call(method string, params []interface{}) (interface{}, error) {
	reply, err := d.caller.Call(method, params)
	if err != nil {
		return nil, err
	}

	status, _ := reply["Status"].(string)
	if status != "Success" {
		return nil, fmt.Errorf("xapi error: %v", reply["ErrorDescription"])
	}

	return reply["Value"], nil
}

func (d *Driver) callVM(method string, ref string, extra ...interface{}) (interface{}, error) {
	params := append([]interface{}{d.sessionRef, ref}, extra...)
	return d.call(method, params)
}

func (d *Driver) LookupByName(_ context.Context, name string) (vm.Handle, error) {
	value, err := d.call("VM.get_by_name_label", []interface{}{d.sessionRef, name})
	if err != nil {
		return nil, driver.Fail("lookup vm "+name, err)
	}

	refs, ok := value.([]interface{})
	if !ok || len(refs) == 0 {
		return nil, driver.Fail("lookup vm "+name, fmt.Errorf("no such VM: %s", name))
	}

	ref, _ := refs[0].(string)
	return Handle{Ref: ref}, nil
}

// GetMac is currently unsupported on backend X and returns (nil, nil),
// per spec.md §4.1 - absence is not an error, gARP is simply skipped.
func (d *Driver) GetMac(_ context.Context, _ vm.Handle) (net.HardwareAddr, error) {
	return nil, nil
}

func (d *Driver) GetPowerState(_ context.Context, h vm.Handle) (vm.PowerState, error) {
	ref, err := refOf(h)
	if err != nil {
		return vm.StateNoState, err
	}

	value, err := d.callVM("VM.get_power_state", ref)
	if err != nil {
		return vm.StateNoState, driver.Fail("get power state for "+ref, err)
	}

	state, _ := value.(string)
	return translateState(state), nil
}

// Start (cold-create from scratch) is unsupported for backend X, per
// spec.md §4.1.
func (d *Driver) Start(_ context.Context, _ vm.Handle) error {
	return driver.Fail("start", ErrUnsupported)
}

// Resume forces no-paused, force-true semantics on backend X, per
// spec.md §4.1.
func (d *Driver) Resume(_ context.Context, h vm.Handle) error {
	ref, err := refOf(h)
	if err != nil {
		return err
	}
	_, err = d.callVM("VM.resume", ref, false, true)
	return driver.Fail("resume "+ref, err)
}

func (d *Driver) Shutdown(_ context.Context, h vm.Handle) error {
	ref, err := refOf(h)
	if err != nil {
		return err
	}
	_, err = d.callVM("VM.clean_shutdown", ref)
	return driver.Fail("clean shutdown "+ref, err)
}

func (d *Driver) Destroy(_ context.Context, h vm.Handle) error {
	ref, err := refOf(h)
	if err != nil {
		return err
	}
	_, err = d.callVM("VM.hard_shutdown", ref)
	return driver.Fail("hard shutdown "+ref, err)
}

// Suspend is unsupported for backend X, per spec.md §4.1.
func (d *Driver) Suspend(_ context.Context, _ vm.Handle) error {
	return driver.Fail("suspend", ErrUnsupported)
}

func refOf(h vm.Handle) (string, error) {
	xh, ok := h.(Handle)
	if !ok {
		return "", driver.Fail("vm lookup", errors.New("handle is not an xapi handle"))
	}
	return xh.Ref, nil
}

func translateState(s string) vm.PowerState {
	switch strings.ToLower(s) {
	case "running":
		return vm.StateRunning
	case "paused":
		return vm.StatePaused
	case "suspended":
		return vm.StateSuspended
	case "halted":
		return vm.StateHalted
	default:
		return vm.StateNoState
	}
}
