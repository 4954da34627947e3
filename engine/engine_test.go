// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/miekg/dns"
	"github.com/shoenig/test/must"

	"github.com/crotsos/jitsu/resolver"
	"github.com/crotsos/jitsu/vm"
	"github.com/crotsos/jitsu/zone"
)

type fakeHandle struct{ name string }

func (h fakeHandle) BackendName() string { return "fake" }
func (h fakeHandle) String() string      { return h.name }

type fakeDriver struct {
	state         vm.PowerState
	lookupErr     error
	startCalls    int
	resumeCalls   int
	startErr      error
	resumeErr     error
	powerStateErr error
}

func (f *fakeDriver) LookupByName(_ context.Context, name string) (vm.Handle, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return fakeHandle{name: name}, nil
}
func (f *fakeDriver) GetMac(_ context.Context, _ vm.Handle) (net.HardwareAddr, error) {
	return nil, nil
}
func (f *fakeDriver) GetPowerState(_ context.Context, _ vm.Handle) (vm.PowerState, error) {
	if f.powerStateErr != nil {
		return vm.StateNoState, f.powerStateErr
	}
	return f.state, nil
}
func (f *fakeDriver) Start(_ context.Context, _ vm.Handle) error {
	f.startCalls++
	return f.startErr
}
func (f *fakeDriver) Resume(_ context.Context, _ vm.Handle) error {
	f.resumeCalls++
	return f.resumeErr
}
func (f *fakeDriver) Shutdown(_ context.Context, _ vm.Handle) error { return nil }
func (f *fakeDriver) Destroy(_ context.Context, _ vm.Handle) error  { return nil }
func (f *fakeDriver) Suspend(_ context.Context, _ vm.Handle) error  { return nil }

func newTestEngine(t *testing.T, drv *fakeDriver, opts ...Option) (*Engine, *vm.Registry, *zone.Zone) {
	t.Helper()
	reg := vm.New(4)
	z := zone.New()
	allOpts := append([]Option{
		withClock(func() int64 { return 1000 }),
		withSleep(func(time.Duration) {}),
	}, opts...)
	e := New(hclog.NewNullLogger(), drv, reg, z, allOpts...)
	return e, reg, z
}

func questionMsg(name string, qtype uint16) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	return m
}

func Test_Process_MalformedQuestionCount_NoAnswer(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeDriver{})
	req := new(dns.Msg)
	_, ok := e.Process(context.Background(), req)
	must.False(t, ok)
}

func Test_Process_ShutoffVm_StartsAndAnswers(t *testing.T) {
	drv := &fakeDriver{state: vm.StateShutoff}
	e, _, _ := newTestEngine(t, drv)

	must.NoError(t, e.AddVm(context.Background(), "mirage.io.", "www", net.ParseIP("10.0.0.7"),
		vm.StopShutdown, time.Second, 60))

	reply, ok := e.Process(context.Background(), questionMsg("mirage.io.", dns.TypeA))
	must.True(t, ok)
	must.Len(t, 1, reply.Answer)
	must.Eq(t, "10.0.0.7", reply.Answer[0].(*dns.A).A.String())
	must.Eq(t, 1, drv.startCalls)

	meta, found := e.registry.ByName("www")
	must.True(t, found)
	must.Eq(t, uint64(1), meta.Snapshot().TotalStarts)
}

func Test_Process_RunningVm_NoStartNoDelay(t *testing.T) {
	drv := &fakeDriver{state: vm.StateRunning}
	e, _, _ := newTestEngine(t, drv)

	must.NoError(t, e.AddVm(context.Background(), "mirage.io.", "www", net.ParseIP("10.0.0.7"),
		vm.StopShutdown, time.Second, 60))

	_, ok := e.Process(context.Background(), questionMsg("mirage.io.", dns.TypeA))
	must.True(t, ok)
	must.Eq(t, 0, drv.startCalls)

	meta, _ := e.registry.ByName("www")
	must.Eq(t, uint64(0), meta.Snapshot().TotalStarts)
}

func Test_Process_PausedVm_ResumesNotStarts(t *testing.T) {
	drv := &fakeDriver{state: vm.StatePaused}
	e, _, _ := newTestEngine(t, drv)

	must.NoError(t, e.AddVm(context.Background(), "mirage.io.", "www", net.ParseIP("10.0.0.7"),
		vm.StopShutdown, time.Second, 60))

	_, ok := e.Process(context.Background(), questionMsg("mirage.io.", dns.TypeA))
	must.True(t, ok)
	must.Eq(t, 1, drv.resumeCalls)
	must.Eq(t, 0, drv.startCalls)
}

func Test_Process_CrashedVm_NoMutationStillAnswers(t *testing.T) {
	drv := &fakeDriver{state: vm.StateCrashed}
	e, _, _ := newTestEngine(t, drv)

	must.NoError(t, e.AddVm(context.Background(), "mirage.io.", "www", net.ParseIP("10.0.0.7"),
		vm.StopShutdown, time.Second, 60))

	reply, ok := e.Process(context.Background(), questionMsg("mirage.io.", dns.TypeA))
	must.True(t, ok)
	must.Len(t, 1, reply.Answer)
	must.Eq(t, 0, drv.startCalls)
	must.Eq(t, 0, drv.resumeCalls)
}

func Test_Process_UnregisteredName_UsesFallback(t *testing.T) {
	ln, err := net.ListenPacket("udp", "127.0.0.1:0")
	must.NoError(t, err)
	defer ln.Close()

	go func() {
		buf := make([]byte, 512)
		n, addr, err := ln.ReadFrom(buf)
		if err != nil {
			return
		}
		req := new(dns.Msg)
		if err := req.Unpack(buf[:n]); err != nil {
			return
		}
		resp := new(dns.Msg)
		resp.SetReply(req)
		rr, _ := dns.NewRR("other.test. 60 IN A 1.2.3.4")
		resp.Answer = append(resp.Answer, rr)
		out, _ := resp.Pack()
		_, _ = ln.WriteTo(out, addr)
	}()

	res := resolver.New(hclog.NewNullLogger(), ln.LocalAddr().String(), time.Second)
	e, _, _ := newTestEngine(t, &fakeDriver{}, WithResolver(res))

	reply, ok := e.Process(context.Background(), questionMsg("other.test.", dns.TypeA))
	must.True(t, ok)
	must.Len(t, 1, reply.Answer)
	must.Eq(t, "1.2.3.4", reply.Answer[0].(*dns.A).A.String())
}

func Test_Process_UnregisteredName_NoFallback_NoAnswer(t *testing.T) {
	e, _, _ := newTestEngine(t, &fakeDriver{})
	_, ok := e.Process(context.Background(), questionMsg("other.test.", dns.TypeA))
	must.False(t, ok)
}

func Test_AddVm_RejectsMalformedArgumentsBeforeDriverCall(t *testing.T) {
	drv := &fakeDriver{state: vm.StateShutoff}
	e, _, _ := newTestEngine(t, drv)

	err := e.AddVm(context.Background(), "", "", nil, vm.StopShutdown, time.Second, 0)
	must.Error(t, err)
	must.StrContains(t, err.Error(), "domain can not be empty")
	must.StrContains(t, err.Error(), "name can not be empty")
	must.StrContains(t, err.Error(), "ip can not be empty")
	must.StrContains(t, err.Error(), "ttl must be positive")
}

func Test_AddVm_IdempotentPreservesCounters(t *testing.T) {
	drv := &fakeDriver{state: vm.StateShutoff}
	e, reg, _ := newTestEngine(t, drv)

	must.NoError(t, e.AddVm(context.Background(), "mirage.io.", "www", net.ParseIP("10.0.0.7"),
		vm.StopShutdown, time.Second, 60))
	_, _ = e.Process(context.Background(), questionMsg("mirage.io.", dns.TypeA))

	must.NoError(t, e.AddVm(context.Background(), "mirage.io.", "www", net.ParseIP("10.0.0.7"),
		vm.StopShutdown, time.Second, 60))

	meta, found := reg.ByName("www")
	must.True(t, found)
	must.Eq(t, uint64(1), meta.Snapshot().TotalStarts)
}

type fakeNotifier struct {
	calls int
	mac   net.HardwareAddr
	ip    net.IP
	err   error
}

func (n *fakeNotifier) SendGarp(mac net.HardwareAddr, ip net.IP) error {
	n.calls++
	n.mac, n.ip = mac, ip
	return n.err
}

func Test_Process_SendsGarpWhenMacPresent(t *testing.T) {
	drv := &fakeDriver{state: vm.StateShutoff}
	notifier := &fakeNotifier{}
	e, reg, z := newTestEngine(t, drv, WithNotifier(notifier))

	must.NoError(t, z.AddSOA("mirage.io.", 60))
	must.NoError(t, z.AddA("www.mirage.io.", 60, net.ParseIP("10.0.0.7")))
	reg.Insert("www.mirage.io.", &vm.Metadata{
		Name:   "www",
		Handle: fakeHandle{"www"},
		MAC:    net.HardwareAddr{1, 2, 3, 4, 5, 6},
		IP:     net.ParseIP("10.0.0.7"),
		TTL:    120,
	})

	_, ok := e.Process(context.Background(), questionMsg("www.mirage.io.", dns.TypeA))
	must.True(t, ok)
	must.Eq(t, 1, notifier.calls)
	must.Eq(t, "10.0.0.7", notifier.ip.String())
}

func Test_Stats_CountsQueriesAndActivations(t *testing.T) {
	drv := &fakeDriver{state: vm.StateShutoff}
	e, _, _ := newTestEngine(t, drv)
	must.NoError(t, e.AddVm(context.Background(), "mirage.io.", "www", net.ParseIP("10.0.0.7"),
		vm.StopShutdown, time.Second, 60))

	_, _ = e.Process(context.Background(), questionMsg("mirage.io.", dns.TypeA))
	_, _ = e.Process(context.Background(), questionMsg("other.test.", dns.TypeA))

	stats := e.Stats()
	must.Eq(t, uint64(2), stats.QueriesServed)
	must.Eq(t, uint64(1), stats.Activations)
	must.Eq(t, uint64(1), stats.FallbackDelegation)
}
