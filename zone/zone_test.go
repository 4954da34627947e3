// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

package zone

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/shoenig/test/must"
)

func Test_AddSOA_CreatesNSAndIsIdempotent(t *testing.T) {
	z := New()
	must.NoError(t, z.AddSOA("mirage.io.", 60))

	must.True(t, z.Has("mirage.io.", dns.TypeSOA))
	must.True(t, z.Has("mirage.io.", dns.TypeNS))

	rcode, soas := z.Answer("mirage.io.", dns.TypeSOA)
	must.Eq(t, dns.RcodeSuccess, rcode)
	must.Len(t, 1, soas)
	serial := soas[0].(*dns.SOA).Serial

	must.NoError(t, z.AddSOA("mirage.io.", 60))
	_, soas2 := z.Answer("mirage.io.", dns.TypeSOA)
	must.Eq(t, serial, soas2[0].(*dns.SOA).Serial)
}

func Test_AddA_OwnerIsQueriedName(t *testing.T) {
	z := New()
	must.NoError(t, z.AddSOA("mirage.io.", 60))
	must.NoError(t, z.AddA("www.mirage.io.", 30, net.ParseIP("10.0.0.5")))

	rcode, as := z.Answer("www.mirage.io.", dns.TypeA)
	must.Eq(t, dns.RcodeSuccess, rcode)
	must.Len(t, 1, as)
	must.Eq(t, "10.0.0.5", as[0].(*dns.A).A.String())
}

func Test_Answer_UnknownName_IsNameError(t *testing.T) {
	z := New()
	rcode, recs := z.Answer("nowhere.example.", dns.TypeA)
	must.Eq(t, dns.RcodeNameError, rcode)
	must.Len(t, 0, recs)
}

func Test_Answer_KnownNameWrongType_IsNoDataNotNameError(t *testing.T) {
	z := New()
	must.NoError(t, z.AddSOA("mirage.io.", 60))

	rcode, recs := z.Answer("mirage.io.", dns.TypeAAAA)
	must.Eq(t, dns.RcodeSuccess, rcode)
	must.Len(t, 0, recs)
}

func Test_AddA_RejectsEmptyNameAndNonIPv4(t *testing.T) {
	z := New()
	must.Error(t, z.AddA("", 30, net.ParseIP("10.0.0.5")))
	must.Error(t, z.AddA("www.mirage.io.", 30, net.ParseIP("::1")))
}

func Test_BaseDomain_IsIdentity(t *testing.T) {
	must.Eq(t, "www.mirage.io", BaseDomain("www.mirage.io."))
	must.Eq(t, "www.mirage.io", BaseDomain("WWW.mirage.io"))
}
