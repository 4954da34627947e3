// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

package resolver

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shoenig/test/must"
)

func Test_New_EmptyUpstream_IsNilAndNotConfigured(t *testing.T) {
	r := New(hclog.NewNullLogger(), "", time.Second)
	must.Nil(t, r)
	must.False(t, r.Configured())
}

func Test_NilResolver_LookupReturnsNotOk(t *testing.T) {
	var r *Resolver
	msg, ok := r.Lookup("other.test.", 1, 1)
	must.False(t, ok)
	must.Nil(t, msg)
}

func Test_Configured_TrueWhenUpstreamSet(t *testing.T) {
	r := New(hclog.NewNullLogger(), "127.0.0.1:53", time.Second)
	must.True(t, r.Configured())
}

func Test_Lookup_UnreachableUpstream_FailsClosed(t *testing.T) {
	// Port 1 on loopback is never a listening nameserver; the exchange
	// must fail fast and Lookup must collapse that into (nil, false)
	// rather than propagating a transport error.
	r := New(hclog.NewNullLogger(), "127.0.0.1:1", 50*time.Millisecond)
	msg, ok := r.Lookup("other.test.", 1, 1)
	must.False(t, ok)
	must.Nil(t, msg)
}
