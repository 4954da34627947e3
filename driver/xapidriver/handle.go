// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

package xapidriver

// Handle is backend X's VM identifier: an opaque object reference returned
// by the remote management API, per spec.md §3 ("object reference for
// backend X").
type Handle struct {
	Ref string
}

func (h Handle) BackendName() string { return "xapi" }
func (h Handle) String() string      { return h.Ref }
