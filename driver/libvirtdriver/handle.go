// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

package libvirtdriver

import "github.com/google/uuid"

// Handle is backend L's VM identifier: the domain's libvirt UUID, per
// spec.md §3 ("UUID for backend L").
type Handle struct {
	UUID uuid.UUID
}

func (h Handle) BackendName() string { return "libvirt" }
func (h Handle) String() string      { return h.UUID.String() }
