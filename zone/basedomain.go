// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

package zone

import "strings"

// BaseDomain resolves a queried name down to the zone domain it should be
// registered/activated against. This repo's Open Question resolution
// (DESIGN.md) is identity: the domain actually queried is the domain the
// zone and activation engine key everything off of, so a VM is reachable
// only by the exact name its metadata was registered under. BaseDomain
// exists as the single seam a future multi-label deployment (e.g. peeling
// a "www." prefix to a shared base domain) would hook into.
func BaseDomain(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}
