// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"testing"

	"github.com/shoenig/test/must"
)

func validConfig() *Config {
	return &Config{
		Backend:      string(BackendLibvirt),
		ConnStr:      "qemu:///system",
		VMCountHint:  7,
		ReapInterval: 10,
		ListenAddr:   ":53",
		LogLevel:     "info",
	}
}

func Test_Validate_AcceptsWellFormedConfig(t *testing.T) {
	must.NoError(t, validConfig().Validate())
}

func Test_Validate_RejectsUnknownBackend(t *testing.T) {
	c := validConfig()
	c.Backend = "esxi"
	must.Error(t, c.Validate())
}

func Test_Validate_AccumulatesMultipleErrors(t *testing.T) {
	c := &Config{Backend: "esxi", ConnStr: "", VMCountHint: 0, ReapInterval: 0, ListenAddr: "", LogLevel: "loud"}
	err := c.Validate()
	must.Error(t, err)
	must.StrContains(t, err.Error(), "backend must be")
	must.StrContains(t, err.Error(), "connstr")
	must.StrContains(t, err.Error(), "vm_count")
	must.StrContains(t, err.Error(), "reap_interval_seconds")
	must.StrContains(t, err.Error(), "listen_addr")
	must.StrContains(t, err.Error(), "invalid log level")
}
