// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

// Package config loads the engine's process-wide configuration (spec.md
// §6), following terabiome-homonculus/internal/config/config.go's
// viper.SetDefault-before-load pattern; each key is then read into Config
// with viper's typed getters.
package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// Backend identifies which hypervisor driver to construct.
type Backend string

const (
	BackendLibvirt Backend = "libvirt"
	BackendXapi    Backend = "xapi"
)

// Config is the engine's full process-wide configuration, covering every
// parameter spec.md §6 lists under "CLI (collaborator)".
type Config struct {
	Backend      string `mapstructure:"backend"`
	ConnStr      string `mapstructure:"connstr"`
	UseJSONRPC   bool   `mapstructure:"rpc_json"`
	ForwardDNS   string `mapstructure:"forward_resolver"`
	SynjitsuName string `mapstructure:"synjitsu_domain"`
	GarpAddr     string `mapstructure:"garp_addr"`
	VMCountHint  int    `mapstructure:"vm_count"`
	ReapInterval int    `mapstructure:"reap_interval_seconds"`
	ListenAddr   string `mapstructure:"listen_addr"`
	LogLevel     string `mapstructure:"log_level"`
}

// Load reads configuration from environment variables prefixed JITSU_ (and
// any config file viper has been told to look for by the caller), applying
// the same defaults upstream jitsu shipped.
func Load() (*Config, error) {
	viper.SetDefault("backend", string(BackendLibvirt))
	viper.SetDefault("connstr", "qemu:///system")
	viper.SetDefault("rpc_json", false)
	viper.SetDefault("forward_resolver", "")
	viper.SetDefault("synjitsu_domain", "")
	viper.SetDefault("garp_addr", "")
	viper.SetDefault("vm_count", 7)
	viper.SetDefault("reap_interval_seconds", 10)
	viper.SetDefault("listen_addr", ":53")
	viper.SetDefault("log_level", "info")

	viper.SetEnvPrefix("jitsu")
	viper.AutomaticEnv()

	cfg := &Config{
		Backend:      viper.GetString("backend"),
		ConnStr:      viper.GetString("connstr"),
		UseJSONRPC:   viper.GetBool("rpc_json"),
		ForwardDNS:   viper.GetString("forward_resolver"),
		SynjitsuName: viper.GetString("synjitsu_domain"),
		GarpAddr:     viper.GetString("garp_addr"),
		VMCountHint:  viper.GetInt("vm_count"),
		ReapInterval: viper.GetInt("reap_interval_seconds"),
		ListenAddr:   viper.GetString("listen_addr"),
		LogLevel:     viper.GetString("log_level"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate accumulates every configuration problem via go-multierror,
// following internal/shared's Config.Validate pattern in the teacher repo.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch Backend(c.Backend) {
	case BackendLibvirt, BackendXapi:
	default:
		result = multierror.Append(result, fmt.Errorf("backend must be %q or %q, got %q", BackendLibvirt, BackendXapi, c.Backend))
	}

	if c.ConnStr == "" {
		result = multierror.Append(result, fmt.Errorf("connstr can not be empty"))
	}
	if c.VMCountHint <= 0 {
		result = multierror.Append(result, fmt.Errorf("vm_count must be positive, got %d", c.VMCountHint))
	}
	if c.ReapInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("reap_interval_seconds must be positive, got %d", c.ReapInterval))
	}
	if c.ListenAddr == "" {
		result = multierror.Append(result, fmt.Errorf("listen_addr can not be empty"))
	}

	validLogLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		result = multierror.Append(result, fmt.Errorf("invalid log level: %s", c.LogLevel))
	}

	return result.ErrorOrNil()
}
