// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"

	"github.com/crotsos/jitsu/config"
	"github.com/crotsos/jitsu/driver"
	"github.com/crotsos/jitsu/driver/libvirtdriver"
	"github.com/crotsos/jitsu/driver/xapidriver"
	"github.com/crotsos/jitsu/engine"
	"github.com/crotsos/jitsu/garp"
	"github.com/crotsos/jitsu/reaper"
	"github.com/crotsos/jitsu/resolver"
	"github.com/crotsos/jitsu/server"
	"github.com/crotsos/jitsu/vm"
	"github.com/crotsos/jitsu/zone"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	app := &cli.App{
		Name:  "jitsu",
		Usage: "DNS-triggered just-in-time VM activator",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the DNS-driven activation engine",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "vm",
						Usage: "register a VM as domain:name:ip:stopmode:delay_seconds:ttl_seconds, repeatable",
					},
				},
				Action: func(c *cli.Context) error {
					return runServe(ctx, c.StringSlice("vm"))
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "jitsu: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context, vmSpecs []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "jitsu",
		Level: hclog.LevelFromString(cfg.LogLevel),
	})

	drv, err := newDriver(logger, cfg)
	if err != nil {
		return fmt.Errorf("driver: %w", err)
	}

	reg := vm.New(cfg.VMCountHint)
	z := zone.New()

	var notifier garp.Notifier
	if cfg.GarpAddr != "" {
		notifier = garp.New(logger, cfg.GarpAddr, 2*time.Second)
	}

	res := resolver.New(logger, cfg.ForwardDNS, 2*time.Second)

	eng := engine.New(logger, drv, reg, z, engine.WithResolver(res), engine.WithNotifier(notifier))

	for _, spec := range vmSpecs {
		v, err := parseVMSpec(spec)
		if err != nil {
			return fmt.Errorf("vm spec %q: %w", spec, err)
		}
		if err := eng.AddVm(ctx, v.domain, v.name, v.ip, v.stopMode, v.delay, v.ttl); err != nil {
			return fmt.Errorf("registering vm %q: %w", v.name, err)
		}
		logger.Info("registered vm", "name", v.name, "domain", v.domain, "ip", v.ip.String())
	}

	rpr := reaper.New(logger, drv, reg, reaper.WithInterval(time.Duration(cfg.ReapInterval)*time.Second))
	go rpr.Run(ctx)

	srv := server.New(logger, cfg.ListenAddr, eng)
	logger.Info("listening", "addr", cfg.ListenAddr)
	return srv.ListenAndServe(ctx)
}

func newDriver(logger hclog.Logger, cfg *config.Config) (driver.Driver, error) {
	switch config.Backend(cfg.Backend) {
	case config.BackendLibvirt:
		return libvirtdriver.New(logger, libvirtdriver.WithConnectionURI(cfg.ConnStr))
	case config.BackendXapi:
		return xapidriver.New(logger, cfg.ConnStr, cfg.UseJSONRPC)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

type vmSpec struct {
	domain   string
	name     string
	ip       net.IP
	stopMode vm.StopMode
	delay    time.Duration
	ttl      int64
}

// parseVMSpec parses "domain:name:ip:stopmode:delay_seconds:ttl_seconds",
// the CLI-level realization of the one-AddVm-call-per-VM registration
// surface described in spec.md §6.
func parseVMSpec(spec string) (vmSpec, error) {
	fields := strings.Split(spec, ":")
	if len(fields) != 6 {
		return vmSpec{}, fmt.Errorf("expected 6 colon-separated fields, got %d", len(fields))
	}

	ip := net.ParseIP(fields[2])
	if ip == nil {
		return vmSpec{}, fmt.Errorf("invalid ip: %s", fields[2])
	}

	stopMode, err := parseStopMode(fields[3])
	if err != nil {
		return vmSpec{}, err
	}

	delaySeconds, err := strconv.Atoi(fields[4])
	if err != nil {
		return vmSpec{}, fmt.Errorf("invalid delay: %w", err)
	}

	ttl, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return vmSpec{}, fmt.Errorf("invalid ttl: %w", err)
	}

	return vmSpec{
		domain:   fields[0],
		name:     fields[1],
		ip:       ip,
		stopMode: stopMode,
		delay:    time.Duration(delaySeconds) * time.Second,
		ttl:      ttl,
	}, nil
}

func parseStopMode(s string) (vm.StopMode, error) {
	switch strings.ToLower(s) {
	case "shutdown":
		return vm.StopShutdown, nil
	case "suspend":
		return vm.StopSuspend, nil
	case "destroy":
		return vm.StopDestroy, nil
	default:
		return 0, fmt.Errorf("unknown stop mode %q", s)
	}
}
