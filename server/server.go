// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

// Package server is the DNS server loop (H), an external collaborator per
// spec.md §1: a thin *dns.Server wrapper that accepts inbound packets and
// dispatches each one to the activation engine's Process, writing back
// whatever it returns or dropping the packet entirely.
package server

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/miekg/dns"
)

// Processor is the activation engine's entry point, as consumed by the
// server loop. Satisfied by *engine.Engine.
type Processor interface {
	Process(ctx context.Context, req *dns.Msg) (*dns.Msg, bool)
}

// Server runs paired UDP and TCP *dns.Server listeners over the same
// address, both dispatching to a single Processor.
type Server struct {
	addr      string
	processor Processor
	logger    hclog.Logger

	udp *dns.Server
	tcp *dns.Server
}

// New builds a Server listening on addr ("host:port") for both protocols.
func New(logger hclog.Logger, addr string, processor Processor) *Server {
	s := &Server{
		addr:      addr,
		processor: processor,
		logger:    logger.Named("server"),
	}

	mux := dns.NewServeMux()
	mux.HandleFunc(".", s.handle)

	s.udp = &dns.Server{Addr: addr, Net: "udp", Handler: mux}
	s.tcp = &dns.Server{Addr: addr, Net: "tcp", Handler: mux}
	return s
}

// ListenAndServe starts both listeners and blocks until either returns an
// error or ctx is canceled, whichever happens first.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() { errCh <- s.udp.ListenAndServe() }()
	go func() { errCh <- s.tcp.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		_ = s.Shutdown()
		return fmt.Errorf("dns server: %w", err)
	}
}

// Shutdown gracefully stops both listeners.
func (s *Server) Shutdown() error {
	udpErr := s.udp.Shutdown()
	tcpErr := s.tcp.Shutdown()
	if udpErr != nil {
		return udpErr
	}
	return tcpErr
}

func (s *Server) handle(w dns.ResponseWriter, req *dns.Msg) {
	reply, ok := s.processor.Process(context.Background(), req)
	if !ok {
		return
	}
	if err := w.WriteMsg(reply); err != nil {
		s.logger.Warn("write response failed", "error", err)
	}
}
