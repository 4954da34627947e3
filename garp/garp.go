// Copyright (c) The jitsu-go Authors
// SPDX-License-Identifier: MPL-2.0

// Package garp implements the client side of the gratuitous-ARP notifier
// interface described in spec.md §6: a length-prefixed framed message
// carrying a six-byte MAC and four-byte IPv4 address, sent to a notifier
// process over a lazily-reconnected stream connection. The notifier's own
// wire protocol past the frame length is out of scope (spec.md §1); only
// the client side the activation engine calls through is specified here.
package garp

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Notifier is the interface the activation engine calls on a VM start
// (spec.md §4.4 step 4). It is satisfied by *Client.
type Notifier interface {
	SendGarp(mac net.HardwareAddr, ip net.IP) error
}

// Client is a lazily-connected gARP notifier client. Built directly on
// net.Dial rather than a pack library: the frame this protocol speaks
// (length-prefixed MAC+IP) is internal to the notifier and not a
// standard wire format any example repo's dependencies implement -
// documented in DESIGN.md as the stdlib exception for this component.
type Client struct {
	addr    string
	dialer  net.Dialer
	timeout time.Duration
	logger  hclog.Logger

	mu   sync.Mutex
	conn net.Conn
}

// New builds a client targeting addr ("host:port"). The connection is not
// opened until the first SendGarp call.
func New(logger hclog.Logger, addr string, timeout time.Duration) *Client {
	return &Client{
		addr:    addr,
		timeout: timeout,
		logger:  logger.Named("garp"),
	}
}

// SendGarp frames mac and ip and writes them to the notifier, dialing on
// first use and again after a failed write or a Close has discarded the
// previous connection. A drop by the peer is noticed only when a write to
// it fails.
func (c *Client) SendGarp(mac net.HardwareAddr, ip net.IP) error {
	if len(mac) != 6 {
		return fmt.Errorf("garp: mac must be 6 bytes, got %d", len(mac))
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return fmt.Errorf("garp: ip must be IPv4: %v", ip)
	}

	frame := encodeFrame(mac, ip4)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, err := c.dialer.Dial("tcp", c.addr)
		if err != nil {
			return fmt.Errorf("garp: dial %s: %w", c.addr, err)
		}
		c.conn = conn
	}

	if c.timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}

	if _, err := c.conn.Write(frame); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return fmt.Errorf("garp: write to %s: %w", c.addr, err)
	}

	return nil
}

// Close drops any open connection; a subsequent SendGarp reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// encodeFrame builds a 4-byte big-endian length prefix followed by the
// 6-byte MAC and 4-byte IPv4 payload.
func encodeFrame(mac net.HardwareAddr, ip4 net.IP) []byte {
	payload := make([]byte, 0, 10)
	payload = append(payload, mac[:6]...)
	payload = append(payload, ip4...)

	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	return frame
}
