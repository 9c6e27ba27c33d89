// Copyright 2024 The uStack Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ustack provides the core types shared by the uStack single-buffer
// IPv6 stack: network and link-layer addresses, and the statistics tree
// maintained by the input path.
//
// The design centers on a caller-owned packet buffer that is rewritten in
// place; see the stack package for the input path itself.
package ustack

import (
	"fmt"
	"net"
	"sync/atomic"
)

// Address is a byte slice cast as a string that represents an IPv6 address.
type Address string

// String implements fmt.Stringer.
func (a Address) String() string {
	if len(a) != IPv6AddressSize {
		return fmt.Sprintf("%x", []byte(a))
	}
	return net.IP(a).String()
}

// IPv6AddressSize is the size, in bytes, of an IPv6 address.
const IPv6AddressSize = 16

// ParseIPv6Address parses s as an IPv6 address in the usual textual form.
func ParseIPv6Address(s string) (Address, error) {
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() != nil {
		return "", fmt.Errorf("%q is not an IPv6 address", s)
	}
	return Address(ip.To16()), nil
}

// LinkAddress is a byte slice cast as a string that represents a link address.
// It is typically a 6-byte MAC address.
type LinkAddress string

// String implements fmt.Stringer.
func (a LinkAddress) String() string {
	switch len(a) {
	case 6:
		return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
	default:
		return fmt.Sprintf("%x", []byte(a))
	}
}

// ParseMACAddress parses s as a MAC address in one of the formats accepted by
// net.ParseMAC, e.g. "01:23:45:67:89:ab".
func ParseMACAddress(s string) (LinkAddress, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return "", err
	}
	return LinkAddress(hw), nil
}

// A StatCounter keeps track of a statistic.
type StatCounter struct {
	count atomic.Uint64
}

// Increment adds one to the counter.
func (s *StatCounter) Increment() {
	s.IncrementBy(1)
}

// IncrementBy increments the counter by v.
func (s *StatCounter) IncrementBy(v uint64) {
	s.count.Add(v)
}

// Value returns the current value of the counter.
func (s *StatCounter) Value() uint64 {
	return s.count.Load()
}

// String implements fmt.Stringer.
func (s *StatCounter) String() string {
	return fmt.Sprintf("%d", s.Value())
}

// ICMPv6Stats collects ICMPv6-specific stats.
type ICMPv6Stats struct {
	// PacketsReceived is the number of ICMPv6 packets handed to the input
	// path, valid or not.
	PacketsReceived StatCounter

	// PacketsSent is the number of reply packets emitted by the input
	// path.
	PacketsSent StatCounter

	// PacketsDropped is the number of packets absorbed without a reply
	// being emitted or a waiter claiming them.
	PacketsDropped StatCounter

	// TypeErrors is the number of packets dropped because their type field
	// named a message this stack does not handle.
	TypeErrors StatCounter

	// RateLimited is the number of replies suppressed by the ICMP reply
	// rate limiter.
	RateLimited StatCounter

	// NeighborSolicitsReceived is the number of neighbor solicitations
	// received.
	NeighborSolicitsReceived StatCounter

	// NeighborAdvertsSent is the number of neighbor advertisements sent in
	// response to solicitations for this node's address.
	NeighborAdvertsSent StatCounter

	// EchoRequestsReceived is the number of echo requests received.
	EchoRequestsReceived StatCounter

	// EchoRepliesSent is the number of echo replies sent.
	EchoRepliesSent StatCounter

	// EchoRepliesReceived is the number of echo replies received,
	// whether or not a waiter claimed them.
	EchoRepliesReceived StatCounter
}

// Stats holds statistics about the networking stack.
//
// All fields are optional to update: a zero Stats is ready for use.
type Stats struct {
	// ICMPv6 holds the ICMPv6 input-path statistics.
	ICMPv6 ICMPv6Stats
}
