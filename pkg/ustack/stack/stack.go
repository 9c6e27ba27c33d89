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

// Package stack provides the ICMPv6 input path of the uStack single-buffer
// IPv6 stack.
//
// The model follows the classic single-buffer stacks: the caller owns one
// packet buffer per endpoint invocation and hands it to HandleInbound
// together with the length of the received frame. The input path rewrites the
// buffer in place into a reply and returns the outbound length, or absorbs
// the packet and returns 0. No buffer is ever allocated, copied or retained
// by the input path itself.
package stack

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/ustacknet/ustack/pkg/ustack"
	"github.com/ustacknet/ustack/pkg/ustack/header"
	"github.com/ustacknet/ustack/pkg/ustack/waiter"
)

// Medium is the kind of medium an endpoint is attached to. It decides whether
// frames carry a link-layer header that reply paths must rewrite.
type Medium int

const (
	// MediumRaw is a medium without link-layer framing, e.g. a TUN
	// device. Frames start directly with the IPv6 header.
	MediumRaw Medium = iota

	// MediumEthernet is a shared-hardware-address medium. Frames carry an
	// ethernet header and replies swap its source and destination
	// addresses.
	MediumEthernet
)

// NeighborCache is consumed by the input path to record the link-layer
// addresses of soliciting neighbors. Implementations must be safe for
// concurrent use if they are shared outside the input path.
type NeighborCache interface {
	// Upsert adds the mapping from addr to linkAddr, replacing any
	// previous mapping for addr.
	Upsert(addr ustack.Address, linkAddr ustack.LinkAddress)
}

// Options holds the configuration of an endpoint.
type Options struct {
	// NodeAddress is the IPv6 address owned by this node. Neighbor
	// solicitations for any other target are not answered.
	NodeAddress ustack.Address

	// LinkAddress is the hardware address of this node. It is carried in
	// the Target Link-Layer Address option of outgoing advertisements and
	// stamped on outgoing ethernet frames.
	LinkAddress ustack.LinkAddress

	// Medium selects the link-layer framing. Defaults to MediumRaw.
	Medium Medium

	// NeighborCache receives the sender address mappings learned from
	// neighbor solicitations. May be nil, in which case nothing is
	// recorded.
	NeighborCache NeighborCache

	// EchoWaiters is the registry of callers blocked on outstanding echo
	// requests. May be nil, in which case every inbound echo reply is
	// dropped.
	EchoWaiters *waiter.Queue

	// Stats is the statistics sink. May be nil, in which case the
	// endpoint keeps its own.
	Stats *ustack.Stats

	// RateLimiter bounds the generation of replies. May be nil, in which
	// case the default limiter is used.
	RateLimiter *ICMPRateLimiter

	// Logger is the destination of the input path's debug logging. May be
	// nil, in which case the standard logrus logger is used.
	Logger logrus.FieldLogger
}

// Endpoint is an ICMPv6 input path bound to one node address and medium.
type Endpoint struct {
	nodeAddr ustack.Address
	linkAddr ustack.LinkAddress
	medium   Medium
	cache    NeighborCache
	waiters  *waiter.Queue
	stats    *ustack.Stats
	limiter  *ICMPRateLimiter
	log      logrus.FieldLogger
}

// New creates an endpoint from opts.
func New(opts Options) (*Endpoint, error) {
	if len(opts.NodeAddress) != ustack.IPv6AddressSize {
		return nil, fmt.Errorf("node address %q has length %d, want %d", opts.NodeAddress, len(opts.NodeAddress), ustack.IPv6AddressSize)
	}
	if len(opts.LinkAddress) != header.EthernetAddressSize {
		return nil, fmt.Errorf("link address %q has length %d, want %d", opts.LinkAddress, len(opts.LinkAddress), header.EthernetAddressSize)
	}

	e := &Endpoint{
		nodeAddr: opts.NodeAddress,
		linkAddr: opts.LinkAddress,
		medium:   opts.Medium,
		cache:    opts.NeighborCache,
		waiters:  opts.EchoWaiters,
		stats:    opts.Stats,
		limiter:  opts.RateLimiter,
		log:      opts.Logger,
	}
	if e.stats == nil {
		e.stats = &ustack.Stats{}
	}
	if e.limiter == nil {
		e.limiter = NewICMPRateLimiter()
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	return e, nil
}

// Stats returns the statistics sink the endpoint updates.
func (e *Endpoint) Stats() *ustack.Stats {
	return e.stats
}

// dropReason enumerates why the input path absorbed a packet without
// emitting a reply.
type dropReason int

const (
	dropNone dropReason = iota
	dropMalformedPacket
	dropMalformedOption
	dropAddressMismatch
	dropUnsupportedType
	dropUnclaimedEchoReply
	dropRateLimited
)

// String implements fmt.Stringer.
func (r dropReason) String() string {
	switch r {
	case dropNone:
		return "none"
	case dropMalformedPacket:
		return "malformed packet"
	case dropMalformedOption:
		return "malformed option"
	case dropAddressMismatch:
		return "address mismatch"
	case dropUnsupportedType:
		return "unsupported type"
	case dropUnclaimedEchoReply:
		return "unclaimed echo reply"
	case dropRateLimited:
		return "rate limited"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// outcome is the terminal state of one input-path invocation. Exactly one of
// the following holds:
//
//   - emitLen > 0: the buffer was rewritten into a reply of that length;
//   - emitLen == 0 and reason == dropNone: a waiter consumed the packet;
//   - emitLen == 0 and reason != dropNone: the packet was dropped.
type outcome struct {
	emitLen int
	reason  dropReason
}

func emit(n int) outcome {
	return outcome{emitLen: n}
}

func drop(r dropReason) outcome {
	return outcome{reason: r}
}

var consumed = outcome{}

// HandleInbound processes one inbound ICMPv6 frame held in buf. n is the
// length of the received frame; buf beyond n may be used as scratch space for
// the reply, so callers should size buf for their MTU, the way device
// drivers size their receive rings.
//
// The return value is the length of the outbound frame now held in buf, or 0
// if the packet was absorbed. The buffer is never left in a partially
// rewritten state with a non-zero return. All failures are soaked up locally
// as counter increments; there is no error return, matching the protocol's
// fire-and-forget delivery model.
//
// The caller must not touch buf for the duration of the call. Everything
// else the endpoint touches is safe for concurrent use.
func (e *Endpoint) HandleInbound(buf []byte, n int) int {
	e.stats.ICMPv6.PacketsReceived.Increment()

	res := e.handleICMPv6(buf, n)

	// All counter updates for the terminal state happen here, in one
	// place, keyed off the outcome.
	switch {
	case res.emitLen > 0:
		e.stats.ICMPv6.PacketsSent.Increment()
		return res.emitLen
	case res.reason == dropNone:
		return 0
	default:
		if res.reason == dropUnsupportedType {
			e.stats.ICMPv6.TypeErrors.Increment()
		}
		if res.reason == dropRateLimited {
			e.stats.ICMPv6.RateLimited.Increment()
		}
		e.stats.ICMPv6.PacketsDropped.Increment()
		return 0
	}
}

// linkHeaderLength returns the number of bytes of link-layer framing at the
// start of every frame on the endpoint's medium.
func (e *Endpoint) linkHeaderLength() int {
	if e.medium == MediumEthernet {
		return header.EthernetMinimumSize
	}
	return 0
}

// rewriteLinkHeader swaps the frame's hardware addresses for the reply path:
// the old source becomes the destination and this node's address becomes the
// source.
func (e *Endpoint) rewriteLinkHeader(buf []byte) {
	eth := header.Ethernet(buf)
	eth.SetDestinationAddress(eth.SourceAddress())
	eth.SetSourceAddress(e.linkAddr)
}
