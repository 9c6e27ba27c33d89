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

package stack

import (
	"github.com/ustacknet/ustack/pkg/ustack/header"
	"github.com/ustacknet/ustack/pkg/ustack/waiter"
)

// PacketKind is the handling path selected for an inbound ICMPv6 message.
type PacketKind int

const (
	// KindUnsupported is every message type the input path does not
	// handle.
	KindUnsupported PacketKind = iota

	// KindNeighborSolicit is an NDP Neighbor Solicitation.
	KindNeighborSolicit

	// KindEchoRequest is an ICMPv6 Echo Request.
	KindEchoRequest

	// KindEchoReply is an ICMPv6 Echo Reply.
	KindEchoReply
)

// classify selects the handling path for h. It is a pure function of the
// type field; classification always succeeds, with unrecognized values
// mapping to KindUnsupported.
func classify(h header.ICMPv6) PacketKind {
	switch h.Type() {
	case header.ICMPv6NeighborSolicit:
		return KindNeighborSolicit
	case header.ICMPv6EchoRequest:
		return KindEchoRequest
	case header.ICMPv6EchoReply:
		return KindEchoReply
	default:
		return KindUnsupported
	}
}

// handleICMPv6 validates the frame down to the ICMPv6 message, classifies it
// and runs the selected handler. It returns the terminal outcome; counter
// updates are left to the caller.
func (e *Endpoint) handleICMPv6(buf []byte, n int) outcome {
	ll := e.linkHeaderLength()
	if n < ll+header.IPv6MinimumSize || n > len(buf) {
		return drop(dropMalformedPacket)
	}

	ip := header.IPv6(buf[ll:n])
	if !ip.IsValid(n-ll) || ip.NextHeader() != header.ICMPv6ProtocolNumber {
		return drop(dropMalformedPacket)
	}

	icmp := header.ICMPv6(ip.Payload())
	if len(icmp) < header.ICMPv6MinimumSize {
		return drop(dropMalformedPacket)
	}

	// Validate the ICMPv6 checksum before processing the packet.
	if got, want := icmp.Checksum(), header.ICMPv6Checksum(icmp, ip.SourceAddress(), ip.DestinationAddress()); got != want {
		return drop(dropMalformedPacket)
	}

	// As per RFC 4861 sections 4.1 - 4.5, 6.1.1, 6.1.2, 7.1.1, 7.1.2 and
	// 8.1, nodes MUST silently drop NDP packets where the Hop Limit field
	// in the IPv6 header is not set to 255, or the ICMPv6 Code field is
	// not set to 0.
	if icmp.Type().IsNDPType() {
		if ip.HopLimit() != header.NDPHopLimit || icmp.Code() != 0 {
			return drop(dropMalformedPacket)
		}
	}

	switch classify(icmp) {
	case KindNeighborSolicit:
		return e.handleNeighborSolicit(buf, ll, ip, icmp)
	case KindEchoRequest:
		return e.handleEchoRequest(buf, n, ip, icmp)
	case KindEchoReply:
		return e.dispatchEchoReply(buf[ll:n], icmp)
	default:
		e.log.Debugf("unknown ICMPv6 type: %d", icmp.Type())
		return drop(dropUnsupportedType)
	}
}

// handleNeighborSolicit answers a solicitation for this node's address by
// rewriting the buffer in place into a solicited neighbor advertisement
// carrying this node's link-layer address, and records the sender's own
// link-layer address in the neighbor cache when the solicitation offers it.
func (e *Endpoint) handleNeighborSolicit(buf []byte, ll int, ip header.IPv6, icmp header.ICMPv6) outcome {
	e.stats.ICMPv6.NeighborSolicitsReceived.Increment()

	if len(icmp) < header.ICMPv6NeighborSolicitMinimumSize {
		return drop(dropMalformedPacket)
	}

	// A solicitation from the unspecified address is a duplicate address
	// detection probe. This node does not participate in DAD and cannot
	// unicast an advertisement back, so the probe is not answered.
	src := ip.SourceAddress()
	if header.IsV6UnspecifiedAddress(src) {
		return drop(dropAddressMismatch)
	}

	ns := header.NDPNeighborSolicit(icmp.NDPPayload())
	if ns.TargetAddress() != e.nodeAddr {
		return drop(dropAddressMismatch)
	}

	// Walk the options up front so a bad length field is caught before
	// any option body is touched.
	it, err := ns.Options().Iter(true)
	if err != nil {
		return drop(dropMalformedOption)
	}

	// If the sender identified itself with a leading Source Link-Layer
	// Address option, remember it. Absence of the option is fine; the
	// upsert is simply skipped.
	if opt, done, _ := it.Next(); !done && opt.Kind == header.NDPSourceLinkLayerAddressOptionType {
		if linkAddr, ok := opt.LinkLayerAddress(); ok && e.cache != nil {
			e.cache.Upsert(src, linkAddr)
		}
	}

	// The advertisement replaces whatever options the solicitation
	// carried with a single Target Link-Layer Address option, so the
	// outgoing message has a fixed size that the buffer must cover.
	need := ll + header.IPv6MinimumSize + header.ICMPv6NeighborAdvertSize
	if len(buf) < need {
		return drop(dropMalformedPacket)
	}

	if !e.limiter.Allow() {
		return drop(dropRateLimited)
	}

	// Transform the solicitation into a solicited advertisement in place.
	// The target address field is already in the right place; only the
	// type, flags, reserved bits and options change.
	out := header.ICMPv6(buf[ll+header.IPv6MinimumSize:][:header.ICMPv6NeighborAdvertSize])
	out.SetType(header.ICMPv6NeighborAdvert)
	out.SetCode(0)

	na := header.NDPNeighborAdvert(out.NDPPayload())
	na.ClearFlagsAndReserved()
	na.SetSolicitedFlag(true)
	na.Options().Serialize(header.NDPOptionsSerializer{
		header.NDPTargetLinkLayerAddressOption(e.linkAddr),
	})

	ip.SetDestinationAddress(src)
	ip.SetSourceAddress(e.nodeAddr)
	ip.SetPayloadLength(header.ICMPv6NeighborAdvertSize)
	// The hop limit stays at 255: inbound NDP validation already
	// guaranteed it, and outgoing NDP requires it.

	out.SetChecksum(header.ICMPv6Checksum(out, e.nodeAddr, src))

	if e.medium == MediumEthernet {
		e.rewriteLinkHeader(buf)
	}

	e.stats.ICMPv6.NeighborAdvertsSent.Increment()
	return emit(need)
}

// handleEchoRequest turns a ping into its reply: only the type changes and
// the addresses swap, with the ident, sequence and payload bytes riding
// along untouched.
func (e *Endpoint) handleEchoRequest(buf []byte, n int, ip header.IPv6, icmp header.ICMPv6) outcome {
	e.stats.ICMPv6.EchoRequestsReceived.Increment()

	if !e.limiter.Allow() {
		return drop(dropRateLimited)
	}

	src := ip.SourceAddress()
	ip.SetDestinationAddress(src)
	ip.SetSourceAddress(e.nodeAddr)

	icmp.SetType(header.ICMPv6EchoReply)
	icmp.SetChecksum(header.ICMPv6Checksum(icmp, e.nodeAddr, src))

	if e.medium == MediumEthernet {
		e.rewriteLinkHeader(buf)
	}

	e.stats.ICMPv6.EchoRepliesSent.Increment()
	return emit(n)
}

// dispatchEchoReply offers an inbound echo reply to the registered waiters.
// The input path does not inspect waiter identity or perform any matching
// itself; claiming is owned entirely by the registry's entries. A reply
// nobody claims is dropped. A claimed reply is consumed without touching the
// send counters: nothing was transmitted.
func (e *Endpoint) dispatchEchoReply(pkt []byte, icmp header.ICMPv6) outcome {
	e.stats.ICMPv6.EchoRepliesReceived.Increment()

	if len(icmp) < header.ICMPv6EchoMinimumSize {
		return drop(dropMalformedPacket)
	}

	if e.waiters == nil || e.waiters.IsEmpty() {
		return drop(dropUnclaimedEchoReply)
	}

	if e.waiters.Dispatch(pkt, waiter.Unclaimed) != waiter.Claimed {
		return drop(dropUnclaimedEchoReply)
	}
	return consumed
}
