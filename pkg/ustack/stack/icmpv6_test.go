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
	"bytes"
	"testing"

	"golang.org/x/time/rate"

	"github.com/ustacknet/ustack/pkg/ustack"
	"github.com/ustacknet/ustack/pkg/ustack/checker"
	"github.com/ustacknet/ustack/pkg/ustack/header"
	"github.com/ustacknet/ustack/pkg/ustack/waiter"
)

const (
	// bufSize is the size of the packet buffers handed to HandleInbound. It
	// stands in for the MTU-sized buffers a device driver would use.
	bufSize = 1500

	defaultHopLimit = 64
)

var (
	lladdr0 = ustack.Address("\xfe\x80\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x01")
	lladdr1 = ustack.Address("\xfe\x80\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x02")
	lladdr2 = ustack.Address("\xfe\x80\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x03")

	linkAddr0 = ustack.LinkAddress("\x02\x02\x03\x04\x05\x06")
	linkAddr1 = ustack.LinkAddress("\x0a\x0b\x0c\x0d\x0e\x0f")
)

// upsert records one call to testNeighborCache.Upsert.
type upsert struct {
	addr     ustack.Address
	linkAddr ustack.LinkAddress
}

// testNeighborCache records every upsert so tests can assert on exactly what
// the input path learned.
type testNeighborCache struct {
	upserts []upsert
}

func (c *testNeighborCache) Upsert(addr ustack.Address, linkAddr ustack.LinkAddress) {
	c.upserts = append(c.upserts, upsert{addr, linkAddr})
}

type testContext struct {
	ep      *Endpoint
	cache   *testNeighborCache
	waiters *waiter.Queue
}

func newTestContext(t *testing.T, medium Medium) *testContext {
	t.Helper()

	cache := &testNeighborCache{}
	waiters := &waiter.Queue{}
	ep, err := New(Options{
		NodeAddress:   lladdr0,
		LinkAddress:   linkAddr0,
		Medium:        medium,
		NeighborCache: cache,
		EchoWaiters:   waiters,
	})
	if err != nil {
		t.Fatalf("New(_) = %v", err)
	}
	return &testContext{ep: ep, cache: cache, waiters: waiters}
}

// icmpFrame builds an IPv6 packet carrying msg into a fresh MTU-sized buffer,
// stamping a valid checksum, and returns the buffer and frame length.
func icmpFrame(hopLimit uint8, src, dst ustack.Address, msg []byte) ([]byte, int) {
	buf := make([]byte, bufSize)
	ip := header.IPv6(buf)
	ip.Encode(&header.IPv6Fields{
		PayloadLength: uint16(len(msg)),
		NextHeader:    header.ICMPv6ProtocolNumber,
		HopLimit:      hopLimit,
		SrcAddr:       src,
		DstAddr:       dst,
	})
	icmp := header.ICMPv6(buf[header.IPv6MinimumSize:][:len(msg)])
	copy(icmp, msg)
	icmp.SetChecksum(header.ICMPv6Checksum(icmp, src, dst))
	return buf, header.IPv6MinimumSize + len(msg)
}

// neighborSolicitMsg builds the ICMPv6 message body of a neighbor
// solicitation for target, followed by the given raw option bytes.
func neighborSolicitMsg(target ustack.Address, opts []byte) []byte {
	b := make([]byte, header.ICMPv6NeighborSolicitMinimumSize+len(opts))
	icmp := header.ICMPv6(b)
	icmp.SetType(header.ICMPv6NeighborSolicit)
	ns := header.NDPNeighborSolicit(icmp.NDPPayload())
	ns.SetTargetAddress(target)
	copy(ns.Options(), opts)
	return b
}

// sourceLinkLayerOption builds a Source Link-Layer Address option for addr.
func sourceLinkLayerOption(addr ustack.LinkAddress) []byte {
	return append([]byte{header.NDPSourceLinkLayerAddressOptionType, 1}, addr...)
}

// echoMsg builds the ICMPv6 message body of an echo message.
func echoMsg(typ header.ICMPv6Type, ident, seq uint16, payload []byte) []byte {
	b := make([]byte, header.ICMPv6EchoMinimumSize+len(payload))
	icmp := header.ICMPv6(b)
	icmp.SetType(typ)
	icmp.SetIdent(ident)
	icmp.SetSequence(seq)
	copy(icmp.EchoPayload(), payload)
	return b
}

func checkCounter(t *testing.T, name string, c *ustack.StatCounter, want uint64) {
	t.Helper()
	if got := c.Value(); got != want {
		t.Errorf("got %s = %d, want = %d", name, got, want)
	}
}

func TestNeighborSolicitResponse(t *testing.T) {
	c := newTestContext(t, MediumRaw)

	snmc := header.SolicitedNodeAddr(lladdr0)
	buf, n := icmpFrame(header.NDPHopLimit, lladdr1, snmc, neighborSolicitMsg(lladdr0, sourceLinkLayerOption(linkAddr1)))

	out := c.ep.HandleInbound(buf, n)
	if want := header.IPv6MinimumSize + header.ICMPv6NeighborAdvertSize; out != want {
		t.Fatalf("got HandleInbound(_, %d) = %d, want = %d", n, out, want)
	}

	checker.IPv6(t, buf[:out],
		checker.SrcAddr(lladdr0),
		checker.DstAddr(lladdr1),
		checker.HopLimit(header.NDPHopLimit),
		checker.PayloadLen(header.ICMPv6NeighborAdvertSize),
		checker.ICMPv6(
			checker.ICMPv6Type(header.ICMPv6NeighborAdvert),
			checker.ICMPv6Code(0),
			checker.NDPNASolicitedFlag(true),
			checker.NDPNAFlagsAndReserved([4]byte{0x40, 0, 0, 0}),
			checker.NDPNATargetAddress(lladdr0),
			checker.NDPNATargetLinkLayerAddressOption(linkAddr0),
		),
	)

	if want := []upsert{{lladdr1, linkAddr1}}; len(c.cache.upserts) != 1 || c.cache.upserts[0] != want[0] {
		t.Errorf("got cache upserts = %v, want = %v", c.cache.upserts, want)
	}

	stats := &c.ep.Stats().ICMPv6
	checkCounter(t, "PacketsReceived", &stats.PacketsReceived, 1)
	checkCounter(t, "NeighborSolicitsReceived", &stats.NeighborSolicitsReceived, 1)
	checkCounter(t, "NeighborAdvertsSent", &stats.NeighborAdvertsSent, 1)
	checkCounter(t, "PacketsSent", &stats.PacketsSent, 1)
	checkCounter(t, "PacketsDropped", &stats.PacketsDropped, 0)
}

func TestNeighborSolicitWithoutSourceOption(t *testing.T) {
	c := newTestContext(t, MediumRaw)

	buf, n := icmpFrame(header.NDPHopLimit, lladdr1, lladdr0, neighborSolicitMsg(lladdr0, nil))

	out := c.ep.HandleInbound(buf, n)
	if want := header.IPv6MinimumSize + header.ICMPv6NeighborAdvertSize; out != want {
		t.Fatalf("got HandleInbound(_, %d) = %d, want = %d", n, out, want)
	}
	checker.IPv6(t, buf[:out],
		checker.ICMPv6(checker.ICMPv6Type(header.ICMPv6NeighborAdvert)),
	)

	if len(c.cache.upserts) != 0 {
		t.Errorf("got cache upserts = %v, want none", c.cache.upserts)
	}
}

func TestNeighborSolicitNotAnswered(t *testing.T) {
	tests := []struct {
		name string
		src  ustack.Address
		msg  []byte
	}{
		{
			name: "wrong target",
			src:  lladdr1,
			msg:  neighborSolicitMsg(lladdr2, sourceLinkLayerOption(linkAddr1)),
		},
		{
			name: "duplicate address detection probe",
			src:  header.IPv6Any,
			msg:  neighborSolicitMsg(lladdr0, nil),
		},
		{
			name: "truncated solicitation",
			src:  lladdr1,
			msg:  neighborSolicitMsg(lladdr0, nil)[:header.ICMPv6NeighborSolicitMinimumSize-4],
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := newTestContext(t, MediumRaw)

			buf, n := icmpFrame(header.NDPHopLimit, test.src, lladdr0, test.msg)
			orig := make([]byte, n)
			copy(orig, buf[:n])

			if got := c.ep.HandleInbound(buf, n); got != 0 {
				t.Fatalf("got HandleInbound(_, %d) = %d, want = 0", n, got)
			}
			if !bytes.Equal(buf[:n], orig) {
				t.Error("dropped packet was modified in place")
			}
			if len(c.cache.upserts) != 0 {
				t.Errorf("got cache upserts = %v, want none", c.cache.upserts)
			}

			stats := &c.ep.Stats().ICMPv6
			checkCounter(t, "PacketsDropped", &stats.PacketsDropped, 1)
			checkCounter(t, "NeighborAdvertsSent", &stats.NeighborAdvertsSent, 0)
			checkCounter(t, "PacketsSent", &stats.PacketsSent, 0)
			checkCounter(t, "TypeErrors", &stats.TypeErrors, 0)
		})
	}
}

func TestNeighborSolicitMalformedOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []byte
	}{
		{
			name: "zero length field",
			opts: []byte{header.NDPSourceLinkLayerAddressOptionType, 0, 1, 2, 3, 4, 5, 6},
		},
		{
			name: "length exceeds options",
			opts: []byte{header.NDPSourceLinkLayerAddressOptionType, 4, 1, 2, 3, 4, 5, 6},
		},
		{
			name: "trailing fragment",
			opts: []byte{header.NDPSourceLinkLayerAddressOptionType, 1, 1, 2, 3, 4, 5, 6, 2},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := newTestContext(t, MediumRaw)

			buf, n := icmpFrame(header.NDPHopLimit, lladdr1, lladdr0, neighborSolicitMsg(lladdr0, test.opts))

			if got := c.ep.HandleInbound(buf, n); got != 0 {
				t.Fatalf("got HandleInbound(_, %d) = %d, want = 0", n, got)
			}
			if len(c.cache.upserts) != 0 {
				t.Errorf("got cache upserts = %v, want none", c.cache.upserts)
			}
			checkCounter(t, "PacketsDropped", &c.ep.Stats().ICMPv6.PacketsDropped, 1)
		})
	}
}

func TestNeighborSolicitBufferTooSmall(t *testing.T) {
	c := newTestContext(t, MediumRaw)

	// A minimal solicitation fits in fewer bytes than the fixed-size
	// advertisement it would become. A buffer with no spare room past the
	// frame cannot hold the reply.
	buf, n := icmpFrame(header.NDPHopLimit, lladdr1, lladdr0, neighborSolicitMsg(lladdr0, nil))
	short := make([]byte, n)
	copy(short, buf[:n])

	if got := c.ep.HandleInbound(short, n); got != 0 {
		t.Fatalf("got HandleInbound(_, %d) = %d, want = 0", n, got)
	}
	checkCounter(t, "PacketsDropped", &c.ep.Stats().ICMPv6.PacketsDropped, 1)
	checkCounter(t, "NeighborAdvertsSent", &c.ep.Stats().ICMPv6.NeighborAdvertsSent, 0)
}

func TestNeighborSolicitEthernet(t *testing.T) {
	c := newTestContext(t, MediumEthernet)

	pkt, pktLen := icmpFrame(header.NDPHopLimit, lladdr1, lladdr0, neighborSolicitMsg(lladdr0, sourceLinkLayerOption(linkAddr1)))

	buf := make([]byte, bufSize)
	eth := header.Ethernet(buf)
	eth.Encode(&header.EthernetFields{
		SrcAddr: linkAddr1,
		DstAddr: linkAddr0,
		Type:    header.IPv6EtherType,
	})
	copy(buf[header.EthernetMinimumSize:], pkt[:pktLen])
	n := header.EthernetMinimumSize + pktLen

	out := c.ep.HandleInbound(buf, n)
	if want := header.EthernetMinimumSize + header.IPv6MinimumSize + header.ICMPv6NeighborAdvertSize; out != want {
		t.Fatalf("got HandleInbound(_, %d) = %d, want = %d", n, out, want)
	}

	if got := eth.DestinationAddress(); got != linkAddr1 {
		t.Errorf("got frame DestinationAddress = %s, want = %s", got, linkAddr1)
	}
	if got := eth.SourceAddress(); got != linkAddr0 {
		t.Errorf("got frame SourceAddress = %s, want = %s", got, linkAddr0)
	}
	if got := eth.Type(); got != header.IPv6EtherType {
		t.Errorf("got frame Type = %#x, want = %#x", got, header.IPv6EtherType)
	}

	checker.IPv6(t, buf[header.EthernetMinimumSize:out],
		checker.SrcAddr(lladdr0),
		checker.DstAddr(lladdr1),
		checker.ICMPv6(
			checker.ICMPv6Type(header.ICMPv6NeighborAdvert),
			checker.NDPNATargetLinkLayerAddressOption(linkAddr0),
		),
	)
}

func TestEchoRequestResponse(t *testing.T) {
	payload := []byte("data data data data")
	const ident = 0xbeef
	const seq = 7

	for _, medium := range []Medium{MediumRaw, MediumEthernet} {
		name := "raw"
		if medium == MediumEthernet {
			name = "ethernet"
		}
		t.Run(name, func(t *testing.T) {
			c := newTestContext(t, medium)

			pkt, pktLen := icmpFrame(defaultHopLimit, lladdr1, lladdr0, echoMsg(header.ICMPv6EchoRequest, ident, seq, payload))

			buf := pkt
			n := pktLen
			ll := 0
			if medium == MediumEthernet {
				buf = make([]byte, bufSize)
				header.Ethernet(buf).Encode(&header.EthernetFields{
					SrcAddr: linkAddr1,
					DstAddr: linkAddr0,
					Type:    header.IPv6EtherType,
				})
				copy(buf[header.EthernetMinimumSize:], pkt[:pktLen])
				n = header.EthernetMinimumSize + pktLen
				ll = header.EthernetMinimumSize
			}

			out := c.ep.HandleInbound(buf, n)
			if out != n {
				t.Fatalf("got HandleInbound(_, %d) = %d, want = %d", n, out, n)
			}

			checker.IPv6(t, buf[ll:out],
				checker.SrcAddr(lladdr0),
				checker.DstAddr(lladdr1),
				checker.PayloadLen(uint16(header.ICMPv6EchoMinimumSize+len(payload))),
				checker.ICMPv6(
					checker.ICMPv6Type(header.ICMPv6EchoReply),
					checker.ICMPv6Code(0),
					checker.ICMPv6Echo(ident, seq, payload),
				),
			)

			if medium == MediumEthernet {
				eth := header.Ethernet(buf)
				if got := eth.DestinationAddress(); got != linkAddr1 {
					t.Errorf("got frame DestinationAddress = %s, want = %s", got, linkAddr1)
				}
				if got := eth.SourceAddress(); got != linkAddr0 {
					t.Errorf("got frame SourceAddress = %s, want = %s", got, linkAddr0)
				}
			}

			stats := &c.ep.Stats().ICMPv6
			checkCounter(t, "EchoRequestsReceived", &stats.EchoRequestsReceived, 1)
			checkCounter(t, "EchoRepliesSent", &stats.EchoRepliesSent, 1)
			checkCounter(t, "PacketsSent", &stats.PacketsSent, 1)
			checkCounter(t, "PacketsDropped", &stats.PacketsDropped, 0)
		})
	}
}

func TestEchoReplyUnclaimed(t *testing.T) {
	c := newTestContext(t, MediumRaw)

	buf, n := icmpFrame(defaultHopLimit, lladdr1, lladdr0, echoMsg(header.ICMPv6EchoReply, 1, 1, nil))

	if got := c.ep.HandleInbound(buf, n); got != 0 {
		t.Fatalf("got HandleInbound(_, %d) = %d, want = 0", n, got)
	}

	stats := &c.ep.Stats().ICMPv6
	checkCounter(t, "EchoRepliesReceived", &stats.EchoRepliesReceived, 1)
	checkCounter(t, "PacketsDropped", &stats.PacketsDropped, 1)
	checkCounter(t, "TypeErrors", &stats.TypeErrors, 0)
	checkCounter(t, "PacketsSent", &stats.PacketsSent, 0)
}

func TestEchoReplyClaimed(t *testing.T) {
	c := newTestContext(t, MediumRaw)

	const ident = 42
	e, ch := waiter.NewChannelEntry(func(pkt []byte) bool {
		return header.ICMPv6(header.IPv6(pkt).Payload()).Ident() == ident
	})
	c.waiters.Register(&e)
	defer c.waiters.Unregister(&e)

	payload := []byte("pong")
	buf, n := icmpFrame(defaultHopLimit, lladdr1, lladdr0, echoMsg(header.ICMPv6EchoReply, ident, 3, payload))

	if got := c.ep.HandleInbound(buf, n); got != 0 {
		t.Fatalf("got HandleInbound(_, %d) = %d, want = 0", n, got)
	}

	select {
	case got := <-ch:
		if !bytes.Equal(got, buf[:n]) {
			t.Errorf("got claimed packet = %x, want = %x", got, buf[:n])
		}
	default:
		t.Fatal("waiter did not receive the claimed reply")
	}

	stats := &c.ep.Stats().ICMPv6
	checkCounter(t, "EchoRepliesReceived", &stats.EchoRepliesReceived, 1)
	checkCounter(t, "PacketsDropped", &stats.PacketsDropped, 0)
	checkCounter(t, "PacketsSent", &stats.PacketsSent, 0)
	checkCounter(t, "EchoRepliesSent", &stats.EchoRepliesSent, 0)
}

func TestEchoReplyDispatchStopsAtClaimer(t *testing.T) {
	c := newTestContext(t, MediumRaw)

	ident := func(pkt []byte) uint16 {
		return header.ICMPv6(header.IPv6(pkt).Payload()).Ident()
	}

	var claims [2]int
	e0 := waiter.Entry{Claim: func(_ *waiter.Entry, pkt []byte) waiter.Disposition {
		claims[0]++
		if ident(pkt) == 1 {
			return waiter.Claimed
		}
		return waiter.Unclaimed
	}}
	e1 := waiter.Entry{Claim: func(_ *waiter.Entry, pkt []byte) waiter.Disposition {
		claims[1]++
		if ident(pkt) == 2 {
			return waiter.Claimed
		}
		return waiter.Unclaimed
	}}
	c.waiters.Register(&e0)
	c.waiters.Register(&e1)

	// A reply for the first waiter must never be offered to the second.
	buf, n := icmpFrame(defaultHopLimit, lladdr1, lladdr0, echoMsg(header.ICMPv6EchoReply, 1, 1, nil))
	if got := c.ep.HandleInbound(buf, n); got != 0 {
		t.Fatalf("got HandleInbound(_, %d) = %d, want = 0", n, got)
	}
	if claims != [2]int{1, 0} {
		t.Errorf("got claim counts = %v, want = [1 0]", claims)
	}

	// A reply for the second is offered to both, in order.
	buf, n = icmpFrame(defaultHopLimit, lladdr1, lladdr0, echoMsg(header.ICMPv6EchoReply, 2, 1, nil))
	if got := c.ep.HandleInbound(buf, n); got != 0 {
		t.Fatalf("got HandleInbound(_, %d) = %d, want = 0", n, got)
	}
	if claims != [2]int{2, 1} {
		t.Errorf("got claim counts = %v, want = [2 1]", claims)
	}

	checkCounter(t, "PacketsDropped", &c.ep.Stats().ICMPv6.PacketsDropped, 0)
}

func TestUnsupportedTypes(t *testing.T) {
	tests := []struct {
		name string
		msg  []byte
		hop  uint8
	}{
		{
			name: "unassigned type",
			msg:  []byte{200, 0, 0, 0, 0, 0, 0, 0},
			hop:  defaultHopLimit,
		},
		{
			name: "destination unreachable",
			msg:  []byte{byte(header.ICMPv6DstUnreachable), 0, 0, 0, 0, 0, 0, 0},
			hop:  defaultHopLimit,
		},
		{
			name: "router solicit",
			msg:  []byte{byte(header.ICMPv6RouterSolicit), 0, 0, 0, 0, 0, 0, 0},
			hop:  header.NDPHopLimit,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := newTestContext(t, MediumRaw)

			buf, n := icmpFrame(test.hop, lladdr1, lladdr0, test.msg)
			if got := c.ep.HandleInbound(buf, n); got != 0 {
				t.Fatalf("got HandleInbound(_, %d) = %d, want = 0", n, got)
			}

			stats := &c.ep.Stats().ICMPv6
			checkCounter(t, "TypeErrors", &stats.TypeErrors, 1)
			checkCounter(t, "PacketsDropped", &stats.PacketsDropped, 1)
			checkCounter(t, "PacketsSent", &stats.PacketsSent, 0)
		})
	}
}

func TestMalformedPackets(t *testing.T) {
	tests := []struct {
		name  string
		frame func() ([]byte, int)
	}{
		{
			name: "truncated network header",
			frame: func() ([]byte, int) {
				buf, _ := icmpFrame(defaultHopLimit, lladdr1, lladdr0, echoMsg(header.ICMPv6EchoRequest, 1, 1, nil))
				return buf, header.IPv6MinimumSize - 8
			},
		},
		{
			name: "length exceeds buffer",
			frame: func() ([]byte, int) {
				buf, _ := icmpFrame(defaultHopLimit, lladdr1, lladdr0, echoMsg(header.ICMPv6EchoRequest, 1, 1, nil))
				return buf, len(buf) + 1
			},
		},
		{
			name: "payload length exceeds frame",
			frame: func() ([]byte, int) {
				buf, n := icmpFrame(defaultHopLimit, lladdr1, lladdr0, echoMsg(header.ICMPv6EchoRequest, 1, 1, nil))
				header.IPv6(buf).SetPayloadLength(uint16(n))
				return buf, n
			},
		},
		{
			name: "not icmpv6",
			frame: func() ([]byte, int) {
				buf, n := icmpFrame(defaultHopLimit, lladdr1, lladdr0, echoMsg(header.ICMPv6EchoRequest, 1, 1, nil))
				buf[header.IPv6NextHeaderOffset] = 17
				return buf, n
			},
		},
		{
			name: "truncated icmp header",
			frame: func() ([]byte, int) {
				buf, _ := icmpFrame(defaultHopLimit, lladdr1, lladdr0, []byte{byte(header.ICMPv6EchoRequest), 0, 0, 0})
				return buf, header.IPv6MinimumSize + 4
			},
		},
		{
			name: "bad checksum",
			frame: func() ([]byte, int) {
				buf, n := icmpFrame(defaultHopLimit, lladdr1, lladdr0, echoMsg(header.ICMPv6EchoRequest, 1, 1, nil))
				buf[header.IPv6MinimumSize+2] ^= 0xff
				return buf, n
			},
		},
		{
			name: "ndp bad hop limit",
			frame: func() ([]byte, int) {
				return icmpFrame(defaultHopLimit, lladdr1, lladdr0, neighborSolicitMsg(lladdr0, nil))
			},
		},
		{
			name: "ndp bad code",
			frame: func() ([]byte, int) {
				msg := neighborSolicitMsg(lladdr0, nil)
				msg[1] = 1
				return icmpFrame(header.NDPHopLimit, lladdr1, lladdr0, msg)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := newTestContext(t, MediumRaw)

			buf, n := test.frame()
			if got := c.ep.HandleInbound(buf, n); got != 0 {
				t.Fatalf("got HandleInbound(_, %d) = %d, want = 0", n, got)
			}

			stats := &c.ep.Stats().ICMPv6
			checkCounter(t, "PacketsReceived", &stats.PacketsReceived, 1)
			checkCounter(t, "PacketsDropped", &stats.PacketsDropped, 1)
			checkCounter(t, "TypeErrors", &stats.TypeErrors, 0)
			checkCounter(t, "PacketsSent", &stats.PacketsSent, 0)
		})
	}
}

func TestReplyRateLimiting(t *testing.T) {
	cache := &testNeighborCache{}
	ep, err := New(Options{
		NodeAddress:   lladdr0,
		LinkAddress:   linkAddr0,
		NeighborCache: cache,
		RateLimiter:   &ICMPRateLimiter{Limiter: rate.NewLimiter(1, 1)},
	})
	if err != nil {
		t.Fatalf("New(_) = %v", err)
	}

	send := func() int {
		buf, n := icmpFrame(defaultHopLimit, lladdr1, lladdr0, echoMsg(header.ICMPv6EchoRequest, 1, 1, nil))
		return ep.HandleInbound(buf, n)
	}

	if got := send(); got == 0 {
		t.Fatal("got HandleInbound(_, _) = 0 for the first request, want a reply")
	}
	if got := send(); got != 0 {
		t.Fatalf("got HandleInbound(_, _) = %d for the second request, want = 0", got)
	}

	stats := &ep.Stats().ICMPv6
	checkCounter(t, "RateLimited", &stats.RateLimited, 1)
	checkCounter(t, "PacketsDropped", &stats.PacketsDropped, 1)
	checkCounter(t, "EchoRepliesSent", &stats.EchoRepliesSent, 1)
}

func TestNilCollaborators(t *testing.T) {
	ep, err := New(Options{
		NodeAddress: lladdr0,
		LinkAddress: linkAddr0,
	})
	if err != nil {
		t.Fatalf("New(_) = %v", err)
	}

	// A solicitation with a source option is answered even with no cache to
	// record the option in.
	buf, n := icmpFrame(header.NDPHopLimit, lladdr1, lladdr0, neighborSolicitMsg(lladdr0, sourceLinkLayerOption(linkAddr1)))
	if got := ep.HandleInbound(buf, n); got == 0 {
		t.Error("got HandleInbound(_, _) = 0 for a solicitation, want a reply")
	}

	// An echo reply with no waiter registry is dropped, not a crash.
	buf, n = icmpFrame(defaultHopLimit, lladdr1, lladdr0, echoMsg(header.ICMPv6EchoReply, 1, 1, nil))
	if got := ep.HandleInbound(buf, n); got != 0 {
		t.Errorf("got HandleInbound(_, _) = %d for an unclaimed reply, want = 0", got)
	}
	checkCounter(t, "PacketsDropped", &ep.Stats().ICMPv6.PacketsDropped, 1)
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{NodeAddress: ustack.Address("\x01\x02"), LinkAddress: linkAddr0}); err == nil {
		t.Error("got New(_) = nil error for a short node address")
	}
	if _, err := New(Options{NodeAddress: lladdr0, LinkAddress: ustack.LinkAddress("\x01")}); err == nil {
		t.Error("got New(_) = nil error for a short link address")
	}
}
