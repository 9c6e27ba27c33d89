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

// Package checker provides helper functions to check networking packets for
// validity in tests.
package checker

import (
	"bytes"
	"testing"

	"github.com/ustacknet/ustack/pkg/ustack"
	"github.com/ustacknet/ustack/pkg/ustack/header"
)

// NetworkChecker is a function to check a property of an IPv6 packet.
type NetworkChecker func(*testing.T, header.IPv6)

// TransportChecker is a function to check a property of an ICMPv6 message.
type TransportChecker func(*testing.T, header.ICMPv6)

// IPv6 checks the validity and properties of the given IPv6 packet. It is
// expected to be used in conjunction with other checkers for specific
// properties. For example, to check the source and destination address, one
// would call:
//
//	checker.IPv6(t, b, checker.SrcAddr(x), checker.DstAddr(y))
func IPv6(t *testing.T, b []byte, checkers ...NetworkChecker) {
	t.Helper()

	ipv6 := header.IPv6(b)
	if !ipv6.IsValid(len(b)) {
		t.Error("not a valid IPv6 packet")
	}

	for _, f := range checkers {
		f(t, ipv6)
	}
	if t.Failed() {
		t.FailNow()
	}
}

// SrcAddr creates a checker that checks the source address.
func SrcAddr(addr ustack.Address) NetworkChecker {
	return func(t *testing.T, ip header.IPv6) {
		t.Helper()
		if a := ip.SourceAddress(); a != addr {
			t.Errorf("got SourceAddress = %s, want = %s", a, addr)
		}
	}
}

// DstAddr creates a checker that checks the destination address.
func DstAddr(addr ustack.Address) NetworkChecker {
	return func(t *testing.T, ip header.IPv6) {
		t.Helper()
		if a := ip.DestinationAddress(); a != addr {
			t.Errorf("got DestinationAddress = %s, want = %s", a, addr)
		}
	}
}

// HopLimit creates a checker that checks the hop limit.
func HopLimit(hopLimit uint8) NetworkChecker {
	return func(t *testing.T, ip header.IPv6) {
		t.Helper()
		if h := ip.HopLimit(); h != hopLimit {
			t.Errorf("got HopLimit = %d, want = %d", h, hopLimit)
		}
	}
}

// PayloadLen creates a checker that checks the payload length.
func PayloadLen(l uint16) NetworkChecker {
	return func(t *testing.T, ip header.IPv6) {
		t.Helper()
		if pl := ip.PayloadLength(); pl != l {
			t.Errorf("got PayloadLength = %d, want = %d", pl, l)
		}
	}
}

// ICMPv6 creates a checker that validates the ICMPv6 message carried by the
// packet, including its checksum over the pseudo-header, and runs the given
// transport checkers against it.
func ICMPv6(checkers ...TransportChecker) NetworkChecker {
	return func(t *testing.T, ip header.IPv6) {
		t.Helper()

		if p := ip.NextHeader(); p != header.ICMPv6ProtocolNumber {
			t.Fatalf("got NextHeader = %d, want = %d", p, header.ICMPv6ProtocolNumber)
		}

		icmp := header.ICMPv6(ip.Payload())
		if len(icmp) < header.ICMPv6MinimumSize {
			t.Fatalf("got ICMPv6 message of length %d, want >= %d", len(icmp), header.ICMPv6MinimumSize)
		}
		if got, want := icmp.Checksum(), header.ICMPv6Checksum(icmp, ip.SourceAddress(), ip.DestinationAddress()); got != want {
			t.Errorf("got Checksum = %#x, want = %#x", got, want)
		}

		for _, f := range checkers {
			f(t, icmp)
		}
	}
}

// ICMPv6Type creates a checker that checks the ICMPv6 Type field.
func ICMPv6Type(typ header.ICMPv6Type) TransportChecker {
	return func(t *testing.T, icmp header.ICMPv6) {
		t.Helper()
		if got := icmp.Type(); got != typ {
			t.Errorf("got Type = %d, want = %d", got, typ)
		}
	}
}

// ICMPv6Code creates a checker that checks the ICMPv6 Code field.
func ICMPv6Code(code byte) TransportChecker {
	return func(t *testing.T, icmp header.ICMPv6) {
		t.Helper()
		if got := icmp.Code(); got != code {
			t.Errorf("got Code = %d, want = %d", got, code)
		}
	}
}

// ICMPv6Echo creates a checker that checks the ident, sequence and payload
// of an ICMPv6 echo message.
func ICMPv6Echo(ident, seq uint16, payload []byte) TransportChecker {
	return func(t *testing.T, icmp header.ICMPv6) {
		t.Helper()
		if got := icmp.Ident(); got != ident {
			t.Errorf("got Ident = %d, want = %d", got, ident)
		}
		if got := icmp.Sequence(); got != seq {
			t.Errorf("got Sequence = %d, want = %d", got, seq)
		}
		if got := icmp.EchoPayload(); !bytes.Equal(got, payload) {
			t.Errorf("got EchoPayload = %x, want = %x", got, payload)
		}
	}
}

// NDPNASolicitedFlag creates a checker that checks the Solicited flag of a
// neighbor advertisement.
func NDPNASolicitedFlag(want bool) TransportChecker {
	return func(t *testing.T, icmp header.ICMPv6) {
		t.Helper()
		na := header.NDPNeighborAdvert(icmp.NDPPayload())
		if got := na.SolicitedFlag(); got != want {
			t.Errorf("got SolicitedFlag = %t, want = %t", got, want)
		}
	}
}

// NDPNAFlagsAndReserved creates a checker that checks the full flags and
// reserved region of a neighbor advertisement against raw bytes.
func NDPNAFlagsAndReserved(want [4]byte) TransportChecker {
	return func(t *testing.T, icmp header.ICMPv6) {
		t.Helper()
		got := icmp.NDPPayload()[:4]
		if !bytes.Equal(got, want[:]) {
			t.Errorf("got NA flags+reserved = %x, want = %x", got, want)
		}
	}
}

// NDPNATargetAddress creates a checker that checks the target address of a
// neighbor advertisement.
func NDPNATargetAddress(addr ustack.Address) TransportChecker {
	return func(t *testing.T, icmp header.ICMPv6) {
		t.Helper()
		na := header.NDPNeighborAdvert(icmp.NDPPayload())
		if got := na.TargetAddress(); got != addr {
			t.Errorf("got TargetAddress = %s, want = %s", got, addr)
		}
	}
}

// NDPNATargetLinkLayerAddressOption creates a checker that checks that the
// advertisement carries exactly one option: a Target Link-Layer Address
// option with the given address.
func NDPNATargetLinkLayerAddressOption(linkAddr ustack.LinkAddress) TransportChecker {
	return func(t *testing.T, icmp header.ICMPv6) {
		t.Helper()

		na := header.NDPNeighborAdvert(icmp.NDPPayload())
		it, err := na.Options().Iter(true)
		if err != nil {
			t.Fatalf("got Options().Iter(true) = %v, want = nil", err)
		}

		opt, done, err := it.Next()
		if err != nil || done {
			t.Fatalf("got Next() = (%v, %t, _), want an option", err, done)
		}
		if opt.Kind != header.NDPTargetLinkLayerAddressOptionType {
			t.Errorf("got option type = %d, want = %d", opt.Kind, header.NDPTargetLinkLayerAddressOptionType)
		}
		if got, ok := opt.LinkLayerAddress(); !ok || got != linkAddr {
			t.Errorf("got option link address = %s, want = %s", got, linkAddr)
		}

		if _, done, _ := it.Next(); !done {
			t.Error("advertisement carries more than one option")
		}
	}
}
