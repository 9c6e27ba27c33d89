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

package header

import (
	"encoding/binary"

	"github.com/ustacknet/ustack/pkg/ustack"
	"github.com/ustacknet/ustack/pkg/ustack/checksum"
)

// ICMPv6 represents an ICMPv6 header stored in a byte array.
type ICMPv6 []byte

const (
	// ICMPv6HeaderSize is the size of the ICMPv6 header. That is, the
	// sum of the size and offset of each field, plus the reserved bytes
	// shared by all message types.
	ICMPv6HeaderSize = 4

	// ICMPv6MinimumSize is the minimum size of a valid ICMP packet.
	ICMPv6MinimumSize = 8

	// ICMPv6ProtocolNumber is the ICMP transport protocol number.
	ICMPv6ProtocolNumber uint8 = 58

	// ICMPv6NeighborSolicitMinimumSize is the minimum size of a
	// neighbor solicitation packet.
	ICMPv6NeighborSolicitMinimumSize = ICMPv6HeaderSize + NDPNSMinimumSize

	// ICMPv6NeighborAdvertMinimumSize is the minimum size of a
	// neighbor advertisement packet.
	ICMPv6NeighborAdvertMinimumSize = ICMPv6HeaderSize + NDPNAMinimumSize

	// ICMPv6NeighborAdvertSize is the size of a neighbor advertisement
	// including the NDP Target Link Layer Address option for an Ethernet
	// address.
	ICMPv6NeighborAdvertSize = ICMPv6HeaderSize + NDPNAMinimumSize + NDPLinkLayerAddressSize

	// ICMPv6EchoMinimumSize is the minimum size of a valid echo packet.
	ICMPv6EchoMinimumSize = 8

	// icmpv6ChecksumOffset is the offset of the checksum field
	// in an ICMPv6 message.
	icmpv6ChecksumOffset = 2

	// icmpv6IdentOffset is the offset of the ident field
	// in an ICMPv6 Echo Request/Reply message.
	icmpv6IdentOffset = 4

	// icmpv6SequenceOffset is the offset of the sequence field
	// in an ICMPv6 Echo Request/Reply message.
	icmpv6SequenceOffset = 6
)

// ICMPv6Type is the ICMP type field described in RFC 4443 and friends.
type ICMPv6Type byte

// Typical values of ICMPv6Type defined in RFC 4443.
const (
	ICMPv6DstUnreachable ICMPv6Type = 1
	ICMPv6PacketTooBig   ICMPv6Type = 2
	ICMPv6TimeExceeded   ICMPv6Type = 3
	ICMPv6ParamProblem   ICMPv6Type = 4
	ICMPv6EchoRequest    ICMPv6Type = 128
	ICMPv6EchoReply      ICMPv6Type = 129

	// Neighbor Discovery Protocol (NDP) messages, see RFC 4861.

	ICMPv6RouterSolicit   ICMPv6Type = 133
	ICMPv6RouterAdvert    ICMPv6Type = 134
	ICMPv6NeighborSolicit ICMPv6Type = 135
	ICMPv6NeighborAdvert  ICMPv6Type = 136
	ICMPv6RedirectMsg     ICMPv6Type = 137
)

// IsNDPType tells whether t is a Neighbor Discovery Protocol message type, to
// which the RFC 4861 hop limit and code validation rules apply.
func (t ICMPv6Type) IsNDPType() bool {
	switch t {
	case ICMPv6RouterSolicit, ICMPv6RouterAdvert, ICMPv6NeighborSolicit, ICMPv6NeighborAdvert, ICMPv6RedirectMsg:
		return true
	default:
		return false
	}
}

// NDPHopLimit is the expected IP hop limit value of 255 for received NDP
// packets, as per RFC 4861 sections 4.1 - 4.5, 6.1.1, 6.1.2, 7.1.1, 7.1.2 and
// 8.1. If the hop limit value is not 255, nodes MUST silently drop the NDP
// packet. All outgoing NDP packets must use this value for the hop limit.
const NDPHopLimit = 255

// Type is the ICMP type field.
func (b ICMPv6) Type() ICMPv6Type { return ICMPv6Type(b[0]) }

// SetType sets the ICMP type field.
func (b ICMPv6) SetType(t ICMPv6Type) { b[0] = byte(t) }

// Code is the ICMP code field. Its meaning depends on the value of Type.
func (b ICMPv6) Code() byte { return b[1] }

// SetCode sets the ICMP code field.
func (b ICMPv6) SetCode(c byte) { b[1] = c }

// Checksum is the ICMP checksum field.
func (b ICMPv6) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[icmpv6ChecksumOffset:])
}

// SetChecksum sets the ICMP checksum field.
func (b ICMPv6) SetChecksum(xsum uint16) {
	checksum.Put(b[icmpv6ChecksumOffset:], xsum)
}

// Ident retrieves the Ident field from an ICMPv6 echo message.
func (b ICMPv6) Ident() uint16 {
	return binary.BigEndian.Uint16(b[icmpv6IdentOffset:])
}

// SetIdent sets the Ident field from an ICMPv6 echo message.
func (b ICMPv6) SetIdent(ident uint16) {
	binary.BigEndian.PutUint16(b[icmpv6IdentOffset:], ident)
}

// Sequence retrieves the Sequence field from an ICMPv6 echo message.
func (b ICMPv6) Sequence() uint16 {
	return binary.BigEndian.Uint16(b[icmpv6SequenceOffset:])
}

// SetSequence sets the Sequence field from an ICMPv6 echo message.
func (b ICMPv6) SetSequence(sequence uint16) {
	binary.BigEndian.PutUint16(b[icmpv6SequenceOffset:], sequence)
}

// NDPPayload returns the NDP payload buffer. That is, it returns the ICMPv6
// packet buffer after the ICMPv6 header.
func (b ICMPv6) NDPPayload() []byte {
	return b[ICMPv6HeaderSize:]
}

// EchoPayload returns the bytes carried by an ICMPv6 echo message after the
// ident and sequence fields.
func (b ICMPv6) EchoPayload() []byte {
	return b[ICMPv6EchoMinimumSize:]
}

// ICMPv6Checksum calculates the ICMP checksum over the provided ICMPv6
// message and the IPv6 pseudo-header, as defined in RFC 4443 section 2.3. The
// stored checksum field is skipped during the calculation, so the result is
// valid to compare against the stored value of a received message, and to
// store into an outgoing one.
func ICMPv6Checksum(msg ICMPv6, src, dst ustack.Address) uint16 {
	xsum := PseudoHeaderChecksum(ICMPv6ProtocolNumber, src, dst, uint32(len(msg)))

	// Skip the stored checksum field so the calculation is position
	// independent of its current contents.
	xsum = checksum.Checksum(msg[:icmpv6ChecksumOffset], xsum)
	xsum = checksum.Checksum(msg[icmpv6ChecksumOffset+checksum.Size:], xsum)

	return ^xsum
}

// PseudoHeaderChecksum calculates the pseudo-header checksum for the given
// destination protocol, network addresses and upper-layer payload length, as
// defined in RFC 2460 section 8.1.
func PseudoHeaderChecksum(protocol uint8, srcAddr, dstAddr ustack.Address, upperLen uint32) uint16 {
	xsum := checksum.Checksum([]byte(srcAddr), 0)
	xsum = checksum.Checksum([]byte(dstAddr), xsum)

	var l [4]byte
	binary.BigEndian.PutUint32(l[:], upperLen)
	xsum = checksum.Checksum(l[:], xsum)

	return checksum.Checksum([]byte{0, 0, 0, protocol}, xsum)
}
