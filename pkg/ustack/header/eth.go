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
)

const (
	dstMAC  = 0
	srcMAC  = 6
	ethType = 12
)

// EthernetFields contains the fields of an ethernet frame header. It is used
// to describe the fields of a frame that needs to be encoded.
type EthernetFields struct {
	// SrcAddr is the "MAC source" field of an ethernet frame header.
	SrcAddr ustack.LinkAddress

	// DstAddr is the "MAC destination" field of an ethernet frame header.
	DstAddr ustack.LinkAddress

	// Type is the "ethertype" field of an ethernet frame header.
	Type uint16
}

// Ethernet represents an ethernet frame header stored in a byte array.
type Ethernet []byte

const (
	// EthernetMinimumSize is the minimum size of a valid ethernet frame.
	EthernetMinimumSize = 14

	// EthernetAddressSize is the size, in bytes, of an ethernet address.
	EthernetAddressSize = 6

	// IPv6EtherType is the "ethertype" of IPv6 payloads.
	IPv6EtherType = 0x86dd
)

// SourceAddress returns the "MAC source" field of the ethernet frame header.
func (b Ethernet) SourceAddress() ustack.LinkAddress {
	return ustack.LinkAddress(b[srcMAC:][:EthernetAddressSize])
}

// DestinationAddress returns the "MAC destination" field of the ethernet frame
// header.
func (b Ethernet) DestinationAddress() ustack.LinkAddress {
	return ustack.LinkAddress(b[dstMAC:][:EthernetAddressSize])
}

// SetSourceAddress sets the "MAC source" field of the ethernet frame header.
func (b Ethernet) SetSourceAddress(addr ustack.LinkAddress) {
	copy(b[srcMAC:][:EthernetAddressSize], addr)
}

// SetDestinationAddress sets the "MAC destination" field of the ethernet frame
// header.
func (b Ethernet) SetDestinationAddress(addr ustack.LinkAddress) {
	copy(b[dstMAC:][:EthernetAddressSize], addr)
}

// Type returns the "ethertype" field of the ethernet frame header.
func (b Ethernet) Type() uint16 {
	return binary.BigEndian.Uint16(b[ethType:])
}

// Encode encodes all the fields of the ethernet frame header.
func (b Ethernet) Encode(e *EthernetFields) {
	binary.BigEndian.PutUint16(b[ethType:], e.Type)
	copy(b[srcMAC:][:EthernetAddressSize], e.SrcAddr)
	copy(b[dstMAC:][:EthernetAddressSize], e.DstAddr)
}
