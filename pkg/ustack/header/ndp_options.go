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
	"errors"

	"github.com/ustacknet/ustack/pkg/ustack"
)

const (
	// NDPSourceLinkLayerAddressOptionType is the type of the Source
	// Link-Layer Address option, as per RFC 4861 section 4.6.1.
	NDPSourceLinkLayerAddressOptionType = 1

	// NDPTargetLinkLayerAddressOptionType is the type of the Target
	// Link-Layer Address option, as per RFC 4861 section 4.6.1.
	NDPTargetLinkLayerAddressOptionType = 2

	// NDPLinkLayerAddressSize is the size of a Source or Target Link Layer
	// Address option for an Ethernet address.
	NDPLinkLayerAddressSize = 8

	// lengthByteUnits is the multiplier factor for the Length field of an
	// NDP option. That is, the length field for NDP options is in units of
	// 8 octets, as per RFC 4861 section 4.6.
	lengthByteUnits = 8
)

var (
	// ErrNDPOptMalformedHeader is returned when the NDP option buffer does
	// not hold a complete type and length header.
	ErrNDPOptMalformedHeader = errors.New("NDP option has a malformed header")

	// ErrNDPOptZeroLength is returned when an NDP option's length field is
	// zero, which RFC 4861 section 4.6 forbids.
	ErrNDPOptZeroLength = errors.New("NDP option has zero-valued length field")

	// ErrNDPOptBufExhausted is returned when an NDP option's length field
	// claims more bytes than the buffer holds.
	ErrNDPOptBufExhausted = errors.New("NDP option's length exceeds the remaining buffer")
)

// NDPOptions is a buffer of NDP options as defined by RFC 4861 section 4.6.
type NDPOptions []byte

// NDPOption is a single option held within an NDPOptions buffer. Body does
// not include the type and length bytes.
type NDPOption struct {
	Kind uint8
	Body []byte
}

// LinkLayerAddress returns the link-layer address carried by a Source or
// Target Link-Layer Address option, and true, if o is such an option with a
// body large enough to hold an Ethernet address. Otherwise it returns false.
func (o NDPOption) LinkLayerAddress() (ustack.LinkAddress, bool) {
	switch o.Kind {
	case NDPSourceLinkLayerAddressOptionType, NDPTargetLinkLayerAddressOptionType:
	default:
		return "", false
	}
	if len(o.Body) < EthernetAddressSize {
		return "", false
	}
	return ustack.LinkAddress(o.Body[:EthernetAddressSize]), true
}

// Iter returns an iterator over the options in b.
//
// If check is true, Iter walks every option up front and returns an error if
// any has a length that is zero or runs past the end of the buffer. Callers
// that iterate without checking first must handle the same errors from Next.
func (b NDPOptions) Iter(check bool) (NDPOptionIterator, error) {
	it := NDPOptionIterator{opts: b}

	if check {
		it2 := it
		for {
			_, done, err := it2.Next()
			if err != nil {
				return NDPOptionIterator{}, err
			}
			if done {
				break
			}
		}
	}

	return it, nil
}

// NDPOptionIterator is an iterator of NDPOptions.
//
// Note, between when an NDPOptionIterator is obtained and last used, no
// mutable operation should be performed on the backing buffer.
type NDPOptionIterator struct {
	opts NDPOptions
}

// Next returns the next option in the backing buffer, in wire order. done is
// true when the buffer has been exhausted. An error is returned when the
// remaining bytes do not form a well-formed option; the option length is
// validated against the remaining buffer before the body is sliced, so Next
// never reads past the end of the buffer.
func (i *NDPOptionIterator) Next() (NDPOption, bool, error) {
	// Do we still have unchecked options?
	if len(i.opts) == 0 {
		return NDPOption{}, true, nil
	}

	// A trailing fragment of a header is malformed: an option is at least
	// its type and length bytes.
	if len(i.opts) < 2 {
		return NDPOption{}, true, ErrNDPOptMalformedHeader
	}

	kind := i.opts[0]

	// The length field is in units of 8 bytes and includes the type and
	// length bytes themselves.
	l := int(i.opts[1]) * lengthByteUnits
	if l == 0 {
		return NDPOption{}, true, ErrNDPOptZeroLength
	}
	if l > len(i.opts) {
		return NDPOption{}, true, ErrNDPOptBufExhausted
	}

	body := i.opts[2:l]
	i.opts = i.opts[l:]

	return NDPOption{Kind: kind, Body: body}, false, nil
}

// ndpOption is the set of functions to be implemented by all NDP option types
// that can be serialized into an options buffer.
type ndpOption interface {
	// Type returns the type of this ndpOption.
	Type() uint8

	// Length returns the length of the body of this ndpOption, in bytes.
	Length() int

	// serializeInto serializes this ndpOption into the provided byte
	// buffer, returning the number of bytes written. The caller MUST
	// provide a buffer of at least Length bytes.
	serializeInto([]byte) int
}

// paddedLength returns the length of o, in bytes, with any padding bytes, if
// required.
func paddedLength(o ndpOption) int {
	l := o.Length()

	if l == 0 {
		return 0
	}

	// Length excludes the 2 Type and Length bytes.
	l += 2

	// Round up to the nearest unit of lengthByteUnits, which is a power
	// of 2.
	mask := lengthByteUnits - 1
	l += mask
	l &^= mask

	if l/lengthByteUnits > 255 {
		// An option's length field caps out at 255 units; a longer
		// option cannot be expressed on the wire, so it is skipped
		// during serialization, as a zero length field is invalid
		// anyway per RFC 4861 section 4.6.
		return 0
	}

	return l
}

// NDPOptionsSerializer is a serializer for NDP options.
type NDPOptionsSerializer []ndpOption

// Length returns the total number of bytes required to serialize.
func (b NDPOptionsSerializer) Length() int {
	l := 0

	for _, o := range b {
		l += paddedLength(o)
	}

	return l
}

// Serialize serializes the provided list of NDP options into b.
//
// Note, b must be of sufficient size to hold all the options in s. See
// NDPOptionsSerializer.Length for details on getting the total size of a
// serialized NDPOptionsSerializer.
func (b NDPOptions) Serialize(s NDPOptionsSerializer) int {
	done := 0

	for _, o := range s {
		l := paddedLength(o)

		if l == 0 {
			continue
		}

		b[0] = o.Type()
		b[1] = uint8(l / lengthByteUnits)

		used := o.serializeInto(b[2:])

		// Zero out remaining (padding) bytes, if any exist.
		for i := used + 2; i < l; i++ {
			b[i] = 0
		}

		b = b[l:]
		done += l
	}

	return done
}

// NDPSourceLinkLayerAddressOption is the NDP Source Link Layer Option
// as defined by RFC 4861 section 4.6.1.
type NDPSourceLinkLayerAddressOption ustack.LinkAddress

// Type implements ndpOption.Type.
func (o NDPSourceLinkLayerAddressOption) Type() uint8 {
	return NDPSourceLinkLayerAddressOptionType
}

// Length implements ndpOption.Length.
func (o NDPSourceLinkLayerAddressOption) Length() int {
	return len(o)
}

// serializeInto implements ndpOption.serializeInto.
func (o NDPSourceLinkLayerAddressOption) serializeInto(b []byte) int {
	return copy(b, o)
}

// NDPTargetLinkLayerAddressOption is the NDP Target Link Layer Option
// as defined by RFC 4861 section 4.6.1.
type NDPTargetLinkLayerAddressOption ustack.LinkAddress

// Type implements ndpOption.Type.
func (o NDPTargetLinkLayerAddressOption) Type() uint8 {
	return NDPTargetLinkLayerAddressOptionType
}

// Length implements ndpOption.Length.
func (o NDPTargetLinkLayerAddressOption) Length() int {
	return len(o)
}

// serializeInto implements ndpOption.serializeInto.
func (o NDPTargetLinkLayerAddressOption) serializeInto(b []byte) int {
	return copy(b, o)
}
