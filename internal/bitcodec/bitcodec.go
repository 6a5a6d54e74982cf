// Package bitcodec implements the byte-exact, endian-aware reads/writes and
// the ULEB128/SLEB128 varint codec that every other debugedit component
// builds on (spec §4.A). There is exactly one Codec per object file: its
// endianness is fixed once from the ELF data-encoding byte and never
// changes afterward.
package bitcodec

import (
	"encoding/binary"

	"github.com/Manu343726/debugedit/pkg/errs"
)

// Order is the subset of binary.ByteOrder this package needs; satisfied by
// binary.LittleEndian and binary.BigEndian.
type Order = binary.ByteOrder

// Codec bundles an endianness with the fixed/variable-width read and write
// operations every DWARF walker performs. It holds no buffer of its own —
// every method takes the byte slice to operate on, matching the "(section,
// offset) pair instead of raw pointer" redesign in spec §9.
type Codec struct {
	Order Order
}

// New builds a Codec for the given byte order.
func New(order Order) Codec {
	return Codec{Order: order}
}

// Read8 reads a single byte. Present for symmetry with the wider reads.
func (c Codec) Read8(b []byte) uint8 { return b[0] }

// Write8 writes a single byte.
func (c Codec) Write8(b []byte, v uint8) { b[0] = v }

// Read16 reads a 16-bit value in the codec's byte order.
func (c Codec) Read16(b []byte) uint16 { return c.Order.Uint16(b) }

// Write16 writes a 16-bit value in the codec's byte order.
func (c Codec) Write16(b []byte, v uint16) { c.Order.PutUint16(b, v) }

// Read24 reads a 24-bit value (used by some DWARF length fields) in the
// codec's byte order, zero-extended into a uint32.
func (c Codec) Read24(b []byte) uint32 {
	if c.Order == binary.BigEndian {
		return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

// Read32 reads a 32-bit value in the codec's byte order.
func (c Codec) Read32(b []byte) uint32 { return c.Order.Uint32(b) }

// Write32 writes a 32-bit value in the codec's byte order.
func (c Codec) Write32(b []byte, v uint32) { c.Order.PutUint32(b, v) }

// Read64 reads a 64-bit value in the codec's byte order (8-byte addresses,
// DWARF64 forms that still appear in an otherwise-32-bit-DWARF unit, e.g.
// DW_FORM_data8 / DW_FORM_ref_sig8).
func (c Codec) Read64(b []byte) uint64 { return c.Order.Uint64(b) }

// Write64 writes a 64-bit value in the codec's byte order.
func (c Codec) Write64(b []byte, v uint64) { c.Order.PutUint64(b, v) }

// ulebMaxBits is where decode saturates: 5 groups of 7 bits is 35 raw bits,
// enough to represent any 32-bit size unambiguously while still detecting
// overlong encodings that would overflow it.
const ulebMaxBits = 35

// ReadULEB128 decodes an unsigned LEB128 value starting at b[0], returning
// the value and the number of bytes consumed. Decoding caps accumulation at
// 35 bits; a sequence that would need more saturates to the maximum
// representable 32-bit value instead of wrapping, so callers that feed the
// result into a size computation can detect the saturation and treat it as
// an error (spec §4.A).
func ReadULEB128(b []byte) (value uint32, n int, err error) {
	var result uint64
	var shift uint
	for i := 0; i < len(b); i++ {
		byt := b[i]
		if shift < ulebMaxBits {
			result |= uint64(byt&0x7f) << shift
		}
		shift += 7
		n++
		if byt&0x80 == 0 {
			if result > 0xffffffff {
				return 0xffffffff, n, nil
			}
			return uint32(result), n, nil
		}
	}
	return 0, n, errs.Formatf("truncated ULEB128 sequence")
}

// WriteULEB128 appends the ULEB128 encoding of v and returns the number of
// bytes written. Callers that rewrite a macro or line-table operand in
// place depend on WriteULEB128 producing exactly as many bytes as the
// ReadULEB128 call that produced v consumed for the same value — this
// holds because ULEB128 is a canonical (non-redundant, minimal-length)
// encoding: a given value has exactly one shortest representation, and
// WriteULEB128 always emits the shortest one.
func WriteULEB128(dst []byte, v uint32) int {
	n := 0
	val := uint64(v)
	for {
		b := byte(val & 0x7f)
		val >>= 7
		if val != 0 {
			b |= 0x80
		}
		dst[n] = b
		n++
		if val == 0 {
			break
		}
	}
	return n
}

// ULEB128Size returns how many bytes WriteULEB128 would emit for v, without
// writing anything — used by planning passes that need a size before a
// destination buffer exists.
func ULEB128Size(v uint32) int {
	n := 1
	val := uint64(v)
	for val >>= 7; val != 0; val >>= 7 {
		n++
	}
	return n
}

// ReadSLEB128 decodes a signed LEB128 value, returning the value and bytes
// consumed. Used for DW_AT_const_value-style signed attributes and for
// macro/abbrev operands declared as sleb128 (e.g. DW_FORM_implicit_const).
func ReadSLEB128(b []byte) (value int64, n int, err error) {
	var result int64
	var shift uint
	var byt byte
	for {
		if n >= len(b) {
			return 0, n, errs.Formatf("truncated SLEB128 sequence")
		}
		byt = b[n]
		result |= int64(byt&0x7f) << shift
		shift += 7
		n++
		if byt&0x80 == 0 {
			break
		}
	}
	if shift < 64 && byt&0x40 != 0 {
		result |= -(int64(1) << shift)
	}
	return result, n, nil
}
