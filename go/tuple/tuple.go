// Package tuple implements order-preserving byte packing of doc.Doc
// values, used to build composite keys for the MemTable's sorted index
// and for spill runs. The scheme below is modeled on FoundationDB's
// tuple layer (typed, order-preserving, prefix-free per element), which
// this module's teacher historically vendored a trimmed copy of at
// go/protocols/fdb/tuple rather than depending on the upstream module
// directly; that vendored source isn't available to us, so this package
// is a fresh implementation against doc.Doc rather than a port.
//
// Packed bytes are an opaque sort/equality key: Combine never unpacks
// them back into Docs, so the format only has to be total-order
// correct and prefix-free, not reversible.
package tuple

import (
	"encoding/binary"
	"math"

	"github.com/estuary/flow-combine/go/doc"
)

// Tags mirror doc's type order (see doc.typeRank / doc.Compare) so that
// byte-lexicographic comparison of packed keys agrees with Compare.
const (
	tagNull byte = iota
	tagFalse
	tagTrue
	tagNumeric
	tagString
	tagBytes
	tagArray
	tagObject
)

// Pack appends d's order-preserving encoding to buf.
//
// Numeric values are packed through a single unified float64 encoding
// regardless of whether the source Doc is PosInt, NegInt, or Float --
// matching doc.Compare, which itself only compares integers exactly
// when both operands are integral and otherwise falls back to float64
// precision (see doc/compare.go's compareNumeric). Integers outside
// float64's exact range (beyond +/-2^53) lose precision in the packed
// key exactly as they would in a mixed int/float Compare; composite
// keys built from collection schemas practically never carry integers
// that large, so this is an accepted simplification rather than a
// faithful re-implementation of FDB's interleaved integer/float type
// codes.
func Pack(buf []byte, d *doc.Doc) []byte {
	if d == nil {
		// An unresolved pointer (see go/pointer.Pointer.Resolve) packs as
		// Null, per the Extractor's contract.
		return append(buf, tagNull)
	}
	switch d.Kind() {
	case doc.KindNull:
		return append(buf, tagNull)
	case doc.KindFalse:
		return append(buf, tagFalse)
	case doc.KindTrue:
		return append(buf, tagTrue)
	case doc.KindPosInt, doc.KindNegInt, doc.KindFloat:
		buf = append(buf, tagNumeric)
		return appendOrderedFloat(buf, d.Number())
	case doc.KindString:
		buf = append(buf, tagString)
		return appendEscapedBytes(buf, []byte(d.Str()))
	case doc.KindBytes:
		buf = append(buf, tagBytes)
		return appendEscapedBytes(buf, d.Bytes())
	case doc.KindArray:
		buf = append(buf, tagArray)
		for _, el := range d.Array() {
			buf = Pack(buf, el)
		}
		return buf
	case doc.KindObject:
		buf = append(buf, tagObject)
		for _, f := range d.Fields() {
			buf = appendEscapedBytes(buf, []byte(f.Name))
			buf = Pack(buf, f.Value)
		}
		return buf
	default:
		panic("unreachable")
	}
}

// Key packs an ordered list of Docs (a composite key's field projections)
// into a single order-preserving byte string. Each element's encoding is
// self-delimiting, so elements may be concatenated directly without a
// separator: this is the same property FDB's tuple layer relies on for
// nested tuples.
func Key(elems []*doc.Doc) []byte {
	var buf []byte
	for _, el := range elems {
		buf = Pack(buf, el)
	}
	return buf
}

// appendOrderedFloat appends an 8-byte encoding of f such that
// byte-lexicographic order matches float64 order, including NaN sorting
// greater than every other value (and equal to itself), matching
// doc.Compare's numeric total order. +0 and -0 are normalized to a
// single encoding since Compare treats them as Equal.
func appendOrderedFloat(buf []byte, f float64) []byte {
	if f != f { // NaN
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.MaxUint64)
		return append(buf, tmp[:]...)
	}
	if f == 0 {
		f = 0 // collapse -0 to +0
	}

	var bits = math.Float64bits(f)
	if bits&signBit != 0 {
		bits = ^bits
	} else {
		bits |= signBit
	}

	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], bits)
	return append(buf, tmp[:]...)
}

const signBit = uint64(1) << 63

// appendEscapedBytes appends an order-preserving, prefix-free encoding
// of b: each embedded 0x00 byte is escaped as 0x00 0xFF, and the whole
// run is terminated with 0x00 0x00. This is FDB's scheme for packing
// variable-length byte strings into a tuple; it preserves
// bytes.Compare's order over the original content and guarantees no
// encoded string is a byte-prefix of another's encoding.
func appendEscapedBytes(buf []byte, b []byte) []byte {
	for _, c := range b {
		if c == 0x00 {
			buf = append(buf, 0x00, 0xFF)
		} else {
			buf = append(buf, c)
		}
	}
	return append(buf, 0x00, 0x00)
}
