package doc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Archival tags. These identify a Doc's encoding in the transcoded byte
// form used by spill (see go/combiner/spill.go). The format is
// self-describing and length-prefixed so entries can be scanned without
// a schema.
const (
	tagNull byte = iota
	tagFalse
	tagTrue
	tagPosInt
	tagNegInt
	tagFloat
	tagString
	tagBytes
	tagArray
	tagObject
)

// AppendTranscoded appends d's archival encoding to buf and returns the
// extended buffer. The encoding round-trips exactly via ReadTranscoded:
// this is the round-trip law required of spill/read-back (spec.md §8).
func AppendTranscoded(buf []byte, d *Doc) []byte {
	switch d.kind {
	case KindNull:
		return append(buf, tagNull)
	case KindFalse:
		return append(buf, tagFalse)
	case KindTrue:
		return append(buf, tagTrue)
	case KindPosInt:
		buf = append(buf, tagPosInt)
		return appendUvarint(buf, d.posInt)
	case KindNegInt:
		buf = append(buf, tagNegInt)
		return appendUvarint(buf, uint64(d.negInt))
	case KindFloat:
		buf = append(buf, tagFloat)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(d.float))
		return append(buf, tmp[:]...)
	case KindString:
		buf = append(buf, tagString)
		buf = appendUvarint(buf, uint64(len(d.str)))
		return append(buf, d.str...)
	case KindBytes:
		buf = append(buf, tagBytes)
		buf = appendUvarint(buf, uint64(len(d.bytes)))
		return append(buf, d.bytes...)
	case KindArray:
		buf = append(buf, tagArray)
		buf = appendUvarint(buf, uint64(len(d.arr)))
		for _, el := range d.arr {
			buf = AppendTranscoded(buf, el)
		}
		return buf
	case KindObject:
		buf = append(buf, tagObject)
		buf = appendUvarint(buf, uint64(len(d.obj)))
		for _, f := range d.obj {
			buf = appendUvarint(buf, uint64(len(f.Name)))
			buf = append(buf, f.Name...)
			buf = AppendTranscoded(buf, f.Value)
		}
		return buf
	default:
		panic("unreachable")
	}
}

// ReadTranscoded decodes one archival Doc from the front of buf, allocated
// from arena, and returns it along with the number of bytes consumed.
func ReadTranscoded(buf []byte, arena *Arena) (*Doc, int, error) {
	if len(buf) == 0 {
		return nil, 0, fmt.Errorf("transcode: empty buffer")
	}
	var tag = buf[0]
	var rest = buf[1:]
	var consumed = 1

	switch tag {
	case tagNull:
		return NewNull(arena), consumed, nil
	case tagFalse:
		return NewBool(arena, false), consumed, nil
	case tagTrue:
		return NewBool(arena, true), consumed, nil
	case tagPosInt:
		v, n, err := readUvarint(rest)
		if err != nil {
			return nil, 0, err
		}
		return NewPosInt(arena, v), consumed + n, nil
	case tagNegInt:
		v, n, err := readUvarint(rest)
		if err != nil {
			return nil, 0, err
		}
		return NewNegInt(arena, int64(v)), consumed + n, nil
	case tagFloat:
		if len(rest) < 8 {
			return nil, 0, fmt.Errorf("transcode: truncated float")
		}
		var bits = binary.BigEndian.Uint64(rest[:8])
		return NewFloat(arena, math.Float64frombits(bits)), consumed + 8, nil
	case tagString:
		n, hdr, err := readUvarint(rest)
		if err != nil {
			return nil, 0, err
		}
		var end = hdr + int(n)
		if end > len(rest) {
			return nil, 0, fmt.Errorf("transcode: truncated string")
		}
		return NewString(arena, string(rest[hdr:end])), consumed + end, nil
	case tagBytes:
		n, hdr, err := readUvarint(rest)
		if err != nil {
			return nil, 0, err
		}
		var end = hdr + int(n)
		if end > len(rest) {
			return nil, 0, fmt.Errorf("transcode: truncated bytes")
		}
		var b = append([]byte(nil), rest[hdr:end]...)
		return NewBytes(arena, b), consumed + end, nil
	case tagArray:
		count, hdr, err := readUvarint(rest)
		if err != nil {
			return nil, 0, err
		}
		var off = hdr
		var elems = make([]*Doc, 0, count)
		for i := uint64(0); i < count; i++ {
			el, n, err := ReadTranscoded(rest[off:], arena)
			if err != nil {
				return nil, 0, err
			}
			elems = append(elems, el)
			off += n
		}
		return NewArray(arena, elems), consumed + off, nil
	case tagObject:
		count, hdr, err := readUvarint(rest)
		if err != nil {
			return nil, 0, err
		}
		var off = hdr
		var fields = make([]Field, 0, count)
		for i := uint64(0); i < count; i++ {
			nameLen, n, err := readUvarint(rest[off:])
			if err != nil {
				return nil, 0, err
			}
			off += n
			var end = off + int(nameLen)
			if end > len(rest) {
				return nil, 0, fmt.Errorf("transcode: truncated field name")
			}
			var name = string(rest[off:end])
			off = end

			val, n2, err := ReadTranscoded(rest[off:], arena)
			if err != nil {
				return nil, 0, err
			}
			fields = append(fields, Field{Name: name, Value: val})
			off += n2
		}
		// Fields were already sorted by the writer (entries are only ever
		// produced from Docs that satisfy the sorted-object invariant);
		// NewObject still sorts defensively.
		return NewObject(arena, fields), consumed + off, nil
	default:
		return nil, 0, fmt.Errorf("transcode: unknown tag byte 0x%02x", tag)
	}
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	var n = binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func readUvarint(buf []byte) (uint64, int, error) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return 0, 0, fmt.Errorf("transcode: invalid varint")
	}
	return v, n, nil
}
