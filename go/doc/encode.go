package doc

import (
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/buger/jsonparser"
)

// AppendJSON serializes d as JSON, appending to buf, and returns the
// extended buffer. Object fields are written in their stored (sorted)
// order, which is also valid JSON output order.
func AppendJSON(buf []byte, d *Doc) []byte {
	switch d.kind {
	case KindNull:
		return append(buf, "null"...)
	case KindFalse:
		return append(buf, "false"...)
	case KindTrue:
		return append(buf, "true"...)
	case KindPosInt:
		return strconv.AppendUint(buf, d.posInt, 10)
	case KindNegInt:
		return strconv.AppendInt(buf, d.negInt, 10)
	case KindFloat:
		return strconv.AppendFloat(buf, d.float, 'g', -1, 64)
	case KindString:
		return appendJSONString(buf, d.str)
	case KindBytes:
		// Represented as a base64 JSON string, matching encoding/json's
		// convention for []byte so that bytes round-trip through any
		// downstream JSON consumer.
		var quoted, _ = jsonMarshalBytesQuoted(d.bytes)
		return append(buf, quoted...)
	case KindArray:
		buf = append(buf, '[')
		for i, el := range d.arr {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = AppendJSON(buf, el)
		}
		return append(buf, ']')
	case KindObject:
		buf = append(buf, '{')
		for i, f := range d.obj {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendJSONString(buf, f.Name)
			buf = append(buf, ':')
			buf = AppendJSON(buf, f.Value)
		}
		return append(buf, '}')
	default:
		panic("unreachable")
	}
}

// ToJSON is a convenience wrapper around AppendJSON for a fresh buffer.
func ToJSON(d *Doc) []byte { return AppendJSON(nil, d) }

func appendJSONString(buf []byte, s string) []byte {
	// jsonparser doesn't expose an escaping encoder; delegate to
	// encoding/json's string encoding, which is what every other
	// component in this module uses for JSON I/O (buger/jsonparser is
	// used elsewhere in this package only for fast field lookup).
	var quoted, _ = json.Marshal(s)
	return append(buf, quoted...)
}

func jsonMarshalBytesQuoted(b []byte) ([]byte, error) {
	return strconv.AppendQuote(nil, base64.StdEncoding.EncodeToString(b)), nil
}

// Get resolves a property path within raw JSON bytes without allocating
// a Doc. go/combiner/uuid.go performs its UUID lookup with
// jsonparser.Get directly rather than through this helper.
func Get(raw []byte, keys ...string) ([]byte, jsonparser.ValueType, error) {
	v, t, _, err := jsonparser.Get(raw, keys...)
	return v, t, err
}
