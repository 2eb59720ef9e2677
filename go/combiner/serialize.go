package combiner

import "github.com/estuary/flow-combine/go/doc"

// applySerialization rebuilds d under policy, applying output-time
// transforms only (never reduction or validation semantics). Most
// bindings run SerializeDefault, the identity transform, so this only
// walks the Doc tree when a binding actually opted into truncation.
func applySerialization(arena *doc.Arena, d *doc.Doc, policy SerializationPolicy) *doc.Doc {
	if policy != SerializeTruncateLongStrings {
		return d
	}
	return truncateLongStrings(arena, d)
}

func truncateLongStrings(arena *doc.Arena, d *doc.Doc) *doc.Doc {
	switch d.Kind() {
	case doc.KindString:
		var runes = []rune(d.Str())
		if len(runes) <= maxTruncatedStringLength {
			return d
		}
		return doc.NewString(arena, string(runes[:maxTruncatedStringLength])+"...")
	case doc.KindArray:
		var src = d.Array()
		var elems = make([]*doc.Doc, len(src))
		for i, el := range src {
			elems[i] = truncateLongStrings(arena, el)
		}
		return doc.NewArray(arena, elems)
	case doc.KindObject:
		var src = d.Fields()
		var fields = make([]doc.Field, len(src))
		for i, f := range src {
			fields[i] = doc.Field{Name: f.Name, Value: truncateLongStrings(arena, f.Value)}
		}
		return doc.NewObject(arena, fields)
	default:
		return d
	}
}
