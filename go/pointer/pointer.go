// Package pointer implements JSON Pointer (RFC 6901) parsing and
// resolution against doc.Doc trees, used by the Extractor to project
// composite keys and field values, and by the Combiner to locate a
// binding's UUID placeholder.
package pointer

import (
	"fmt"
	"strconv"

	"github.com/estuary/flow-combine/go/doc"
	"github.com/go-openapi/jsonpointer"
)

// Pointer is a parsed JSON Pointer.
type Pointer struct {
	jsonpointer.Pointer
	Tokens []string
}

// New parses a Pointer from a JSON Pointer string such as "/a/b/0".
func New(s string) (Pointer, error) {
	var ptr, err = jsonpointer.New(s)
	if err != nil {
		return Pointer{}, fmt.Errorf("parsing pointer %q: %w", s, err)
	}
	return Pointer{
		Pointer: ptr,
		Tokens:  ptr.DecodedTokens(),
	}, nil
}

// MustNew parses s and panics on error. Intended for pointers validated
// once at Combiner Open time, where a later panic would indicate the
// caller skipped that validation.
func MustNew(s string) Pointer {
	var p, err = New(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Resolve walks d following the Pointer's tokens and returns the Doc at
// that location, or nil if any token fails to resolve: a missing object
// property, an out-of-range array index, or an attempt to descend into a
// scalar. A nil result is the caller's cue to substitute Null -- the
// Extractor's contract for pointers that don't resolve.
func (p Pointer) Resolve(d *doc.Doc) *doc.Doc {
	var cur = d
	for _, token := range p.Tokens {
		if cur == nil {
			return nil
		}
		switch cur.Kind() {
		case doc.KindObject:
			cur = cur.Get(token)
		case doc.KindArray:
			var idx, err = strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(cur.Array()) {
				return nil
			}
			cur = cur.Array()[idx]
		default:
			return nil
		}
	}
	return cur
}

// ResolveAll resolves each of ptrs against d, in order. This is the
// primitive behind key-based reduction strategies (minimize, maximize,
// merge, set), which all compare or co-sort Docs by a configured
// sub-key rather than by their full value.
func ResolveAll(ptrs []Pointer, d *doc.Doc) []*doc.Doc {
	var out = make([]*doc.Doc, len(ptrs))
	for i, p := range ptrs {
		out[i] = p.Resolve(d)
	}
	return out
}
