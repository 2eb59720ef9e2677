// Package extract implements composite-key and value-tuple projection
// from a doc.Doc, given a binding's configured JSON pointers. It is the
// Go-native equivalent of go/bindings/extract.go's Extractor, minus the
// cgo boundary: projection happens directly against an in-process Doc
// rather than being batched across a subprocess call.
package extract

import (
	"fmt"

	"github.com/estuary/flow-combine/go/doc"
	"github.com/estuary/flow-combine/go/pointer"
	"github.com/estuary/flow-combine/go/tuple"
)

// Extractor projects a Doc into a packed composite key and a packed
// tuple of additional value fields, using a fixed, ordered list of JSON
// pointers for each.
type Extractor struct {
	keyPointers   []pointer.Pointer
	fieldPointers []pointer.Pointer
}

// New parses keyPointers and fieldPointers (JSON Pointer strings) and
// returns an Extractor that projects Docs against them. An error here is
// a configuration error, surfaced at Combiner Open time.
func New(keyPointers, fieldPointers []string) (*Extractor, error) {
	var e Extractor
	var err error

	if e.keyPointers, err = parseAll(keyPointers); err != nil {
		return nil, fmt.Errorf("parsing key pointers: %w", err)
	}
	if e.fieldPointers, err = parseAll(fieldPointers); err != nil {
		return nil, fmt.Errorf("parsing field pointers: %w", err)
	}
	return &e, nil
}

func parseAll(ptrs []string) ([]pointer.Pointer, error) {
	var out = make([]pointer.Pointer, len(ptrs))
	for i, s := range ptrs {
		var p, err = pointer.New(s)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// Key resolves the configured key pointers against d and packs them into
// an order-preserving byte string suitable for MemTable indexing and
// sorted drain output. Pointers that don't resolve pack as Null.
func (e *Extractor) Key(d *doc.Doc) []byte {
	return pack(e.keyPointers, d)
}

// Values resolves the configured field pointers against d and packs them
// the same way Key does, for the Drain response's values_packed field.
func (e *Extractor) Values(d *doc.Doc) []byte {
	return pack(e.fieldPointers, d)
}

func pack(ptrs []pointer.Pointer, d *doc.Doc) []byte {
	var buf []byte
	for _, p := range ptrs {
		buf = tuple.Pack(buf, p.Resolve(d))
	}
	return buf
}
