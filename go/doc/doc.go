// Package doc implements Flow's in-memory document representation: a
// tagged union over JSON's value types, allocated from an Arena so that
// an entire document tree can be built, reduced, and discarded as a unit
// without per-node bookkeeping.
package doc

import (
	"fmt"
	"sort"
)

// Kind enumerates the variants a Doc may take. Order matters: it defines
// the type-precedence half of Compare's total order (Null < False < True
// < Numeric < String < Bytes < Array < Object).
type Kind uint8

const (
	KindNull Kind = iota
	KindFalse
	KindTrue
	KindPosInt
	KindNegInt
	KindFloat
	KindString
	KindBytes
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindFalse, KindTrue:
		return "bool"
	case KindPosInt, KindNegInt:
		return "integer"
	case KindFloat:
		return "number"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Field is a single (name, value) pair of an Object. Object field lists are
// always maintained in ascending Name order; this is an invariant every
// constructor and mutator in this package upholds, not an optimization
// applied at comparison time.
type Field struct {
	Name  string
	Value *Doc
}

// Doc is an arena-owned document node. Interior collections (Array
// elements, Object fields) are themselves slices of *Doc drawn from the
// same Arena, so a Doc tree's lifetime is exactly its Arena's lifetime.
// Cloning a Doc is just copying the pointer: there is no deep-copy method
// on this type, by design.
type Doc struct {
	kind   Kind
	posInt uint64
	negInt int64
	float  float64
	str    string
	bytes  []byte
	arr    []*Doc
	obj    []Field
}

func (d *Doc) Kind() Kind { return d.kind }

func (d *Doc) IsNull() bool { return d.kind == KindNull }

func (d *Doc) Bool() bool { return d.kind == KindTrue }

// Number reports the Doc's numeric value as a float64, regardless of
// whether it's stored as PosInt, NegInt, or Float. It panics if the Doc is
// not numeric; callers should check Kind first.
func (d *Doc) Number() float64 {
	switch d.kind {
	case KindPosInt:
		return float64(d.posInt)
	case KindNegInt:
		return float64(d.negInt)
	case KindFloat:
		return d.float
	default:
		panic(fmt.Sprintf("Number() called on non-numeric Doc (kind %s)", d.kind))
	}
}

func (d *Doc) PosInt() uint64 { return d.posInt }
func (d *Doc) NegInt() int64  { return d.negInt }
func (d *Doc) Float() float64  { return d.float }
func (d *Doc) Str() string    { return d.str }
func (d *Doc) Bytes() []byte  { return d.bytes }
func (d *Doc) Array() []*Doc  { return d.arr }
func (d *Doc) Fields() []Field { return d.obj }

// IsNumeric reports whether the Doc is one of PosInt, NegInt, or Float.
func (d *Doc) IsNumeric() bool {
	switch d.kind {
	case KindPosInt, KindNegInt, KindFloat:
		return true
	default:
		return false
	}
}

// Get returns the value of the named property, or nil if absent. Fields
// are sorted, so this is a binary search.
func (d *Doc) Get(name string) *Doc {
	if d.kind != KindObject {
		return nil
	}
	var fields = d.obj
	var i = sort.Search(len(fields), func(i int) bool { return fields[i].Name >= name })
	if i < len(fields) && fields[i].Name == name {
		return fields[i].Value
	}
	return nil
}

// Arena is a bump-style allocation context for a tree of Docs. It does not
// attempt to reclaim individual nodes; the whole arena is dropped at once
// (by simply releasing every reference into it) once its Docs have been
// serialized out or the arena itself has gone out of scope. Arena also
// tracks an approximate byte occupancy, which the Combiner uses to decide
// when to spill.
type Arena struct {
	occupied int
}

// NewArena returns a fresh, empty Arena.
func NewArena() *Arena { return &Arena{} }

// Occupied returns the Arena's approximate occupancy in bytes, accumulated
// across every Doc node allocated from it. It is an estimate, not an exact
// accounting, but it's monotonic and representative of relative document
// sizes -- sufficient for a spill threshold.
func (a *Arena) Occupied() int { return a.occupied }

// Reset zeroes the Arena's occupancy tracking. Any Docs previously
// allocated from it must not be used afterward: this mirrors the real
// invariant that resetting a bump arena invalidates its prior allocations,
// even though Go's garbage collector will happily keep them alive if a
// caller holds a dangling reference.
func (a *Arena) Reset() { a.occupied = 0 }

func (a *Arena) alloc(approxBytes int) *Doc {
	a.occupied += approxBytes
	return &Doc{}
}

const baseNodeSize = 24

func NewNull(a *Arena) *Doc {
	var d = a.alloc(baseNodeSize)
	d.kind = KindNull
	return d
}

func NewBool(a *Arena, v bool) *Doc {
	var d = a.alloc(baseNodeSize)
	if v {
		d.kind = KindTrue
	} else {
		d.kind = KindFalse
	}
	return d
}

func NewPosInt(a *Arena, v uint64) *Doc {
	var d = a.alloc(baseNodeSize)
	d.kind = KindPosInt
	d.posInt = v
	return d
}

func NewNegInt(a *Arena, v int64) *Doc {
	var d = a.alloc(baseNodeSize)
	d.kind = KindNegInt
	d.negInt = v
	return d
}

func NewFloat(a *Arena, v float64) *Doc {
	var d = a.alloc(baseNodeSize)
	d.kind = KindFloat
	d.float = v
	return d
}

func NewString(a *Arena, v string) *Doc {
	var d = a.alloc(baseNodeSize + len(v))
	d.kind = KindString
	d.str = v
	return d
}

func NewBytes(a *Arena, v []byte) *Doc {
	var d = a.alloc(baseNodeSize + len(v))
	d.kind = KindBytes
	d.bytes = v
	return d
}

// NewArray wraps an already-built slice of element Docs. The caller owns
// the slice's construction order; arrays are not sorted.
func NewArray(a *Arena, elems []*Doc) *Doc {
	var d = a.alloc(baseNodeSize + len(elems)*8)
	d.kind = KindArray
	d.arr = elems
	return d
}

// NewObject builds an Object from fields, sorting them by Name and
// resolving duplicate property names by last-occurrence-wins -- matching
// the documented, explicit behavior for JSON's underspecified handling of
// duplicate keys (see original_source crates/doc/src/heap_de.rs).
func NewObject(a *Arena, fields []Field) *Doc {
	var d = a.alloc(baseNodeSize + len(fields)*16)
	d.kind = KindObject
	d.obj = sortAndDedupFields(fields)
	return d
}

// sortAndDedupFields sorts fields by Name (stable, so later duplicates end
// up after earlier ones at equal keys) and then collapses runs of equal
// names by keeping the last.
func sortAndDedupFields(fields []Field) []Field {
	if len(fields) < 2 {
		return fields
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	var out = fields[:1]
	for _, f := range fields[1:] {
		if out[len(out)-1].Name == f.Name {
			out[len(out)-1] = f
		} else {
			out = append(out, f)
		}
	}
	return out
}
