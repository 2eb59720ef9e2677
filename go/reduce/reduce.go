// Package reduce implements the combine reduction strategies: given two
// Docs and the annotation Index produced by validating the incoming
// document, combine them at every location according to the `reduce`
// strategy that applies there (defaulting to lastWriteWins).
package reduce

import (
	"math/big"

	"github.com/estuary/flow-combine/go/doc"
	"github.com/estuary/flow-combine/go/pointer"
	"github.com/estuary/flow-combine/go/schema"
	"github.com/estuary/flow-combine/go/tuple"
)

// Reduce combines lhs and rhs at loc, dispatching on the strategy
// annotated at that location in ix (lastWriteWins if none is set). lhs
// may be nil, meaning rhs is the first document ever seen for this key:
// in that case rhs is returned unchanged, seeding the entry.
func Reduce(arena *doc.Arena, lhs, rhs *doc.Doc, ix Index, loc string) (*doc.Doc, error) {
	return reduceAt(arena, lhs, rhs, ix, loc, false)
}

// reduceAt is Reduce plus viaMerge, which is true only for a location
// reached through a merging ancestor's recursive descent (mergeObjects'
// per-field calls). A location with no explicit annotation defaults to
// lastWriteWins at the top level, but under a merging ancestor it
// instead keeps structurally merging for as long as both sides are
// still objects, so properties the incoming side doesn't mention aren't
// dropped.
func reduceAt(arena *doc.Arena, lhs, rhs *doc.Doc, ix Index, loc string, viaMerge bool) (*doc.Doc, error) {
	if lhs == nil {
		return rhs, nil
	}

	var ann = ix.Lookup(loc)
	var kind = schema.LastWriteWins
	var key []string
	if ann.Reduce != nil && ann.Reduce.Kind != "" {
		kind = ann.Reduce.Kind
		key = ann.Reduce.Key
	} else if viaMerge && lhs.Kind() == doc.KindObject && rhs.Kind() == doc.KindObject {
		return mergeObjects(arena, lhs, rhs, ix, loc)
	}

	switch kind {
	case schema.FirstWriteWins:
		return lhs, nil
	case schema.Minimize:
		return reduceMinMax(lhs, rhs, key, false), nil
	case schema.Maximize:
		return reduceMinMax(lhs, rhs, key, true), nil
	case schema.Sum:
		return reduceSum(arena, lhs, rhs, loc)
	case schema.Merge:
		return reduceMerge(arena, lhs, rhs, ix, loc, key)
	case schema.Append:
		return reduceAppend(arena, lhs, rhs, loc)
	case schema.Set:
		return reduceSet(arena, lhs, rhs, loc, key)
	case schema.JSONSchemaMerge:
		return reduceJSONSchemaMerge(arena, lhs, rhs, loc)
	default: // lastWriteWins, and any unrecognized strategy name.
		return rhs, nil
	}
}

func reduceMinMax(lhs, rhs *doc.Doc, key []string, wantMax bool) *doc.Doc {
	var cmp int
	if len(key) > 0 {
		var ptrs = mustParseAll(key)
		cmp = compareTuples(pointer.ResolveAll(ptrs, lhs), pointer.ResolveAll(ptrs, rhs))
	} else {
		cmp = compareOrNil(lhs, rhs)
	}
	if wantMax {
		if cmp >= 0 {
			return lhs
		}
		return rhs
	}
	if cmp <= 0 {
		return lhs
	}
	return rhs
}

func compareTuples(a, b []*doc.Doc) int {
	var n = len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareOrNil(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func compareOrNil(a, b *doc.Doc) int {
	if a == nil && b == nil {
		return 0
	} else if a == nil {
		return -1
	} else if b == nil {
		return 1
	}
	return int(doc.Compare(a, b))
}

func reduceSum(arena *doc.Arena, lhs, rhs *doc.Doc, loc string) (*doc.Doc, error) {
	if !lhs.IsNumeric() || !rhs.IsNumeric() {
		return nil, &Error{Kind: SumWrongType, Location: loc}
	}
	if lhs.Kind() != doc.KindFloat && rhs.Kind() != doc.KindFloat {
		var sum = new(big.Int).Add(docToBigInt(lhs), docToBigInt(rhs))
		if sum.Sign() >= 0 && sum.IsUint64() {
			return doc.NewPosInt(arena, sum.Uint64()), nil
		}
		if sum.IsInt64() {
			return doc.NewNegInt(arena, sum.Int64()), nil
		}
		// Overflow of the exact integer range: promote to float, the
		// documented overflow behavior (spec.md's design notes §9).
		var f, _ = new(big.Float).SetInt(sum).Float64()
		return doc.NewFloat(arena, f), nil
	}
	return doc.NewFloat(arena, lhs.Number()+rhs.Number()), nil
}

func docToBigInt(d *doc.Doc) *big.Int {
	switch d.Kind() {
	case doc.KindPosInt:
		return new(big.Int).SetUint64(d.PosInt())
	case doc.KindNegInt:
		return big.NewInt(d.NegInt())
	default:
		panic("docToBigInt called on non-integral Doc")
	}
}

func reduceAppend(arena *doc.Arena, lhs, rhs *doc.Doc, loc string) (*doc.Doc, error) {
	if lhs.Kind() != doc.KindArray || rhs.Kind() != doc.KindArray {
		return nil, &Error{Kind: AppendWrongType, Location: loc}
	}
	var elems = make([]*doc.Doc, 0, len(lhs.Array())+len(rhs.Array()))
	elems = append(elems, lhs.Array()...)
	elems = append(elems, rhs.Array()...)
	return doc.NewArray(arena, elems), nil
}

func reduceMerge(arena *doc.Arena, lhs, rhs *doc.Doc, ix Index, loc string, key []string) (*doc.Doc, error) {
	if lhs.Kind() == doc.KindObject && rhs.Kind() == doc.KindObject {
		return mergeObjects(arena, lhs, rhs, ix, loc)
	}
	if lhs.Kind() == doc.KindArray && rhs.Kind() == doc.KindArray {
		if len(key) > 0 {
			return mergeArraysByKey(arena, lhs, rhs, key)
		}
		return mergeArraysPairwise(arena, lhs, rhs, ix, loc)
	}
	if len(key) > 0 {
		return nil, &Error{Kind: MergeWrongType, Location: loc}
	}
	// No key and the two sides aren't both objects or both arrays: the
	// with-key row of the merge dispatch errors on a type mismatch, but
	// the no-key row falls back to lastWriteWins.
	return rhs, nil
}

func mergeObjects(arena *doc.Arena, lhs, rhs *doc.Doc, ix Index, loc string) (*doc.Doc, error) {
	var li, ri int
	var lf, rf = lhs.Fields(), rhs.Fields()
	var out []doc.Field

	for li < len(lf) || ri < len(rf) {
		switch {
		case ri >= len(rf) || (li < len(lf) && lf[li].Name < rf[ri].Name):
			out = append(out, lf[li])
			li++
		case li >= len(lf) || rf[ri].Name < lf[li].Name:
			out = append(out, rf[ri])
			ri++
		default:
			var childLoc = loc + "/" + doc.EscapePointerToken(lf[li].Name)
			var merged, err = reduceAt(arena, lf[li].Value, rf[ri].Value, ix, childLoc, true)
			if err != nil {
				return nil, err
			}
			out = append(out, doc.Field{Name: lf[li].Name, Value: merged})
			li++
			ri++
		}
	}
	return doc.NewObject(arena, out), nil
}

func mergeArraysPairwise(arena *doc.Arena, lhs, rhs *doc.Doc, ix Index, loc string) (*doc.Doc, error) {
	var la, ra = lhs.Array(), rhs.Array()
	var n = len(la)
	if len(ra) > n {
		n = len(ra)
	}
	var out = make([]*doc.Doc, 0, n)

	for i := 0; i < n; i++ {
		switch {
		case i < len(la) && i < len(ra):
			var merged, err = Reduce(arena, la[i], ra[i], ix, indexLoc(loc, i))
			if err != nil {
				return nil, err
			}
			out = append(out, merged)
		case i < len(la):
			out = append(out, la[i])
		default:
			out = append(out, ra[i])
		}
	}
	return doc.NewArray(arena, out), nil
}

// mergeArraysByKey unions two arrays under a composite key, sorting the
// result by packed key. Matched elements are combined with a structural,
// default-strategy merge rather than a location-indexed Reduce: the
// indices outcomes were collected under no longer correspond to the
// merged array's positions once elements have been re-sorted by key, so
// nested `reduce` annotations inside keyed array elements aren't honored
// here -- only the uniform "objects merge, scalars last-write-wins"
// default. This is a deliberate simplification; see DESIGN.md.
func mergeArraysByKey(arena *doc.Arena, lhs, rhs *doc.Doc, key []string) (*doc.Doc, error) {
	var ptrs = mustParseAll(key)
	type entry struct {
		packed []byte
		doc    *doc.Doc
	}
	var byKey = map[string]*entry{}
	var order []string

	var add = func(d *doc.Doc) {
		var k = tuple.Key(pointer.ResolveAll(ptrs, d))
		var ks = string(k)
		if existing, ok := byKey[ks]; ok {
			existing.doc = deepMergeDefault(arena, existing.doc, d)
		} else {
			byKey[ks] = &entry{packed: k, doc: d}
			order = append(order, ks)
		}
	}
	for _, d := range lhs.Array() {
		add(d)
	}
	for _, d := range rhs.Array() {
		add(d)
	}

	sortStrings(order)
	var out = make([]*doc.Doc, 0, len(order))
	for _, ks := range order {
		out = append(out, byKey[ks].doc)
	}
	return doc.NewArray(arena, out), nil
}

func reduceSet(arena *doc.Arena, lhs, rhs *doc.Doc, loc string, key []string) (*doc.Doc, error) {
	if lhs.Kind() != doc.KindArray || rhs.Kind() != doc.KindArray {
		return nil, &Error{Kind: SetWrongType, Location: loc}
	}
	var ptrs []pointer.Pointer
	if len(key) > 0 {
		ptrs = mustParseAll(key)
	}

	var seen = map[string]*doc.Doc{}
	var order []string
	var add = func(d *doc.Doc) {
		var k []byte
		if ptrs != nil {
			k = tuple.Key(pointer.ResolveAll(ptrs, d))
		} else {
			k = tuple.Pack(nil, d)
		}
		var ks = string(k)
		if existing, ok := seen[ks]; ok {
			seen[ks] = deepMergeDefault(arena, existing, d)
		} else {
			order = append(order, ks)
			seen[ks] = d
		}
	}
	for _, d := range lhs.Array() {
		add(d)
	}
	for _, d := range rhs.Array() {
		add(d)
	}

	sortStrings(order)
	var out = make([]*doc.Doc, 0, len(order))
	for _, ks := range order {
		out = append(out, seen[ks])
	}
	return doc.NewArray(arena, out), nil
}

// deepMergeDefault structurally merges two Docs independent of any
// schema Index: objects merge property-wise, recursively, and any other
// pair (scalars and arrays alike) resolves to rhs (lastWriteWins).
func deepMergeDefault(arena *doc.Arena, lhs, rhs *doc.Doc) *doc.Doc {
	if lhs.Kind() == doc.KindObject && rhs.Kind() == doc.KindObject {
		var li, ri int
		var lf, rf = lhs.Fields(), rhs.Fields()
		var out []doc.Field
		for li < len(lf) || ri < len(rf) {
			switch {
			case ri >= len(rf) || (li < len(lf) && lf[li].Name < rf[ri].Name):
				out = append(out, lf[li])
				li++
			case li >= len(lf) || rf[ri].Name < lf[li].Name:
				out = append(out, rf[ri])
				ri++
			default:
				out = append(out, doc.Field{Name: lf[li].Name, Value: deepMergeDefault(arena, lf[li].Value, rf[ri].Value)})
				li++
				ri++
			}
		}
		return doc.NewObject(arena, out)
	}
	return rhs
}

func indexLoc(loc string, i int) string {
	return loc + "/" + itoa(i)
}
