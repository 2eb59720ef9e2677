package reduce

import (
	"testing"

	"github.com/estuary/flow-combine/go/doc"
	"github.com/estuary/flow-combine/go/schema"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, a *doc.Arena, s string) *doc.Doc {
	t.Helper()
	var d, err = doc.FromJSON([]byte(s), a)
	require.NoError(t, err)
	return d
}

func validate(t *testing.T, s *schemaT, a *doc.Arena, raw string) (*doc.Doc, Index) {
	t.Helper()
	var d = mustDoc(t, a, raw)
	var outcomes, err = s.Validate(d)
	require.NoError(t, err)
	return d, BuildIndex(outcomes)
}

type schemaT = schema.Schema

func build(t *testing.T, raw string) *schemaT {
	t.Helper()
	var s, err = schema.Build([]byte(raw))
	require.NoError(t, err)
	return s
}

func TestScenarioA_MinimizeMaximizeWithCompositeKey(t *testing.T) {
	var s = build(t, `{
		"type": "object",
		"reduce": "merge",
		"properties": {
			"key": {"type": "array"},
			"min": {"type": "integer", "reduce": "minimize"},
			"max": {"type": "number", "reduce": "maximize"}
		}
	}`)

	var a = doc.NewArena()
	var adds = []string{
		`{"key":["a","one"],   "min":3, "max":3.3}`,
		`{"key":["a","two"],   "min":4, "max":4.4}`,
		`{"key":["a","two"],   "min":2, "max":2.2}`,
		`{"key":["a","one"],   "min":5, "max":5.5}`,
		`{"key":["a","three"], "min":6, "max":6.6}`,
	}

	var state = map[string]*doc.Doc{}
	for _, raw := range adds {
		var d, ix = validate(t, s, a, raw)
		var key = d.Get("key").Array()[1].Str() + "/" + d.Get("key").Array()[0].Str()
		var existing = state[key]
		var reduced, err = Reduce(a, existing, d, ix, "")
		require.NoError(t, err)
		state[key] = reduced
	}

	require.EqualValues(t, 3, state["one/a"].Get("min").PosInt())
	require.Equal(t, 5.5, state["one/a"].Get("max").Number())
	require.EqualValues(t, 2, state["two/a"].Get("min").PosInt())
	require.Equal(t, 4.4, state["two/a"].Get("max").Number())
	require.EqualValues(t, 6, state["three/a"].Get("min").PosInt())
}

func TestSumWithOverflowPromotesToFloat(t *testing.T) {
	var s = build(t, `{"type":"object","reduce":"merge","properties":{"n":{"type":"integer","reduce":"sum"}}}`)
	var a = doc.NewArena()

	var d1, ix1 = validate(t, s, a, `{"n":18446744073709551615}`)
	var d2, _ = validate(t, s, a, `{"n":1}`)

	var reduced, err = Reduce(a, d1, d2, ix1, "")
	require.NoError(t, err)
	require.Equal(t, doc.KindFloat, reduced.Get("n").Kind())
}

func TestSumOfPlainIntegersStaysIntegral(t *testing.T) {
	var s = build(t, `{"type":"object","reduce":"merge","properties":{"n":{"type":"integer","reduce":"sum"}}}`)
	var a = doc.NewArena()

	var state *doc.Doc
	for _, raw := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		var d, ix = validate(t, s, a, raw)
		var reduced, err = Reduce(a, state, d, ix, "")
		require.NoError(t, err)
		state = reduced
	}
	require.Equal(t, doc.KindPosInt, state.Get("n").Kind())
	require.EqualValues(t, 6, state.Get("n").PosInt())
}

func TestSumWrongTypeErrors(t *testing.T) {
	var s = build(t, `{"type":"object","reduce":"merge","properties":{"n":{"reduce":"sum"}}}`)
	var a = doc.NewArena()

	var d1, ix1 = validate(t, s, a, `{"n":1}`)
	var d2, _ = validate(t, s, a, `{"n":"not-a-number"}`)

	var _, err = Reduce(a, d1, d2, ix1, "")
	require.Error(t, err)
	var re *Error
	require.ErrorAs(t, err, &re)
	require.Equal(t, SumWrongType, re.Kind)
}

func TestAppendConcatenates(t *testing.T) {
	var s = build(t, `{"type":"object","reduce":"merge","properties":{"items":{"type":"array","reduce":"append"}}}`)
	var a = doc.NewArena()

	var d1, ix1 = validate(t, s, a, `{"items":[1,2]}`)
	var d2, _ = validate(t, s, a, `{"items":[3]}`)

	var reduced, err = Reduce(a, d1, d2, ix1, "")
	require.NoError(t, err)
	require.Len(t, reduced.Get("items").Array(), 3)
}

func TestFirstWriteWinsKeepsFirst(t *testing.T) {
	var s = build(t, `{"type":"object","reduce":"merge","properties":{"n":{"reduce":"firstWriteWins"}}}`)
	var a = doc.NewArena()

	var d1, ix1 = validate(t, s, a, `{"n":1}`)
	var d2, _ = validate(t, s, a, `{"n":2}`)

	var reduced, err = Reduce(a, d1, d2, ix1, "")
	require.NoError(t, err)
	require.EqualValues(t, 1, reduced.Get("n").PosInt())
}

func TestFrontDocumentSeedsReduction(t *testing.T) {
	var s = build(t, `{"type":"object","reduce":"merge","properties":{"n":{"type":"integer","reduce":"sum"}}}`)
	var a = doc.NewArena()

	var front, ixFront = validate(t, s, a, `{"n":10}`)
	var add1, _ = validate(t, s, a, `{"n":1}`)
	var add2, _ = validate(t, s, a, `{"n":2}`)

	var state = front
	var r1, err = Reduce(a, state, add1, ixFront, "")
	require.NoError(t, err)
	var r2, err2 = Reduce(a, r1, add2, ixFront, "")
	require.NoError(t, err2)

	require.EqualValues(t, 13, r2.Get("n").PosInt())
}

func TestMergeNoKeyFallsBackToLastWriteWinsOnTypeMismatch(t *testing.T) {
	var s = build(t, `{"type":"object","reduce":"merge","properties":{"n":{"reduce":"merge"}}}`)
	var a = doc.NewArena()

	var d1, ix1 = validate(t, s, a, `{"n":1}`)
	var d2, _ = validate(t, s, a, `{"n":2}`)

	var reduced, err = Reduce(a, d1, d2, ix1, "")
	require.NoError(t, err)
	require.EqualValues(t, 2, reduced.Get("n").PosInt())
}

func TestMergeWithKeyErrorsOnNonArray(t *testing.T) {
	var s = build(t, `{"type":"object","reduce":"merge","properties":{
		"n":{"reduce":{"strategy":"merge","key":["/id"]}}
	}}`)
	var a = doc.NewArena()

	var d1, ix1 = validate(t, s, a, `{"n":1}`)
	var d2, _ = validate(t, s, a, `{"n":2}`)

	var _, err = Reduce(a, d1, d2, ix1, "")
	require.Error(t, err)
	var re *Error
	require.ErrorAs(t, err, &re)
	require.Equal(t, MergeWrongType, re.Kind)
}

func TestMergeRecursesIntoUnannotatedNestedObject(t *testing.T) {
	var s = build(t, `{
		"type": "object",
		"reduce": "merge",
		"properties": {
			"nested": {"type": "object"}
		}
	}`)
	var a = doc.NewArena()

	var d1, ix1 = validate(t, s, a, `{"nested":{"a":1}}`)
	var d2, _ = validate(t, s, a, `{"nested":{"b":2}}`)

	var reduced, err = Reduce(a, d1, d2, ix1, "")
	require.NoError(t, err)
	require.EqualValues(t, 1, reduced.Get("nested").Get("a").PosInt())
	require.EqualValues(t, 2, reduced.Get("nested").Get("b").PosInt())
}

func TestSetWithKeyRecursesOnDuplicateKey(t *testing.T) {
	var s = build(t, `{"type":"object","reduce":"merge","properties":{
		"items":{"type":"array","reduce":{"strategy":"set","key":["/id"]}}
	}}`)
	var a = doc.NewArena()

	var d1, ix1 = validate(t, s, a, `{"items":[{"id":"a","n":1}]}`)
	var d2, _ = validate(t, s, a, `{"items":[{"id":"a","n":2}]}`)

	var reduced, err = Reduce(a, d1, d2, ix1, "")
	require.NoError(t, err)
	var items = reduced.Get("items").Array()
	require.Len(t, items, 1)
	require.EqualValues(t, 2, items[0].Get("n").PosInt())
}

func TestJSONSchemaMergeWidensUnion(t *testing.T) {
	var a = doc.NewArena()
	var lhs = mustDoc(t, a, `{"type":"object","properties":{"a":{"type":"string"}},"required":["a"]}`)
	var rhs = mustDoc(t, a, `{"type":"object","properties":{"b":{"type":"integer"}}}`)

	var merged, err = reduceJSONSchemaMerge(a, lhs, rhs, "")
	require.NoError(t, err)

	require.NotNil(t, merged.Get("properties").Get("a"))
	require.NotNil(t, merged.Get("properties").Get("b"))
	require.Nil(t, merged.Get("required")) // "a" no longer required: rhs didn't require it.
}
