package schema

import (
	"testing"

	"github.com/estuary/flow-combine/go/doc"
	"github.com/stretchr/testify/require"
)

func TestBuildAndValidateSimpleObject(t *testing.T) {
	var s, err = Build([]byte(`{
		"type": "object",
		"required": ["key", "min"],
		"properties": {
			"key": {"type": "array", "items": {"type": "string"}},
			"min": {"type": "integer", "reduce": "minimize"},
			"max": {"type": "number", "reduce": "maximize"}
		},
		"reduce": "merge"
	}`))
	require.NoError(t, err)

	var a = doc.NewArena()
	var d, perr = doc.FromJSON([]byte(`{"key":["a","one"],"min":3,"max":3.3}`), a)
	require.NoError(t, perr)

	var outcomes, verr = s.Validate(d)
	require.NoError(t, verr)
	require.NotEmpty(t, outcomes)

	require.Equal(t, "", outcomes[0].Location)
	require.NotNil(t, outcomes[0].Annotation.Reduce)
	require.Equal(t, Merge, outcomes[0].Annotation.Reduce.Kind)

	var foundMin bool
	for _, o := range outcomes {
		if o.Location == "/min" {
			foundMin = true
			require.Equal(t, Minimize, o.Annotation.Reduce.Kind)
		}
	}
	require.True(t, foundMin)
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	var s, err = Build([]byte(`{"type":"object","required":["n"],"properties":{"n":{"type":"integer"}}}`))
	require.NoError(t, err)

	var a = doc.NewArena()
	var d, _ = doc.FromJSON([]byte(`{}`), a)

	var _, verr = s.Validate(d)
	require.Error(t, verr)

	var ve *ValidationError
	require.ErrorAs(t, verr, &ve)
}

func TestValidateRejectsWrongType(t *testing.T) {
	var s, err = Build([]byte(`{"type":"object","properties":{"n":{"type":"integer"}}}`))
	require.NoError(t, err)

	var a = doc.NewArena()
	var d, _ = doc.FromJSON([]byte(`{"n":"not-a-number"}`), a)

	var _, verr = s.Validate(d)
	require.Error(t, verr)
}

func TestXExtensionAndCoreAnnotationsPassThrough(t *testing.T) {
	var s, err = Build([]byte(`{
		"type": "object",
		"advanced": true,
		"properties": {
			"advanced_foo": {"type": "integer", "x-value": "test", "secret": true}
		}
	}`))
	require.NoError(t, err)

	var a = doc.NewArena()
	var d, _ = doc.FromJSON([]byte(`{"advanced_foo":1}`), a)

	var outcomes, verr = s.Validate(d)
	require.NoError(t, verr)

	require.True(t, outcomes[0].Annotation.Advanced)

	var found bool
	for _, o := range outcomes {
		if o.Location == "/advanced_foo" {
			found = true
			require.True(t, o.Annotation.Secret)
			require.Contains(t, o.Annotation.Extensions, "x-value")
		}
	}
	require.True(t, found)
}

func TestIdnFormatsAlwaysFail(t *testing.T) {
	var s, err = Build([]byte(`{"type":"string","format":"idn-hostname"}`))
	require.NoError(t, err)

	var a = doc.NewArena()
	var d, _ = doc.FromJSON([]byte(`"xn--exmple-cua.com"`), a)

	var _, verr = s.Validate(d)
	require.Error(t, verr)
}

func TestAllOfMergesReduceAnnotationFromComposedBranch(t *testing.T) {
	var s, err = Build([]byte(`{
		"$defs": {"widget": {"type": "object", "properties": {"n": {"type": "integer"}}}},
		"allOf": [
			{"$ref": "#/$defs/widget"},
			{"reduce": "merge"}
		]
	}`))
	require.NoError(t, err)

	var a = doc.NewArena()
	var d, _ = doc.FromJSON([]byte(`{"n":1}`), a)

	var outcomes, verr = s.Validate(d)
	require.NoError(t, verr)
	require.NotEmpty(t, outcomes)
	require.Equal(t, "", outcomes[0].Location)
	require.NotNil(t, outcomes[0].Annotation.Reduce)
	require.Equal(t, Merge, outcomes[0].Annotation.Reduce.Kind)
}

func TestAllOfOwnKeywordBeatsComposedBranchOnConflict(t *testing.T) {
	var s, err = Build([]byte(`{
		"reduce": "sum",
		"allOf": [{"reduce": "merge"}]
	}`))
	require.NoError(t, err)

	var a = doc.NewArena()
	var d, _ = doc.FromJSON([]byte(`1`), a)

	var outcomes, verr = s.Validate(d)
	require.NoError(t, verr)
	require.Equal(t, Sum, outcomes[0].Annotation.Reduce.Kind)
}

func TestAnyOfFirstBranchBreaksAnnotationTie(t *testing.T) {
	var s, err = Build([]byte(`{
		"anyOf": [
			{"reduce": "firstWriteWins"},
			{"reduce": "lastWriteWins"}
		]
	}`))
	require.NoError(t, err)

	var a = doc.NewArena()
	var d, _ = doc.FromJSON([]byte(`1`), a)

	var outcomes, verr = s.Validate(d)
	require.NoError(t, verr)
	require.Equal(t, FirstWriteWins, outcomes[0].Annotation.Reduce.Kind)
}

func TestRefResolution(t *testing.T) {
	var s, err = Build([]byte(`{
		"$defs": {"pair": {"type": "object", "properties": {"a": {"type": "integer"}}}},
		"type": "object",
		"properties": {"p": {"$ref": "#/$defs/pair"}}
	}`))
	require.NoError(t, err)

	var a = doc.NewArena()
	var d, _ = doc.FromJSON([]byte(`{"p":{"a":1}}`), a)

	var _, verr = s.Validate(d)
	require.NoError(t, verr)

	var bad, _ = doc.FromJSON([]byte(`{"p":{"a":"x"}}`), a)
	var _, verr2 = s.Validate(bad)
	require.Error(t, verr2)
}
