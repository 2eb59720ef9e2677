package extract

import (
	"bytes"
	"testing"

	"github.com/estuary/flow-combine/go/doc"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, a *doc.Arena, s string) *doc.Doc {
	t.Helper()
	var d, err = doc.FromJSON([]byte(s), a)
	require.NoError(t, err)
	return d
}

func TestKeyOrderMatchesCompositeFieldOrder(t *testing.T) {
	var e, err = New([]string{"/key/1", "/key/0"}, []string{"/min", "/max"})
	require.NoError(t, err)

	var a = doc.NewArena()
	var d1 = mustDoc(t, a, `{"key":["a","one"],"min":3,"max":3.3}`)
	var d2 = mustDoc(t, a, `{"key":["a","two"],"min":4,"max":4.4}`)

	var k1, k2 = e.Key(d1), e.Key(d2)
	require.NotEqual(t, k1, k2)
	require.Equal(t, -1, bytes.Compare(k1, k2)) // "one" < "two" at /key/1.

	var v1 = e.Values(d1)
	require.True(t, len(v1) > 0)
	require.False(t, bytes.Equal(v1, e.Values(d2)))
}

func TestUnresolvedPointerPacksAsNull(t *testing.T) {
	var e, err = New([]string{"/missing"}, nil)
	require.NoError(t, err)

	var a = doc.NewArena()
	var d = mustDoc(t, a, `{"present":1}`)

	var nullKey = e.Key(d)

	var e2, _ = New([]string{"/also/missing"}, nil)
	require.Equal(t, nullKey, e2.Key(d))
}

func TestNewRejectsMalformedPointer(t *testing.T) {
	var _, err = New([]string{"no-leading-slash"}, nil)
	require.Error(t, err)
}
