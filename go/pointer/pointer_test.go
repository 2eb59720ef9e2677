package pointer

import (
	"testing"

	"github.com/estuary/flow-combine/go/doc"
	"github.com/stretchr/testify/require"
)

func TestResolveAgainstDocTree(t *testing.T) {
	var a = doc.NewArena()
	var d, parseErr = doc.FromJSON([]byte(`{"a":{"b":[1,2,3]},"c":"x"}`), a)
	require.NoError(t, parseErr)

	var ab2, err = New("/a/b/2")
	require.NoError(t, err)
	require.EqualValues(t, 3, ab2.Resolve(d).PosInt())

	var c, _ = New("/c")
	require.Equal(t, "x", c.Resolve(d).Str())

	var missing, _ = New("/a/b/9")
	require.Nil(t, missing.Resolve(d))

	var throughScalar, _ = New("/c/nested")
	require.Nil(t, throughScalar.Resolve(d))

	var root, _ = New("")
	require.Equal(t, d, root.Resolve(d))
}
