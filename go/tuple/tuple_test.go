package tuple

import (
	"bytes"
	"sort"
	"testing"

	"github.com/estuary/flow-combine/go/doc"
	"github.com/stretchr/testify/require"
)

func TestPackOrderMatchesDocCompare(t *testing.T) {
	var a = doc.NewArena()
	var docs = []*doc.Doc{
		doc.NewNull(a),
		doc.NewBool(a, false),
		doc.NewBool(a, true),
		doc.NewNegInt(a, -5),
		doc.NewPosInt(a, 0),
		doc.NewPosInt(a, 3),
		doc.NewFloat(a, 3.5),
		doc.NewString(a, "abc"),
		doc.NewString(a, "abd"),
		doc.NewBytes(a, []byte{0x01, 0x00, 0x02}),
		doc.NewArray(a, []*doc.Doc{doc.NewPosInt(a, 1)}),
		doc.NewArray(a, []*doc.Doc{doc.NewPosInt(a, 1), doc.NewPosInt(a, 2)}),
		doc.NewObject(a, []doc.Field{{Name: "a", Value: doc.NewPosInt(a, 1)}}),
	}

	var packed = make([][]byte, len(docs))
	for i, d := range docs {
		packed[i] = Pack(nil, d)
	}

	for i := 0; i < len(docs)-1; i++ {
		require.Equal(t, doc.Less, doc.Compare(docs[i], docs[i+1]), "doc index %d", i)
		require.True(t, bytes.Compare(packed[i], packed[i+1]) < 0, "packed index %d", i)
	}
}

func TestPackEqualAcrossNumericTags(t *testing.T) {
	var a = doc.NewArena()
	require.True(t, bytes.Equal(Pack(nil, doc.NewPosInt(a, 3)), Pack(nil, doc.NewFloat(a, 3.0))))
}

func TestPackIsPrefixFreeForStrings(t *testing.T) {
	var a = doc.NewArena()
	var short = Pack(nil, doc.NewString(a, "ab"))
	var long = Pack(nil, doc.NewString(a, "ab\x00x"))

	require.False(t, bytes.HasPrefix(long, short) && len(long) > len(short) && bytes.Equal(long[:len(short)], short))
}

func TestKeyConcatenatesElementsInOrder(t *testing.T) {
	var a = doc.NewArena()
	var k1 = Key([]*doc.Doc{doc.NewString(a, "tenant-a"), doc.NewPosInt(a, 1)})
	var k2 = Key([]*doc.Doc{doc.NewString(a, "tenant-a"), doc.NewPosInt(a, 2)})
	var k3 = Key([]*doc.Doc{doc.NewString(a, "tenant-b"), doc.NewPosInt(a, 1)})

	var keys = [][]byte{k3, k1, k2}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	require.Equal(t, k1, keys[0])
	require.Equal(t, k2, keys[1])
	require.Equal(t, k3, keys[2])
}

func TestPackNaNSortsGreatest(t *testing.T) {
	var a = doc.NewArena()
	var zero float64
	var nan = doc.NewFloat(a, zero/zero)
	var big = doc.NewFloat(a, 1e300)

	require.True(t, bytes.Compare(Pack(nil, big), Pack(nil, nan)) < 0)
	require.True(t, bytes.Equal(Pack(nil, nan), Pack(nil, nan)))
}
