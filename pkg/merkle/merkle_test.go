package merkle_test

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/ledger-bitcoin/pkg/merkle"
)

func nodeHash(left, right merkle.Hash) merkle.Hash {
	buf := append([]byte{0x01}, left[:]...)
	buf = append(buf, right[:]...)
	return sha256.Sum256(buf)
}

func elements(n int) [][]byte {
	list := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, []byte(fmt.Sprintf("element %d", i)))
	}
	return list
}

func TestElementHash(t *testing.T) {
	t.Parallel()

	expected := sha256.Sum256([]byte{0x00, 0xde, 0xad})
	require.Equal(t, merkle.Hash(expected), merkle.ElementHash([]byte{0xde, 0xad}))
}

func TestTreeRoot(t *testing.T) {
	t.Parallel()

	list := elements(5)
	h := make([]merkle.Hash, 0, len(list))
	for _, e := range list {
		h = append(h, merkle.ElementHash(e))
	}

	tests := []struct {
		size     int
		expected merkle.Hash
	}{
		{0, merkle.Hash{}},
		{1, h[0]},
		{2, nodeHash(h[0], h[1])},
		{3, nodeHash(nodeHash(h[0], h[1]), h[2])},
		{4, nodeHash(nodeHash(h[0], h[1]), nodeHash(h[2], h[3]))},
		{5, nodeHash(nodeHash(nodeHash(h[0], h[1]), nodeHash(h[2], h[3])), h[4])},
	}

	for _, tt := range tests {
		tree := merkle.FromElements(list[:tt.size])
		require.Equal(t, tt.size, tree.Size())
		require.Equal(t, tt.expected, tree.Root())
		require.Equal(t, tree.Root(), merkle.New(h[:tt.size]).Root())
	}
}

func TestTreeProof(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		for size := 1; size <= 17; size++ {
			tree := merkle.FromElements(elements(size))
			for i := 0; i < size; i++ {
				leaf, err := tree.Leaf(i)
				require.NoError(t, err)

				proof, err := tree.Proof(i)
				require.NoError(t, err)
				require.True(t, merkle.Verify(tree.Root(), leaf, size, i, proof))

				index, found := tree.IndexOf(leaf)
				require.True(t, found)
				require.Equal(t, i, index)
			}
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		_, err := merkle.FromElements(nil).Proof(0)
		require.ErrorIs(t, err, merkle.ErrEmptyTree)

		tree := merkle.FromElements(elements(3))
		_, err = tree.Proof(3)
		require.ErrorIs(t, err, merkle.ErrLeafIndexOutOfRange)
		_, err = tree.Leaf(-1)
		require.ErrorIs(t, err, merkle.ErrLeafIndexOutOfRange)

		_, found := tree.IndexOf(merkle.ElementHash([]byte("unknown")))
		require.False(t, found)

		leaf, _ := tree.Leaf(0)
		proof, _ := tree.Proof(0)
		require.False(t, merkle.Verify(tree.Root(), leaf, 3, 1, proof))
		require.False(t, merkle.Verify(tree.Root(), leaf, 3, 0, proof[:1]))
	})
}

func TestMap(t *testing.T) {
	t.Parallel()

	m := merkle.NewMap(map[string][]byte{
		"\x03": []byte("third"),
		"\x01": []byte("first"),
		"\x02": []byte("second"),
	})
	require.Equal(t, 3, m.Size())
	require.Equal(t, [][]byte{{0x01}, {0x02}, {0x03}}, m.Keys())
	require.Equal(
		t, [][]byte{[]byte("first"), []byte("second"), []byte("third")},
		m.Values(),
	)

	keysRoot := m.KeysRoot()
	valuesRoot := m.ValuesRoot()
	expected := append([]byte{0x03}, keysRoot[:]...)
	expected = append(expected, valuesRoot[:]...)
	require.Equal(t, expected, m.Commitment())
	require.Equal(t, merkle.FromElements(m.Keys()).Root(), keysRoot)
}
