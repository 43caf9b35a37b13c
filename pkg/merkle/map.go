package merkle

import (
	"bytes"
	"sort"

	"github.com/btcsuite/btcd/wire"
)

// Map is a merkleized key-value map: the sorted keys and their values are
// committed to by two distinct merkle trees.
type Map struct {
	keys   [][]byte
	values [][]byte

	keysTree   *Tree
	valuesTree *Tree
}

// NewMap returns the merkleized version of the given entries. Keys are
// sorted in lexicographic byte order.
func NewMap(entries map[string][]byte) *Map {
	sortedKeys := make([]string, 0, len(entries))
	for k := range entries {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)

	keys := make([][]byte, 0, len(entries))
	values := make([][]byte, 0, len(entries))
	for _, k := range sortedKeys {
		keys = append(keys, []byte(k))
		values = append(values, entries[k])
	}

	return &Map{
		keys:       keys,
		values:     values,
		keysTree:   FromElements(keys),
		valuesTree: FromElements(values),
	}
}

func (m *Map) Size() int {
	return len(m.keys)
}

// Keys returns the sorted keys of the map.
func (m *Map) Keys() [][]byte {
	return m.keys
}

// Values returns the values of the map, in the order of their keys.
func (m *Map) Values() [][]byte {
	return m.values
}

func (m *Map) KeysRoot() Hash {
	return m.keysTree.Root()
}

func (m *Map) ValuesRoot() Hash {
	return m.valuesTree.Root()
}

// Commitment returns the serialized commitment to the map:
// varint(size) | keys root | values root.
func (m *Map) Commitment() []byte {
	buf := bytes.NewBuffer(nil)
	// Writing to a bytes.Buffer never fails.
	_ = wire.WriteVarInt(buf, 0, uint64(len(m.keys)))
	keysRoot := m.KeysRoot()
	valuesRoot := m.ValuesRoot()
	buf.Write(keysRoot[:])
	buf.Write(valuesRoot[:])
	return buf.Bytes()
}
