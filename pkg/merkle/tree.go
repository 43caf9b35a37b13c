// Package merkle implements the merkle trees and merkleized maps the device
// uses to access data that does not fit in its memory. The client commits to
// lists and maps with their merkle roots and later serves leaves and proofs
// on request.
package merkle

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const HashSize = chainhash.HashSize

// Hash is a leaf or node hash.
type Hash [HashSize]byte

// ElementHash returns the hash of a leaf element, domain separated from
// internal nodes with a 0x00 prefix.
func ElementHash(element []byte) Hash {
	buf := make([]byte, 0, 1+len(element))
	buf = append(buf, 0x00)
	buf = append(buf, element...)
	return Hash(chainhash.HashH(buf))
}

func combine(left, right Hash) Hash {
	buf := make([]byte, 0, 1+2*HashSize)
	buf = append(buf, 0x01)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return Hash(chainhash.HashH(buf))
}

// split returns the size of the left subtree of a tree with n > 1 leaves,
// that is the largest power of 2 strictly less than n.
func split(n int) int {
	k := 1
	for k*2 < n {
		k *= 2
	}
	return k
}

func root(leaves []Hash) Hash {
	switch len(leaves) {
	case 0:
		return Hash{}
	case 1:
		return leaves[0]
	}

	k := split(len(leaves))
	return combine(root(leaves[:k]), root(leaves[k:]))
}

func proof(leaves []Hash, index int) []Hash {
	if len(leaves) <= 1 {
		return nil
	}

	k := split(len(leaves))
	if index < k {
		return append(proof(leaves[:k], index), root(leaves[k:]))
	}
	return append(proof(leaves[k:], index-k), root(leaves[:k]))
}

// Tree is an immutable merkle tree built on a list of leaf hashes.
type Tree struct {
	leaves []Hash
	root   Hash
}

// New returns the tree with the given leaf hashes.
func New(leaves []Hash) *Tree {
	l := make([]Hash, len(leaves))
	copy(l, leaves)
	return &Tree{l, root(l)}
}

// FromElements returns the tree whose leaves are the element hashes of the
// given list.
func FromElements(elements [][]byte) *Tree {
	leaves := make([]Hash, 0, len(elements))
	for _, e := range elements {
		leaves = append(leaves, ElementHash(e))
	}
	return &Tree{leaves, root(leaves)}
}

// Root returns the root of the tree, all zeros if the tree is empty.
func (t *Tree) Root() Hash {
	return t.root
}

func (t *Tree) Size() int {
	return len(t.leaves)
}

func (t *Tree) Leaf(index int) (Hash, error) {
	if index < 0 || index >= len(t.leaves) {
		return Hash{}, ErrLeafIndexOutOfRange
	}
	return t.leaves[index], nil
}

// Proof returns the sibling hashes needed to recompute the root from the
// leaf at the given index, ordered from the bottom of the tree to the top.
func (t *Tree) Proof(index int) ([]Hash, error) {
	if len(t.leaves) == 0 {
		return nil, ErrEmptyTree
	}
	if index < 0 || index >= len(t.leaves) {
		return nil, ErrLeafIndexOutOfRange
	}
	return proof(t.leaves, index), nil
}

// IndexOf returns the index of the first leaf equal to the given hash.
func (t *Tree) IndexOf(leaf Hash) (int, bool) {
	for i, l := range t.leaves {
		if l == leaf {
			return i, true
		}
	}
	return 0, false
}

// Verify checks that proof links leaf, at position index of a tree with
// size leaves, to the given root.
func Verify(rootHash, leaf Hash, size, index int, proof []Hash) bool {
	if size <= 0 || index < 0 || index >= size {
		return false
	}
	computed, ok := computeRoot(leaf, size, index, proof)
	return ok && computed == rootHash
}

func computeRoot(leaf Hash, size, index int, proof []Hash) (Hash, bool) {
	if size == 1 {
		return leaf, len(proof) == 0
	}
	if len(proof) == 0 {
		return Hash{}, false
	}

	k := split(size)
	sibling := proof[len(proof)-1]
	rest := proof[:len(proof)-1]
	if index < k {
		left, ok := computeRoot(leaf, k, index, rest)
		return combine(left, sibling), ok
	}
	right, ok := computeRoot(leaf, size-k, index-k, rest)
	return combine(sibling, right), ok
}
