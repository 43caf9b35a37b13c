// Package interpreter answers the requests the device issues while one of
// its commands is interrupted: preimages of committed hashes, merkle proofs
// for committed lists and maps, and values yielded back to the client.
package interpreter

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/vulpemventures/ledger-bitcoin/pkg/merkle"
)

const (
	maxResponseSize = 255
	// Proof hashes sent along with the leaf hash in a single response.
	maxProofHashesPerResponse = (maxResponseSize - merkle.HashSize - 1 - 1) / merkle.HashSize
)

// YieldPolicy validates a value yielded by the device. Returning an error
// aborts the command being executed.
type YieldPolicy func(data []byte) error

// Interpreter holds everything the client committed to for the command being
// executed. An Interpreter is meant to serve a single command and is not
// safe for concurrent use.
type Interpreter struct {
	preimages map[merkle.Hash][]byte
	trees     map[merkle.Hash]*merkle.Tree
	queue     [][]byte
	yielded   [][]byte
	policy    YieldPolicy
}

// New returns an Interpreter with nothing committed. The optional policy is
// applied to every yielded value.
func New(policy YieldPolicy) *Interpreter {
	return &Interpreter{
		preimages: make(map[merkle.Hash][]byte),
		trees:     make(map[merkle.Hash]*merkle.Tree),
		queue:     make([][]byte, 0),
		yielded:   make([][]byte, 0),
		policy:    policy,
	}
}

// AddKnownPreimage makes the interpreter able to answer requests for the
// sha256 preimage of the given bytes.
func (i *Interpreter) AddKnownPreimage(preimage []byte) {
	p := make([]byte, len(preimage))
	copy(p, preimage)
	i.preimages[merkle.Hash(chainhash.HashH(p))] = p
}

// AddKnownList commits to the merkle tree of the given elements, and to the
// preimages of their element hashes.
func (i *Interpreter) AddKnownList(elements [][]byte) {
	for _, e := range elements {
		i.AddKnownPreimage(append([]byte{0x00}, e...))
	}
	tree := merkle.FromElements(elements)
	i.trees[tree.Root()] = tree
}

// AddKnownMapping commits to the keys and values of the given merkleized
// map.
func (i *Interpreter) AddKnownMapping(m *merkle.Map) {
	i.AddKnownList(m.Keys())
	i.AddKnownList(m.Values())
}

// Yielded returns the values yielded by the device so far, in order.
func (i *Interpreter) Yielded() [][]byte {
	out := make([][]byte, len(i.yielded))
	copy(out, i.yielded)
	return out
}

// Execute runs the client command contained in the request and returns the
// response to send back to the device.
func (i *Interpreter) Execute(request []byte) ([]byte, error) {
	if len(request) == 0 {
		return nil, makeError(
			ErrEmptyRequest, 0, "interrupted execution carries no client command",
		)
	}

	cmd := ClientCommand(request[0])
	if cmd != GetMoreElements && len(i.queue) > 0 {
		return nil, makeError(
			ErrUnexpectedCommand, cmd,
			"%d queued elements were not yet requested", len(i.queue),
		)
	}

	switch cmd {
	case Yield:
		return i.yield(request[1:])
	case GetPreimage:
		return i.getPreimage(request[1:])
	case GetMerkleLeafProof:
		return i.getMerkleLeafProof(request[1:])
	case GetMerkleLeafIndex:
		return i.getMerkleLeafIndex(request[1:])
	case GetMoreElements:
		return i.getMoreElements(request[1:])
	default:
		return nil, makeError(ErrUnknownCommand, cmd, "client command not supported")
	}
}

func (i *Interpreter) yield(data []byte) ([]byte, error) {
	value := make([]byte, len(data))
	copy(value, data)

	if i.policy != nil {
		if err := i.policy(value); err != nil {
			e := makeError(ErrPolicyViolation, Yield, "yielded value rejected")
			e.Cause = err
			return nil, e
		}
	}

	i.yielded = append(i.yielded, value)
	return []byte{}, nil
}

// GET_PREIMAGE: reserved byte (0x00) | hash.
func (i *Interpreter) getPreimage(payload []byte) ([]byte, error) {
	if len(payload) != 1+merkle.HashSize || payload[0] != 0x00 {
		return nil, makeError(
			ErrMalformedRequest, GetPreimage, "invalid request length %d", len(payload),
		)
	}

	var hash merkle.Hash
	copy(hash[:], payload[1:])
	preimage, ok := i.preimages[hash]
	if !ok {
		return nil, makeError(
			ErrUnknownPreimage, GetPreimage, "unknown preimage for hash %x", hash[:],
		)
	}

	lenSize := wire.VarIntSerializeSize(uint64(len(preimage)))
	partialLen := maxResponseSize - lenSize - 1
	if len(preimage) < partialLen {
		partialLen = len(preimage)
	}

	buf := bytes.NewBuffer(make([]byte, 0, lenSize+1+partialLen))
	_ = wire.WriteVarInt(buf, 0, uint64(len(preimage)))
	buf.WriteByte(byte(partialLen))
	buf.Write(preimage[:partialLen])

	for _, b := range preimage[partialLen:] {
		i.queue = append(i.queue, []byte{b})
	}

	return buf.Bytes(), nil
}

// GET_MERKLE_LEAF_PROOF: root | varint(tree size) | varint(leaf index).
func (i *Interpreter) getMerkleLeafProof(payload []byte) ([]byte, error) {
	if len(payload) < merkle.HashSize+2 {
		return nil, makeError(
			ErrMalformedRequest, GetMerkleLeafProof,
			"invalid request length %d", len(payload),
		)
	}

	var root merkle.Hash
	copy(root[:], payload[:merkle.HashSize])
	r := bytes.NewReader(payload[merkle.HashSize:])
	size, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, makeError(
			ErrMalformedRequest, GetMerkleLeafProof, "invalid tree size: %s", err,
		)
	}
	index, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, makeError(
			ErrMalformedRequest, GetMerkleLeafProof, "invalid leaf index: %s", err,
		)
	}
	if r.Len() != 0 {
		return nil, makeError(
			ErrMalformedRequest, GetMerkleLeafProof,
			"%d trailing bytes in request", r.Len(),
		)
	}

	tree, ok := i.trees[root]
	if !ok {
		return nil, makeError(
			ErrUnknownMerkleRoot, GetMerkleLeafProof, "unknown merkle root %x", root[:],
		)
	}
	if size != uint64(tree.Size()) {
		return nil, makeError(
			ErrMalformedRequest, GetMerkleLeafProof,
			"tree size %d does not match committed size %d", size, tree.Size(),
		)
	}
	if index >= size {
		return nil, makeError(
			ErrLeafIndexOutOfRange, GetMerkleLeafProof,
			"leaf index %d out of range [0, %d)", index, size,
		)
	}

	leaf, _ := tree.Leaf(int(index))
	proof, _ := tree.Proof(int(index))

	n := len(proof)
	if n > maxProofHashesPerResponse {
		n = maxProofHashesPerResponse
	}

	buf := bytes.NewBuffer(nil)
	buf.Write(leaf[:])
	buf.WriteByte(byte(len(proof)))
	buf.WriteByte(byte(n))
	for _, h := range proof[:n] {
		buf.Write(h[:])
	}

	for _, h := range proof[n:] {
		element := make([]byte, merkle.HashSize)
		copy(element, h[:])
		i.queue = append(i.queue, element)
	}

	return buf.Bytes(), nil
}

// GET_MERKLE_LEAF_INDEX: root | leaf hash.
func (i *Interpreter) getMerkleLeafIndex(payload []byte) ([]byte, error) {
	if len(payload) != 2*merkle.HashSize {
		return nil, makeError(
			ErrMalformedRequest, GetMerkleLeafIndex,
			"invalid request length %d", len(payload),
		)
	}

	var root, leaf merkle.Hash
	copy(root[:], payload[:merkle.HashSize])
	copy(leaf[:], payload[merkle.HashSize:])

	tree, ok := i.trees[root]
	if !ok {
		return nil, makeError(
			ErrUnknownMerkleRoot, GetMerkleLeafIndex, "unknown merkle root %x", root[:],
		)
	}

	found := byte(0x01)
	index, ok := tree.IndexOf(leaf)
	if !ok {
		found, index = 0x00, 0
	}

	buf := bytes.NewBuffer([]byte{found})
	_ = wire.WriteVarInt(buf, 0, uint64(index))
	return buf.Bytes(), nil
}

// GET_MORE_ELEMENTS: no payload.
func (i *Interpreter) getMoreElements(payload []byte) ([]byte, error) {
	if len(payload) != 0 {
		return nil, makeError(
			ErrMalformedRequest, GetMoreElements,
			"invalid request length %d", len(payload),
		)
	}
	if len(i.queue) == 0 {
		return nil, makeError(ErrEmptyQueue, GetMoreElements, "no queued elements")
	}

	elementLen := len(i.queue[0])
	for _, e := range i.queue {
		if len(e) != elementLen {
			return nil, makeError(
				ErrInconsistentQueue, GetMoreElements,
				"queued elements have different lengths",
			)
		}
	}

	n := 0
	for n < len(i.queue) && (n+1)*elementLen <= maxResponseSize-2 {
		n++
	}

	buf := bytes.NewBuffer([]byte{byte(n), byte(elementLen)})
	for _, e := range i.queue[:n] {
		buf.Write(e)
	}
	i.queue = i.queue[n:]

	return buf.Bytes(), nil
}
