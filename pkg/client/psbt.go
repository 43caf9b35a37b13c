package client

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// Key types of the PSBTv2 fields the device requires and PSBTv0 does not
// carry.
const (
	globalUnsignedTx       = 0x00
	globalTxVersion        = 0x02
	globalFallbackLocktime = 0x03
	globalInputCount       = 0x04
	globalOutputCount      = 0x05
	globalVersion          = 0xfb

	inPreviousTxid = 0x0e
	inOutputIndex  = 0x0f
	inSequence     = 0x10

	outAmount = 0x03
	outScript = 0x04

	psbtVersion2 = 2
)

var (
	psbtMagic = []byte{0x70, 0x73, 0x62, 0x74, 0xff}

	errMissingUtxo       = errors.New("input has neither witness nor non-witness utxo")
	errUtxoTxidMismatch  = errors.New("non-witness utxo does not hash to the prevout txid")
	errPrevoutOutOfRange = errors.New("prevout index out of range of non-witness utxo")
	errTruncatedPsbt     = errors.New("psbt serialization is truncated")
	errInvalidPsbtMagic  = errors.New("invalid psbt magic bytes")
)

// psbtMaps holds the key-value maps of a PSBT in version 2 form. Keys are
// the full serialized keys, type byte included.
type psbtMaps struct {
	global  map[string][]byte
	inputs  []map[string][]byte
	outputs []map[string][]byte
}

// validatePsbt checks what the device would otherwise reject only after
// the user has started reviewing the transaction.
func validatePsbt(packet *psbt.Packet) error {
	if packet == nil || packet.UnsignedTx == nil {
		return psbt.ErrInvalidPsbtFormat
	}
	if len(packet.Inputs) != len(packet.UnsignedTx.TxIn) ||
		len(packet.Outputs) != len(packet.UnsignedTx.TxOut) {
		return psbt.ErrInvalidPsbtFormat
	}
	if err := packet.SanityCheck(); err != nil {
		return err
	}

	for i, in := range packet.Inputs {
		if in.WitnessUtxo == nil && in.NonWitnessUtxo == nil {
			return fmt.Errorf("input %d: %w", i, errMissingUtxo)
		}
		if in.NonWitnessUtxo == nil {
			continue
		}

		prevout := packet.UnsignedTx.TxIn[i].PreviousOutPoint
		if in.NonWitnessUtxo.TxHash() != prevout.Hash {
			return fmt.Errorf("input %d: %w", i, errUtxoTxidMismatch)
		}
		if int(prevout.Index) >= len(in.NonWitnessUtxo.TxOut) {
			return fmt.Errorf("input %d: %w", i, errPrevoutOutOfRange)
		}
	}
	return nil
}

// toV2Maps converts the packet to the maps of its PSBTv2 equivalent: the
// unsigned transaction is dropped from the global map and its fields are
// spread over the global, input and output maps.
func toV2Maps(packet *psbt.Packet) (*psbtMaps, error) {
	buf := bytes.NewBuffer(nil)
	if err := packet.Serialize(buf); err != nil {
		return nil, err
	}

	r := bytes.NewReader(buf.Bytes())
	magic := make([]byte, len(psbtMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, errTruncatedPsbt
	}
	if !bytes.Equal(magic, psbtMagic) {
		return nil, errInvalidPsbtMagic
	}

	tx := packet.UnsignedTx

	global, err := readMap(r)
	if err != nil {
		return nil, fmt.Errorf("global map: %w", err)
	}
	delete(global, string([]byte{globalUnsignedTx}))
	global[string([]byte{globalTxVersion})] = le32(uint32(tx.Version))
	global[string([]byte{globalFallbackLocktime})] = le32(tx.LockTime)
	global[string([]byte{globalInputCount})] = varint(uint64(len(tx.TxIn)))
	global[string([]byte{globalOutputCount})] = varint(uint64(len(tx.TxOut)))
	global[string([]byte{globalVersion})] = le32(psbtVersion2)

	inputs := make([]map[string][]byte, 0, len(tx.TxIn))
	for i, in := range tx.TxIn {
		m, err := readMap(r)
		if err != nil {
			return nil, fmt.Errorf("input %d map: %w", i, err)
		}
		txid := in.PreviousOutPoint.Hash
		m[string([]byte{inPreviousTxid})] = txid[:]
		m[string([]byte{inOutputIndex})] = le32(in.PreviousOutPoint.Index)
		m[string([]byte{inSequence})] = le32(in.Sequence)
		inputs = append(inputs, m)
	}

	outputs := make([]map[string][]byte, 0, len(tx.TxOut))
	for i, out := range tx.TxOut {
		m, err := readMap(r)
		if err != nil {
			return nil, fmt.Errorf("output %d map: %w", i, err)
		}
		amount := make([]byte, 8)
		binary.LittleEndian.PutUint64(amount, uint64(out.Value))
		m[string([]byte{outAmount})] = amount
		m[string([]byte{outScript})] = out.PkScript
		outputs = append(outputs, m)
	}

	return &psbtMaps{global, inputs, outputs}, nil
}

// readMap reads key-value pairs up to the 0x00 separator.
func readMap(r *bytes.Reader) (map[string][]byte, error) {
	m := make(map[string][]byte)
	for {
		keyLen, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return nil, errTruncatedPsbt
		}
		if keyLen == 0 {
			return m, nil
		}
		key, err := readBytes(r, keyLen)
		if err != nil {
			return nil, err
		}

		valueLen, err := wire.ReadVarInt(r, 0)
		if err != nil {
			return nil, errTruncatedPsbt
		}
		value, err := readBytes(r, valueLen)
		if err != nil {
			return nil, err
		}

		m[string(key)] = value
	}
}

func readBytes(r *bytes.Reader, n uint64) ([]byte, error) {
	if n > uint64(r.Len()) {
		return nil, errTruncatedPsbt
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errTruncatedPsbt
	}
	return buf, nil
}

func le32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

func varint(v uint64) []byte {
	buf := bytes.NewBuffer(nil)
	_ = wire.WriteVarInt(buf, 0, v)
	return buf.Bytes()
}
