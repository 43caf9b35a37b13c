package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/vulpemventures/ledger-bitcoin/pkg/apdu"
	"github.com/vulpemventures/ledger-bitcoin/pkg/interpreter"
	"github.com/vulpemventures/ledger-bitcoin/pkg/merkle"
	"github.com/vulpemventures/ledger-bitcoin/pkg/wallet/policy"
)

var (
	ErrMalformedYield    = errors.New("malformed partial signature")
	ErrInputOutOfRange   = errors.New("partial signature for unknown input")
	ErrInvalidSignature  = errors.New("invalid signature encoding")
	ErrInvalidPubkeyAugm = errors.New("invalid public key length")
	ErrMissingPolicy     = errors.New("missing wallet policy")
)

// PartialSignature is a signature returned by the device for one input.
type PartialSignature struct {
	InputIndex int
	// PubKey is a compressed key for ecdsa signatures, an x-only key for
	// taproot ones.
	PubKey []byte
	// LeafHash is only set for taproot script path signatures.
	LeafHash []byte
	// Signature is DER encoded with its sighash byte for ecdsa, 64 or 65
	// bytes for schnorr.
	Signature []byte
}

func (s PartialSignature) IsTaproot() bool {
	return len(s.PubKey) == schnorr.PubKeyBytesLen
}

// SignPsbt asks the device to sign the inputs of the packet spending from
// the given wallet policy and returns the signatures it produced. The hmac
// is required for registered policies and must be nil for default ones.
// The packet is left untouched, see FillPsbt.
func (c *Client) SignPsbt(
	ctx context.Context, packet *psbt.Packet,
	wallet *policy.WalletPolicy, walletHmac *[32]byte,
) ([]PartialSignature, error) {
	if wallet == nil {
		return nil, ErrMissingPolicy
	}
	if err := c.checkAppVersion(ctx); err != nil {
		return nil, err
	}

	if err := validatePsbt(packet); err != nil {
		c.warn(err, "psbt rejected before signing")
		return nil, NewInvalidPsbtError()
	}
	maps, err := toV2Maps(packet)
	if err != nil {
		c.warn(err, "failed to convert psbt")
		return nil, NewInvalidPsbtError()
	}

	sigs := make([]PartialSignature, 0, len(maps.inputs))
	interp := interpreter.New(partialSignaturePolicy(len(maps.inputs), &sigs))

	globalMap := merkle.NewMap(maps.global)
	interp.AddKnownMapping(globalMap)

	inputCommitments := make([][]byte, 0, len(maps.inputs))
	for _, in := range maps.inputs {
		m := merkle.NewMap(in)
		interp.AddKnownMapping(m)
		inputCommitments = append(inputCommitments, m.Commitment())
	}
	interp.AddKnownList(inputCommitments)

	outputCommitments := make([][]byte, 0, len(maps.outputs))
	for _, out := range maps.outputs {
		m := merkle.NewMap(out)
		interp.AddKnownMapping(m)
		outputCommitments = append(outputCommitments, m.Commitment())
	}
	interp.AddKnownList(outputCommitments)

	addKnownPolicy(interp, wallet)

	inputsRoot := merkle.FromElements(inputCommitments).Root()
	outputsRoot := merkle.FromElements(outputCommitments).Root()
	walletID := wallet.ID()

	buf := bytes.NewBuffer(globalMap.Commitment())
	_ = wire.WriteVarInt(buf, 0, uint64(len(inputCommitments)))
	buf.Write(inputsRoot[:])
	_ = wire.WriteVarInt(buf, 0, uint64(len(outputCommitments)))
	buf.Write(outputsRoot[:])
	buf.Write(walletID[:])
	buf.Write(hmacOrZero(walletHmac))

	cmd := apdu.NewBitcoinCommand(apdu.InsSignPsbt, buf.Bytes())
	if _, err := c.makeRequest(ctx, cmd, interp); err != nil {
		return nil, err
	}

	c.log("got %d signatures for %d inputs", len(sigs), len(maps.inputs))
	return sigs, nil
}

// FillPsbt adds the signatures to the inputs of the packet.
func FillPsbt(packet *psbt.Packet, sigs []PartialSignature) error {
	updater, err := psbt.NewUpdater(packet)
	if err != nil {
		return err
	}

	for _, sig := range sigs {
		if sig.InputIndex < 0 || sig.InputIndex >= len(packet.Inputs) {
			return ErrInputOutOfRange
		}

		if !sig.IsTaproot() {
			if _, err := updater.Sign(
				sig.InputIndex, sig.Signature, sig.PubKey, nil, nil,
			); err != nil {
				return fmt.Errorf("input %d: %w", sig.InputIndex, err)
			}
			continue
		}

		in := &packet.Inputs[sig.InputIndex]
		if sig.LeafHash == nil {
			in.TaprootKeySpendSig = sig.Signature
			continue
		}

		sighash := txscript.SigHashDefault
		if len(sig.Signature) == schnorr.SignatureSize+1 {
			sighash = txscript.SigHashType(sig.Signature[schnorr.SignatureSize])
		}
		in.TaprootScriptSpendSig = append(
			in.TaprootScriptSpendSig, &psbt.TaprootScriptSpendSig{
				XOnlyPubKey: sig.PubKey,
				LeafHash:    sig.LeafHash,
				Signature:   sig.Signature[:schnorr.SignatureSize],
				SigHash:     sighash,
			},
		)
	}
	return nil
}

// partialSignaturePolicy rejects yielded values that are not well formed
// signatures for one of the inputs being signed, and collects the others
// into sigs.
func partialSignaturePolicy(
	numInputs int, sigs *[]PartialSignature,
) interpreter.YieldPolicy {
	return func(data []byte) error {
		sig, err := parsePartialSignature(data)
		if err != nil {
			return err
		}
		if sig.InputIndex >= numInputs {
			return fmt.Errorf(
				"%w: index %d, inputs %d", ErrInputOutOfRange, sig.InputIndex, numInputs,
			)
		}
		*sigs = append(*sigs, *sig)
		return nil
	}
}

// varint(input index) | len(pubkey augm) | pubkey augm | signature
func parsePartialSignature(data []byte) (*PartialSignature, error) {
	r := bytes.NewReader(data)

	index, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return nil, ErrMalformedYield
	}
	augmLen, err := r.ReadByte()
	if err != nil {
		return nil, ErrMalformedYield
	}
	augm := make([]byte, augmLen)
	if _, err := io.ReadFull(r, augm); err != nil {
		return nil, ErrMalformedYield
	}
	signature := make([]byte, r.Len())
	if _, err := io.ReadFull(r, signature); err != nil || len(signature) == 0 {
		return nil, ErrMalformedYield
	}
	if index > uint64(^uint32(0)) {
		return nil, ErrInputOutOfRange
	}

	sig := &PartialSignature{InputIndex: int(index), Signature: signature}

	switch len(augm) {
	case btcec.PubKeyBytesLenCompressed:
		sig.PubKey = augm
		if _, err := ecdsa.ParseDERSignature(signature[:len(signature)-1]); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSignature, err)
		}
	case schnorr.PubKeyBytesLen, schnorr.PubKeyBytesLen + 32:
		sig.PubKey = augm[:schnorr.PubKeyBytesLen]
		if len(augm) > schnorr.PubKeyBytesLen {
			sig.LeafHash = augm[schnorr.PubKeyBytesLen:]
		}
		if len(signature) != schnorr.SignatureSize &&
			len(signature) != schnorr.SignatureSize+1 {
			return nil, ErrInvalidSignature
		}
		if _, err := schnorr.ParseSignature(signature[:schnorr.SignatureSize]); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSignature, err)
		}
	default:
		return nil, ErrInvalidPubkeyAugm
	}

	return sig, nil
}
