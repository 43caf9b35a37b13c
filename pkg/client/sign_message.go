package client

import (
	"bytes"
	"context"
	"encoding/base64"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/vulpemventures/ledger-bitcoin/pkg/apdu"
	"github.com/vulpemventures/ledger-bitcoin/pkg/interpreter"
	"github.com/vulpemventures/ledger-bitcoin/pkg/merkle"
	path "github.com/vulpemventures/ledger-bitcoin/pkg/wallet/derivation-path"
)

const (
	messageChunkSize     = 64
	compactSignatureSize = 65

	signedMessageMagic = "Bitcoin Signed Message:\n"
)

// MessageSignature is a signature of a message in the format of the
// Bitcoin Signed Message standard.
type MessageSignature struct {
	Signature [compactSignatureSize]byte
	PubKey    *btcec.PublicKey
}

// Base64 returns the signature as printed by wallets.
func (s MessageSignature) Base64() string {
	return base64.StdEncoding.EncodeToString(s.Signature[:])
}

// SignMessage signs the message with the key derived at the given path.
// The public key of the signer is recovered from the signature returned by
// the device.
func (c *Client) SignMessage(
	ctx context.Context, derivationPath path.DerivationPath, message []byte,
) (*MessageSignature, error) {
	serializedPath, err := derivationPath.Serialize()
	if err != nil {
		return nil, err
	}

	chunks := make([][]byte, 0, len(message)/messageChunkSize+1)
	for i := 0; i < len(message); i += messageChunkSize {
		end := i + messageChunkSize
		if end > len(message) {
			end = len(message)
		}
		chunks = append(chunks, message[i:end])
	}

	interp := interpreter.New(nil)
	interp.AddKnownList(chunks)
	chunksRoot := merkle.FromElements(chunks).Root()

	buf := bytes.NewBuffer(serializedPath)
	_ = wire.WriteVarInt(buf, 0, uint64(len(message)))
	buf.Write(chunksRoot[:])

	cmd := apdu.NewBitcoinCommand(apdu.InsSignMessage, buf.Bytes())
	data, err := c.makeRequest(ctx, cmd, interp)
	if err != nil {
		return nil, err
	}
	if len(data) != compactSignatureSize {
		return nil, NewUnexpectedResultError(cmd.Ins, data)
	}

	pubkey, _, err := ecdsa.RecoverCompact(data, MessageHash(message))
	if err != nil {
		c.warn(err, "failed to recover signer of message")
		return nil, NewUnexpectedResultError(cmd.Ins, data)
	}

	sig := &MessageSignature{PubKey: pubkey}
	copy(sig.Signature[:], data)
	return sig, nil
}

// MessageHash returns the hash signed for the given message:
// sha256d(varint(len(magic)) | magic | varint(len(message)) | message).
func MessageHash(message []byte) []byte {
	buf := bytes.NewBuffer(nil)
	_ = wire.WriteVarString(buf, 0, signedMessageMagic)
	_ = wire.WriteVarInt(buf, 0, uint64(len(message)))
	buf.Write(message)
	return chainhash.DoubleHashB(buf.Bytes())
}
