package client

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/wire"
	"github.com/vulpemventures/ledger-bitcoin/pkg/apdu"
	"github.com/vulpemventures/ledger-bitcoin/pkg/interpreter"
	path "github.com/vulpemventures/ledger-bitcoin/pkg/wallet/derivation-path"
	"github.com/vulpemventures/ledger-bitcoin/pkg/wallet/policy"
)

// GetMasterFingerprint returns the fingerprint of the master public key of
// the device.
func (c *Client) GetMasterFingerprint(ctx context.Context) ([4]byte, error) {
	var fingerprint [4]byte

	cmd := apdu.NewBitcoinCommand(apdu.InsGetMasterFingerprint, nil)
	data, err := c.makeRequest(ctx, cmd, nil)
	if err != nil {
		return fingerprint, err
	}
	if len(data) != len(fingerprint) {
		return fingerprint, NewUnexpectedResultError(cmd.Ins, data)
	}

	copy(fingerprint[:], data)
	return fingerprint, nil
}

// GetExtendedPubkey returns the extended public key derived at the given
// path. If display is true the device asks the user to verify it.
//
// The path must not be deeper than path.MaxDepth, otherwise its
// serialization error is returned before anything is sent to the device.
func (c *Client) GetExtendedPubkey(
	ctx context.Context, derivationPath path.DerivationPath, display bool,
) (*hdkeychain.ExtendedKey, error) {
	serializedPath, err := derivationPath.Serialize()
	if err != nil {
		return nil, err
	}

	payload := append([]byte{boolByte(display)}, serializedPath...)
	cmd := apdu.NewBitcoinCommand(apdu.InsGetExtendedPubkey, payload)
	data, err := c.makeRequest(ctx, cmd, nil)
	if err != nil {
		return nil, err
	}

	xpub, err := hdkeychain.NewKeyFromString(string(data))
	if err != nil || xpub.IsPrivate() {
		return nil, NewUnexpectedResultError(cmd.Ins, data)
	}
	return xpub, nil
}

// RegisterWallet asks the user to approve the given policy and returns its
// id together with the hmac the device computes on it. The hmac proves the
// policy was registered when later passed to GetWalletAddress or SignPsbt.
func (c *Client) RegisterWallet(
	ctx context.Context, wallet *policy.WalletPolicy,
) (id [32]byte, hmac [32]byte, err error) {
	if wallet == nil {
		err = ErrMissingPolicy
		return
	}
	if err = c.checkAppVersion(ctx); err != nil {
		return
	}

	serialized := wallet.Serialize()
	buf := bytes.NewBuffer(nil)
	_ = wire.WriteVarInt(buf, 0, uint64(len(serialized)))
	buf.Write(serialized)

	interp := interpreter.New(nil)
	addKnownPolicy(interp, wallet)

	cmd := apdu.NewBitcoinCommand(apdu.InsRegisterWallet, buf.Bytes())
	data, err := c.makeRequest(ctx, cmd, interp)
	if err != nil {
		return
	}
	if len(data) != 64 {
		err = NewUnexpectedResultError(cmd.Ins, data)
		return
	}

	copy(id[:], data[:32])
	copy(hmac[:], data[32:])
	if id != wallet.ID() {
		c.log("device returned id %x for policy %x", id, wallet.ID())
		err = NewUnexpectedResultError(cmd.Ins, data)
		return
	}
	return id, hmac, nil
}

// GetWalletAddress returns the address of the given policy at the given
// change and address index. The hmac is required for registered policies
// and must be nil for default ones.
func (c *Client) GetWalletAddress(
	ctx context.Context, wallet *policy.WalletPolicy, walletHmac *[32]byte,
	change bool, index uint32, display bool,
) (btcutil.Address, error) {
	if wallet == nil {
		return nil, ErrMissingPolicy
	}
	if err := c.checkAppVersion(ctx); err != nil {
		return nil, err
	}

	id := wallet.ID()
	payload := make([]byte, 0, 1+32+32+1+4)
	payload = append(payload, boolByte(display))
	payload = append(payload, id[:]...)
	payload = append(payload, hmacOrZero(walletHmac)...)
	payload = append(payload, boolByte(change))
	payload = binary.BigEndian.AppendUint32(payload, index)

	interp := interpreter.New(nil)
	addKnownPolicy(interp, wallet)

	cmd := apdu.NewBitcoinCommand(apdu.InsGetWalletAddress, payload)
	data, err := c.makeRequest(ctx, cmd, interp)
	if err != nil {
		return nil, err
	}

	addr, err := btcutil.DecodeAddress(string(data), c.network)
	if err != nil || !addr.IsForNet(c.network) {
		return nil, NewUnexpectedResultError(cmd.Ins, data)
	}
	return addr, nil
}

func addKnownPolicy(interp *interpreter.Interpreter, wallet *policy.WalletPolicy) {
	interp.AddKnownPreimage(wallet.Serialize())
	interp.AddKnownPreimage([]byte(wallet.DescriptorTemplate()))
	interp.AddKnownList(wallet.KeyElements())
}

func hmacOrZero(hmac *[32]byte) []byte {
	if hmac == nil {
		return make([]byte, 32)
	}
	return hmac[:]
}

func boolByte(b bool) byte {
	if b {
		return 0x01
	}
	return 0x00
}
