package ports

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/vulpemventures/ledger-bitcoin/pkg/client"
	path "github.com/vulpemventures/ledger-bitcoin/pkg/wallet/derivation-path"
	"github.com/vulpemventures/ledger-bitcoin/pkg/wallet/policy"
)

// Device is the abstraction for the hardware signer. Every error returned
// by a Device is a *client.Error.
type Device interface {
	GetVersion(ctx context.Context) (*client.AppVersion, error)
	GetMasterFingerprint(ctx context.Context) ([4]byte, error)
	GetExtendedPubkey(
		ctx context.Context, derivationPath path.DerivationPath, display bool,
	) (*hdkeychain.ExtendedKey, error)
	RegisterWallet(
		ctx context.Context, wallet *policy.WalletPolicy,
	) ([32]byte, [32]byte, error)
	GetWalletAddress(
		ctx context.Context, wallet *policy.WalletPolicy, walletHmac *[32]byte,
		change bool, index uint32, display bool,
	) (btcutil.Address, error)
	SignPsbt(
		ctx context.Context, packet *psbt.Packet,
		wallet *policy.WalletPolicy, walletHmac *[32]byte,
	) ([]client.PartialSignature, error)
	SignMessage(
		ctx context.Context, derivationPath path.DerivationPath, message []byte,
	) (*client.MessageSignature, error)
}
