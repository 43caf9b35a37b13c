package application_test

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/stretchr/testify/mock"
	"github.com/vulpemventures/ledger-bitcoin/pkg/client"
	path "github.com/vulpemventures/ledger-bitcoin/pkg/wallet/derivation-path"
	"github.com/vulpemventures/ledger-bitcoin/pkg/wallet/policy"
)

// ports.Device
type mockDevice struct {
	mock.Mock
	// block, if not nil, makes GetVersion wait until it's closed.
	block chan struct{}
}

func newMockedDevice() *mockDevice {
	return &mockDevice{}
}

func (m *mockDevice) GetVersion(ctx context.Context) (*client.AppVersion, error) {
	if m.block != nil {
		<-m.block
	}
	args := m.Called()

	var res *client.AppVersion
	if a := args.Get(0); a != nil {
		res = a.(*client.AppVersion)
	}
	return res, args.Error(1)
}

func (m *mockDevice) GetMasterFingerprint(ctx context.Context) ([4]byte, error) {
	args := m.Called()
	return args.Get(0).([4]byte), args.Error(1)
}

func (m *mockDevice) GetExtendedPubkey(
	ctx context.Context, derivationPath path.DerivationPath, display bool,
) (*hdkeychain.ExtendedKey, error) {
	args := m.Called(derivationPath.String(), display)

	var res *hdkeychain.ExtendedKey
	if a := args.Get(0); a != nil {
		res = a.(*hdkeychain.ExtendedKey)
	}
	return res, args.Error(1)
}

func (m *mockDevice) RegisterWallet(
	ctx context.Context, wallet *policy.WalletPolicy,
) ([32]byte, [32]byte, error) {
	args := m.Called(wallet.Name())
	return wallet.ID(), args.Get(0).([32]byte), args.Error(1)
}

func (m *mockDevice) GetWalletAddress(
	ctx context.Context, wallet *policy.WalletPolicy, walletHmac *[32]byte,
	change bool, index uint32, display bool,
) (btcutil.Address, error) {
	args := m.Called(wallet.Name(), walletHmac != nil, change, index)

	var res btcutil.Address
	if a := args.Get(0); a != nil {
		res = a.(btcutil.Address)
	}
	return res, args.Error(1)
}

func (m *mockDevice) SignPsbt(
	ctx context.Context, packet *psbt.Packet,
	wallet *policy.WalletPolicy, walletHmac *[32]byte,
) ([]client.PartialSignature, error) {
	args := m.Called(wallet.Name())

	var res []client.PartialSignature
	if a := args.Get(0); a != nil {
		res = a.([]client.PartialSignature)
	}
	return res, args.Error(1)
}

func (m *mockDevice) SignMessage(
	ctx context.Context, derivationPath path.DerivationPath, message []byte,
) (*client.MessageSignature, error) {
	args := m.Called(derivationPath.String(), string(message))

	var res *client.MessageSignature
	if a := args.Get(0); a != nil {
		res = a.(*client.MessageSignature)
	}
	return res, args.Error(1)
}
