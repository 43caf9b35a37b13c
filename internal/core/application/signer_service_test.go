package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/ledger-bitcoin/internal/core/application"
	"github.com/vulpemventures/ledger-bitcoin/internal/core/domain"
	dbbadger "github.com/vulpemventures/ledger-bitcoin/internal/infrastructure/storage/db/badger"
	"github.com/vulpemventures/ledger-bitcoin/internal/infrastructure/storage/db/inmemory"
	"github.com/vulpemventures/ledger-bitcoin/pkg/apdu"
	"github.com/vulpemventures/ledger-bitcoin/pkg/client"
	"github.com/vulpemventures/ledger-bitcoin/pkg/wallet/policy"
)

const (
	tpub0 = "tpubD6NzVbkrYhZ4XgiXtGrdW5XDAPFCL9h7we1vwNCpn8tGbBcgfVYjXyhWo4E1xkh56hjod1RhGjxbaTLV3X4FyWuejifB9jusQ46QzG87VKp"
	tpub1 = "tpubD8eQVK4Kdxg3gHrF62jGP7dKVCoYiEB8dFSpuTawkL5YxTus5j5pf83vaKnii4bc6v2NVEy81P2gYrJczYne3QNNwMTS53p5uzDyHvnw2jm"

	walletName = "Cold storage"
	template   = "wsh(sortedmulti(2,@0/**,@1/**))"
)

var (
	ctx         = context.Background()
	testnet     = &chaincfg.TestNet3Params
	fingerprint = [4]byte{0xf5, 0xac, 0xc2, 0xfd}
	otherDevice = [4]byte{0x01, 0x02, 0x03, 0x04}
	hmac        = [32]byte{0xaa, 0xbb}
	keys        = []string{
		"[f5acc2fd/48'/1'/0'/2']" + tpub0,
		"[42424242/48'/1'/0'/2']" + tpub1,
	}
)

func TestRegisterWallet(t *testing.T) {
	device := newMockedDevice()
	device.On("GetMasterFingerprint").Return(fingerprint, nil)
	device.On("RegisterWallet", walletName).Return(hmac, nil)

	repoManager := inmemory.NewRepoManager()
	svc := application.NewSignerService(device, repoManager, testnet, application.BuildInfo{})
	walletSvc := application.NewWalletService(repoManager)

	wallet, err := svc.RegisterWallet(ctx, walletName, template, keys)
	require.NoError(t, err)
	require.NotNil(t, wallet)
	require.Equal(t, walletName, wallet.Name)
	require.Equal(t, "f5acc2fd", wallet.MasterFingerprint)
	require.Equal(t, keys, wallet.Keys)

	_, err = svc.RegisterWallet(ctx, walletName, template, keys)
	require.ErrorIs(t, err, application.ErrWalletAlreadyExists)
	device.AssertNumberOfCalls(t, "RegisterWallet", 1)

	stored, err := walletSvc.GetWallet(ctx, walletName)
	require.NoError(t, err)
	require.Equal(t, *wallet, *stored)

	wallets, err := walletSvc.ListWallets(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{walletName}, wallets.Names())

	require.NoError(t, walletSvc.DeleteWallet(ctx, walletName))
	err = walletSvc.DeleteWallet(ctx, walletName)
	require.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestRegisterWalletFails(t *testing.T) {
	denied := client.NewDeviceError(apdu.InsRegisterWallet, apdu.SwDeny)

	tests := []struct {
		name     string
		wallet   string
		template string
		keys     []string
		err      error
	}{
		{
			name:     "missing name",
			template: template,
			keys:     keys,
			err:      application.ErrMissingWalletName,
		},
		{
			name:     "unused key",
			wallet:   walletName,
			template: "wsh(sortedmulti(1,@0/**))",
			keys:     keys,
			err:      policy.ErrUnusedKey,
		},
		{
			name:     "malformed key",
			wallet:   walletName,
			template: template,
			keys:     []string{"[f5acc2fd/48'/1'/0'/2']notanxpub", keys[1]},
			err:      policy.ErrInvalidKeyInfo,
		},
		{
			name:     "denied by user",
			wallet:   walletName,
			template: template,
			keys:     keys,
			err:      client.ErrDevice,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			device := newMockedDevice()
			device.On("GetMasterFingerprint").Return(fingerprint, nil)
			device.On("RegisterWallet", mock.Anything).Return([32]byte{}, denied)

			repoManager := inmemory.NewRepoManager()
			svc := application.NewSignerService(device, repoManager, testnet, application.BuildInfo{})

			wallet, err := svc.RegisterWallet(ctx, tt.wallet, tt.template, tt.keys)
			require.ErrorIs(t, err, tt.err)
			require.Nil(t, wallet)

			wallets, err := application.NewWalletService(repoManager).ListWallets(ctx)
			require.NoError(t, err)
			require.Empty(t, wallets)
		})
	}
}

func TestRegisterWalletStorageFailure(t *testing.T) {
	device := newMockedDevice()

	repoManager, err := dbbadger.NewRepoManager("", nil)
	require.NoError(t, err)
	repoManager.Close()

	svc := application.NewSignerService(device, repoManager, testnet, application.BuildInfo{})

	wallet, err := svc.RegisterWallet(ctx, walletName, template, keys)
	require.ErrorIs(t, err, badger.ErrDBClosed)
	require.Nil(t, wallet)
	device.AssertNotCalled(t, "GetMasterFingerprint")
	device.AssertNotCalled(t, "RegisterWallet", mock.Anything)
}

func TestDeriveAddress(t *testing.T) {
	addr, err := btcutil.DecodeAddress(
		"tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", testnet,
	)
	require.NoError(t, err)

	t.Run("registered wallet", func(t *testing.T) {
		device := newMockedDevice()
		device.On("GetMasterFingerprint").Return(fingerprint, nil)
		device.On("RegisterWallet", walletName).Return(hmac, nil)
		device.On("GetWalletAddress", walletName, true, false, uint32(3)).Return(addr, nil)

		svc := application.NewSignerService(device, inmemory.NewRepoManager(), testnet, application.BuildInfo{})
		_, err := svc.RegisterWallet(ctx, walletName, template, keys)
		require.NoError(t, err)

		got, err := svc.DeriveAddress(ctx, walletName, false, 3, false)
		require.NoError(t, err)
		require.Equal(t, addr.EncodeAddress(), got)
	})

	t.Run("wallet of another device", func(t *testing.T) {
		device := newMockedDevice()
		device.On("GetMasterFingerprint").Return(fingerprint, nil).Once()
		device.On("GetMasterFingerprint").Return(otherDevice, nil)
		device.On("RegisterWallet", walletName).Return(hmac, nil)

		svc := application.NewSignerService(device, inmemory.NewRepoManager(), testnet, application.BuildInfo{})
		_, err := svc.RegisterWallet(ctx, walletName, template, keys)
		require.NoError(t, err)

		_, err = svc.DeriveAddress(ctx, walletName, false, 0, false)
		require.ErrorIs(t, err, application.ErrWalletNotRegisteredOnDevice)
		device.AssertNotCalled(t, "GetWalletAddress", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		svc := application.NewSignerService(newMockedDevice(), inmemory.NewRepoManager(), testnet, application.BuildInfo{})
		_, err := svc.DeriveAddress(ctx, "unknown", false, 0, false)
		require.ErrorIs(t, err, domain.ErrWalletNotFound)
	})

	t.Run("default wallet", func(t *testing.T) {
		xpub, err := hdkeychain.NewKeyFromString(tpub0)
		require.NoError(t, err)

		device := newMockedDevice()
		device.On("GetMasterFingerprint").Return(fingerprint, nil)
		device.On("GetExtendedPubkey", "m/84'/1'/0'", false).Return(xpub, nil)
		device.On("GetWalletAddress", "", false, true, uint32(7)).Return(addr, nil)

		svc := application.NewSignerService(device, inmemory.NewRepoManager(), testnet, application.BuildInfo{})
		got, err := svc.DeriveDefaultAddress(ctx, policy.TemplateNativeSegwit, 0, true, 7, false)
		require.NoError(t, err)
		require.Equal(t, addr.EncodeAddress(), got)

		_, err = svc.DeriveDefaultAddress(ctx, "wsh(@0/**)", 0, true, 7, false)
		require.ErrorIs(t, err, application.ErrUnknownDefaultTemplate)
	})
}

func TestSignPsbt(t *testing.T) {
	encoded := newEncodedPsbt(t)

	t.Run("valid", func(t *testing.T) {
		device := newMockedDevice()
		device.On("GetMasterFingerprint").Return(fingerprint, nil)
		device.On("RegisterWallet", walletName).Return(hmac, nil)
		device.On("SignPsbt", walletName).Return(nil, nil)

		svc := application.NewSignerService(device, inmemory.NewRepoManager(), testnet, application.BuildInfo{})
		_, err := svc.RegisterWallet(ctx, walletName, template, keys)
		require.NoError(t, err)

		signed, err := svc.SignPsbt(ctx, walletName, encoded)
		require.NoError(t, err)
		require.NotNil(t, signed)
		require.Equal(t, encoded, signed.Psbt)
		require.Zero(t, signed.Signatures)
	})

	t.Run("malformed psbt", func(t *testing.T) {
		device := newMockedDevice()
		svc := application.NewSignerService(device, inmemory.NewRepoManager(), testnet, application.BuildInfo{})

		_, err := svc.SignPsbt(ctx, walletName, "cHNidP8Bnotapsbt")
		require.ErrorIs(t, err, client.ErrInvalidPsbt)

		_, err = svc.SignPsbtWithDefault(ctx, policy.TemplateTaproot, 0, "")
		require.ErrorIs(t, err, client.ErrInvalidPsbt)
		device.AssertNotCalled(t, "SignPsbt", mock.Anything)
	})

	t.Run("device error", func(t *testing.T) {
		xpub, err := hdkeychain.NewKeyFromString(tpub0)
		require.NoError(t, err)

		device := newMockedDevice()
		device.On("GetMasterFingerprint").Return(fingerprint, nil)
		device.On("GetExtendedPubkey", "m/86'/1'/0'", false).Return(xpub, nil)
		device.On("SignPsbt", "").Return(
			nil, client.NewDeviceError(apdu.InsSignPsbt, apdu.SwDeny),
		)

		svc := application.NewSignerService(device, inmemory.NewRepoManager(), testnet, application.BuildInfo{})
		_, err = svc.SignPsbtWithDefault(ctx, policy.TemplateTaproot, 0, encoded)

		var clientErr *client.Error
		require.True(t, errors.As(err, &clientErr))
		status, ok := clientErr.Status()
		require.True(t, ok)
		require.Equal(t, apdu.SwDeny, status)
	})
}

func TestSessionLock(t *testing.T) {
	device := newMockedDevice()
	device.block = make(chan struct{})
	device.On("GetVersion").Return(&client.AppVersion{Name: "Bitcoin Test", Version: "2.1.0"}, nil)
	device.On("GetMasterFingerprint").Return(fingerprint, nil)

	svc := application.NewSignerService(device, inmemory.NewRepoManager(), testnet, application.BuildInfo{})

	chInfo := make(chan *application.DeviceInfo, 1)
	go func() {
		info, _ := svc.GetDeviceInfo(ctx)
		chInfo <- info
	}()
	time.Sleep(50 * time.Millisecond)

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := svc.GetDeviceInfo(timeoutCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(device.block)
	info := <-chInfo
	require.NotNil(t, info)
	require.Equal(t, "Bitcoin Test", info.AppName)
	require.Equal(t, "f5acc2fd", info.MasterFingerprint)
	require.Equal(t, testnet.Name, info.Network)
}

func newEncodedPsbt(t *testing.T) string {
	prevout := wire.NewOutPoint(&chainhash.Hash{0x01}, 0)
	packet, err := psbt.New(
		[]*wire.OutPoint{prevout},
		[]*wire.TxOut{wire.NewTxOut(9000, make([]byte, 22))},
		2, 0, []uint32{wire.MaxTxInSequenceNum},
	)
	require.NoError(t, err)
	packet.Inputs[0].WitnessUtxo = wire.NewTxOut(10000, make([]byte, 22))

	encoded, err := packet.B64Encode()
	require.NoError(t, err)
	return encoded
}
