package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/ledger-bitcoin/internal/core/domain"
	"github.com/vulpemventures/ledger-bitcoin/internal/core/ports"
	"github.com/vulpemventures/ledger-bitcoin/pkg/client"
	path "github.com/vulpemventures/ledger-bitcoin/pkg/wallet/derivation-path"
	"github.com/vulpemventures/ledger-bitcoin/pkg/wallet/policy"
)

// SignerService is responsible for the operations that involve the device:
// 	* Get info about the app running on the device.
// 	* Export extended public keys.
// 	* Register wallet policies and keep track of the returned hmacs.
// 	* Derive addresses of registered and default wallets.
// 	* Sign PSBTs and messages.
//
// The device serves one command at a time, therefore every operation holds
// the session lock for as long as it talks to the device. The lock is
// released as soon as the context is done.
type SignerService struct {
	device      ports.Device
	repoManager ports.RepoManager
	network     *chaincfg.Params
	buildInfo   BuildInfo

	session chan struct{}

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewSignerService(
	device ports.Device, repoManager ports.RepoManager,
	net *chaincfg.Params, buildInfo BuildInfo,
) *SignerService {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("signer service: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("signer service: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	if net == nil {
		net = &chaincfg.MainNetParams
	}

	ss := &SignerService{
		device:      device,
		repoManager: repoManager,
		network:     net,
		buildInfo:   buildInfo,
		session:     make(chan struct{}, 1),
		log:         logFn,
		warn:        warnFn,
	}
	ss.registerHandlerForWalletEvents()
	return ss
}

func (ss *SignerService) GetBuildInfo() BuildInfo {
	return ss.buildInfo
}

func (ss *SignerService) GetDeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	release, err := ss.acquireSession(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	version, err := ss.device.GetVersion(ctx)
	if err != nil {
		return nil, err
	}
	fingerprint, err := ss.device.GetMasterFingerprint(ctx)
	if err != nil {
		return nil, err
	}

	info := newDeviceInfo(version, fingerprint, ss.network.Name)
	return &info, nil
}

func (ss *SignerService) GetXpub(
	ctx context.Context, keyPath string, display bool,
) (*XpubInfo, error) {
	derivationPath, err := path.ParseAbsoluteDerivationPath(keyPath)
	if err != nil {
		return nil, err
	}

	release, err := ss.acquireSession(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	key, origin, err := ss.getKeyInfo(ctx, derivationPath, display)
	if err != nil {
		return nil, err
	}

	info := newXpubInfo(derivationPath.String(), key, origin)
	return &info, nil
}

// RegisterWallet registers the named policy on the device and stores the
// returned hmac. Keys are in key origin notation.
func (ss *SignerService) RegisterWallet(
	ctx context.Context, name, descriptorTemplate string, keys []string,
) (*WalletInfo, error) {
	if len(name) <= 0 {
		return nil, ErrMissingWalletName
	}

	keyInfos := make([]policy.KeyInfo, 0, len(keys))
	for _, k := range keys {
		key, err := policy.ParseKeyInfo(k)
		if err != nil {
			return nil, err
		}
		keyInfos = append(keyInfos, *key)
	}
	walletPolicy, err := policy.New(name, descriptorTemplate, keyInfos)
	if err != nil {
		return nil, err
	}

	repo := ss.repoManager.WalletRepository()
	if _, err := repo.GetWallet(ctx, name); err == nil {
		return nil, ErrWalletAlreadyExists
	} else if !errors.Is(err, domain.ErrWalletNotFound) {
		return nil, err
	}

	release, err := ss.acquireSession(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	fingerprint, err := ss.device.GetMasterFingerprint(ctx)
	if err != nil {
		return nil, err
	}
	_, hmac, err := ss.device.RegisterWallet(ctx, walletPolicy)
	if err != nil {
		return nil, err
	}

	wallet, err := domain.NewWallet(walletPolicy, hmac, fingerprint)
	if err != nil {
		return nil, err
	}
	done, err := repo.AddWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if !done {
		return nil, ErrWalletAlreadyExists
	}

	info := WalletInfo(*wallet)
	return &info, nil
}

func (ss *SignerService) DeriveAddress(
	ctx context.Context, walletName string, change bool, index uint32,
	display bool,
) (string, error) {
	walletPolicy, hmac, err := ss.getRegisteredPolicy(ctx, walletName)
	if err != nil {
		return "", err
	}

	release, err := ss.acquireSession(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if err := ss.checkDevice(ctx, walletName); err != nil {
		return "", err
	}

	addr, err := ss.device.GetWalletAddress(
		ctx, walletPolicy, hmac, change, index, display,
	)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// DeriveDefaultAddress derives an address of the standard account of the
// given default template, for example wpkh(@0/**) for m/84'/coin'/account'.
func (ss *SignerService) DeriveDefaultAddress(
	ctx context.Context, template string, account uint32, change bool,
	index uint32, display bool,
) (string, error) {
	release, err := ss.acquireSession(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	walletPolicy, err := ss.getDefaultPolicy(ctx, template, account)
	if err != nil {
		return "", err
	}

	addr, err := ss.device.GetWalletAddress(
		ctx, walletPolicy, nil, change, index, display,
	)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// SignPsbt signs the base64 encoded PSBT with the named registered wallet
// and returns it with the device's signatures added.
func (ss *SignerService) SignPsbt(
	ctx context.Context, walletName, encodedPsbt string,
) (*SignedPsbtInfo, error) {
	packet, err := ss.decodePsbt(encodedPsbt)
	if err != nil {
		return nil, err
	}
	walletPolicy, hmac, err := ss.getRegisteredPolicy(ctx, walletName)
	if err != nil {
		return nil, err
	}

	release, err := ss.acquireSession(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := ss.checkDevice(ctx, walletName); err != nil {
		return nil, err
	}

	return ss.signPsbt(ctx, packet, walletPolicy, hmac)
}

// SignPsbtWithDefault is like SignPsbt for the standard account of a
// default template.
func (ss *SignerService) SignPsbtWithDefault(
	ctx context.Context, template string, account uint32, encodedPsbt string,
) (*SignedPsbtInfo, error) {
	packet, err := ss.decodePsbt(encodedPsbt)
	if err != nil {
		return nil, err
	}

	release, err := ss.acquireSession(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	walletPolicy, err := ss.getDefaultPolicy(ctx, template, account)
	if err != nil {
		return nil, err
	}

	return ss.signPsbt(ctx, packet, walletPolicy, nil)
}

func (ss *SignerService) SignMessage(
	ctx context.Context, keyPath, message string,
) (*MessageSignatureInfo, error) {
	derivationPath, err := path.ParseAbsoluteDerivationPath(keyPath)
	if err != nil {
		return nil, err
	}

	release, err := ss.acquireSession(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	sig, err := ss.device.SignMessage(ctx, derivationPath, []byte(message))
	if err != nil {
		return nil, err
	}

	info := newMessageSignatureInfo(sig)
	return &info, nil
}

// acquireSession blocks until no other operation is talking to the device
// or the context is done.
func (ss *SignerService) acquireSession(
	ctx context.Context,
) (func(), error) {
	select {
	case ss.session <- struct{}{}:
		return func() { <-ss.session }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (ss *SignerService) signPsbt(
	ctx context.Context, packet *psbt.Packet,
	walletPolicy *policy.WalletPolicy, hmac *[32]byte,
) (*SignedPsbtInfo, error) {
	sigs, err := ss.device.SignPsbt(ctx, packet, walletPolicy, hmac)
	if err != nil {
		return nil, err
	}
	if err := client.FillPsbt(packet, sigs); err != nil {
		return nil, err
	}

	encoded, err := packet.B64Encode()
	if err != nil {
		return nil, err
	}
	ss.log("signed %d input(s) with wallet %q", len(sigs), walletPolicy.Name())

	return &SignedPsbtInfo{
		Psbt:       encoded,
		Signatures: len(sigs),
	}, nil
}

func (ss *SignerService) getRegisteredPolicy(
	ctx context.Context, walletName string,
) (*policy.WalletPolicy, *[32]byte, error) {
	if len(walletName) <= 0 {
		return nil, nil, ErrMissingWalletName
	}
	w, err := ss.repoManager.WalletRepository().GetWallet(ctx, walletName)
	if err != nil {
		return nil, nil, err
	}
	walletPolicy, err := w.Policy()
	if err != nil {
		return nil, nil, err
	}
	hmac, err := w.HmacBytes()
	if err != nil {
		return nil, nil, err
	}
	return walletPolicy, hmac, nil
}

// checkDevice makes sure the connected device is the one the named wallet
// was registered on. Must be called with the session lock held.
func (ss *SignerService) checkDevice(
	ctx context.Context, walletName string,
) error {
	w, err := ss.repoManager.WalletRepository().GetWallet(ctx, walletName)
	if err != nil {
		return err
	}
	fingerprint, err := ss.device.GetMasterFingerprint(ctx)
	if err != nil {
		return err
	}
	if !w.IsRegisteredOn(fingerprint) {
		return ErrWalletNotRegisteredOnDevice
	}
	return nil
}

// getDefaultPolicy must be called with the session lock held.
func (ss *SignerService) getDefaultPolicy(
	ctx context.Context, template string, account uint32,
) (*policy.WalletPolicy, error) {
	purpose, ok := purposeByTemplate[template]
	if !ok {
		return nil, ErrUnknownDefaultTemplate
	}
	accountPath := path.DerivationPath{
		purpose + hdkeychain.HardenedKeyStart,
		ss.network.HDCoinType + hdkeychain.HardenedKeyStart,
		account + hdkeychain.HardenedKeyStart,
	}

	_, key, err := ss.getKeyInfo(ctx, accountPath, false)
	if err != nil {
		return nil, err
	}
	return policy.NewDefault(template, *key)
}

func (ss *SignerService) getKeyInfo(
	ctx context.Context, derivationPath path.DerivationPath, display bool,
) (*hdkeychain.ExtendedKey, *policy.KeyInfo, error) {
	fingerprint, err := ss.device.GetMasterFingerprint(ctx)
	if err != nil {
		return nil, nil, err
	}
	key, err := ss.device.GetExtendedPubkey(ctx, derivationPath, display)
	if err != nil {
		return nil, nil, err
	}
	origin, err := policy.NewKeyInfo(fingerprint, derivationPath, key.String())
	if err != nil {
		return nil, nil, err
	}
	return key, origin, nil
}

func (ss *SignerService) registerHandlerForWalletEvents() {
	ss.repoManager.RegisterHandlerForWalletEvent(
		domain.WalletRegistered, func(event domain.WalletEvent) {
			ss.log(
				"registered wallet %q with id %s", event.Wallet.Name, event.Wallet.ID,
			)
		},
	)
	ss.repoManager.RegisterHandlerForWalletEvent(
		domain.WalletDeleted, func(event domain.WalletEvent) {
			ss.log("deleted wallet %q", event.Wallet.Name)
		},
	)
}

func (ss *SignerService) decodePsbt(encoded string) (*psbt.Packet, error) {
	packet, err := psbt.NewFromRawBytes(
		strings.NewReader(strings.TrimSpace(encoded)), true,
	)
	if err != nil {
		ss.warn(err, "failed to decode psbt")
		return nil, client.NewInvalidPsbtError()
	}
	return packet, nil
}
