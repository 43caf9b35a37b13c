package domain

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/vulpemventures/ledger-bitcoin/pkg/wallet/policy"
)

var (
	ErrWalletMissingName   = fmt.Errorf("missing wallet name")
	ErrWalletMissingPolicy = fmt.Errorf("missing wallet policy")
	ErrWalletInvalidHmac   = fmt.Errorf("hmac must be a 32-byte hex string")
	ErrWalletInvalidID     = fmt.Errorf("wallet id does not match its policy")
	ErrWalletNotFound      = fmt.Errorf("wallet not found")
)

// Wallet is a wallet policy registered on a device. The hmac returned by the
// device at registration is what proves the registration when the policy is
// used later on.
type Wallet struct {
	Name               string
	ID                 string
	DescriptorTemplate string
	Keys               []string
	Hmac               string
	MasterFingerprint  string
	RegisteredAt       int64
}

// NewWallet returns the record of a policy registered on the device with the
// given master fingerprint.
func NewWallet(
	walletPolicy *policy.WalletPolicy, hmac [32]byte, fingerprint [4]byte,
) (*Wallet, error) {
	if walletPolicy == nil {
		return nil, ErrWalletMissingPolicy
	}
	if walletPolicy.Name() == "" {
		return nil, ErrWalletMissingName
	}

	keys := make([]string, 0, len(walletPolicy.Keys()))
	for _, k := range walletPolicy.Keys() {
		keys = append(keys, k.String())
	}
	id := walletPolicy.ID()

	return &Wallet{
		Name:               walletPolicy.Name(),
		ID:                 hex.EncodeToString(id[:]),
		DescriptorTemplate: walletPolicy.DescriptorTemplate(),
		Keys:               keys,
		Hmac:               hex.EncodeToString(hmac[:]),
		MasterFingerprint:  hex.EncodeToString(fingerprint[:]),
		RegisteredAt:       time.Now().Unix(),
	}, nil
}

// Policy rebuilds the wallet policy and checks it still matches the
// registered id.
func (w *Wallet) Policy() (*policy.WalletPolicy, error) {
	keys := make([]policy.KeyInfo, 0, len(w.Keys))
	for _, k := range w.Keys {
		key, err := policy.ParseKeyInfo(k)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}

	p, err := policy.New(w.Name, w.DescriptorTemplate, keys)
	if err != nil {
		return nil, err
	}

	id := p.ID()
	if hex.EncodeToString(id[:]) != w.ID {
		return nil, ErrWalletInvalidID
	}
	return p, nil
}

func (w *Wallet) HmacBytes() (*[32]byte, error) {
	buf, err := hex.DecodeString(w.Hmac)
	if err != nil || len(buf) != 32 {
		return nil, ErrWalletInvalidHmac
	}
	var hmac [32]byte
	copy(hmac[:], buf)
	return &hmac, nil
}

// IsRegisteredOn returns whether the wallet was registered on the device
// with the given master fingerprint. The hmac of a registration is only
// valid for the device that produced it.
func (w *Wallet) IsRegisteredOn(fingerprint [4]byte) bool {
	return w.MasterFingerprint == hex.EncodeToString(fingerprint[:])
}
