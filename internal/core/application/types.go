package application

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/vulpemventures/ledger-bitcoin/internal/core/domain"
	"github.com/vulpemventures/ledger-bitcoin/pkg/client"
	"github.com/vulpemventures/ledger-bitcoin/pkg/wallet/policy"
)

var (
	ErrWalletAlreadyExists         = fmt.Errorf("wallet already registered")
	ErrWalletNotRegisteredOnDevice = fmt.Errorf("wallet was registered on another device")
	ErrUnknownDefaultTemplate      = fmt.Errorf("unknown default template")
	ErrMissingWalletName           = fmt.Errorf("missing wallet name")
)

// purposeByTemplate maps the default templates to the BIP44 purpose of
// their standard account path.
var purposeByTemplate = map[string]uint32{
	policy.TemplateLegacy:       44,
	policy.TemplateNestedSegwit: 49,
	policy.TemplateNativeSegwit: 84,
	policy.TemplateTaproot:      86,
}

type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

type DeviceInfo struct {
	AppName           string
	AppVersion        string
	AppFlags          string
	MasterFingerprint string
	Network           string
}

func newDeviceInfo(
	version *client.AppVersion, fingerprint [4]byte, network string,
) DeviceInfo {
	return DeviceInfo{
		AppName:           version.Name,
		AppVersion:        version.Version,
		AppFlags:          hex.EncodeToString(version.Flags),
		MasterFingerprint: hex.EncodeToString(fingerprint[:]),
		Network:           network,
	}
}

type WalletInfo domain.Wallet

type WalletsInfo []WalletInfo

func (i WalletsInfo) Names() []string {
	names := make([]string, 0, len(i))
	for _, w := range i {
		names = append(names, w.Name)
	}
	return names
}

type XpubInfo struct {
	Path string
	Xpub string
	// Key is the xpub in key origin notation, ready to be used as key of a
	// wallet policy.
	Key string
}

func newXpubInfo(
	keyPath string, key *hdkeychain.ExtendedKey, origin *policy.KeyInfo,
) XpubInfo {
	return XpubInfo{
		Path: keyPath,
		Xpub: key.String(),
		Key:  origin.String(),
	}
}

type MessageSignatureInfo struct {
	Signature string
	PubKey    string
}

func newMessageSignatureInfo(sig *client.MessageSignature) MessageSignatureInfo {
	var pubkey string
	if sig.PubKey != nil {
		pubkey = hex.EncodeToString(sig.PubKey.SerializeCompressed())
	}
	return MessageSignatureInfo{
		Signature: sig.Base64(),
		PubKey:    pubkey,
	}
}

type SignedPsbtInfo struct {
	Psbt       string
	Signatures int
}
