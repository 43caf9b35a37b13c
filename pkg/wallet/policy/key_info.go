package policy

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	path "github.com/vulpemventures/ledger-bitcoin/pkg/wallet/derivation-path"
)

var keyOriginRegexp = regexp.MustCompile(`^\[([0-9a-fA-F]{8})((?:/[0-9]+['h]?)*)\](.+)$`)

// KeyInfo is a key of a wallet policy, optionally with its origin: the
// fingerprint of the master key and the path used to derive it.
type KeyInfo struct {
	Fingerprint *[4]byte
	Path        path.DerivationPath
	Xpub        string
}

// NewKeyInfo returns the key info of an extended public key derived at
// the given path from the master key with the given fingerprint.
func NewKeyInfo(
	fingerprint [4]byte, derivationPath path.DerivationPath, xpub string,
) (*KeyInfo, error) {
	if err := validateXpub(xpub); err != nil {
		return nil, err
	}
	fp := fingerprint
	p := make(path.DerivationPath, len(derivationPath))
	copy(p, derivationPath)
	return &KeyInfo{&fp, p, xpub}, nil
}

// ParseKeyInfo parses the key info in descriptor notation, for example
// [f5acc2fd/84'/1'/0']tpubDC...
func ParseKeyInfo(s string) (*KeyInfo, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKeyInfo
	}

	if !strings.HasPrefix(s, "[") {
		if err := validateXpub(s); err != nil {
			return nil, err
		}
		return &KeyInfo{Xpub: s}, nil
	}

	matches := keyOriginRegexp.FindStringSubmatch(s)
	if matches == nil {
		return nil, ErrInvalidKeyInfo
	}

	var fp [4]byte
	if _, err := hex.Decode(fp[:], []byte(matches[1])); err != nil {
		return nil, ErrInvalidKeyInfo
	}

	p := path.DerivationPath{}
	if matches[2] != "" {
		parsed, err := path.ParseDerivationPath("m" + matches[2])
		if err != nil {
			return nil, fmt.Errorf("invalid key origin: %w", err)
		}
		p = parsed
	}

	xpub := matches[3]
	if err := validateXpub(xpub); err != nil {
		return nil, err
	}

	return &KeyInfo{&fp, p, xpub}, nil
}

// String returns the key info in descriptor notation.
func (k KeyInfo) String() string {
	if k.Fingerprint == nil {
		return k.Xpub
	}
	origin := strings.TrimPrefix(k.Path.String(), "m")
	return fmt.Sprintf("[%x%s]%s", k.Fingerprint[:], origin, k.Xpub)
}

func validateXpub(xpub string) error {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidKeyInfo, err)
	}
	if key.IsPrivate() {
		return ErrPrivateKey
	}
	return nil
}
