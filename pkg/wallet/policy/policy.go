// Package policy implements the wallet policies the device registers and
// signs for: a descriptor template with @N key placeholders plus the list of
// keys that replace them.
package policy

import (
	"bytes"
	"regexp"
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/vulpemventures/ledger-bitcoin/pkg/merkle"
)

const (
	// Version is the wallet policy serialization version.
	Version byte = 0x02

	MaxNameLength = 64
	MaxKeys       = 252
)

// Templates of the single-signature policies the device knows without
// registration.
const (
	TemplateLegacy       = "pkh(@0/**)"
	TemplateNestedSegwit = "sh(wpkh(@0/**))"
	TemplateNativeSegwit = "wpkh(@0/**)"
	TemplateTaproot      = "tr(@0/**)"
)

var (
	placeholderRegexp = regexp.MustCompile(`@([0-9]+)`)

	defaultTemplates = map[string]struct{}{
		TemplateLegacy:       {},
		TemplateNestedSegwit: {},
		TemplateNativeSegwit: {},
		TemplateTaproot:      {},
	}
)

// WalletPolicy is an immutable wallet policy. Use New or NewDefault.
type WalletPolicy struct {
	name               string
	descriptorTemplate string
	keys               []KeyInfo
}

// New returns a named wallet policy after checking that every key
// placeholder of the template matches one of the given keys.
func New(name, descriptorTemplate string, keys []KeyInfo) (*WalletPolicy, error) {
	if len(name) > MaxNameLength {
		return nil, ErrNameTooLong
	}
	if descriptorTemplate == "" {
		return nil, ErrMissingTemplate
	}
	if len(keys) == 0 {
		return nil, ErrMissingKeys
	}
	if len(keys) > MaxKeys {
		return nil, ErrTooManyKeys
	}

	used := make([]bool, len(keys))
	for _, m := range placeholderRegexp.FindAllStringSubmatch(descriptorTemplate, -1) {
		i, err := strconv.Atoi(m[1])
		if err != nil || i >= len(keys) {
			return nil, ErrInvalidPlaceholder
		}
		used[i] = true
	}
	for _, u := range used {
		if !u {
			return nil, ErrUnusedKey
		}
	}

	k := make([]KeyInfo, len(keys))
	copy(k, keys)
	return &WalletPolicy{name, descriptorTemplate, k}, nil
}

// NewDefault returns the unnamed single-signature policy with the given
// standard template.
func NewDefault(template string, key KeyInfo) (*WalletPolicy, error) {
	if _, ok := defaultTemplates[template]; !ok {
		return nil, ErrUnsupportedDefault
	}
	return New("", template, []KeyInfo{key})
}

func (p *WalletPolicy) Name() string {
	return p.name
}

func (p *WalletPolicy) DescriptorTemplate() string {
	return p.descriptorTemplate
}

func (p *WalletPolicy) Keys() []KeyInfo {
	k := make([]KeyInfo, len(p.keys))
	copy(k, p.keys)
	return k
}

// IsDefault returns whether the policy is a standard single-signature
// policy, which the device accepts without registration.
func (p *WalletPolicy) IsDefault() bool {
	_, ok := defaultTemplates[p.descriptorTemplate]
	return ok && p.name == "" && len(p.keys) == 1
}

// KeyElements returns the keys in descriptor notation, in the form they are
// committed to in the policy's merkle tree.
func (p *WalletPolicy) KeyElements() [][]byte {
	elements := make([][]byte, 0, len(p.keys))
	for _, k := range p.keys {
		elements = append(elements, []byte(k.String()))
	}
	return elements
}

// Serialize returns the serialization the device commits to:
// version | len(name) | name | varint(len(template)) | sha256(template) |
// varint(len(keys)) | keys merkle root.
func (p *WalletPolicy) Serialize() []byte {
	buf := bytes.NewBuffer(nil)
	buf.WriteByte(Version)
	buf.WriteByte(byte(len(p.name)))
	buf.WriteString(p.name)

	_ = wire.WriteVarInt(buf, 0, uint64(len(p.descriptorTemplate)))
	buf.Write(chainhash.HashB([]byte(p.descriptorTemplate)))

	_ = wire.WriteVarInt(buf, 0, uint64(len(p.keys)))
	keysRoot := merkle.FromElements(p.KeyElements()).Root()
	buf.Write(keysRoot[:])

	return buf.Bytes()
}

// ID returns the identifier of the policy, the sha256 of its serialization.
func (p *WalletPolicy) ID() [32]byte {
	return [32]byte(chainhash.HashH(p.Serialize()))
}
