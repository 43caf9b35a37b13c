package db_test

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/vulpemventures/ledger-bitcoin/internal/core/domain"
)

const (
	tpub0 = "tpubD6NzVbkrYhZ4XgiXtGrdW5XDAPFCL9h7we1vwNCpn8tGbBcgfVYjXyhWo4E1xkh56hjod1RhGjxbaTLV3X4FyWuejifB9jusQ46QzG87VKp"
	tpub1 = "tpubD8eQVK4Kdxg3gHrF62jGP7dKVCoYiEB8dFSpuTawkL5YxTus5j5pf83vaKnii4bc6v2NVEy81P2gYrJczYne3QNNwMTS53p5uzDyHvnw2jm"
)

func randomWallet(name string) *domain.Wallet {
	return &domain.Wallet{
		Name:               name,
		ID:                 randomHex(32),
		DescriptorTemplate: "wsh(sortedmulti(2,@0/**,@1/**))",
		Keys: []string{
			fmt.Sprintf("[%s/48'/1'/0'/2']%s", randomHex(4), tpub0),
			fmt.Sprintf("[%s/48'/1'/0'/2']%s", randomHex(4), tpub1),
		},
		Hmac:              randomHex(32),
		MasterFingerprint: randomHex(4),
		RegisteredAt:      1700000000,
	}
}

func randomHex(len int) string {
	return hex.EncodeToString(randomBytes(len))
}

func randomBytes(len int) []byte {
	b := make([]byte, len)
	// nolint
	rand.Read(b)
	return b
}
