package domain

import (
	"context"
)

const (
	WalletRegistered WalletEventType = iota
	WalletDeleted
)

var (
	walletTypeString = map[WalletEventType]string{
		WalletRegistered: "WalletRegistered",
		WalletDeleted:    "WalletDeleted",
	}
)

type WalletEventType int

func (t WalletEventType) String() string {
	return walletTypeString[t]
}

// WalletEvent holds info about an event occured within the repository.
type WalletEvent struct {
	EventType WalletEventType
	Wallet    Wallet
}

// WalletRepository is the abstraction for any kind of database intended to
// persist the wallets registered on the device.
type WalletRepository interface {
	// AddWallet stores a new Wallet if none with the same name exists yet.
	// Generates a WalletRegistered event if successfull.
	AddWallet(ctx context.Context, wallet *Wallet) (bool, error)
	// GetWallet returns the wallet with the given name, if existing.
	GetWallet(ctx context.Context, name string) (*Wallet, error)
	// GetAllWallets returns all the stored wallets.
	GetAllWallets(ctx context.Context) ([]Wallet, error)
	// DeleteWallet deletes the wallet with the given name.
	// Generates a WalletDeleted event if successfull.
	DeleteWallet(ctx context.Context, name string) (bool, error)
	// GetEventChannel returns the channel of WalletEvents.
	GetEventChannel() chan WalletEvent
}
