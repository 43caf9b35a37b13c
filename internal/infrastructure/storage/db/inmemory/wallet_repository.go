package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vulpemventures/ledger-bitcoin/internal/core/domain"
)

type walletInmemoryStore struct {
	wallets map[string]domain.Wallet
	lock    *sync.RWMutex
}

type walletRepository struct {
	store            *walletInmemoryStore
	chEvents         chan domain.WalletEvent
	externalChEvents chan domain.WalletEvent
	chLock           *sync.Mutex
	closed           bool
}

func NewWalletRepository() domain.WalletRepository {
	return newWalletRepository()
}

func newWalletRepository() *walletRepository {
	return &walletRepository{
		store: &walletInmemoryStore{
			wallets: make(map[string]domain.Wallet),
			lock:    &sync.RWMutex{},
		},
		chEvents:         make(chan domain.WalletEvent),
		externalChEvents: make(chan domain.WalletEvent),
		chLock:           &sync.Mutex{},
	}
}

func (r *walletRepository) AddWallet(
	ctx context.Context, wallet *domain.Wallet,
) (bool, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	if _, ok := r.store.wallets[wallet.Name]; ok {
		return false, nil
	}

	w := *wallet
	w.Keys = append([]string(nil), wallet.Keys...)
	r.store.wallets[wallet.Name] = w

	go r.publishEvent(domain.WalletEvent{
		EventType: domain.WalletRegistered,
		Wallet:    w,
	})

	return true, nil
}

func (r *walletRepository) GetWallet(
	ctx context.Context, name string,
) (*domain.Wallet, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	w, ok := r.store.wallets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, name)
	}
	return &w, nil
}

func (r *walletRepository) GetAllWallets(
	ctx context.Context,
) ([]domain.Wallet, error) {
	r.store.lock.RLock()
	defer r.store.lock.RUnlock()

	list := make([]domain.Wallet, 0, len(r.store.wallets))
	for _, w := range r.store.wallets {
		list = append(list, w)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list, nil
}

func (r *walletRepository) DeleteWallet(
	ctx context.Context, name string,
) (bool, error) {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	w, ok := r.store.wallets[name]
	if !ok {
		return false, nil
	}
	delete(r.store.wallets, name)

	go r.publishEvent(domain.WalletEvent{
		EventType: domain.WalletDeleted,
		Wallet:    w,
	})

	return true, nil
}

func (r *walletRepository) GetEventChannel() chan domain.WalletEvent {
	return r.externalChEvents
}

func (r *walletRepository) publishEvent(event domain.WalletEvent) {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	// events published after close are dropped.
	if r.closed {
		return
	}

	r.chEvents <- event
	// send over channel without blocking in case nobody is listening.
	select {
	case r.externalChEvents <- event:
	default:
	}
}

func (r *walletRepository) reset() {
	r.store.lock.Lock()
	defer r.store.lock.Unlock()

	r.store.wallets = make(map[string]domain.Wallet)
}

func (r *walletRepository) close() {
	r.chLock.Lock()
	defer r.chLock.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	close(r.chEvents)
	close(r.externalChEvents)
}
