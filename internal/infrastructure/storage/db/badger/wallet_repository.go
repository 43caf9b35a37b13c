package dbbadger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"
	"github.com/vulpemventures/ledger-bitcoin/internal/core/domain"
)

type walletRepository struct {
	store    *badgerhold.Store
	chEvents chan domain.WalletEvent
	lock     *sync.Mutex
	closed   bool

	log func(format string, a ...interface{})
}

func NewWalletRepository(store *badgerhold.Store) domain.WalletRepository {
	return newWalletRepository(store)
}

func newWalletRepository(store *badgerhold.Store) *walletRepository {
	chEvents := make(chan domain.WalletEvent)
	lock := &sync.Mutex{}
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("wallet repository: %s", format)
		log.Debugf(format, a...)
	}
	return &walletRepository{store, chEvents, lock, false, logFn}
}

func (r *walletRepository) AddWallet(
	ctx context.Context, wallet *domain.Wallet,
) (bool, error) {
	done, err := r.insertWallet(ctx, wallet)
	if err != nil {
		return false, err
	}

	if done {
		go r.publishEvent(domain.WalletEvent{
			EventType: domain.WalletRegistered,
			Wallet:    *wallet,
		})
	}

	return done, nil
}

func (r *walletRepository) GetWallet(
	ctx context.Context, name string,
) (*domain.Wallet, error) {
	var wallet domain.Wallet
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxGet(tx, name, &wallet)
	} else {
		err = r.store.Get(name, &wallet)
	}
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", domain.ErrWalletNotFound, name)
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *walletRepository) GetAllWallets(
	ctx context.Context,
) ([]domain.Wallet, error) {
	query := &badgerhold.Query{}
	return r.findWallets(ctx, query)
}

func (r *walletRepository) DeleteWallet(
	ctx context.Context, name string,
) (bool, error) {
	wallet, err := r.GetWallet(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrWalletNotFound) {
			return false, nil
		}
		return false, err
	}

	done, err := r.deleteWallet(ctx, name)
	if err != nil {
		return false, err
	}
	if done {
		go r.publishEvent(domain.WalletEvent{
			EventType: domain.WalletDeleted,
			Wallet:    *wallet,
		})
	}

	return done, nil
}

func (r *walletRepository) GetEventChannel() chan domain.WalletEvent {
	return r.chEvents
}

func (r *walletRepository) insertWallet(
	ctx context.Context, wallet *domain.Wallet,
) (bool, error) {
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxInsert(tx, wallet.Name, *wallet)
	} else {
		err = r.store.Insert(wallet.Name, *wallet)
	}

	if err != nil {
		if err == badgerhold.ErrKeyExists {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (r *walletRepository) findWallets(
	ctx context.Context, query *badgerhold.Query,
) ([]domain.Wallet, error) {
	var list []domain.Wallet
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxFind(tx, &list, query)
	} else {
		err = r.store.Find(&list, query)
	}
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return list, nil
}

func (r *walletRepository) deleteWallet(
	ctx context.Context, name string,
) (bool, error) {
	var err error
	if ctx.Value("tx") != nil {
		tx := ctx.Value("tx").(*badger.Txn)
		err = r.store.TxDelete(tx, name, domain.Wallet{})
	} else {
		err = r.store.Delete(name, domain.Wallet{})
	}
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *walletRepository) publishEvent(event domain.WalletEvent) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		r.log("repository closed, drop event %s", event.EventType)
		return
	}

	r.log("publish event %s", event.EventType)
	r.chEvents <- event
}

func (r *walletRepository) reset() {
	r.store.Badger().DropAll()
}

func (r *walletRepository) close() {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	close(r.chEvents)
	r.store.Close()
}
