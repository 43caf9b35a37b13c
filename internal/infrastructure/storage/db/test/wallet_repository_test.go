package db_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/ledger-bitcoin/internal/core/domain"
	"github.com/vulpemventures/ledger-bitcoin/internal/core/ports"
	dbbadger "github.com/vulpemventures/ledger-bitcoin/internal/infrastructure/storage/db/badger"
	"github.com/vulpemventures/ledger-bitcoin/internal/infrastructure/storage/db/inmemory"
)

var ctx = context.Background()

func TestWalletRepository(t *testing.T) {
	repoManagers, err := newRepoManagers()
	require.NoError(t, err)

	for name, rm := range repoManagers {
		rm := rm
		t.Run(name, func(t *testing.T) {
			defer rm.Close()

			events := newEventRecorder()
			rm.RegisterHandlerForWalletEvent(domain.WalletRegistered, events.record)
			rm.RegisterHandlerForWalletEvent(domain.WalletDeleted, events.record)

			testManageWallets(t, rm.WalletRepository())

			require.Eventually(t, func() bool {
				return events.count(domain.WalletRegistered) == 2 &&
					events.count(domain.WalletDeleted) == 1
			}, 2*time.Second, 10*time.Millisecond)

			rm.Reset()
			wallets, err := rm.WalletRepository().GetAllWallets(ctx)
			require.NoError(t, err)
			require.Empty(t, wallets)
		})
	}
}

func TestCloseAfterWrite(t *testing.T) {
	repoManagers, err := newRepoManagers()
	require.NoError(t, err)

	for name, rm := range repoManagers {
		rm := rm
		t.Run(name, func(t *testing.T) {
			repo := rm.WalletRepository()

			done, err := repo.AddWallet(ctx, randomWallet("cold storage"))
			require.NoError(t, err)
			require.True(t, done)
			done, err = repo.AddWallet(ctx, randomWallet("hot"))
			require.NoError(t, err)
			require.True(t, done)

			require.NotPanics(t, rm.Close)
			require.NotPanics(t, rm.Close)

			// Let the pending publishers run against the closed repository.
			time.Sleep(50 * time.Millisecond)
		})
	}
}

func testManageWallets(t *testing.T, repo domain.WalletRepository) {
	cold := randomWallet("cold storage")
	hot := randomWallet("hot")

	t.Run("add_wallet", func(t *testing.T) {
		wallet, err := repo.GetWallet(ctx, cold.Name)
		require.ErrorIs(t, err, domain.ErrWalletNotFound)
		require.Nil(t, wallet)

		done, err := repo.AddWallet(ctx, cold)
		require.NoError(t, err)
		require.True(t, done)

		done, err = repo.AddWallet(ctx, cold)
		require.NoError(t, err)
		require.False(t, done)

		done, err = repo.AddWallet(ctx, hot)
		require.NoError(t, err)
		require.True(t, done)

		wallet, err = repo.GetWallet(ctx, cold.Name)
		require.NoError(t, err)
		require.NotNil(t, wallet)
		require.Exactly(t, *cold, *wallet)
	})

	t.Run("list_wallets", func(t *testing.T) {
		wallets, err := repo.GetAllWallets(ctx)
		require.NoError(t, err)
		require.Len(t, wallets, 2)

		names := []string{wallets[0].Name, wallets[1].Name}
		require.ElementsMatch(t, []string{cold.Name, hot.Name}, names)
	})

	t.Run("delete_wallet", func(t *testing.T) {
		done, err := repo.DeleteWallet(ctx, hot.Name)
		require.NoError(t, err)
		require.True(t, done)

		done, err = repo.DeleteWallet(ctx, hot.Name)
		require.NoError(t, err)
		require.False(t, done)

		_, err = repo.GetWallet(ctx, hot.Name)
		require.ErrorIs(t, err, domain.ErrWalletNotFound)
	})
}

func newRepoManagers() (map[string]ports.RepoManager, error) {
	badgerRepoManager, err := dbbadger.NewRepoManager("", nil)
	if err != nil {
		return nil, err
	}
	return map[string]ports.RepoManager{
		"inmemory": inmemory.NewRepoManager(),
		"badger":   badgerRepoManager,
	}, nil
}

type eventRecorder struct {
	lock   *sync.Mutex
	counts map[domain.WalletEventType]int
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{
		lock:   &sync.Mutex{},
		counts: make(map[domain.WalletEventType]int),
	}
}

func (r *eventRecorder) record(event domain.WalletEvent) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.counts[event.EventType]++
}

func (r *eventRecorder) count(eventType domain.WalletEventType) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.counts[eventType]
}
