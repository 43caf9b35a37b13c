package application

import (
	"context"
	"fmt"

	"github.com/vulpemventures/ledger-bitcoin/internal/core/domain"
	"github.com/vulpemventures/ledger-bitcoin/internal/core/ports"
)

// WalletService is responsible for the registered wallets stored locally.
// None of its operations involve the device: registration happens through
// the SignerService.
type WalletService struct {
	repoManager ports.RepoManager
}

func NewWalletService(repoManager ports.RepoManager) *WalletService {
	return &WalletService{repoManager}
}

func (ws *WalletService) GetWallet(
	ctx context.Context, name string,
) (*WalletInfo, error) {
	w, err := ws.repoManager.WalletRepository().GetWallet(ctx, name)
	if err != nil {
		return nil, err
	}
	info := WalletInfo(*w)
	return &info, nil
}

func (ws *WalletService) ListWallets(ctx context.Context) (WalletsInfo, error) {
	wallets, err := ws.repoManager.WalletRepository().GetAllWallets(ctx)
	if err != nil {
		return nil, err
	}
	info := make(WalletsInfo, 0, len(wallets))
	for _, w := range wallets {
		info = append(info, WalletInfo(w))
	}
	return info, nil
}

// DeleteWallet forgets the hmac of the named wallet. The device keeps no
// record of registrations, nothing is sent to it.
func (ws *WalletService) DeleteWallet(ctx context.Context, name string) error {
	done, err := ws.repoManager.WalletRepository().DeleteWallet(ctx, name)
	if err != nil {
		return err
	}
	if !done {
		return fmt.Errorf("%w: %s", domain.ErrWalletNotFound, name)
	}
	return nil
}
