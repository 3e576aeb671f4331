package strategy

import (
	"context"

	"github.com/hyperledger/aries-wallet-upgrade-go/internal/store"
)

// RunDBPW migrates a single database-per-wallet deployment in place: the
// same driver serves as both source and target. It takes no deletion
// option: there is no separate legacy file left to remove once
// FinishUpgrade has dropped the legacy tables inside the same database.
func RunDBPW(ctx context.Context, driver store.Driver, walletName, passphrase string) (*Result, error) {
	return MigrateWallet(ctx, driver, driver, InPlace, WalletSpec{
		ProfileName:    walletName,
		Passphrase:     passphrase,
		DefaultProfile: true,
	})
}
