package strategy

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/store"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/walleterr"
)

// TargetFactory builds a fresh Driver for one wallet's own target
// database, e.g. a per-wallet sqlite file path derived from walletID.
type TargetFactory func(walletID string) store.Driver

// RunMWSTAsStores migrates many wallets sharing one legacy table into one
// brand-new Askar store per wallet. If allowMissingWallet is set, wallets
// absent from the source proceed as a soft MissingWallet condition rather
// than a hard WalletAlignment failure, and legacy-store deletion is always
// suppressed in that case. Legacy rows are never deleted mid-flight — the
// table is shared by wallets this run does not touch.
func RunMWSTAsStores(ctx context.Context, source store.Driver, wallets map[string]string, allowMissingWallet, deleteRequested bool, newTarget TargetFactory) (map[string]*Result, []*walleterr.Error, error) {
	if err := source.Connect(ctx); err != nil {
		return nil, nil, err
	}
	if _, err := source.PreUpgrade(ctx); err != nil {
		return nil, nil, err
	}
	present, err := source.ListWalletIDs(ctx)
	if err != nil {
		return nil, nil, err
	}
	presentSet := make(map[string]bool, len(present))
	for _, id := range present {
		presentSet[id] = true
	}

	var missing []string
	for id := range wallets {
		if !presentSet[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 && !allowMissingWallet {
		return nil, nil, walleterr.New(walleterr.WalletAlignment, fmt.Sprintf("declared wallets not present in source: %v", missing))
	}
	var softErrors []*walleterr.Error
	for _, id := range missing {
		soft := walleterr.New(walleterr.MissingWallet, fmt.Sprintf("declared wallet not present in source: %s", id))
		log.Warn("declared wallet not present in source, skipping", "wallet_id", id, "err", soft)
		softErrors = append(softErrors, soft)
	}
	suppressDelete := len(missing) > 0

	results := make(map[string]*Result, len(wallets))
	for id, passphrase := range wallets {
		if !presentSet[id] {
			continue
		}
		target := newTarget(id)
		result, err := MigrateWallet(ctx, source, target, Fresh, WalletSpec{
			SourceWalletID: id,
			ProfileName:    id,
			Passphrase:     passphrase,
			DefaultProfile: true,
			RetainSource:   true,
		})
		if err != nil {
			return results, softErrors, err
		}
		results[id] = result
	}

	if deleteRequested && !suppressDelete {
		if err := source.DeleteLegacyStore(ctx); err != nil {
			return results, softErrors, err
		}
	}
	return results, softErrors, nil
}
