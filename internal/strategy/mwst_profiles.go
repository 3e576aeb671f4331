package strategy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/askar"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/store"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/walleterr"
)

const (
	subStoreDefaultProfile = "default"
	walletRecordCategory   = "wallet_record"
)

// walletRecordValue is one tenant entry scanned out of the migrated base
// store's wallet_record category: the sub-wallet's own wallet_id and the
// passphrase its rows were encrypted under in the shared legacy table.
type walletRecordValue struct {
	WalletID string `json:"wallet_id"`
	Key      string `json:"wallet_key"`
}

// MWSTProfilesInput names the base (agency) wallet this run migrates.
type MWSTProfilesInput struct {
	BaseWalletID    string
	BaseProfileName string
	BasePassphrase  string
	DeleteRequested bool
}

// MWSTProfilesResult reports the base store, the sub store's seeded
// default profile, every discovered tenant's profile, and any source
// wallet_id left uncovered by a wallet_record entry.
type MWSTProfilesResult struct {
	Base       *Result
	SubDefault *Result
	Tenants    map[string]*Result
	Leftover   []string
}

// RunMWSTProfiles migrates a base wallet into baseDriver, then scans the
// migrated base store's wallet_record entries and migrates each named
// tenant into its own profile inside subDriver.
func RunMWSTProfiles(ctx context.Context, source, baseDriver, subDriver store.Driver, in MWSTProfilesInput) (*MWSTProfilesResult, error) {
	if err := source.Connect(ctx); err != nil {
		return nil, err
	}
	if _, err := source.PreUpgrade(ctx); err != nil {
		return nil, err
	}
	present, err := source.ListWalletIDs(ctx)
	if err != nil {
		return nil, err
	}

	baseResult, err := MigrateWallet(ctx, source, baseDriver, Fresh, WalletSpec{
		SourceWalletID: in.BaseWalletID,
		ProfileName:    in.BaseProfileName,
		Passphrase:     in.BasePassphrase,
		DefaultProfile: true,
	})
	if err != nil {
		return nil, err
	}

	defaultResult, err := seedSubDefaultProfile(ctx, subDriver, baseResult)
	if err != nil {
		return nil, err
	}

	records, err := scanWalletRecords(ctx, baseDriver, baseResult)
	if err != nil {
		return nil, err
	}

	covered := map[string]bool{in.BaseWalletID: true}
	tenants := make(map[string]*Result, len(records))
	for _, wr := range records {
		result, err := MigrateWallet(ctx, source, subDriver, Fresh, WalletSpec{
			SourceWalletID: wr.WalletID,
			ProfileName:    wr.WalletID,
			Passphrase:     wr.Key,
		})
		if err != nil {
			return nil, err
		}
		tenants[wr.WalletID] = result
		covered[wr.WalletID] = true
	}

	var leftover []string
	for _, id := range present {
		if !covered[id] {
			leftover = append(leftover, id)
		}
	}
	if len(leftover) > 0 {
		log.Warn("source wallet_id not covered by any wallet_record entry", "wallet_ids", fmt.Sprint(leftover))
	} else if in.DeleteRequested {
		if err := source.DeleteLegacyStore(ctx); err != nil {
			return nil, err
		}
	}

	return &MWSTProfilesResult{Base: baseResult, SubDefault: defaultResult, Tenants: tenants, Leftover: leftover}, nil
}

// seedSubDefaultProfile creates the sub store's "default" profile so
// downstream agents see a store that already has a profile before any
// tenant has been migrated into it. It shares the base wallet's pass-key
// and profile key — nothing is ever written under this profile, it only
// needs to exist.
func seedSubDefaultProfile(ctx context.Context, subDriver store.Driver, base *Result) (*Result, error) {
	if err := subDriver.Connect(ctx); err != nil {
		return nil, err
	}
	if err := subDriver.Bootstrap(ctx); err != nil {
		return nil, err
	}
	if err := subDriver.CreateConfig(ctx, base.PassKey, ""); err != nil {
		return nil, err
	}
	encKey, err := askar.EncryptProfileKey(base.ProfileKey, base.MasterKey)
	if err != nil {
		return nil, err
	}
	wallet, err := subDriver.GetWallet(ctx, "")
	if err != nil {
		return nil, err
	}
	id, err := wallet.InsertProfile(ctx, subStoreDefaultProfile, encKey)
	if err != nil {
		return nil, err
	}
	return &Result{ProfileID: id, ProfileKey: base.ProfileKey, PassKey: base.PassKey, MasterKey: base.MasterKey}, nil
}

func scanWalletRecords(ctx context.Context, baseDriver store.Driver, base *Result) ([]walletRecordValue, error) {
	askarStore, err := baseDriver.OpenAskarStore(ctx, base.ProfileID, base.ProfileKey)
	if err != nil {
		return nil, err
	}
	tx, err := askarStore.Transaction(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := tx.Scan(ctx, walletRecordCategory)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	out := make([]walletRecordValue, 0, len(raw))
	for _, rec := range raw {
		var wr walletRecordValue
		if err := json.Unmarshal(rec.Value, &wr); err != nil {
			return nil, walleterr.Wrap(walleterr.IOError, "mwst-as-profiles: decode wallet_record", err)
		}
		if wr.WalletID == "" {
			wr.WalletID = rec.Name
		}
		out = append(out, wr)
	}
	return out, nil
}
