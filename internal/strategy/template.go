// Package strategy implements the three deployment-shape migrations
// (§4.4): DBPW, MWST-as-profiles, MWST-as-stores. All three execute the
// same per-wallet template — connect, transition/bootstrap schema, fetch
// the Indy key, write config, insert a profile, copy items batch by
// batch, finish, run the post-upgrade transformer — over different
// (source, target) driver pairings and wallet_id scoping.
package strategy

import (
	"context"

	"github.com/hyperledger/aries-wallet-upgrade-go/internal/askar"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/indy"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/store"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/upgrade"
)

// DefaultBatchSize is the strategy-level default of spec.md §4.4.
const DefaultBatchSize = 50

// Mode selects how the target driver's schema comes into being.
type Mode int

const (
	// InPlace transitions an existing legacy schema via PreUpgrade — the
	// DBPW shape, where source and target are the same database.
	InPlace Mode = iota
	// Fresh bootstraps a brand-new Askar schema with no legacy tables —
	// the MWST strategies' separately created target databases.
	Fresh
)

// WalletSpec names one source wallet and the profile it becomes.
type WalletSpec struct {
	// SourceWalletID filters the source driver's rows by wallet_id; empty
	// for drivers with no MWST wallet_id column (DBPW, or a fresh target
	// with nothing to filter).
	SourceWalletID string
	ProfileName    string
	Passphrase     string
	// DefaultProfile marks this wallet's profile as the target store's
	// config("default_profile").
	DefaultProfile bool
	// RetainSource suppresses legacy-row deletion even when source and
	// target are different drivers — MWST-as-stores' requirement that a
	// legacy table shared by several wallets is never pruned mid-flight.
	RetainSource bool
	BatchSize    int
}

// Result summarizes one completed (or already-completed) wallet migration.
// PassKey and MasterKey are carried along so MWST-as-profiles can wire a
// second ("default") profile into the sub store under the same pass-key
// without re-deriving anything from the passphrase.
type Result struct {
	ProfileID       int64
	ProfileKey      askar.ProfileKey
	PassKey         string
	MasterKey       []byte
	AlreadyUpgraded bool
	ItemsMigrated   int
}

// MigrateWallet runs the full per-wallet template. source and target may
// be the same driver instance (DBPW) or distinct ones (MWST); when
// distinct, legacy rows are retired on source via RemoveConsumed once
// their replacements are durably written to target, rather than inside
// the same transaction as the insert.
func MigrateWallet(ctx context.Context, source, target store.Driver, mode Mode, spec WalletSpec) (*Result, error) {
	if spec.BatchSize <= 0 {
		spec.BatchSize = DefaultBatchSize
	}

	if err := source.Connect(ctx); err != nil {
		return nil, err
	}
	sameDriver := sameInstance(source, target)
	if !sameDriver {
		if err := target.Connect(ctx); err != nil {
			return nil, err
		}
	}

	var cfg map[string]string
	var err error
	switch mode {
	case InPlace:
		cfg, err = target.PreUpgrade(ctx)
	case Fresh:
		err = target.Bootstrap(ctx)
	}
	if err != nil {
		return nil, err
	}
	if mode == InPlace && cfg != nil && cfg["version"] == "1" {
		return &Result{AlreadyUpgraded: true}, nil
	}

	sourceWallet, err := source.GetWallet(ctx, spec.SourceWalletID)
	if err != nil {
		return nil, err
	}
	meta, err := sourceWallet.GetMetadata(ctx)
	if err != nil {
		return nil, err
	}
	fetched, err := indy.FetchIndyKey(meta, spec.Passphrase, source.B64())
	if err != nil {
		return nil, err
	}
	defer fetched.Bundle.Zero()

	profileKey := askar.NewProfileKey(fetched.Bundle)
	encProfileKey, err := askar.EncryptProfileKey(profileKey, fetched.MasterKey)
	if err != nil {
		return nil, err
	}

	passKey := store.PassKeyURI(fetched.Salt)
	defaultProfile := ""
	if spec.DefaultProfile {
		defaultProfile = spec.ProfileName
	}
	if err := target.CreateConfig(ctx, passKey, defaultProfile); err != nil {
		return nil, err
	}

	targetWallet, err := target.GetWallet(ctx, "")
	if err != nil {
		return nil, err
	}
	profileID, err := targetWallet.InsertProfile(ctx, spec.ProfileName, encProfileKey)
	if err != nil {
		return nil, err
	}

	progress := NewProgress(spec.ProfileName)
	for {
		items, err := sourceWallet.FetchPendingItems(ctx, spec.BatchSize)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}

		batch := make([]store.UpdateBatchItem, 0, len(items))
		for _, item := range items {
			decrypted, err := indy.DecryptItem(item, fetched.Bundle, source.B64())
			if err != nil {
				return nil, err
			}
			row, tags, err := askar.UpdateItem(decrypted, profileKey)
			if err != nil {
				return nil, err
			}
			batch = append(batch, store.UpdateBatchItem{SourceID: item.ID, ProfileID: profileID, Row: row, Tags: tags})
		}

		if err := targetWallet.WriteItems(ctx, batch, sameDriver); err != nil {
			return nil, err
		}
		if !sameDriver && !spec.RetainSource {
			ids := make([]int64, len(batch))
			for i, b := range batch {
				ids[i] = b.SourceID
			}
			if err := sourceWallet.RemoveConsumed(ctx, ids); err != nil {
				return nil, err
			}
		}
		progress.Add(len(batch))
	}
	progress.Done()

	if err := target.FinishUpgrade(ctx); err != nil {
		return nil, err
	}

	askarStore, err := target.OpenAskarStore(ctx, profileID, profileKey)
	if err != nil {
		return nil, err
	}
	if err := upgrade.Run(ctx, askarStore); err != nil {
		return nil, err
	}

	return &Result{
		ProfileID:     profileID,
		ProfileKey:    profileKey,
		PassKey:       passKey,
		MasterKey:     fetched.MasterKey,
		ItemsMigrated: progress.total,
	}, nil
}

func sameInstance(a, b store.Driver) bool {
	return a == b
}
