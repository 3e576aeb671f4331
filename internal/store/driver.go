// Package store is the DB driver abstraction (§4.3): a uniform contract
// over the embedded-file store (sqlite) and the networked store
// (postgres), covering schema lifecycle and per-wallet row access. Per the
// design note in spec.md §9, this is modelled as two narrow capabilities
// rather than a connection class hierarchy: Driver (schema lifecycle) and
// Wallet (per-wallet row access), composed by the strategy engine via
// constructor injection.
package store

import (
	"context"

	"github.com/hyperledger/aries-wallet-upgrade-go/internal/askar"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/askarstore"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/indy"
)

// Driver is the schema-lifecycle capability: connect/close, legacy-table
// detection, pre/finish-upgrade, config writes, and scoping down to a
// single wallet's row-access capability.
type Driver interface {
	// Connect opens the underlying connection. Idempotent.
	Connect(ctx context.Context) error
	// Close releases the underlying connection. Idempotent.
	Close(ctx context.Context) error
	// FindTable reports whether a table of the given name exists.
	FindTable(ctx context.Context, name string) (bool, error)
	// PreUpgrade creates the new Askar tables inside one transaction. If
	// the store was already partially upgraded, it returns the current
	// config mapping instead of erroring, supporting idempotent re-runs.
	// Returns a NotIndyWallet error if the legacy metadata table is absent.
	PreUpgrade(ctx context.Context) (map[string]string, error)
	// Bootstrap creates the Askar schema in a store that has no legacy
	// tables at all — the MWST strategies' freshly created per-wallet or
	// per-tenant-group target databases, as distinct from PreUpgrade's
	// in-place legacy-to-Askar transition.
	Bootstrap(ctx context.Context) error
	// CreateConfig upserts the pass-key derivation string and, if
	// non-empty, the default profile name.
	CreateConfig(ctx context.Context, passKey, defaultProfile string) error
	// FinishUpgrade drops the legacy tables and writes config('version','1')
	// in one atomic block. Must not commit if interrupted.
	FinishUpgrade(ctx context.Context) error
	// GetWallet returns a row-access handle scoped to a single source
	// wallet. walletID is ignored by single-wallet (DBPW) drivers and used
	// as a `wallet_id` row filter by MWST drivers.
	GetWallet(ctx context.Context, walletID string) (Wallet, error)
	// B64 reports whether this driver's storage layer base64-wraps binary
	// fields (the networked-store convention).
	B64() bool
	// OpenAskarStore binds the transactional post-upgrade engine (§6) to
	// this driver's underlying connection, scoped to one profile.
	OpenAskarStore(ctx context.Context, profileID int64, profileKey askar.ProfileKey) (*askarstore.Store, error)
	// DeleteLegacyStore removes the Indy-SDK wallet this driver migrated
	// from, once the strategy decides deletion is safe. A no-op for
	// drivers with no separate legacy file to remove (the networked
	// store): its legacy tables are dropped by FinishUpgrade after an
	// in-place run, and are left in place for an MWST source.
	DeleteLegacyStore(ctx context.Context) error
	// ListWalletIDs reports the distinct wallet_id values present in the
	// legacy items table, used by the MWST strategies to reconcile the
	// caller's declared wallet set against what the database holds.
	// PreUpgrade must have already run so items_old exists.
	ListWalletIDs(ctx context.Context) ([]string, error)
}

// UpdateBatchItem is one migrated row, ready to be written by WriteItems:
// the new item body/tags plus the legacy row's source ID so the consumed
// row can be deleted alongside it when deletion is requested.
type UpdateBatchItem struct {
	SourceID  int64
	ProfileID int64
	Row       askar.ItemRow
	Tags      []askar.TagRow
}

// Wallet is the per-wallet row-access capability.
type Wallet interface {
	// GetMetadata reads the wallet's one metadata row.
	GetMetadata(ctx context.Context) (indy.Metadata, error)
	// InsertProfile inserts (name, encProfileKey) with on-conflict-do-nothing
	// semantics and returns the durable profile_id, whether freshly
	// inserted or already present.
	InsertProfile(ctx context.Context, name string, encProfileKey []byte) (int64, error)
	// FetchPendingItems selects up to limit legacy rows (filtered by
	// wallet_id for MWST drivers). Returns an empty slice when drained.
	FetchPendingItems(ctx context.Context, limit int) ([]indy.Item, error)
	// WriteItems inserts a batch of migrated rows into this wallet's own
	// items table, one transaction per batch. When deleteSource is true
	// the consumed legacy rows (by SourceID) are deleted from this same
	// connection's items_old table in the same transaction — valid only
	// when this Wallet is migrating in place (DBPW). Cross-database MWST
	// strategies call WriteItems with deleteSource false on the target
	// handle and RemoveConsumed separately on the source handle, since
	// the legacy table and the new items table are different databases.
	WriteItems(ctx context.Context, batch []UpdateBatchItem, deleteSource bool) error
	// RemoveConsumed deletes the given legacy row ids from this wallet's
	// items_old table without writing anything. Used by MWST strategies
	// to retire rows on the shared legacy handle once they have been
	// written to a separate target database.
	RemoveConsumed(ctx context.Context, sourceIDs []int64) error
}
