package strategy

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/hyperledger/aries-wallet-upgrade-go/internal/store"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/walleterr"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedMWSTStoresFile builds a shared legacy sqlite file holding three
// independently keyed wallets (alice, bob, carol), with no wallet_record
// bookkeeping — MWST-as-stores discovers wallets purely from the caller's
// declared set and the table's own wallet_id column.
func seedMWSTStoresFile(t *testing.T) (path string, alice, bob, carol mwstWalletKeys) {
	t.Helper()
	path = filepath.Join(t.TempDir(), "mwst-stores-legacy.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE metadata (value BLOB, master_key_salt BLOB, wallet_id TEXT)`,
		`CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, type BLOB, name BLOB, value BLOB, key BLOB, wallet_id TEXT)`,
		`CREATE TABLE tags_encrypted (item_id INTEGER, name BLOB, value BLOB)`,
		`CREATE TABLE tags_plaintext (item_id INTEGER, name BLOB, value BLOB)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}

	alice = seedMWSTWallet(t, db, "alice", "alice-pass", 5)
	bob = seedMWSTWallet(t, db, "bob", "bob-pass", 45)
	carol = seedMWSTWallet(t, db, "carol", "carol-pass", 90)

	insertMWSTItem(t, db, alice, "Indy::Did", "alice-did", []byte(`{"did":"alice-did","verkey":"alice-verkey"}`), "verkey", "alice-verkey")
	insertMWSTItem(t, db, bob, "Indy::Did", "bob-did", []byte(`{"did":"bob-did","verkey":"bob-verkey"}`), "verkey", "bob-verkey")
	insertMWSTItem(t, db, carol, "Indy::Did", "carol-did", []byte(`{"did":"carol-did","verkey":"carol-verkey"}`), "verkey", "carol-verkey")

	return path, alice, bob, carol
}

func TestRunMWSTAsStoresCreatesOneStorePerDeclaredWallet(t *testing.T) {
	ctx := context.Background()
	path, alice, bob, _ := seedMWSTStoresFile(t)
	source := store.NewSQLiteDriver(path)
	defer source.Close(ctx)

	targets := map[string]store.Driver{}
	newTarget := func(walletID string) store.Driver {
		d := store.NewSQLiteDriver(filepath.Join(t.TempDir(), walletID+".db"))
		targets[walletID] = d
		return d
	}

	results, missing, err := RunMWSTAsStores(ctx, source,
		map[string]string{"alice": alice.passphrase, "bob": bob.passphrase},
		false, false, newTarget)
	require.NoError(t, err)
	assert.Empty(t, missing)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results["alice"].ItemsMigrated)
	assert.Equal(t, 1, results["bob"].ItemsMigrated)

	for id, d := range targets {
		defer d.Close(ctx)
		_ = id
	}
}

func TestRunMWSTAsStoresFailsHardWithoutAllowMissingWallet(t *testing.T) {
	ctx := context.Background()
	path, alice, _, _ := seedMWSTStoresFile(t)
	source := store.NewSQLiteDriver(path)
	defer source.Close(ctx)

	newTarget := func(walletID string) store.Driver {
		return store.NewSQLiteDriver(filepath.Join(t.TempDir(), walletID+".db"))
	}

	_, _, err := RunMWSTAsStores(ctx, source,
		map[string]string{"alice": alice.passphrase, "dave": "dave-pass"},
		false, false, newTarget)
	require.Error(t, err)
	assert.True(t, walleterr.Is(err, walleterr.WalletAlignment))
}

func TestRunMWSTAsStoresAllowMissingWalletSkipsAbsentWallets(t *testing.T) {
	ctx := context.Background()
	path, alice, _, _ := seedMWSTStoresFile(t)
	source := store.NewSQLiteDriver(path)
	defer source.Close(ctx)

	var created []string
	newTarget := func(walletID string) store.Driver {
		created = append(created, walletID)
		return store.NewSQLiteDriver(filepath.Join(t.TempDir(), walletID+".db"))
	}

	results, missing, err := RunMWSTAsStores(ctx, source,
		map[string]string{"alice": alice.passphrase, "dave": "dave-pass"},
		true, false, newTarget)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.True(t, walleterr.Is(missing[0], walleterr.MissingWallet))
	require.Len(t, results, 1)
	assert.Contains(t, results, "alice")
	assert.NotContains(t, results, "dave")
	assert.Equal(t, []string{"alice"}, created, "no target store is created for a wallet absent from the source")
}
