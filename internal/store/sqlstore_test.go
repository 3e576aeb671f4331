package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperledger/aries-wallet-upgrade-go/internal/askar"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/walleterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLegacySQLiteFile(t *testing.T, mwst bool) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	walletCol := ""
	if mwst {
		walletCol = ", wallet_id TEXT"
	}
	stmts := []string{
		`CREATE TABLE metadata (value BLOB, master_key_salt BLOB` + walletCol + `)`,
		`CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, type BLOB, name BLOB, value BLOB, key BLOB` + walletCol + `)`,
		`CREATE TABLE tags_encrypted (item_id INTEGER, name BLOB, value BLOB)`,
		`CREATE TABLE tags_plaintext (item_id INTEGER, name BLOB, value BLOB)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
	return path
}

func connectedSQLiteDriver(t *testing.T, path string) *sqlStore {
	t.Helper()
	driver := NewSQLiteDriver(path).(*sqlStore)
	require.NoError(t, driver.Connect(context.Background()))
	t.Cleanup(func() { driver.Close(context.Background()) })
	return driver
}

func TestPreUpgradeRenamesItemsAndCreatesAskarSchema(t *testing.T) {
	ctx := context.Background()
	path := newLegacySQLiteFile(t, false)
	driver := connectedSQLiteDriver(t, path)

	cfg, err := driver.PreUpgrade(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	hasOld, err := driver.FindTable(ctx, legacyTableItemsOldMarker)
	require.NoError(t, err)
	assert.True(t, hasOld)

	hasProfiles, err := driver.FindTable(ctx, "profiles")
	require.NoError(t, err)
	assert.True(t, hasProfiles)
}

func TestPreUpgradeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := newLegacySQLiteFile(t, false)
	driver := connectedSQLiteDriver(t, path)

	_, err := driver.PreUpgrade(ctx)
	require.NoError(t, err)

	err = driver.CreateConfig(ctx, "kdf:argon2i:13:mod?salt=ab", "main")
	require.NoError(t, err)

	cfgAgain, err := driver.PreUpgrade(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfgAgain)
	assert.Equal(t, "main", cfgAgain["default_profile"])
}

func TestPreUpgradeWithoutMetadataTableFails(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	db.Close()

	driver := connectedSQLiteDriver(t, path)
	_, err = driver.PreUpgrade(ctx)
	require.Error(t, err)
	assert.True(t, walleterr.Is(err, walleterr.NotIndyWallet))
}

func TestBootstrapCreatesSchemaWithNoLegacyTables(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fresh.db")
	driver := connectedSQLiteDriver(t, path)

	require.NoError(t, driver.Bootstrap(ctx))
	hasProfiles, err := driver.FindTable(ctx, "profiles")
	require.NoError(t, err)
	assert.True(t, hasProfiles)
	hasItems, err := driver.FindTable(ctx, "items")
	require.NoError(t, err)
	assert.True(t, hasItems)
}

func TestWriteItemsDeleteSourceTrue(t *testing.T) {
	ctx := context.Background()
	path := newLegacySQLiteFile(t, false)
	driver := connectedSQLiteDriver(t, path)

	_, err := driver.db.ExecContext(ctx, `INSERT INTO items(type, name, value, key) VALUES(?, ?, ?, ?)`, []byte("t"), []byte("n"), []byte("v"), []byte("k"))
	require.NoError(t, err)

	_, err = driver.PreUpgrade(ctx)
	require.NoError(t, err)

	wallet, err := driver.GetWallet(ctx, "")
	require.NoError(t, err)
	require.NoError(t, driver.CreateConfig(ctx, "kdf:argon2i:13:mod?salt=ab", "main"))
	profileID, err := wallet.InsertProfile(ctx, "main", []byte("enc-key"))
	require.NoError(t, err)

	batch := []UpdateBatchItem{{
		SourceID:  1,
		ProfileID: profileID,
		Row:       askar.ItemRow{Kind: 2, Category: []byte("cat"), Name: []byte("name"), Value: []byte("value")},
	}}
	require.NoError(t, wallet.WriteItems(ctx, batch, true))

	var remaining int
	row := driver.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+legacyTableItemsOldMarker)
	require.NoError(t, row.Scan(&remaining))
	assert.Equal(t, 0, remaining, "deleteSource=true must remove the consumed legacy row in the same transaction")

	var itemCount int
	row = driver.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`)
	require.NoError(t, row.Scan(&itemCount))
	assert.Equal(t, 1, itemCount)
}

func TestWriteItemsDeleteSourceFalseThenRemoveConsumed(t *testing.T) {
	ctx := context.Background()
	path := newLegacySQLiteFile(t, false)
	driver := connectedSQLiteDriver(t, path)

	_, err := driver.db.ExecContext(ctx, `INSERT INTO items(type, name, value, key) VALUES(?, ?, ?, ?)`, []byte("t"), []byte("n"), []byte("v"), []byte("k"))
	require.NoError(t, err)
	_, err = driver.PreUpgrade(ctx)
	require.NoError(t, err)

	wallet, err := driver.GetWallet(ctx, "")
	require.NoError(t, err)
	require.NoError(t, driver.CreateConfig(ctx, "kdf:argon2i:13:mod?salt=ab", "main"))
	profileID, err := wallet.InsertProfile(ctx, "main", []byte("enc-key"))
	require.NoError(t, err)

	batch := []UpdateBatchItem{{
		SourceID:  1,
		ProfileID: profileID,
		Row:       askar.ItemRow{Kind: 2, Category: []byte("cat"), Name: []byte("name"), Value: []byte("value")},
	}}
	require.NoError(t, wallet.WriteItems(ctx, batch, false))

	var remaining int
	row := driver.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+legacyTableItemsOldMarker)
	require.NoError(t, row.Scan(&remaining))
	assert.Equal(t, 1, remaining, "deleteSource=false must leave the legacy row in place")

	require.NoError(t, wallet.RemoveConsumed(ctx, []int64{1}))
	row = driver.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+legacyTableItemsOldMarker)
	require.NoError(t, row.Scan(&remaining))
	assert.Equal(t, 0, remaining)
}

func TestRemoveConsumedNoopOnEmpty(t *testing.T) {
	ctx := context.Background()
	path := newLegacySQLiteFile(t, false)
	driver := connectedSQLiteDriver(t, path)
	_, err := driver.PreUpgrade(ctx)
	require.NoError(t, err)

	wallet, err := driver.GetWallet(ctx, "")
	require.NoError(t, err)
	assert.NoError(t, wallet.RemoveConsumed(ctx, nil))
}

func TestListWalletIDsReturnsDistinctIDs(t *testing.T) {
	ctx := context.Background()
	path := newLegacySQLiteFile(t, true)
	driver := connectedSQLiteDriver(t, path)

	_, err := driver.db.ExecContext(ctx, `INSERT INTO items(type, name, value, key, wallet_id) VALUES(?, ?, ?, ?, ?)`, []byte("t"), []byte("n1"), []byte("v"), []byte("k"), "wallet-a")
	require.NoError(t, err)
	_, err = driver.db.ExecContext(ctx, `INSERT INTO items(type, name, value, key, wallet_id) VALUES(?, ?, ?, ?, ?)`, []byte("t"), []byte("n2"), []byte("v"), []byte("k"), "wallet-a")
	require.NoError(t, err)
	_, err = driver.db.ExecContext(ctx, `INSERT INTO items(type, name, value, key, wallet_id) VALUES(?, ?, ?, ?, ?)`, []byte("t"), []byte("n3"), []byte("v"), []byte("k"), "wallet-b")
	require.NoError(t, err)

	_, err = driver.PreUpgrade(ctx)
	require.NoError(t, err)

	ids, err := driver.ListWalletIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"wallet-a", "wallet-b"}, ids)
}

func TestDeleteLegacyStoreRemovesSQLiteFile(t *testing.T) {
	ctx := context.Background()
	path := newLegacySQLiteFile(t, false)
	driver := connectedSQLiteDriver(t, path)

	require.NoError(t, driver.DeleteLegacyStore(ctx))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFinishUpgradeDropsLegacyTablesAndSetsVersion(t *testing.T) {
	ctx := context.Background()
	path := newLegacySQLiteFile(t, false)
	driver := connectedSQLiteDriver(t, path)

	_, err := driver.PreUpgrade(ctx)
	require.NoError(t, err)
	require.NoError(t, driver.CreateConfig(ctx, "kdf:argon2i:13:mod?salt=ab", "main"))
	require.NoError(t, driver.FinishUpgrade(ctx))

	hasOld, err := driver.FindTable(ctx, legacyTableItemsOldMarker)
	require.NoError(t, err)
	assert.False(t, hasOld)
	hasMeta, err := driver.FindTable(ctx, legacyTableMetadata)
	require.NoError(t, err)
	assert.False(t, hasMeta)

	cfg, err := driver.readConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", cfg["version"])
}
