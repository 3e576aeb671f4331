package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/hyperledger/aries-wallet-upgrade-go/internal/askar"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/askarstore"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/indy"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/walleterr"
)

// sqlStore is the database/sql-backed implementation shared by the sqlite
// and postgres drivers; the two concrete drivers differ only in their
// dialect, DSN, and base64-wrapping convention.
type sqlStore struct {
	db      *sql.DB
	driver  string // "sqlite3" or "pgx"
	dsn     string
	dialect dialect
	b64     bool
}

func (s *sqlStore) Connect(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return walleterr.Wrap(walleterr.DBError, "connect", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return walleterr.Wrap(walleterr.DBError, "connect: ping", err)
	}
	s.db = db
	return nil
}

func (s *sqlStore) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return walleterr.Wrap(walleterr.DBError, "close", err)
	}
	return nil
}

func (s *sqlStore) FindTable(ctx context.Context, name string) (bool, error) {
	switch s.driver {
	case "sqlite3":
		row := s.db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, name)
		var got string
		if err := row.Scan(&got); err != nil {
			if err == sql.ErrNoRows {
				return false, nil
			}
			return false, walleterr.Wrap(walleterr.DBError, "find_table", err)
		}
		return true, nil
	default: // pgx
		row := s.db.QueryRowContext(ctx, `SELECT to_regclass($1)`, name)
		var got sql.NullString
		if err := row.Scan(&got); err != nil {
			return false, walleterr.Wrap(walleterr.DBError, "find_table", err)
		}
		return got.Valid, nil
	}
}

func (s *sqlStore) B64() bool { return s.b64 }

func (s *sqlStore) PreUpgrade(ctx context.Context) (map[string]string, error) {
	hasMetadata, err := s.FindTable(ctx, legacyTableMetadata)
	if err != nil {
		return nil, err
	}
	hasConfig, err := s.FindTable(ctx, "config")
	if err != nil {
		return nil, err
	}
	if hasConfig {
		cfg, err := s.readConfig(ctx)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if !hasMetadata {
		return nil, walleterr.New(walleterr.NotIndyWallet, "pre_upgrade: no metadata table")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.DBError, "pre_upgrade: begin", err)
	}
	defer tx.Rollback()

	hasItemsOld, err := s.FindTable(ctx, legacyTableItemsOldMarker)
	if err != nil {
		return nil, err
	}
	if !hasItemsOld {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", legacyTableItems, legacyTableItemsOldMarker)); err != nil {
			return nil, walleterr.Wrap(walleterr.DBError, "pre_upgrade: rename items", err)
		}
	}
	for _, stmt := range s.dialect.schemaStatements() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, walleterr.Wrap(walleterr.DBError, "pre_upgrade: create schema", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, walleterr.Wrap(walleterr.DBError, "pre_upgrade: commit", err)
	}
	return nil, nil
}

// Bootstrap creates the Askar schema unconditionally, with no legacy-table
// checks and no items rename — used for the MWST strategies' freshly
// created target databases, which never held an Indy-SDK schema.
func (s *sqlStore) Bootstrap(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return walleterr.Wrap(walleterr.DBError, "bootstrap: begin", err)
	}
	defer tx.Rollback()
	for _, stmt := range s.dialect.schemaStatements() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return walleterr.Wrap(walleterr.DBError, "bootstrap: create schema", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return walleterr.Wrap(walleterr.DBError, "bootstrap: commit", err)
	}
	return nil
}

// OpenAskarStore binds the post-upgrade transactional engine directly to
// this driver's open *sql.DB and placeholder convention.
func (s *sqlStore) OpenAskarStore(ctx context.Context, profileID int64, profileKey askar.ProfileKey) (*askarstore.Store, error) {
	if s.db == nil {
		return nil, walleterr.New(walleterr.DBError, "open askar store: driver not connected")
	}
	return askarstore.Open(s.db, s.dialect.placeholder, profileID, profileKey), nil
}

func (s *sqlStore) readConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM config`)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.DBError, "read config", err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, walleterr.Wrap(walleterr.DBError, "read config: scan", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *sqlStore) CreateConfig(ctx context.Context, passKey, defaultProfile string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return walleterr.Wrap(walleterr.DBError, "create_config: begin", err)
	}
	defer tx.Rollback()
	if err := s.upsertConfig(ctx, tx, "key", passKey); err != nil {
		return err
	}
	if defaultProfile != "" {
		if err := s.upsertConfig(ctx, tx, "default_profile", defaultProfile); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return walleterr.Wrap(walleterr.DBError, "create_config: commit", err)
	}
	return nil
}

func (s *sqlStore) upsertConfig(ctx context.Context, tx *sql.Tx, name, value string) error {
	if _, err := tx.ExecContext(ctx, s.ph(`DELETE FROM config WHERE name=`, 1), name); err != nil {
		return walleterr.Wrap(walleterr.DBError, "upsert config: delete", err)
	}
	if _, err := tx.ExecContext(ctx, s.ph(`INSERT INTO config(name, value) VALUES(`, 1)+", "+s.phAt(2)+")", name, value); err != nil {
		return walleterr.Wrap(walleterr.DBError, "upsert config: insert", err)
	}
	return nil
}

// ph/phAt build a single positional placeholder fragment for either
// dialect ("?" for sqlite, "$N" for postgres) without hand-rolling a full
// query builder for two drivers that otherwise share every statement.
func (s *sqlStore) ph(prefix string, n int) string { return prefix + s.dialect.placeholder(n) }
func (s *sqlStore) phAt(n int) string              { return s.dialect.placeholder(n) }

func (s *sqlStore) FinishUpgrade(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return walleterr.Wrap(walleterr.DBError, "finish_upgrade: begin", err)
	}
	defer tx.Rollback()

	for _, table := range []string{legacyTableItemsOldMarker, legacyTableMetadata, legacyTableTagsEncrypted, legacyTableTagsPlaintext} {
		exists, err := s.FindTable(ctx, table)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if _, err := tx.ExecContext(ctx, "DROP TABLE "+table); err != nil {
			return walleterr.Wrap(walleterr.DBError, "finish_upgrade: drop "+table, err)
		}
	}
	if err := s.upsertConfig(ctx, tx, "version", "1"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return walleterr.Wrap(walleterr.DBError, "finish_upgrade: commit", err)
	}
	return nil
}

func (s *sqlStore) GetWallet(ctx context.Context, walletID string) (Wallet, error) {
	return &sqlWallet{store: s, walletID: walletID}, nil
}

// sqlWallet is the per-wallet row-access capability shared by both
// drivers. When walletID is non-empty, every query is filtered by a
// wallet_id column (the MWST deployment shape); DBPW drivers pass "".
type sqlWallet struct {
	store    *sqlStore
	walletID string
	// lastID is the highest legacy row id FetchPendingItems has returned;
	// the next call resumes after it, so rows that are kept rather than
	// deleted are not fetched twice.
	lastID int64
}

func (w *sqlWallet) GetMetadata(ctx context.Context) (indy.Metadata, error) {
	q := `SELECT value, master_key_salt FROM metadata`
	args := []any{}
	if w.walletID != "" {
		q += " WHERE wallet_id = " + w.store.phAt(1)
		args = append(args, w.walletID)
	}
	row := w.store.db.QueryRowContext(ctx, q, args...)
	var keys, salt []byte
	if err := row.Scan(&keys, &salt); err != nil {
		return indy.Metadata{}, walleterr.Wrap(walleterr.DBError, "get_metadata", err)
	}
	return indy.Metadata{Keys: keys, MasterKeySalt: salt}, nil
}

func (w *sqlWallet) InsertProfile(ctx context.Context, name string, encProfileKey []byte) (int64, error) {
	s := w.store
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, walleterr.Wrap(walleterr.DBError, "insert_profile: begin", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT id FROM profiles WHERE name = `+s.phAt(1), name)
	var id int64
	err = row.Scan(&id)
	if err == nil {
		tx.Rollback()
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, walleterr.Wrap(walleterr.DBError, "insert_profile: lookup", err)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO profiles(name, profile_key) VALUES(`+s.phAt(1)+", "+s.phAt(2)+")", name, encProfileKey)
	if err != nil {
		return 0, walleterr.Wrap(walleterr.DBError, "insert_profile: insert", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		// Postgres drivers don't support LastInsertId; fall back to a
		// RETURNING-style lookup.
		row := tx.QueryRowContext(ctx, `SELECT id FROM profiles WHERE name = `+s.phAt(1), name)
		if scanErr := row.Scan(&id); scanErr != nil {
			return 0, walleterr.Wrap(walleterr.DBError, "insert_profile: fetch id", scanErr)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, walleterr.Wrap(walleterr.DBError, "insert_profile: commit", err)
	}
	return id, nil
}

func (w *sqlWallet) FetchPendingItems(ctx context.Context, limit int) ([]indy.Item, error) {
	s := w.store
	q := fmt.Sprintf(`SELECT i.id, i.type, i.name, i.value, i.key,
		COALESCE(%s, ''),
		COALESCE(%s, '')
		FROM %s i`,
		s.dialect.tagsConcatExpr(legacyTableTagsEncrypted),
		s.dialect.tagsConcatExpr(legacyTableTagsPlaintext),
		legacyTableItemsOldMarker)
	q += " WHERE i.id > " + s.phAt(1)
	args := []any{w.lastID}
	if w.walletID != "" {
		q += " AND i.wallet_id = " + s.phAt(2)
		args = append(args, w.walletID)
	}
	q += " ORDER BY i.id LIMIT " + s.phAt(len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.DBError, "fetch_pending_items", err)
	}
	defer rows.Close()

	var out []indy.Item
	for rows.Next() {
		var it indy.Item
		if err := rows.Scan(&it.ID, &it.Type, &it.Name, &it.Value, &it.Key, &it.TagsEnc, &it.TagsPlain); err != nil {
			return nil, walleterr.Wrap(walleterr.DBError, "fetch_pending_items: scan", err)
		}
		out = append(out, it)
	}
	if len(out) > 0 {
		w.lastID = out[len(out)-1].ID
	}
	return out, rows.Err()
}

func (w *sqlWallet) WriteItems(ctx context.Context, batch []UpdateBatchItem, deleteSource bool) error {
	s := w.store
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return walleterr.Wrap(walleterr.DBError, "write_items: begin", err)
	}
	defer tx.Rollback()

	for _, entry := range batch {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO items(profile_id, kind, category, name, value) VALUES(`+
				s.phAt(1)+", "+s.phAt(2)+", "+s.phAt(3)+", "+s.phAt(4)+", "+s.phAt(5)+")",
			entry.ProfileID, entry.Row.Kind, entry.Row.Category, entry.Row.Name, entry.Row.Value)
		if err != nil {
			return walleterr.Wrap(walleterr.DBError, "write_items: insert item", err)
		}
		itemID, err := res.LastInsertId()
		if err != nil {
			row := tx.QueryRowContext(ctx, `SELECT id FROM items WHERE profile_id=`+s.phAt(1)+` AND kind=`+s.phAt(2)+` AND category=`+s.phAt(3)+` AND name=`+s.phAt(4),
				entry.ProfileID, entry.Row.Kind, entry.Row.Category, entry.Row.Name)
			if scanErr := row.Scan(&itemID); scanErr != nil {
				return walleterr.Wrap(walleterr.DBError, "write_items: fetch item id", scanErr)
			}
		}
		for _, tag := range entry.Tags {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO items_tags(item_id, name, value, plaintext) VALUES(`+
					s.phAt(1)+", "+s.phAt(2)+", "+s.phAt(3)+", "+s.phAt(4)+")",
				itemID, tag.Name, tag.Value, tag.Plaintext); err != nil {
				return walleterr.Wrap(walleterr.DBError, "write_items: insert tag", err)
			}
		}
		if deleteSource {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+legacyTableItemsOldMarker+` WHERE id = `+s.phAt(1), entry.SourceID); err != nil {
				return walleterr.Wrap(walleterr.DBError, "write_items: delete legacy row", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return walleterr.Wrap(walleterr.DBError, "write_items: commit", err)
	}
	return nil
}

// RemoveConsumed deletes rows from this connection's items_old table by
// id, without writing anything — the MWST-strategies' way of retiring
// legacy rows on the shared source handle once a separate target database
// has durably written their replacements.
func (w *sqlWallet) RemoveConsumed(ctx context.Context, sourceIDs []int64) error {
	if len(sourceIDs) == 0 {
		return nil
	}
	s := w.store
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return walleterr.Wrap(walleterr.DBError, "remove_consumed: begin", err)
	}
	defer tx.Rollback()
	for _, id := range sourceIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+legacyTableItemsOldMarker+` WHERE id = `+s.phAt(1), id); err != nil {
			return walleterr.Wrap(walleterr.DBError, "remove_consumed: delete", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return walleterr.Wrap(walleterr.DBError, "remove_consumed: commit", err)
	}
	return nil
}

// DeleteLegacyStore removes the on-disk sqlite file this driver migrated
// from. For the networked (postgres) store it does nothing: after an
// in-place (DBPW) run FinishUpgrade has already dropped the legacy
// tables, and an MWST source's legacy tables are left in place.
func (s *sqlStore) DeleteLegacyStore(ctx context.Context) error {
	if s.driver != "sqlite3" {
		return nil
	}
	if err := s.Close(ctx); err != nil {
		return err
	}
	if err := os.Remove(s.dsn); err != nil && !os.IsNotExist(err) {
		return walleterr.Wrap(walleterr.IOError, "delete legacy store", err)
	}
	return nil
}

// ListWalletIDs returns the distinct wallet_id values present in the
// renamed legacy items table.
func (s *sqlStore) ListWalletIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT wallet_id FROM `+legacyTableItemsOldMarker+` WHERE wallet_id IS NOT NULL`)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.DBError, "list_wallet_ids", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, walleterr.Wrap(walleterr.DBError, "list_wallet_ids: scan", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

var _ Driver = (*sqlStore)(nil)
