// Package askarstore is the transactional key-value engine the
// post-upgrade transformer drives (§6's "Askar store interface"). The real
// Askar record engine is an external collaborator out of this core's
// scope (§1); since no askar-go binding is part of this corpus, this
// package is a from-spec reimplementation of just the interface slice
// the transformer needs, layered directly on the items/items_tags tables
// the schema transition created — it is not a general-purpose substitute
// for the real engine.
package askarstore

import (
	"context"
	"database/sql"

	"github.com/hyperledger/aries-wallet-upgrade-go/internal/askar"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/cryptutil"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/walleterr"
)

const (
	kindRecord = 2
	kindKey    = 1
)

// Tag is one (name, value) tag entry; Plaintext mirrors the items_tags
// column of the same name.
type Tag struct {
	Name      string
	Value     string
	Plaintext bool
}

// Record is a decrypted AskarRecord: (category, name, value, tags).
type Record struct {
	ID       int64
	Category string
	Name     string
	Value    []byte
	Tags     []Tag
}

// Store is a profile-scoped handle onto the finalized Askar items table.
type Store struct {
	db          *sql.DB
	placeholder func(int) string
	profileID   int64
	profileKey  askar.ProfileKey
}

// Open binds a Store to an already-open *sql.DB, the target profile's id,
// and its decrypted ProfileKey (held in memory only for the duration of
// the post-upgrade pass).
func Open(db *sql.DB, placeholder func(int) string, profileID int64, profileKey askar.ProfileKey) *Store {
	return &Store{db: db, placeholder: placeholder, profileID: profileID, profileKey: profileKey}
}

// Tx is one transaction against the store. Nothing is visible to other
// transactions until Commit.
type Tx struct {
	store *Store
	tx    *sql.Tx
}

// Transaction begins a new Tx.
func (s *Store) Transaction(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.DBError, "askarstore: begin transaction", err)
	}
	return &Tx{store: s, tx: tx}, nil
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return walleterr.Wrap(walleterr.DBError, "askarstore: commit", err)
	}
	return nil
}

func (t *Tx) Rollback() error { return t.tx.Rollback() }

func (t *Tx) ph(n int) string { return t.store.placeholder(n) }
func (t *Tx) pk() askar.ProfileKey { return t.store.profileKey }

func (t *Tx) encCategory(category string) ([]byte, error) {
	return cryptutil.EncryptMerged([]byte(category), t.pk().ICK, t.pk().IHK)
}

func (t *Tx) encName(name string) ([]byte, error) {
	return cryptutil.EncryptMerged([]byte(name), t.pk().INK, t.pk().IHK)
}

func (t *Tx) decryptName(encName []byte) (string, error) {
	name, err := cryptutil.DecryptMerged(encName, t.pk().INK, false)
	if err != nil {
		return "", err
	}
	return string(name), nil
}

func (t *Tx) encryptValue(category, name string, value []byte) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return cryptutil.EncryptValue([]byte(category), []byte(name), value, t.pk().IHK)
}

func (t *Tx) decryptValue(category, name string, encValue []byte) ([]byte, error) {
	if len(encValue) == 0 {
		return nil, nil
	}
	key := cryptutil.DeriveValueKey([]byte(category), []byte(name), t.pk().IHK)
	return cryptutil.DecryptMerged(encValue, key, false)
}

func (t *Tx) encryptTag(tag Tag) ([]byte, []byte, error) {
	name, err := cryptutil.EncryptMerged([]byte(tag.Name), t.pk().TNK, t.pk().THK)
	if err != nil {
		return nil, nil, err
	}
	if tag.Plaintext {
		return name, []byte(tag.Value), nil
	}
	value, err := cryptutil.EncryptMerged([]byte(tag.Value), t.pk().TVK, t.pk().THK)
	if err != nil {
		return nil, nil, err
	}
	return name, value, nil
}

func (t *Tx) decryptTag(encName, encValue []byte, plaintext bool) (Tag, error) {
	name, err := cryptutil.DecryptMerged(encName, t.pk().TNK, false)
	if err != nil {
		return Tag{}, err
	}
	value := encValue
	if !plaintext {
		decoded, err := cryptutil.DecryptMerged(encValue, t.pk().TVK, false)
		if err != nil {
			return Tag{}, err
		}
		value = decoded
	}
	return Tag{Name: string(name), Value: string(value), Plaintext: plaintext}, nil
}

// Fetch looks up a single record by (category, name).
func (t *Tx) Fetch(ctx context.Context, category, name string) (*Record, error) {
	encCat, err := t.encCategory(category)
	if err != nil {
		return nil, err
	}
	encName, err := t.encName(name)
	if err != nil {
		return nil, err
	}
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, value FROM items WHERE profile_id=`+t.ph(1)+` AND kind=`+t.ph(2)+` AND category=`+t.ph(3)+` AND name=`+t.ph(4),
		t.store.profileID, kindRecord, encCat, encName)
	var id int64
	var encValue []byte
	if err := row.Scan(&id, &encValue); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, walleterr.Wrap(walleterr.DBError, "askarstore: fetch", err)
	}
	value, err := t.decryptValue(category, name, encValue)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.DecryptionFailed, "askarstore: fetch decrypt value", err)
	}
	tags, err := t.fetchTags(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Record{ID: id, Category: category, Name: name, Value: value, Tags: tags}, nil
}

// FetchAll returns up to limit records in category (limit<=0 means
// unbounded).
func (t *Tx) FetchAll(ctx context.Context, category string, limit int) ([]*Record, error) {
	return t.queryCategory(ctx, category, limit)
}

// Scan returns every record in category.
func (t *Tx) Scan(ctx context.Context, category string) ([]*Record, error) {
	return t.queryCategory(ctx, category, 0)
}

func (t *Tx) queryCategory(ctx context.Context, category string, limit int) ([]*Record, error) {
	encCat, err := t.encCategory(category)
	if err != nil {
		return nil, err
	}
	q := `SELECT id, name, value FROM items WHERE profile_id=` + t.ph(1) + ` AND kind=` + t.ph(2) + ` AND category=` + t.ph(3) + ` ORDER BY id`
	args := []any{t.store.profileID, kindRecord, encCat}
	if limit > 0 {
		q += " LIMIT " + t.ph(4)
		args = append(args, limit)
	}
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.DBError, "askarstore: query category", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var id int64
		var encName, encValue []byte
		if err := rows.Scan(&id, &encName, &encValue); err != nil {
			return nil, walleterr.Wrap(walleterr.DBError, "askarstore: scan row", err)
		}
		name, err := t.decryptName(encName)
		if err != nil {
			return nil, walleterr.Wrap(walleterr.DecryptionFailed, "askarstore: decrypt name", err)
		}
		value, err := t.decryptValue(category, name, encValue)
		if err != nil {
			return nil, walleterr.Wrap(walleterr.DecryptionFailed, "askarstore: decrypt value", err)
		}
		tags, err := t.fetchTags(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, &Record{ID: id, Category: category, Name: name, Value: value, Tags: tags})
	}
	return out, rows.Err()
}

func (t *Tx) fetchTags(ctx context.Context, itemID int64) ([]Tag, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT name, value, plaintext FROM items_tags WHERE item_id=`+t.ph(1), itemID)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.DBError, "askarstore: fetch tags", err)
	}
	defer rows.Close()
	var out []Tag
	for rows.Next() {
		var encName, encValue []byte
		var plaintextFlag int
		if err := rows.Scan(&encName, &encValue, &plaintextFlag); err != nil {
			return nil, walleterr.Wrap(walleterr.DBError, "askarstore: scan tag", err)
		}
		tag, err := t.decryptTag(encName, encValue, plaintextFlag == 1)
		if err != nil {
			return nil, walleterr.Wrap(walleterr.DecryptionFailed, "askarstore: decrypt tag", err)
		}
		out = append(out, tag)
	}
	return out, rows.Err()
}

// Insert writes a new record. It is a plain insert: if a record with the
// same (category, name) already exists, the unique index rejects it and
// Insert returns a DBError.
func (t *Tx) Insert(ctx context.Context, category, name string, value []byte, tags []Tag) error {
	return t.insertWithKind(ctx, category, name, value, tags, kindRecord)
}

// InsertKey writes an Ed25519 key record: keyBytes is the raw key material
// stored as the record value (the transformer passes the 64-byte private
// key), metadata an optional opaque string attached verbatim.
func (t *Tx) InsertKey(ctx context.Context, name string, keyBytes []byte, metadata string) error {
	tags := []Tag(nil)
	if metadata != "" {
		tags = []Tag{{Name: "metadata", Value: metadata, Plaintext: true}}
	}
	return t.insertWithKind(ctx, "keys", name, keyBytes, tags, kindKey)
}

func (t *Tx) insertWithKind(ctx context.Context, category, name string, value []byte, tags []Tag, kind int) error {
	encCat, err := t.encCategory(category)
	if err != nil {
		return err
	}
	encName, err := t.encName(name)
	if err != nil {
		return err
	}
	encValue, err := t.encryptValue(category, name, value)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO items(profile_id, kind, category, name, value) VALUES(`+t.ph(1)+","+t.ph(2)+","+t.ph(3)+","+t.ph(4)+","+t.ph(5)+")",
		t.store.profileID, kind, encCat, encName, encValue)
	if err != nil {
		return walleterr.Wrap(walleterr.DBError, "askarstore: insert", err)
	}
	itemID, err := res.LastInsertId()
	if err != nil {
		row := t.tx.QueryRowContext(ctx, `SELECT id FROM items WHERE profile_id=`+t.ph(1)+` AND kind=`+t.ph(2)+` AND category=`+t.ph(3)+` AND name=`+t.ph(4),
			t.store.profileID, kind, encCat, encName)
		if scanErr := row.Scan(&itemID); scanErr != nil {
			return walleterr.Wrap(walleterr.DBError, "askarstore: insert fetch id", scanErr)
		}
	}
	for _, tag := range tags {
		tn, tv, err := t.encryptTag(tag)
		if err != nil {
			return err
		}
		plaintextFlag := 0
		if tag.Plaintext {
			plaintextFlag = 1
		}
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO items_tags(item_id, name, value, plaintext) VALUES(`+t.ph(1)+","+t.ph(2)+","+t.ph(3)+","+t.ph(4)+")",
			itemID, tn, tv, plaintextFlag); err != nil {
			return walleterr.Wrap(walleterr.DBError, "askarstore: insert tag", err)
		}
	}
	return nil
}

// Remove deletes the record and its tags. Not finding one is not an error
// — the transformer calls Remove defensively before Insert.
func (t *Tx) Remove(ctx context.Context, category, name string) error {
	encCat, err := t.encCategory(category)
	if err != nil {
		return err
	}
	encName, err := t.encName(name)
	if err != nil {
		return err
	}
	row := t.tx.QueryRowContext(ctx, `SELECT id FROM items WHERE profile_id=`+t.ph(1)+` AND kind=`+t.ph(2)+` AND category=`+t.ph(3)+` AND name=`+t.ph(4),
		t.store.profileID, kindRecord, encCat, encName)
	var id int64
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return walleterr.Wrap(walleterr.DBError, "askarstore: remove lookup", err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM items_tags WHERE item_id=`+t.ph(1), id); err != nil {
		return walleterr.Wrap(walleterr.DBError, "askarstore: remove tags", err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM items WHERE id=`+t.ph(1), id); err != nil {
		return walleterr.Wrap(walleterr.DBError, "askarstore: remove item", err)
	}
	return nil
}
