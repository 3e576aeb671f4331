package store

import "fmt"

// dialect captures the handful of DDL differences between sqlite and
// postgres that the Askar target schema (§3, §6) needs.
type dialect struct {
	autoIncrementPK string // e.g. "INTEGER PRIMARY KEY AUTOINCREMENT" / "SERIAL PRIMARY KEY"
	blobType        string // e.g. "BLOB" / "BYTEA"
	placeholder     func(i int) string
	// tagsConcatExpr builds the SQL expression that GROUP_CONCATs a
	// table's (name, value) rows into the legacy "hex(name):hex(value),..."
	// wire format §4.2 decodes. sqlite's hex()/group_concat() and
	// postgres's encode()/string_agg() differ only in name.
	tagsConcatExpr func(table string) string
	// substrFunc is the dialect's substring function name: sqlite's substr()
	// vs postgres's substring(), used by the encrypted tag-name index below.
	substrFunc string
}

func (d dialect) schemaStatements() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS config (
			name TEXT NOT NULL,
			value TEXT NOT NULL
		)`),
		`CREATE UNIQUE INDEX IF NOT EXISTS ix_config_name ON config(name)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS profiles (
			id %s,
			name TEXT NOT NULL,
			reference TEXT,
			profile_key %s
		)`, d.autoIncrementPK, d.blobType),
		`CREATE UNIQUE INDEX IF NOT EXISTS ix_profile_name ON profiles(name)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS items (
			id %s,
			profile_id INTEGER NOT NULL REFERENCES profiles(id),
			kind INTEGER NOT NULL,
			category %s NOT NULL,
			name %s NOT NULL,
			value %s,
			expiry TEXT
		)`, d.autoIncrementPK, d.blobType, d.blobType, d.blobType),
		`CREATE UNIQUE INDEX IF NOT EXISTS ix_items_uniq ON items(profile_id, kind, category, name)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS items_tags (
			id %s,
			item_id INTEGER NOT NULL REFERENCES items(id),
			name %s NOT NULL,
			value %s NOT NULL,
			plaintext INTEGER NOT NULL
		)`, d.autoIncrementPK, d.blobType, d.blobType),
		`CREATE INDEX IF NOT EXISTS ix_items_tags_item_id ON items_tags(item_id)`,
		`CREATE INDEX IF NOT EXISTS ix_items_tags_name_plain ON items_tags(name, value) WHERE plaintext = 1`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS ix_items_tags_name_enc ON items_tags(name, %s(value, 1, 12)) WHERE plaintext = 0`, d.substrFunc),
	}
}

var sqliteDialect = dialect{
	autoIncrementPK: "INTEGER PRIMARY KEY AUTOINCREMENT",
	blobType:        "BLOB",
	placeholder:     func(i int) string { return "?" },
	substrFunc:      "substr",
	tagsConcatExpr: func(table string) string {
		return fmt.Sprintf(`(SELECT group_concat(hex(name) || ':' || hex(value)) FROM %s WHERE item_id = i.id)`, table)
	},
}

var postgresDialect = dialect{
	autoIncrementPK: "SERIAL PRIMARY KEY",
	blobType:        "TEXT", // networked store: base64-wrapped binary fields
	placeholder:     func(i int) string { return fmt.Sprintf("$%d", i) },
	substrFunc:      "substring",
	tagsConcatExpr: func(table string) string {
		// name/value are already base64 text in the networked store; encode
		// re-hexes the decoded bytes so the wire format matches §4.2
		// regardless of storage encoding.
		return fmt.Sprintf(`(SELECT string_agg(encode(decode(name, 'base64'), 'hex') || ':' || encode(decode(value, 'base64'), 'hex'), ',') FROM %s WHERE item_id = i.id)`, table)
	},
}

const (
	legacyTableMetadata       = "metadata"
	legacyTableItems          = "items"
	legacyTableTagsEncrypted  = "tags_encrypted"
	legacyTableTagsPlaintext  = "tags_plaintext"
	legacyTableItemsOldMarker = "items_old"
)

// PassKeyURI builds the pass-key derivation string persisted in
// config("key"), embedding salt in hex so the store-opening routine can
// re-derive the same master key from the user's passphrase.
func PassKeyURI(salt []byte) string {
	return fmt.Sprintf("kdf:argon2i:13:mod?salt=%x", salt)
}
