package indy

import (
	"encoding/hex"
	"strings"

	"github.com/hyperledger/aries-wallet-upgrade-go/internal/cryptutil"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/walleterr"
)

// Item is one source row from the legacy items table.
type Item struct {
	ID        int64
	Type      []byte
	Name      []byte
	Value     []byte
	Key       []byte
	TagsEnc   string
	TagsPlain string
}

// Tag is one decoded (plaintext flag, name, value) triple. Plaintext is 1
// when the tag's value was stored unencrypted in tags_plaintext.
type Tag struct {
	Plaintext int
	Name      []byte
	Value     []byte
}

// Decrypted is the plaintext form of an Item, ready for re-encryption
// under the target profile key.
type Decrypted struct {
	ID       int64
	Category []byte
	Name     []byte
	Value    []byte // nil if the source value was empty
	Tags     []Tag
}

// DecryptItem decrypts row under bundle. b64 selects the networked-store
// variant where only the type/name components are base64-wrapped before
// decryption; value_key, value, and all tag components are never wrapped.
func DecryptItem(row Item, bundle *KeyBundle, b64 bool) (*Decrypted, error) {
	// value_key and value are never base64-wrapped, regardless of store:
	// only type/name/tag components carry the networked-store encoding.
	valueKey, err := cryptutil.DecryptMerged(row.Key, bundle.ValueKey, false)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.DecryptionFailed, "decrypt_item: unwrap value key", err)
	}

	var value []byte
	if len(row.Value) > 0 {
		value, err = cryptutil.DecryptMerged(row.Value, valueKey, false)
		if err != nil {
			return nil, walleterr.Wrap(walleterr.DecryptionFailed, "decrypt_item: decrypt value", err)
		}
	}

	category, err := cryptutil.DecryptMerged(row.Type, bundle.TypeKey, b64)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.DecryptionFailed, "decrypt_item: decrypt type", err)
	}
	name, err := cryptutil.DecryptMerged(row.Name, bundle.NameKey, b64)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.DecryptionFailed, "decrypt_item: decrypt name", err)
	}

	tags, err := decryptTags(row.TagsEnc, row.TagsPlain, bundle)
	if err != nil {
		return nil, err
	}

	return &Decrypted{ID: row.ID, Category: category, Name: name, Value: value, Tags: tags}, nil
}

// decryptTags never base64-decodes: tag name/value ciphertext is always
// plain, regardless of store.
func decryptTags(tagsEnc, tagsPlain string, bundle *KeyBundle) ([]Tag, error) {
	var tags []Tag

	encPairs, err := splitTagString(tagsEnc)
	if err != nil {
		return nil, err
	}
	for _, p := range encPairs {
		name, err := cryptutil.DecryptMerged(p[0], bundle.TagNameKey, false)
		if err != nil {
			return nil, walleterr.Wrap(walleterr.DecryptionFailed, "decrypt_item: decrypt tag name", err)
		}
		// The corrected path (see design notes on the source's
		// tag[1]-vs-tag_value divergence): the encrypted tag value is
		// decrypted, not truncated to a single character.
		value, err := cryptutil.DecryptMerged(p[1], bundle.TagValueKey, false)
		if err != nil {
			return nil, walleterr.Wrap(walleterr.DecryptionFailed, "decrypt_item: decrypt tag value", err)
		}
		tags = append(tags, Tag{Plaintext: 0, Name: name, Value: value})
	}

	plainPairs, err := splitTagString(tagsPlain)
	if err != nil {
		return nil, err
	}
	for _, p := range plainPairs {
		name, err := cryptutil.DecryptMerged(p[0], bundle.TagNameKey, false)
		if err != nil {
			return nil, walleterr.Wrap(walleterr.DecryptionFailed, "decrypt_item: decrypt plaintext tag name", err)
		}
		tags = append(tags, Tag{Plaintext: 1, Name: name, Value: p[1]})
	}

	return tags, nil
}

// splitTagString parses a comma-joined "hex(name):hex(value)" string into
// raw (nameBytes, valueBytes) pairs. An empty string yields no pairs.
func splitTagString(s string) ([][2][]byte, error) {
	if s == "" {
		return nil, nil
	}
	var out [][2][]byte
	for _, elem := range strings.Split(s, ",") {
		parts := strings.SplitN(elem, ":", 2)
		if len(parts) != 2 {
			return nil, walleterr.New(walleterr.DecryptionFailed, "decrypt_item: malformed tag pair")
		}
		name, err := hex.DecodeString(parts[0])
		if err != nil {
			return nil, walleterr.Wrap(walleterr.DecryptionFailed, "decrypt_item: hex-decode tag name", err)
		}
		value, err := hex.DecodeString(parts[1])
		if err != nil {
			return nil, walleterr.Wrap(walleterr.DecryptionFailed, "decrypt_item: hex-decode tag value", err)
		}
		out = append(out, [2][]byte{name, value})
	}
	return out, nil
}
