package askar

import (
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/cryptutil"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/indy"
)

// ItemRow is the shape of a target items row, still carrying the Askar
// "kind" constant used by the real Askar record engine to distinguish
// plain-text-searchable categories/names from ciphertext ones (kind=2 is
// the convention this migration targets, matching encrypted item rows
// produced by the legacy converter — see seed scenario S1).
type ItemRow struct {
	Kind     int
	Category []byte
	Name     []byte
	Value    []byte
}

// TagRow is the shape of a target items_tags row.
type TagRow struct {
	Name      []byte
	Value     []byte
	Plaintext int
}

const kindEncrypted = 2

// UpdateItem re-encrypts a decrypted Indy item under profileKey: category
// and name are sealed with the deterministic HMAC-nonce form under the
// item HMAC key, the value is re-keyed with encrypt_value, and tags are
// re-sealed per their plaintext flag.
func UpdateItem(item *indy.Decrypted, profileKey ProfileKey) (ItemRow, []TagRow, error) {
	category, err := cryptutil.EncryptMerged(item.Category, profileKey.ICK, profileKey.IHK)
	if err != nil {
		return ItemRow{}, nil, err
	}
	name, err := cryptutil.EncryptMerged(item.Name, profileKey.INK, profileKey.IHK)
	if err != nil {
		return ItemRow{}, nil, err
	}

	var value []byte
	if item.Value != nil {
		value, err = cryptutil.EncryptValue(item.Category, item.Name, item.Value, profileKey.IHK)
		if err != nil {
			return ItemRow{}, nil, err
		}
	}

	row := ItemRow{Kind: kindEncrypted, Category: category, Name: name, Value: value}

	tags := make([]TagRow, 0, len(item.Tags))
	for _, t := range item.Tags {
		tagName, err := cryptutil.EncryptMerged(t.Name, profileKey.TNK, profileKey.THK)
		if err != nil {
			return ItemRow{}, nil, err
		}
		tagValue := t.Value
		if t.Plaintext == 0 {
			tagValue, err = cryptutil.EncryptMerged(t.Value, profileKey.TVK, profileKey.THK)
			if err != nil {
				return ItemRow{}, nil, err
			}
		}
		tags = append(tags, TagRow{Name: tagName, Value: tagValue, Plaintext: t.Plaintext})
	}

	return row, tags, nil
}
