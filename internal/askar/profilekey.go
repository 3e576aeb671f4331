// Package askar shapes decrypted Indy rows into the Askar record/tag
// representation: the per-wallet ProfileKey, and update_item's
// re-encryption of a decrypted item under that profile key.
package askar

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/cryptutil"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/indy"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/walleterr"
)

// ProfileKey is the canonical 7-field symmetric-key record serialised as a
// CBOR map and stored (encrypted) in profiles.profile_key.
type ProfileKey struct {
	Ver string `cbor:"ver"`
	ICK []byte `cbor:"ick"`
	INK []byte `cbor:"ink"`
	IHK []byte `cbor:"ihk"`
	TNK []byte `cbor:"tnk"`
	TVK []byte `cbor:"tvk"`
	THK []byte `cbor:"thk"`
}

// NewProfileKey builds a ProfileKey from six of the IndyKeyBundle's seven
// keys. value_key is excluded: it only existed to unwrap legacy per-item
// keys, and has no role once items live in the Askar layout, where
// per-value keys are instead derived deterministically from the item HMAC
// key (ihk) on every encrypt/decrypt.
func NewProfileKey(bundle *indy.KeyBundle) ProfileKey {
	return ProfileKey{
		Ver: "1",
		ICK: bundle.TypeKey,
		INK: bundle.NameKey,
		IHK: bundle.ItemHMACKey,
		TNK: bundle.TagNameKey,
		TVK: bundle.TagValueKey,
		THK: bundle.TagHMACKey,
	}
}

var canonicalCBOR cbor.EncMode

func init() {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	canonicalCBOR = mode
}

// EncryptProfileKey CBOR-encodes pk canonically and seals it under
// masterKey with a random nonce, producing the blob stored in
// profiles.profile_key.
func EncryptProfileKey(pk ProfileKey, masterKey []byte) ([]byte, error) {
	encoded, err := canonicalCBOR.Marshal(pk)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.IOError, "encrypt profile key: cbor marshal", err)
	}
	return cryptutil.EncryptMerged(encoded, masterKey, nil)
}

// DecryptProfileKey reverses EncryptProfileKey; used by tests to check the
// round-trip invariant (testable property 3).
func DecryptProfileKey(blob, masterKey []byte) (ProfileKey, error) {
	var pk ProfileKey
	decoded, err := cryptutil.DecryptMerged(blob, masterKey, false)
	if err != nil {
		return pk, err
	}
	if err := cbor.Unmarshal(decoded, &pk); err != nil {
		return pk, walleterr.Wrap(walleterr.IOError, "decrypt profile key: cbor unmarshal", err)
	}
	return pk, nil
}
