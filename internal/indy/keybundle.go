// Package indy decodes the legacy Indy-SDK wallet wire format: the
// metadata-wrapped key bundle and the per-item encrypted rows, in both the
// embedded-file and networked (base64-wrapped) storage variants.
package indy

import (
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/cryptutil"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/walleterr"
	"github.com/ugorji/go/codec"
)

// KeyBundle holds the seven 32-byte symmetric keys unpacked from a
// decrypted Indy metadata "keys" blob, in the fixed positional order the
// legacy msgpack array encodes them.
type KeyBundle struct {
	TypeKey     []byte
	NameKey     []byte
	ValueKey    []byte
	ItemHMACKey []byte
	TagNameKey  []byte
	TagValueKey []byte
	TagHMACKey  []byte
}

// Zero overwrites every key field in place. Best-effort: Go's garbage
// collector may have relocated or copied the backing arrays before this
// runs, so this is a mitigation, not a guarantee.
func (b *KeyBundle) Zero() {
	for _, k := range [][]byte{b.TypeKey, b.NameKey, b.ValueKey, b.ItemHMACKey, b.TagNameKey, b.TagValueKey, b.TagHMACKey} {
		for i := range k {
			k[i] = 0
		}
	}
}

// Metadata is the one-per-wallet blob read from the legacy metadata table:
// the encrypted key bundle and the Argon2i salt (only the first 16 bytes
// of which participate in the KDF).
type Metadata struct {
	Keys         []byte
	MasterKeySalt []byte
}

// keyBundleLength is the number of entries in the legacy msgpack key
// array. It is a positional array, never a named map.
const keyBundleLength = 7

// UnpackKeyBundle decodes a decrypted "keys" blob — a msgpack-encoded
// positional array of exactly seven byte strings — into a KeyBundle.
func UnpackKeyBundle(decryptedKeysBlob []byte) (*KeyBundle, error) {
	var raw [][]byte
	var mh codec.MsgpackHandle
	dec := codec.NewDecoderBytes(decryptedKeysBlob, &mh)
	if err := dec.Decode(&raw); err != nil {
		return nil, walleterr.Wrap(walleterr.MalformedKeyBundle, "unpack key bundle: msgpack decode", err)
	}
	if len(raw) != keyBundleLength {
		return nil, walleterr.New(walleterr.MalformedKeyBundle, "unpack key bundle: expected 7 positional entries")
	}
	return &KeyBundle{
		TypeKey:     raw[0],
		NameKey:     raw[1],
		ValueKey:    raw[2],
		ItemHMACKey: raw[3],
		TagNameKey:  raw[4],
		TagValueKey: raw[5],
		TagHMACKey:  raw[6],
	}, nil
}

// FetchResult is everything derived from a wallet's metadata row.
type FetchResult struct {
	Bundle    *KeyBundle
	MasterKey []byte
	Salt      []byte
}

// FetchIndyKey derives the wallet's master key from passphrase and the
// metadata row, then decrypts and unpacks the key bundle. b64 selects the
// networked-store variant where metadata.value is base64-wrapped.
func FetchIndyKey(meta Metadata, passphrase string, b64 bool) (*FetchResult, error) {
	salt := meta.MasterKeySalt
	masterKey, err := cryptutil.DeriveMasterKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	decrypted, err := cryptutil.DecryptMerged(meta.Keys, masterKey, b64)
	if err != nil {
		return nil, err
	}
	bundle, err := UnpackKeyBundle(decrypted)
	if err != nil {
		return nil, err
	}
	return &FetchResult{Bundle: bundle, MasterKey: masterKey, Salt: salt}, nil
}
