package indy

import (
	"bytes"
	"testing"

	"github.com/hyperledger/aries-wallet-upgrade-go/internal/cryptutil"
	"github.com/hyperledger/aries-wallet-upgrade-go/internal/walleterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ugorji/go/codec"
)

func key32(b byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = b
	}
	return k
}

func packKeyBundle(t *testing.T, keys [7][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var mh codec.MsgpackHandle
	enc := codec.NewEncoder(&buf, &mh)
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		raw[i] = k
	}
	require.NoError(t, enc.Encode(raw))
	return buf.Bytes()
}

func TestUnpackKeyBundlePositionalOrder(t *testing.T) {
	keys := [7][]byte{key32(1), key32(2), key32(3), key32(4), key32(5), key32(6), key32(7)}
	blob := packKeyBundle(t, keys)

	bundle, err := UnpackKeyBundle(blob)
	require.NoError(t, err)
	assert.Equal(t, keys[0], bundle.TypeKey)
	assert.Equal(t, keys[1], bundle.NameKey)
	assert.Equal(t, keys[2], bundle.ValueKey)
	assert.Equal(t, keys[3], bundle.ItemHMACKey)
	assert.Equal(t, keys[4], bundle.TagNameKey)
	assert.Equal(t, keys[5], bundle.TagValueKey)
	assert.Equal(t, keys[6], bundle.TagHMACKey)
}

func TestUnpackKeyBundleWrongLength(t *testing.T) {
	keys := [6][]byte{key32(1), key32(2), key32(3), key32(4), key32(5), key32(6)}
	var buf bytes.Buffer
	var mh codec.MsgpackHandle
	enc := codec.NewEncoder(&buf, &mh)
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		raw[i] = k
	}
	require.NoError(t, enc.Encode(raw))

	_, err := UnpackKeyBundle(buf.Bytes())
	require.Error(t, err)
	assert.True(t, walleterr.Is(err, walleterr.MalformedKeyBundle))
}

func TestKeyBundleZero(t *testing.T) {
	bundle := &KeyBundle{TypeKey: key32(9), NameKey: key32(9)}
	bundle.Zero()
	assert.Equal(t, make([]byte, 32), bundle.TypeKey)
	assert.Equal(t, make([]byte, 32), bundle.NameKey)
}

func TestFetchIndyKeyRoundTrip(t *testing.T) {
	keys := [7][]byte{key32(1), key32(2), key32(3), key32(4), key32(5), key32(6), key32(7)}
	plainBundle := packKeyBundle(t, keys)

	salt := bytes.Repeat([]byte{0x11}, 16)
	masterKey, err := cryptutil.DeriveMasterKey("correct horse", salt)
	require.NoError(t, err)

	encrypted, err := cryptutil.EncryptMerged(plainBundle, masterKey, nil)
	require.NoError(t, err)

	meta := Metadata{Keys: encrypted, MasterKeySalt: salt}
	result, err := FetchIndyKey(meta, "correct horse", false)
	require.NoError(t, err)
	assert.Equal(t, masterKey, result.MasterKey)
	assert.Equal(t, keys[0], result.Bundle.TypeKey)
	assert.Equal(t, keys[6], result.Bundle.TagHMACKey)
}

func TestFetchIndyKeyWrongPassphraseFails(t *testing.T) {
	keys := [7][]byte{key32(1), key32(2), key32(3), key32(4), key32(5), key32(6), key32(7)}
	plainBundle := packKeyBundle(t, keys)
	salt := bytes.Repeat([]byte{0x22}, 16)
	masterKey, err := cryptutil.DeriveMasterKey("right", salt)
	require.NoError(t, err)
	encrypted, err := cryptutil.EncryptMerged(plainBundle, masterKey, nil)
	require.NoError(t, err)

	meta := Metadata{Keys: encrypted, MasterKeySalt: salt}
	_, err = FetchIndyKey(meta, "wrong", false)
	require.Error(t, err)
	assert.True(t, walleterr.Is(err, walleterr.DecryptionFailed))
}
