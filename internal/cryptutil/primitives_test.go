package cryptutil

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/hyperledger/aries-wallet-upgrade-go/internal/walleterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key32(b byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = b
	}
	return k
}

func TestEncryptDecryptMergedRoundTrip(t *testing.T) {
	k := key32(1)
	msg := []byte("hello indy wallet")

	blob, err := EncryptMerged(msg, k, nil)
	require.NoError(t, err)
	require.Len(t, blob, nonceLen+len(msg)+tagLen)

	out, err := DecryptMerged(blob, k, false)
	require.NoError(t, err)
	assert.Equal(t, msg, out)
}

func TestEncryptMergedDeterministicWithHMACKey(t *testing.T) {
	k := key32(1)
	hmacKey := key32(2)
	msg := []byte("same every time")

	a, err := EncryptMerged(msg, k, hmacKey)
	require.NoError(t, err)
	b, err := EncryptMerged(msg, k, hmacKey)
	require.NoError(t, err)
	assert.Equal(t, a, b, "nonce derived from HMAC must be stable across runs")
}

func TestEncryptMergedRandomNonceWithoutHMACKey(t *testing.T) {
	k := key32(1)
	msg := []byte("same every time")

	a, err := EncryptMerged(msg, k, nil)
	require.NoError(t, err)
	b, err := EncryptMerged(msg, k, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a[:nonceLen], b[:nonceLen])
}

func TestDecryptMergedBase64(t *testing.T) {
	k := key32(3)
	msg := []byte("networked store value")
	blob, err := EncryptMerged(msg, k, nil)
	require.NoError(t, err)

	wrapped := []byte(base64.StdEncoding.EncodeToString(blob))
	out, err := DecryptMerged(wrapped, k, true)
	require.NoError(t, err)
	assert.Equal(t, msg, out)
}

func TestDecryptMergedTamperedTagFails(t *testing.T) {
	k := key32(4)
	blob, err := EncryptMerged([]byte("tamper me"), k, nil)
	require.NoError(t, err)
	blob[len(blob)-1] ^= 0xFF

	_, err = DecryptMerged(blob, k, false)
	require.Error(t, err)
	assert.True(t, walleterr.Is(err, walleterr.DecryptionFailed))
}

func TestEncryptMergedWrongKeyLength(t *testing.T) {
	_, err := EncryptMerged([]byte("x"), key32(1)[:16], nil)
	require.Error(t, err)
	assert.True(t, walleterr.Is(err, walleterr.CryptoConfigError))
}

func TestEncryptValueDeterministicKeyRandomNonce(t *testing.T) {
	hmacKey := key32(5)
	a, err := EncryptValue([]byte("Indy::Did"), []byte("name1"), []byte("value"), hmacKey)
	require.NoError(t, err)
	b, err := EncryptValue([]byte("Indy::Did"), []byte("name1"), []byte("value"), hmacKey)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonce must be random even though the derived key is deterministic")

	derivedKey := DeriveValueKey([]byte("Indy::Did"), []byte("name1"), hmacKey)
	out, err := DecryptMerged(a, derivedKey, false)
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), out)
}

func TestDeriveMasterKeyUsesOnlyFirst16BytesOfSalt(t *testing.T) {
	longSalt := bytes.Repeat([]byte{0x42}, 32)
	shortSalt := longSalt[:16]

	a, err := DeriveMasterKey("passphrase", longSalt)
	require.NoError(t, err)
	b, err := DeriveMasterKey("passphrase", shortSalt)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}
