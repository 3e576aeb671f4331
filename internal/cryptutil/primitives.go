// Package cryptutil implements the byte-exact compatibility boundary with
// the legacy Indy-SDK wallet format: ChaCha20-Poly1305-IETF merged
// encrypt/decrypt, HMAC-SHA256 derived nonces and per-value keys, and the
// Argon2i master-key KDF.
package cryptutil

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"io"

	"github.com/hyperledger/aries-wallet-upgrade-go/internal/walleterr"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	keyLen   = 32
	nonceLen = chacha20poly1305.NonceSize // 12
	tagLen   = chacha20poly1305.Overhead  // 16

	// argon2ModerateTime/Memory mirror libsodium's OPSLIMIT_MODERATE and
	// MEMLIMIT_MODERATE: t=3 iterations, m=256 MiB, single-threaded. Keys
	// derived here must verify bit-for-bit against keys derived by the
	// legacy system, so these constants are not tunable.
	argon2ModerateTime    = 3
	argon2ModerateMemory  = 256 * 1024 // KiB
	argon2ModerateThreads = 1
)

// EncryptMerged seals message under key with ChaCha20-Poly1305-IETF and
// empty AAD, returning nonce‖ciphertext‖tag. If hmacKey is non-nil the
// 12-byte nonce is the first 12 bytes of HMAC-SHA256(hmacKey, message),
// making the output deterministic for a given (message, key, hmacKey)
// triple; otherwise the nonce is 12 fresh random bytes.
func EncryptMerged(message, key, hmacKey []byte) ([]byte, error) {
	if len(key) != keyLen {
		return nil, walleterr.New(walleterr.CryptoConfigError, "encrypt_merged: key must be 32 bytes")
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.CryptoConfigError, "encrypt_merged: build aead", err)
	}

	nonce := make([]byte, nonceLen)
	if hmacKey != nil {
		mac := hmac.New(sha256.New, hmacKey)
		mac.Write(message)
		copy(nonce, mac.Sum(nil)[:nonceLen])
	} else if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, walleterr.Wrap(walleterr.IOError, "encrypt_merged: read random nonce", err)
	}

	out := make([]byte, 0, nonceLen+len(message)+tagLen)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, message, nil)
	return out, nil
}

// DecryptMerged reverses EncryptMerged. If b64 is true, blob is first
// standard-alphabet Base64 decoded (padding required).
func DecryptMerged(blob, key []byte, b64 bool) ([]byte, error) {
	if len(key) != keyLen {
		return nil, walleterr.New(walleterr.CryptoConfigError, "decrypt_merged: key must be 32 bytes")
	}
	if b64 {
		decoded, err := base64.StdEncoding.DecodeString(string(blob))
		if err != nil {
			return nil, walleterr.Wrap(walleterr.IOError, "decrypt_merged: base64 decode", err)
		}
		blob = decoded
	}
	if len(blob) < nonceLen+tagLen {
		return nil, walleterr.New(walleterr.DecryptionFailed, "decrypt_merged: blob too short")
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.CryptoConfigError, "decrypt_merged: build aead", err)
	}
	nonce, ciphertext := blob[:nonceLen], blob[nonceLen:]
	message, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.DecryptionFailed, "decrypt_merged: authentication failed", err)
	}
	return message, nil
}

// EncryptValue derives a per-value key as
// HMAC-SHA256(hmacKey, len32be(category)‖category‖len32be(name)‖name) and
// encrypts value under it with a random nonce.
func EncryptValue(category, name, value, hmacKey []byte) ([]byte, error) {
	derived := DeriveValueKey(category, name, hmacKey)
	return EncryptMerged(value, derived, nil)
}

// DeriveValueKey computes the deterministic per-value key EncryptValue
// seals under. Exported so callers that only hold a ciphertext (no plain
// value yet) can recompute the same key to decrypt it, without this
// package needing its own decrypt-value entry point.
func DeriveValueKey(category, name, hmacKey []byte) []byte {
	mac := hmac.New(sha256.New, hmacKey)
	writeLenPrefixed(mac, category)
	writeLenPrefixed(mac, name)
	return mac.Sum(nil)
}

func writeLenPrefixed(w io.Writer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	w.Write(lenBuf[:])
	w.Write(b)
}

// DeriveMasterKey derives a 32-byte key from passphrase and the leading 16
// bytes of salt using Argon2i at libsodium's OPSLIMIT_MODERATE /
// MEMLIMIT_MODERATE parameters.
func DeriveMasterKey(passphrase string, salt []byte) ([]byte, error) {
	if len(salt) < 16 {
		return nil, walleterr.New(walleterr.CryptoConfigError, "derive_master_key: salt must be at least 16 bytes")
	}
	key := argon2.Key([]byte(passphrase), salt[:16], argon2ModerateTime, argon2ModerateMemory, argon2ModerateThreads, keyLen)
	return key, nil
}
