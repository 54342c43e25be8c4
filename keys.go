// keys.go: Key generation, validation, encoding and zeroization utilities.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	goerrors "github.com/agilira/go-errors"
)

// KeySize is the required key size for AES-256 in bytes.
const KeySize = 32

// GenerateKey generates a cryptographically secure random 32-byte key
// suitable for AES-256-GCM.
//
// Example:
//
//	key, err := fieldcrypt.GenerateKey()
//	if err != nil {
//		log.Fatal(err)
//	}
//	keyring, err := fieldcrypt.NewKeyring(key)
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKeyGeneration, "failed to generate key")
	}
	return key, nil
}

// ValidateKey checks that a key has the correct size for AES-256.
func ValidateKey(key []byte) error {
	if len(key) != KeySize {
		richErr := goerrors.New(ErrCodeInvalidKey, fmt.Sprintf("key size must be %d bytes for AES-256, got %d", KeySize, len(key)))
		return fmt.Errorf("%w: %w", ErrInvalidKeySize, richErr)
	}
	return nil
}

// Zeroize overwrites a byte slice with zeros, in place. Used on retired key
// material and on scratch buffers that held plaintext before they are
// returned to a pool.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// KeyFingerprint returns a short non-cryptographic identifier for a key:
// the first 8 bytes of its SHA-256 hash, hex-encoded. Safe for logging and
// for cipher-cache indexing; it never exposes key material.
func KeyFingerprint(key []byte) string {
	if len(key) == 0 {
		return ""
	}
	hash := sha256.Sum256(key)
	return fmt.Sprintf("%016x", hash[:8])
}

// KeyToBase64 encodes a key as a standard base64 string, the format used by
// the FIELDCRYPT_MASTER_KEY environment variable.
func KeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// KeyFromBase64 decodes a base64-encoded key.
func KeyFromBase64(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeProvision, "failed to decode base64 key")
	}
	return key, nil
}

// KeyToHex encodes a key as a lowercase hexadecimal string.
func KeyToHex(key []byte) string {
	return hex.EncodeToString(key)
}

// KeyFromHex decodes a hexadecimal key. Accepted as an alternative master
// key format during provisioning.
func KeyFromHex(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeProvision, "failed to decode hex key")
	}
	return key, nil
}

// generateNonce fills a NonceSize buffer with cryptographically secure
// random bytes.
func generateNonce(nonce []byte) error {
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeNonceGen, "failed to generate nonce")
		return fmt.Errorf("%w: %w", ErrNonceGen, richErr)
	}
	return nil
}
