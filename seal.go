// seal.go: AES-256-GCM seal and open primitives with cipher caching.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"sync"

	goerrors "github.com/agilira/go-errors"
)

// Global cipher cache - avoids aes.NewCipher + cipher.NewGCM overhead on
// every call. Keyed by key fingerprint, never by key bytes.
var (
	cipherCacheMu sync.RWMutex
	cipherCache   = make(map[string]cipher.AEAD)
)

// cachedGCM returns a cached GCM cipher for the key, creating it on first use.
func cachedGCM(key []byte) (cipher.AEAD, error) {
	fp := KeyFingerprint(key)

	cipherCacheMu.RLock()
	if gcm, ok := cipherCache[fp]; ok {
		cipherCacheMu.RUnlock()
		return gcm, nil
	}
	cipherCacheMu.RUnlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeCipherInit, "failed to create AES cipher")
		return nil, fmt.Errorf("%w: %w", ErrCipherInit, richErr)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeCipherInit, "failed to create GCM cipher")
		return nil, fmt.Errorf("%w: %w", ErrCipherInit, richErr)
	}

	cipherCacheMu.Lock()
	cipherCache[fp] = gcm
	cipherCacheMu.Unlock()

	return gcm, nil
}

// uncacheGCM drops the cached AEAD for a key. Called when key material is
// purged; the cached cipher holds the expanded key schedule, so leaving it
// behind would keep the purged key recoverable for the process lifetime.
func uncacheGCM(key []byte) {
	fp := KeyFingerprint(key)
	cipherCacheMu.Lock()
	delete(cipherCache, fp)
	cipherCacheMu.Unlock()
}

// seal encrypts plaintext under key with a fresh random nonce and splits the
// GCM output into the envelope's ciphertext and authentication tag parts.
// aad is authenticated but not encrypted. The returned slices are private
// copies; callers may retain them.
func seal(key, plaintext, aad []byte) (nonce, ciphertext, tag []byte, err error) {
	if err := ValidateKey(key); err != nil {
		return nil, nil, nil, err
	}
	gcm, err := cachedGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}
	return sealWith(gcm, plaintext, aad)
}

// sealWith is the seal core for callers that already hold a pre-computed
// AEAD (the keyring caches one per key version).
func sealWith(gcm cipher.AEAD, plaintext, aad []byte) (nonce, ciphertext, tag []byte, err error) {
	nonceBuf := getNonceBuffer()
	defer putNonceBuffer(nonceBuf)
	iv := (*nonceBuf)[:NonceSize]
	if err := generateNonce(iv); err != nil {
		return nil, nil, nil, err
	}

	scratch := getScratchBuffer()
	defer putScratchBuffer(scratch)

	sealed := gcm.Seal(scratch, iv, plaintext, aad) // #nosec G407 -- nonce is generated from crypto/rand, not hardcoded
	split := len(sealed) - TagSize

	nonce = make([]byte, NonceSize)
	copy(nonce, iv)
	ciphertext = make([]byte, split)
	copy(ciphertext, sealed[:split])
	tag = make([]byte, TagSize)
	copy(tag, sealed[split:])

	return nonce, ciphertext, tag, nil
}

// open decrypts an envelope's ciphertext+tag under key and nonce, verifying
// aad alongside. Any cryptographic failure - wrong key, flipped bit in
// nonce, ciphertext, tag or aad - collapses to the single generic
// ErrAuthenticationFailed so callers can never distinguish "wrong key" from
// "tampered data".
func open(key, nonce, ciphertext, tag, aad []byte) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, authFailed()
	}
	gcm, err := cachedGCM(key)
	if err != nil {
		return nil, authFailed()
	}
	return openWith(gcm, nonce, ciphertext, tag, aad)
}

// openWith is the open core for callers that already hold a pre-computed
// AEAD.
func openWith(gcm cipher.AEAD, nonce, ciphertext, tag, aad []byte) ([]byte, error) {
	scratch := getScratchBuffer()
	sealed := append(scratch, ciphertext...)
	sealed = append(sealed, tag...)
	defer putScratchBuffer(sealed)

	plaintext, err := gcm.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, authFailed()
	}
	return plaintext, nil
}

func authFailed() error {
	richErr := goerrors.New(ErrCodeAuthFailed, "GCM authentication failed (wrong key or tampered data)")
	return fmt.Errorf("%w: %w", ErrAuthenticationFailed, richErr)
}
