// keyring.go: Versioned keyring with atomic rotation for field encryption.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt

import (
	"crypto/cipher"
	"fmt"
	"sync"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// Key status constants.
const (
	// KeyStatusActive marks the single version used for new encryptions.
	KeyStatusActive = "active"

	// KeyStatusRetired marks versions kept for decrypt-only access to data
	// written before a rotation.
	KeyStatusRetired = "retired"
)

// KeyVersion is one entry of the keyring: a monotonic version number bound
// to 256 bits of key material. The key bytes are never serialized.
type KeyVersion struct {
	ID        string    `json:"id"`         // audit handle, never key material
	Version   int       `json:"version"`    // monotonic, starts at 1
	Status    string    `json:"status"`     // "active" or "retired"
	CreatedAt time.Time `json:"created_at"` // creation timestamp

	key  []byte      // the 32-byte AEAD key
	aead cipher.AEAD // pre-computed GCM for this version
}

// initAEAD pre-computes the GCM cipher for this version so per-call
// encryption skips aes.NewCipher + cipher.NewGCM.
func (kv *KeyVersion) initAEAD() error {
	gcm, err := cachedGCM(kv.key)
	if err != nil {
		return err
	}
	kv.aead = gcm
	return nil
}

// KeyManager is the three-method key contract the encryption service
// depends on. The service never knows whether versions come from an
// in-process keyring, an environment-provisioned secret, or an external key
// source behind a plugin.
type KeyManager interface {
	// CurrentVersion returns the version used for new encryptions.
	CurrentVersion() (int, error)

	// Key returns the 32-byte key for a version. Versions that were never
	// issued or have been purged yield ErrKeyNotFound; unreachable external
	// sources yield ErrKeyUnavailable.
	Key(version int) ([]byte, error)

	// Rotate atomically activates version current+1 and retires the
	// previous version for new writes. Retired versions stay
	// decrypt-capable.
	Rotate() (int, error)
}

// Keyring is the in-process KeyManager implementation. It supports safe
// concurrent reads and a single-writer rotation path: the new version's key
// bytes are published into the version map before the current-version
// pointer advances, so a concurrent reader never observes a version number
// whose key bytes are not yet available.
type Keyring struct {
	mu       sync.RWMutex
	versions map[int]*KeyVersion
	current  int
}

// NewKeyring creates a keyring whose version 1 is derived from the
// provisioned 32-byte master secret. The master secret itself is never used
// as an AEAD key; version 1 is an HKDF subkey under the AEAD namespace, so
// the same secret can also seed the HMAC namespace without overlap.
func NewKeyring(master []byte) (*Keyring, error) {
	if err := ValidateKey(master); err != nil {
		return nil, err
	}

	k1, err := deriveAEADKey(master)
	if err != nil {
		return nil, err
	}
	kv, err := newKeyVersion(1, k1)
	if err != nil {
		return nil, err
	}

	return &Keyring{
		versions: map[int]*KeyVersion{1: kv},
		current:  1,
	}, nil
}

// NewKeyringFromPassphrase creates a keyring whose master secret is derived
// from an operator passphrase with Argon2id. Pass nil params for defaults.
func NewKeyringFromPassphrase(passphrase, salt []byte, params *KDFParams) (*Keyring, error) {
	master, err := DeriveKey(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	defer Zeroize(master)
	return NewKeyring(master)
}

func newKeyVersion(version int, key []byte) (*KeyVersion, error) {
	kv := &KeyVersion{
		ID:        uuid.NewString(),
		Version:   version,
		Status:    KeyStatusActive,
		CreatedAt: timecache.CachedTime().UTC(),
		key:       key,
	}
	if err := kv.initAEAD(); err != nil {
		return nil, err
	}
	return kv, nil
}

// CurrentVersion returns the active version used for new encryptions.
func (k *Keyring) CurrentVersion() (int, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.current, nil
}

// Key returns a copy of the key bytes for a version. Unknown or purged
// versions yield ErrKeyNotFound.
func (k *Keyring) Key(version int) ([]byte, error) {
	k.mu.RLock()
	kv, ok := k.versions[version]
	k.mu.RUnlock()

	if !ok {
		richErr := goerrors.New(ErrCodeKeyNotFound, fmt.Sprintf("key version %d not found", version))
		return nil, fmt.Errorf("%w: %w", ErrKeyNotFound, richErr)
	}

	out := make([]byte, KeySize)
	copy(out, kv.key)
	return out, nil
}

// Rotate generates a fresh random key, publishes it as version current+1,
// retires the previous version for new writes, and advances the
// current-version pointer. The whole transition happens under the write
// lock; readers either see the old current or the fully published new one,
// never a half-published state.
func (k *Keyring) Rotate() (int, error) {
	// Generate outside the lock; only publication needs exclusivity.
	key, err := GenerateKey()
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeKeyRotation, "failed to generate rotation key")
		return 0, fmt.Errorf("key rotation failed: %w", richErr)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	next := k.current + 1
	kv, err := newKeyVersion(next, key)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeKeyRotation, "failed to initialize rotation key")
		return 0, fmt.Errorf("key rotation failed: %w", richErr)
	}

	// Publish before activate: the key bytes must be reachable through the
	// version map before the current pointer moves.
	k.versions[next] = kv
	if prev, ok := k.versions[k.current]; ok {
		prev.Status = KeyStatusRetired
	}
	k.current = next

	return next, nil
}

// Purge removes a retired version permanently, zeroizing its key material.
// Decrypting data still sealed under the purged version becomes impossible;
// the decision to purge belongs to the operator, not this package. The
// current version cannot be purged.
func (k *Keyring) Purge(version int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	kv, ok := k.versions[version]
	if !ok {
		richErr := goerrors.New(ErrCodeKeyNotFound, fmt.Sprintf("key version %d not found", version))
		return fmt.Errorf("%w: %w", ErrKeyNotFound, richErr)
	}
	if version == k.current {
		richErr := goerrors.New(ErrCodeKeyRotation, "cannot purge the current key version - rotate first")
		return fmt.Errorf("cannot purge active version: %w", richErr)
	}

	// Evict the cached cipher before the key bytes are gone; the cache is
	// keyed by fingerprint, which needs the original material.
	uncacheGCM(kv.key)
	Zeroize(kv.key)
	kv.key = nil
	kv.aead = nil
	delete(k.versions, version)
	return nil
}

// Versions returns a key-free snapshot of all versions for operational
// inspection, ordered by version number.
func (k *Keyring) Versions() []KeyVersion {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := make([]KeyVersion, 0, len(k.versions))
	for v := 1; v <= k.current; v++ {
		if kv, ok := k.versions[v]; ok {
			out = append(out, KeyVersion{
				ID:        kv.ID,
				Version:   kv.Version,
				Status:    kv.Status,
				CreatedAt: kv.CreatedAt,
			})
		}
	}
	return out
}

// aeadFor returns the pre-computed AEAD for a version, used by the
// encryption service hot path.
func (k *Keyring) aeadFor(version int) (cipher.AEAD, error) {
	k.mu.RLock()
	kv, ok := k.versions[version]
	k.mu.RUnlock()

	if !ok {
		richErr := goerrors.New(ErrCodeKeyNotFound, fmt.Sprintf("key version %d not found", version))
		return nil, fmt.Errorf("%w: %w", ErrKeyNotFound, richErr)
	}
	return kv.aead, nil
}
