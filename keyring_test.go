// keyring_test.go: Test suite for the versioned keyring.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

func testMaster() []byte {
	master := make([]byte, KeySize)
	for i := range master {
		master[i] = byte(i)
	}
	return master
}

func TestKeyringBasic(t *testing.T) {
	kr, err := NewKeyring(testMaster())
	if err != nil {
		t.Fatalf("Failed to create keyring: %v", err)
	}

	version, err := kr.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected initial version 1, got %d", version)
	}

	key, err := kr.Key(1)
	if err != nil {
		t.Fatalf("Key(1) failed: %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("Expected %d-byte key, got %d", KeySize, len(key))
	}
	// Version 1 is an HKDF subkey, never the raw master secret.
	if bytes.Equal(key, testMaster()) {
		t.Error("Version 1 key must not equal the master secret")
	}

	_, err = kr.Key(2)
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound for unissued version, got %v", err)
	}
}

func TestKeyring_InvalidMaster(t *testing.T) {
	for _, master := range [][]byte{nil, {}, make([]byte, 16), make([]byte, 64)} {
		if _, err := NewKeyring(master); !errors.Is(err, ErrInvalidKeySize) {
			t.Errorf("Expected ErrInvalidKeySize for %d-byte master, got %v", len(master), err)
		}
	}
}

func TestKeyring_Rotate(t *testing.T) {
	kr, err := NewKeyring(testMaster())
	if err != nil {
		t.Fatalf("Failed to create keyring: %v", err)
	}

	next, err := kr.Rotate()
	if err != nil {
		t.Fatalf("Rotation failed: %v", err)
	}
	if next != 2 {
		t.Errorf("Expected rotation to version 2, got %d", next)
	}

	current, _ := kr.CurrentVersion()
	if current != 2 {
		t.Errorf("Expected current version 2, got %d", current)
	}

	// The retired version stays decrypt-capable.
	oldKey, err := kr.Key(1)
	if err != nil {
		t.Fatalf("Retired key must stay available: %v", err)
	}
	newKey, err := kr.Key(2)
	if err != nil {
		t.Fatalf("Key(2) failed: %v", err)
	}
	if bytes.Equal(oldKey, newKey) {
		t.Error("Rotation must produce a different key")
	}

	versions := kr.Versions()
	if len(versions) != 2 {
		t.Fatalf("Expected 2 versions, got %d", len(versions))
	}
	if versions[0].Status != KeyStatusRetired {
		t.Errorf("Expected version 1 retired, got %s", versions[0].Status)
	}
	if versions[1].Status != KeyStatusActive {
		t.Errorf("Expected version 2 active, got %s", versions[1].Status)
	}
	for _, kv := range versions {
		if kv.ID == "" {
			t.Error("Expected non-empty version ID")
		}
		if kv.CreatedAt.IsZero() {
			t.Error("Expected non-zero creation time")
		}
	}
}

func TestKeyring_Purge(t *testing.T) {
	kr, err := NewKeyring(testMaster())
	if err != nil {
		t.Fatalf("Failed to create keyring: %v", err)
	}
	if _, err := kr.Rotate(); err != nil {
		t.Fatalf("Rotation failed: %v", err)
	}

	// The current version cannot be purged.
	if err := kr.Purge(2); err == nil {
		t.Error("Expected error purging the current version")
	}

	if err := kr.Purge(1); err != nil {
		t.Fatalf("Failed to purge retired version: %v", err)
	}
	if _, err := kr.Key(1); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound after purge, got %v", err)
	}
	if err := kr.Purge(1); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound purging twice, got %v", err)
	}
}

// Purging a version must also evict its cached cipher: the cached AEAD
// carries the expanded key schedule, so leaving it behind would defeat the
// zeroization.
func TestKeyring_PurgeEvictsCachedCipher(t *testing.T) {
	kr, err := NewKeyring(testMaster())
	if err != nil {
		t.Fatalf("Failed to create keyring: %v", err)
	}

	key, err := kr.Key(1)
	if err != nil {
		t.Fatalf("Key(1) failed: %v", err)
	}
	fp := KeyFingerprint(key)

	cipherCacheMu.RLock()
	_, cached := cipherCache[fp]
	cipherCacheMu.RUnlock()
	if !cached {
		t.Fatal("Expected version 1 cipher to be cached after keyring creation")
	}

	if _, err := kr.Rotate(); err != nil {
		t.Fatalf("Rotation failed: %v", err)
	}
	if err := kr.Purge(1); err != nil {
		t.Fatalf("Failed to purge version 1: %v", err)
	}

	cipherCacheMu.RLock()
	_, cached = cipherCache[fp]
	cipherCacheMu.RUnlock()
	if cached {
		t.Error("Expected purge to evict the cached cipher for version 1")
	}
}

// A reader must never observe a current version whose key bytes are not yet
// published. Hammer rotations against concurrent current-version reads and
// immediately resolve every observed version.
func TestKeyring_PublishBeforeActivate(t *testing.T) {
	kr, err := NewKeyring(testMaster())
	if err != nil {
		t.Fatalf("Failed to create keyring: %v", err)
	}

	const rotations = 50
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				version, err := kr.CurrentVersion()
				if err != nil {
					t.Errorf("CurrentVersion failed: %v", err)
					return
				}
				if _, err := kr.Key(version); err != nil {
					t.Errorf("Observed current version %d without key bytes: %v", version, err)
					return
				}
			}
		}()
	}

	for i := 0; i < rotations; i++ {
		if _, err := kr.Rotate(); err != nil {
			t.Fatalf("Rotation %d failed: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()

	current, _ := kr.CurrentVersion()
	if current != rotations+1 {
		t.Errorf("Expected current version %d after %d rotations, got %d", rotations+1, rotations, current)
	}
}

func TestKeyringFromPassphrase(t *testing.T) {
	salt := []byte("deterministic-test-salt")
	params := &KDFParams{Time: 1, Memory: 16, Threads: 1}

	kr1, err := NewKeyringFromPassphrase([]byte("correct horse battery staple"), salt, params)
	if err != nil {
		t.Fatalf("Failed to create keyring from passphrase: %v", err)
	}
	kr2, err := NewKeyringFromPassphrase([]byte("correct horse battery staple"), salt, params)
	if err != nil {
		t.Fatalf("Failed to create second keyring: %v", err)
	}

	k1, _ := kr1.Key(1)
	k2, _ := kr2.Key(1)
	if !bytes.Equal(k1, k2) {
		t.Error("Same passphrase and salt must derive the same version-1 key")
	}

	kr3, err := NewKeyringFromPassphrase([]byte("different passphrase"), salt, params)
	if err != nil {
		t.Fatalf("Failed to create third keyring: %v", err)
	}
	k3, _ := kr3.Key(1)
	if bytes.Equal(k1, k3) {
		t.Error("Different passphrases must derive different keys")
	}

	if _, err := NewKeyringFromPassphrase(nil, salt, params); err == nil {
		t.Error("Expected error for empty passphrase")
	}
	if _, err := NewKeyringFromPassphrase([]byte("p"), nil, params); err == nil {
		t.Error("Expected error for empty salt")
	}
}
