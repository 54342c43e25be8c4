// kdf.go: Key derivation for master-secret provisioning and subkey namespaces.
//
// Provisioned master secrets may arrive as raw 32-byte keys or as operator
// passphrases; passphrases go through Argon2id. Subkeys for distinct
// cryptographic purposes (AEAD vs. HMAC) are derived with HKDF-SHA256 under
// separate info labels so one secret never serves two primitives directly.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt

import (
	"crypto/sha256"
	"io"

	goerrors "github.com/agilira/go-errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Default Argon2id parameters for passphrase-derived master secrets.
const (
	// DefaultKDFTime is the default number of Argon2id iterations.
	DefaultKDFTime = 3

	// DefaultKDFMemory is the default Argon2id memory usage in MB.
	DefaultKDFMemory = 64

	// DefaultKDFThreads is the default Argon2id parallelism.
	DefaultKDFThreads = 4
)

// HKDF info labels separating subkey namespaces. The MAC key is derived
// under a different label than any AEAD key, so the two primitives can never
// end up sharing key bytes.
const (
	hkdfInfoAEAD = "fieldcrypt/aead/v1"
	hkdfInfoMAC  = "fieldcrypt/mac/v1"
)

// KDFParams defines custom parameters for Argon2id passphrase derivation.
// Zero fields fall back to the package defaults.
type KDFParams struct {
	Time    uint32 `json:"time,omitempty"`    // iteration count
	Memory  uint32 `json:"memory,omitempty"`  // memory usage in MB
	Threads uint8  `json:"threads,omitempty"` // parallelism
}

// DeriveKey derives a 256-bit master secret from an operator passphrase and
// salt using Argon2id. Pass nil params to use the package defaults.
//
// Use this only for low-entropy passphrase input; high-entropy key material
// should go through DeriveKeyHKDF instead.
func DeriveKey(passphrase, salt []byte, params *KDFParams) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, goerrors.New(ErrCodeKDF, "passphrase cannot be empty")
	}
	if len(salt) == 0 {
		return nil, goerrors.New(ErrCodeKDF, "salt cannot be empty")
	}

	time := uint32(DefaultKDFTime)
	memory := uint32(DefaultKDFMemory * 1024)
	threads := uint8(DefaultKDFThreads)
	if params != nil {
		if params.Time > 0 {
			time = params.Time
		}
		if params.Memory > 0 {
			memory = params.Memory * 1024
		}
		if params.Threads > 0 {
			threads = params.Threads
		}
	}

	return argon2.IDKey(passphrase, salt, time, memory, threads, KeySize), nil
}

// DeriveKeyHKDF derives a subkey from high-entropy master material using
// HKDF-SHA256 (RFC 5869). The info label binds the subkey to a single
// purpose; deriving under two labels always yields independent keys.
func DeriveKeyHKDF(master, salt, info []byte, keyLen int) ([]byte, error) {
	if len(master) == 0 {
		return nil, goerrors.New(ErrCodeKDF, "master key cannot be empty")
	}
	if keyLen <= 0 || keyLen > 255*sha256.Size {
		return nil, goerrors.New(ErrCodeKDF, "invalid output key length for HKDF-SHA256")
	}

	out := make([]byte, keyLen)
	r := hkdf.New(sha256.New, master, salt, info)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKDF, "HKDF expansion failed")
	}
	return out, nil
}

// deriveMACKey derives the HMAC subkey from the provisioned master secret.
// The namespace label keeps it distinct from every AEAD key, including the
// version-1 key derived from the same secret.
func deriveMACKey(master []byte) ([]byte, error) {
	return DeriveKeyHKDF(master, nil, []byte(hkdfInfoMAC), KeySize)
}

// deriveAEADKey derives the version-1 AEAD key from the provisioned master
// secret.
func deriveAEADKey(master []byte) ([]byte, error) {
	return DeriveKeyHKDF(master, nil, []byte(hkdfInfoAEAD), KeySize)
}
