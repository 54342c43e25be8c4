// Package fieldcrypt is the field-level encryption core of the ReshADX
// platform. It protects sensitive structured values - personally identifying
// and financial data - before persistence and after retrieval, turning an
// arbitrary plaintext value into a self-describing, tamper-evident envelope
// string and back.
//
// The package offers:
//   - AES-256-GCM authenticated encryption of single field values with a
//     fresh random nonce per call, cached ciphers per key version, and the
//     envelope's version and encoding bound as associated data
//   - A versioned keyring with atomic, zero-downtime key rotation: new
//     encryptions move to the new version while retired versions keep
//     decrypting legacy data
//   - Re-encryption for rotation migration sweeps
//   - Order-preserving, fail-fast batch encrypt/decrypt with optional
//     parallel fan-out and progress reporting
//   - Keyed integrity (HMAC-SHA-256) with timing-safe verification, and a
//     never-failing constant-time comparison for credential checks
//   - Pluggable external key sources behind the three-method KeyManager
//     contract, with explicit timeouts
//
// # Quick Start
//
//	master, err := fieldcrypt.GenerateKey()
//	if err != nil {
//		log.Fatal(err)
//	}
//	svc, err := fieldcrypt.NewService(master)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	envelope, err := svc.Encrypt(map[string]any{"name": "John", "ssn": "123-45-6789"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	value, err := svc.Decrypt(envelope)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// The envelope is a JSON string carrying the key version, IV, ciphertext,
// authentication tag, algorithm, timestamp and plaintext encoding. Callers
// persist it as an opaque string; this package decides nothing about what to
// encrypt or where it is stored.
//
// # Key Rotation
//
//	newVersion, err := svc.Rotate()       // new encryptions use newVersion
//	migrated, err := svc.Reencrypt(envelope, newVersion) // sweep old records
//
// Rotation is atomic: the new key is fully published before the current
// version pointer advances, so concurrent encryptions never observe a
// version without key bytes. Old envelopes decrypt under their recorded
// version until a migration sweep re-encrypts them.
//
// # Error Discipline
//
// Decrypt deliberately reports one generic authentication error for wrong
// keys, unknown versions and tampered data, so it cannot be used as an
// oracle. Expiry-policy failures are the one distinguishable condition,
// since they are business policy rather than a secrecy boundary. Metadata,
// IsEncrypted and ConstantTimeCompare are soft: they return nil or false
// instead of errors.
//
// nil plaintext and "" ciphertext are identity pass-throughs, signalling
// "nothing to protect".
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0
package fieldcrypt
