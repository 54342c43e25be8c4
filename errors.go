// errors.go: Error taxonomy for field encryption, decryption and key management.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt

import (
	"errors"
	"fmt"
)

// Public standard errors for drop-in compatibility.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrInvalidInput is returned when a plaintext value cannot be serialized
	// for encryption (e.g. a channel, a function, or a cyclic structure).
	ErrInvalidInput = errors.New("fieldcrypt: invalid input")

	// ErrMalformedEnvelope is returned by Decrypt when the envelope string is
	// not valid JSON or is missing required fields. Metadata returns nil for
	// the same condition instead of an error.
	ErrMalformedEnvelope = errors.New("fieldcrypt: malformed envelope")

	// ErrInvalidKeySize is returned when a provided key is not exactly 32 bytes.
	ErrInvalidKeySize = errors.New("fieldcrypt: invalid key size")

	// ErrKeyNotFound is returned by key lookups for a version that was never
	// issued or has been purged.
	ErrKeyNotFound = errors.New("fieldcrypt: key version not found")

	// ErrKeyUnavailable is returned when an external key source cannot be
	// reached within its configured timeout.
	ErrKeyUnavailable = errors.New("fieldcrypt: key source unavailable")

	// ErrAuthenticationFailed is returned when AEAD tag verification fails.
	// It deliberately conflates "wrong key", "unknown key version" and
	// "tampered ciphertext" so Decrypt never becomes a cryptographic oracle.
	ErrAuthenticationFailed = errors.New("fieldcrypt: authentication failed")

	// ErrExpiredData is returned when timestamp validation is requested and
	// the envelope is older than the allowed maximum age.
	ErrExpiredData = errors.New("fieldcrypt: encrypted data has expired")

	// ErrNonceGen is returned when random nonce generation fails.
	ErrNonceGen = errors.New("fieldcrypt: nonce generation error")

	// ErrCipherInit is returned when AES or GCM initialization fails.
	ErrCipherInit = errors.New("fieldcrypt: cipher initialization error")
)

// Error codes for rich error handling
const (
	ErrCodeInvalidInput      = "FIELDCRYPT_INVALID_INPUT"
	ErrCodeMalformedEnvelope = "FIELDCRYPT_MALFORMED_ENVELOPE"
	ErrCodeInvalidKey        = "FIELDCRYPT_INVALID_KEY"
	ErrCodeKeyNotFound       = "FIELDCRYPT_KEY_NOT_FOUND"
	ErrCodeKeyUnavailable    = "FIELDCRYPT_KEY_UNAVAILABLE"
	ErrCodeAuthFailed        = "FIELDCRYPT_AUTH_FAILED"
	ErrCodeExpired           = "FIELDCRYPT_EXPIRED"
	ErrCodeNonceGen          = "FIELDCRYPT_NONCE_GEN"
	ErrCodeCipherInit        = "FIELDCRYPT_CIPHER_INIT"
	ErrCodeKeyGeneration     = "FIELDCRYPT_KEY_GENERATION"
	ErrCodeKeyRotation       = "FIELDCRYPT_KEY_ROTATION"
	ErrCodeKDF               = "FIELDCRYPT_KDF"
	ErrCodeProvision         = "FIELDCRYPT_PROVISION"
)

// BatchError reports the failure of a single item inside a batch operation.
// Batch operations are fail-fast: the first item failure aborts the whole
// call and is propagated with its input index, never partial results.
type BatchError struct {
	Index int   // position of the failing item in the input slice
	Err   error // the underlying item failure
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("fieldcrypt: batch item %d: %v", e.Index, e.Err)
}

// Unwrap exposes the underlying item error to errors.Is/errors.As.
func (e *BatchError) Unwrap() error {
	return e.Err
}
