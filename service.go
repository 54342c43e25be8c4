// service.go: Stateless field-level encryption service over a versioned keyring.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// Service turns plaintext field values into self-describing, tamper-evident
// envelope strings and back. Every operation is stateless per call; the only
// shared state is the key manager's current-version pointer, so a single
// Service is safe for arbitrarily many concurrent callers.
//
// Plaintext is never logged and never retained after a call returns.
type Service struct {
	keys   KeyManager
	macKey []byte
}

// DecryptPolicy controls optional, non-cryptographic checks applied during
// decryption. The zero value applies none.
type DecryptPolicy struct {
	// ValidateTimestamp enables the envelope age check.
	ValidateTimestamp bool

	// MaxAge is the maximum allowed envelope age when ValidateTimestamp is
	// set. Older envelopes fail with ErrExpiredData before any key lookup.
	MaxAge time.Duration
}

// NewService builds a Service with an in-process keyring provisioned from a
// 32-byte master secret. Version 1 of the keyring and the HMAC key are
// derived from the secret under separate HKDF namespaces.
func NewService(master []byte) (*Service, error) {
	keyring, err := NewKeyring(master)
	if err != nil {
		return nil, err
	}
	macKey, err := deriveMACKey(master)
	if err != nil {
		return nil, err
	}
	return &Service{keys: keyring, macKey: macKey}, nil
}

// NewServiceWithKeyManager wires an externally managed key source (e.g. a
// RemoteKeySource backed by a vault plugin). The MAC key is provided
// separately because external sources own the AEAD namespace; it must be 32
// bytes and must not be one of the AEAD keys.
func NewServiceWithKeyManager(km KeyManager, macKey []byte) (*Service, error) {
	if km == nil {
		return nil, goerrors.New(ErrCodeProvision, "key manager cannot be nil")
	}
	if err := ValidateKey(macKey); err != nil {
		return nil, err
	}
	mk := make([]byte, KeySize)
	copy(mk, macKey)
	return &Service{keys: km, macKey: mk}, nil
}

// Keyring returns the underlying in-process keyring, or nil when the service
// is backed by an external key manager. Exposed for rotation tooling.
func (s *Service) Keyring() *Keyring {
	if kr, ok := s.keys.(*Keyring); ok {
		return kr
	}
	return nil
}

// Rotate activates a new key version for subsequent encryptions. Previously
// written envelopes keep decrypting under their recorded version until the
// migration sweep re-encrypts them.
func (s *Service) Rotate() (int, error) {
	return s.keys.Rotate()
}

// Encrypt seals a plaintext value under the current key version and returns
// the envelope as a JSON string.
//
// nil is an identity pass-through: it returns ("", nil), signalling "nothing
// to protect". Strings are sealed as-is (encoding "raw"); any other
// JSON-serializable value is JSON-encoded first (encoding "json"), so a
// string that merely looks like JSON round-trips as a string.
func (s *Service) Encrypt(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	version, err := s.keys.CurrentVersion()
	if err != nil {
		return "", err
	}
	return s.encryptValue(v, version)
}

// EncryptWithVersion seals a plaintext value under an explicit key version
// instead of the current one. The version must exist in the key manager.
func (s *Service) EncryptWithVersion(v any, version int) (string, error) {
	if v == nil {
		return "", nil
	}
	return s.encryptValue(v, version)
}

func (s *Service) encryptValue(v any, version int) (string, error) {
	data, encoding, err := serializePlaintext(v)
	if err != nil {
		return "", err
	}
	defer Zeroize(data)
	return s.sealEnvelope(data, encoding, version)
}

// sealEnvelope runs the AEAD seal for already-serialized plaintext and emits
// the envelope string. The version and encoding are bound as associated
// data, so rewriting either plaintext field in a stored envelope fails
// authentication. Shared by Encrypt and Reencrypt.
func (s *Service) sealEnvelope(data []byte, encoding string, version int) (string, error) {
	var nonce, ciphertext, tag []byte
	aad := envelopeAAD(version, encoding)

	// Fast path: the in-process keyring hands out its pre-computed AEAD so
	// the hot path copies no key bytes.
	if kr, ok := s.keys.(*Keyring); ok {
		gcm, err := kr.aeadFor(version)
		if err != nil {
			return "", err
		}
		nonce, ciphertext, tag, err = sealWith(gcm, data, aad)
		if err != nil {
			return "", err
		}
	} else {
		key, err := s.keys.Key(version)
		if err != nil {
			return "", err
		}
		nonce, ciphertext, tag, err = seal(key, data, aad)
		Zeroize(key)
		if err != nil {
			return "", err
		}
	}

	env := &Envelope{
		Version:    version,
		IV:         base64.StdEncoding.EncodeToString(nonce),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Algorithm:  Algorithm,
		Timestamp:  timecache.CachedTime().UTC().UnixMilli(),
		Encoding:   encoding,
	}
	return encodeEnvelope(env)
}

// Decrypt reverses Encrypt. "" is the identity pass-through for nil
// plaintext and returns (nil, nil).
//
// Malformed envelopes yield ErrMalformedEnvelope. An unknown key version and
// a tampered ciphertext both yield the same generic ErrAuthenticationFailed,
// so the public decrypt path cannot be used as a key-enumeration oracle.
func (s *Service) Decrypt(envelope string) (any, error) {
	return s.DecryptWithPolicy(envelope, DecryptPolicy{})
}

// DecryptWithPolicy is Decrypt with an envelope age policy. Expiry is a
// business-policy failure, deliberately distinguishable from cryptographic
// failures, and is checked before any key material is touched.
func (s *Service) DecryptWithPolicy(envelope string, policy DecryptPolicy) (any, error) {
	if envelope == "" {
		return nil, nil
	}

	env, iv, ciphertext, tag, err := parseEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	if policy.ValidateTimestamp {
		age := timecache.CachedTime().UTC().UnixMilli() - env.Timestamp
		if age > policy.MaxAge.Milliseconds() {
			richErr := goerrors.New(ErrCodeExpired, "encrypted data has expired")
			return nil, fmt.Errorf("%w: %w", ErrExpiredData, richErr)
		}
	}

	data, err := s.openEnvelope(env.Version, env.Encoding, iv, ciphertext, tag)
	if err != nil {
		return nil, err
	}
	defer Zeroize(data)

	return deserializePlaintext(data, env.Encoding)
}

// openEnvelope resolves the key for a version and runs the AEAD open,
// verifying the version and encoding bound at seal time. A version the key
// manager does not know is reported as the same generic authentication
// failure as a bad tag; only a transiently unreachable external source keeps
// its distinct ErrKeyUnavailable, since that is an infrastructure condition,
// not a secrecy boundary.
func (s *Service) openEnvelope(version int, encoding string, iv, ciphertext, tag []byte) ([]byte, error) {
	aad := envelopeAAD(version, encoding)

	if kr, ok := s.keys.(*Keyring); ok {
		gcm, err := kr.aeadFor(version)
		if err != nil {
			return nil, authFailed()
		}
		return openWith(gcm, iv, ciphertext, tag, aad)
	}

	key, err := s.keys.Key(version)
	if err != nil {
		if errors.Is(err, ErrKeyUnavailable) {
			return nil, err
		}
		return nil, authFailed()
	}
	defer Zeroize(key)
	return open(key, iv, ciphertext, tag, aad)
}

// Reencrypt decrypts an envelope under its recorded key version and seals
// the plaintext again under newVersion, preserving the original encoding
// tag. Used by migration sweeps after a rotation; writing the result back is
// the caller's responsibility, one record at a time.
func (s *Service) Reencrypt(envelope string, newVersion int) (string, error) {
	env, iv, ciphertext, tag, err := parseEnvelope(envelope)
	if err != nil {
		return "", err
	}

	data, err := s.openEnvelope(env.Version, env.Encoding, iv, ciphertext, tag)
	if err != nil {
		return "", err
	}
	defer Zeroize(data)

	return s.sealEnvelope(data, env.Encoding, newVersion)
}

// Metadata parses and returns an envelope's non-secret fields without
// touching key material or attempting decryption. Malformed input returns
// nil - the deliberate soft, query-style counterpart to the error-based
// Decrypt.
func (s *Service) Metadata(envelope string) *EnvelopeMetadata {
	env, _, _, _, err := parseEnvelope(envelope)
	if err != nil {
		return nil
	}
	return &EnvelopeMetadata{
		Version:     env.Version,
		Algorithm:   env.Algorithm,
		Encoding:    env.Encoding,
		EncryptedAt: time.UnixMilli(env.Timestamp).UTC(),
	}
}

// IsEncrypted reports whether a value is an envelope produced by Encrypt:
// a string that parses as JSON and carries every required envelope field.
// Any other input, including non-strings, yields false without error.
func (s *Service) IsEncrypted(v any) bool {
	str, ok := v.(string)
	if !ok {
		return false
	}
	_, _, _, _, err := parseEnvelope(str)
	return err == nil
}
