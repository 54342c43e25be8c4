// envelope.go: Self-describing envelope format for encrypted field values.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	goerrors "github.com/agilira/go-errors"
)

// Algorithm is the only AEAD algorithm envelopes are ever sealed with.
const Algorithm = "aes-256-gcm"

// Envelope sizes in raw bytes, before base64 encoding.
const (
	// NonceSize is the AES-GCM nonce (IV) size. A fresh random nonce is
	// generated for every encryption; nonce reuse under the same key breaks
	// both confidentiality and integrity of GCM.
	NonceSize = 12

	// TagSize is the GCM authentication tag size.
	TagSize = 16
)

// Plaintext encoding tags carried in the envelope. The tag records how the
// original value was serialized before encryption, so Decrypt reconstructs
// the original type instead of guess-parsing the decrypted bytes (a bare
// string like "42" must come back as a string, not a number).
const (
	EncodingRaw  = "raw"  // plaintext was a bare string, passed through as-is
	EncodingJSON = "json" // plaintext was JSON-encoded before encryption
)

// Envelope is the self-describing, tamper-evident ciphertext record produced
// by Encrypt and consumed by Decrypt. It is the only persisted artifact of
// this package: callers store the JSON-serialized form as an opaque string.
// Envelopes are constructed per call and never retained by the core.
type Envelope struct {
	Version    int    `json:"version"`    // key version that sealed this envelope
	IV         string `json:"iv"`         // base64 of NonceSize random bytes
	AuthTag    string `json:"authTag"`    // base64 of TagSize bytes
	Ciphertext string `json:"ciphertext"` // base64 of the sealed payload
	Algorithm  string `json:"algorithm"`  // always "aes-256-gcm"
	Timestamp  int64  `json:"timestamp"`  // encryption time, epoch milliseconds
	Encoding   string `json:"encoding"`   // "raw" or "json"
}

// EnvelopeMetadata is the non-secret view of an envelope returned by
// Service.Metadata. It carries no key material and no ciphertext, so it is
// safe to log or expose to operational tooling.
type EnvelopeMetadata struct {
	Version     int       // key version the envelope was sealed under
	Algorithm   string    // AEAD algorithm identifier
	Encoding    string    // plaintext encoding tag
	EncryptedAt time.Time // envelope timestamp, UTC
}

// parseEnvelope decodes and validates an envelope string. Every required
// field is checked; any missing or out-of-contract field yields
// ErrMalformedEnvelope. The decoded nonce, ciphertext and tag bytes are
// returned alongside the envelope so callers do not decode twice.
func parseEnvelope(s string) (*Envelope, []byte, []byte, []byte, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		richErr := goerrors.Wrap(err, ErrCodeMalformedEnvelope, "envelope is not valid JSON")
		return nil, nil, nil, nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, richErr)
	}

	if env.Version < 1 {
		return nil, nil, nil, nil, malformed("missing or invalid key version")
	}
	if env.Algorithm != Algorithm {
		return nil, nil, nil, nil, malformed(fmt.Sprintf("unsupported algorithm %q", env.Algorithm))
	}
	if env.Timestamp <= 0 {
		return nil, nil, nil, nil, malformed("missing or invalid timestamp")
	}
	if env.Encoding != EncodingRaw && env.Encoding != EncodingJSON {
		return nil, nil, nil, nil, malformed(fmt.Sprintf("unknown encoding %q", env.Encoding))
	}

	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, nil, nil, nil, malformed("iv is not valid base64")
	}
	if len(iv) != NonceSize {
		return nil, nil, nil, nil, malformed(fmt.Sprintf("iv must be %d bytes, got %d", NonceSize, len(iv)))
	}

	tag, err := base64.StdEncoding.DecodeString(env.AuthTag)
	if err != nil {
		return nil, nil, nil, nil, malformed("authTag is not valid base64")
	}
	if len(tag) != TagSize {
		return nil, nil, nil, nil, malformed(fmt.Sprintf("authTag must be %d bytes, got %d", TagSize, len(tag)))
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, nil, nil, nil, malformed("ciphertext is not valid base64")
	}

	return &env, iv, ciphertext, tag, nil
}

// envelopeAAD builds the additional authenticated data sealed with every
// envelope: the key version and the encoding tag. Both fields travel as
// plaintext JSON, so without this binding an attacker could rewrite them
// without touching the ciphertext.
func envelopeAAD(version int, encoding string) []byte {
	return []byte(strconv.Itoa(version) + "|" + encoding)
}

func malformed(msg string) error {
	richErr := goerrors.New(ErrCodeMalformedEnvelope, msg)
	return fmt.Errorf("%w: %w", ErrMalformedEnvelope, richErr)
}

// encodeEnvelope serializes an envelope to its persisted JSON string form.
func encodeEnvelope(env *Envelope) (string, error) {
	data, err := json.Marshal(env)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeMalformedEnvelope, "failed to marshal envelope")
		return "", fmt.Errorf("%w: %w", ErrMalformedEnvelope, richErr)
	}
	return string(data), nil
}

// serializePlaintext flattens a plaintext value to bytes plus the encoding
// tag that lets Decrypt reverse the transformation. Strings pass through
// untouched; everything else is JSON-encoded. Values encoding/json cannot
// represent (channels, functions, cyclic structures) yield ErrInvalidInput.
func serializePlaintext(v any) ([]byte, string, error) {
	if s, ok := v.(string); ok {
		return []byte(s), EncodingRaw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeInvalidInput, "plaintext is not JSON-serializable")
		return nil, "", fmt.Errorf("%w: %w", ErrInvalidInput, richErr)
	}
	return data, EncodingJSON, nil
}

// deserializePlaintext reverses serializePlaintext according to the recorded
// encoding tag. JSON numbers come back as float64, objects as
// map[string]any, per encoding/json defaults.
func deserializePlaintext(data []byte, encoding string) (any, error) {
	switch encoding {
	case EncodingRaw:
		return string(data), nil
	case EncodingJSON:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			richErr := goerrors.Wrap(err, ErrCodeMalformedEnvelope, "decrypted payload is not valid JSON")
			return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, richErr)
		}
		return v, nil
	default:
		return nil, malformed(fmt.Sprintf("unknown encoding %q", encoding))
	}
}
