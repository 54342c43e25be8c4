// compare.go: Timing-safe comparison of an encrypted value against a
// candidate plaintext.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt

import (
	"crypto/subtle"
)

// ConstantTimeCompare decrypts an envelope and compares the recovered
// serialized plaintext against candidate using constant-time equality.
//
// This API never returns an error: malformed envelopes, unknown key
// versions and tampered ciphertexts all collapse to false. It exists for
// secret and credential verification, where "invalid format" must behave
// exactly like "wrong value" to an observer.
//
// The candidate is matched against the serialized form of the original
// plaintext: the bare string for envelopes with encoding "raw", the JSON
// encoding for everything else.
func (s *Service) ConstantTimeCompare(envelope string, candidate string) bool {
	env, iv, ciphertext, tag, err := parseEnvelope(envelope)
	if err != nil {
		return false
	}

	data, err := s.openEnvelope(env.Version, env.Encoding, iv, ciphertext, tag)
	if err != nil {
		return false
	}
	defer Zeroize(data)

	// Equal-length compare regardless of where the first difference occurs.
	// Length itself is not hidden; GCM ciphertext length already reveals it.
	if len(data) != len(candidate) {
		return false
	}
	return subtle.ConstantTimeCompare(data, []byte(candidate)) == 1
}
