// hmac.go: Keyed integrity primitives (HMAC-SHA-256) for searchable hashes
// and tamper-evident references.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// GenerateHMAC computes HMAC-SHA-256 over data with the service's MAC key
// and returns it as a 64-character lowercase hex string. Deterministic for
// identical input, which makes it usable as a blind index over encrypted
// fields.
//
// The MAC key lives in an HKDF namespace distinct from every AEAD key; one
// key is never reused across two primitives.
func (s *Service) GenerateHMAC(data []byte) string {
	mac := hmac.New(sha256.New, s.macKey)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC recomputes the MAC over data and compares it with the provided
// hex string in constant time. The comparison never short-circuits on the
// first mismatching byte, so timing reveals nothing about how much of the
// MAC matched. Hex case is ignored; any malformed MAC simply fails to
// verify.
func (s *Service) VerifyHMAC(data []byte, mac string) bool {
	computed := s.GenerateHMAC(data)
	candidate := strings.ToLower(mac)
	if len(candidate) != len(computed) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(candidate)) == 1
}
