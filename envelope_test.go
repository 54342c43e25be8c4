// envelope_test.go: Tests for envelope metadata and encrypted-value detection.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt_test

import (
	"testing"
	"time"

	"github.com/reshadx/fieldcrypt"
)

func TestMetadata_ValidEnvelope(t *testing.T) {
	svc := newTestService(t)

	before := time.Now().Add(-time.Second)
	envelope, err := svc.Encrypt("peek at me")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	after := time.Now().Add(time.Second)

	meta := svc.Metadata(envelope)
	if meta == nil {
		t.Fatal("Expected metadata for valid envelope")
	}
	if meta.Version != 1 {
		t.Errorf("Expected version 1, got %d", meta.Version)
	}
	if meta.Algorithm != fieldcrypt.Algorithm {
		t.Errorf("Expected algorithm %q, got %q", fieldcrypt.Algorithm, meta.Algorithm)
	}
	if meta.Encoding != fieldcrypt.EncodingRaw {
		t.Errorf("Expected raw encoding, got %q", meta.Encoding)
	}
	if meta.EncryptedAt.Before(before) || meta.EncryptedAt.After(after) {
		t.Errorf("EncryptedAt %v outside [%v, %v]", meta.EncryptedAt, before, after)
	}
}

// Metadata is the soft counterpart of Decrypt: malformed input returns nil,
// never an error.
func TestMetadata_MalformedReturnsNil(t *testing.T) {
	svc := newTestService(t)

	for _, input := range []string{
		"",
		"not json",
		"{}",
		`{"version":1}`,
		`[1,2,3]`,
	} {
		if meta := svc.Metadata(input); meta != nil {
			t.Errorf("Expected nil metadata for %q, got %+v", input, meta)
		}
	}
}

func TestIsEncrypted(t *testing.T) {
	svc := newTestService(t)

	envelope, err := svc.Encrypt("definitely encrypted")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}
	if !svc.IsEncrypted(envelope) {
		t.Error("Expected IsEncrypted true for a produced envelope")
	}

	for name, input := range map[string]any{
		"plain string":   "hello world",
		"numeric string": "42",
		"number":         42,
		"float":          3.14,
		"nil":            nil,
		"bool":           true,
		"map":            map[string]any{"version": 1},
		"malformed json": "{not json",
		"empty string":   "",
		"json object":    `{"version":1,"iv":"x"}`,
	} {
		if svc.IsEncrypted(input) {
			t.Errorf("%s: expected IsEncrypted false for %v", name, input)
		}
	}
}
