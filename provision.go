// provision.go: Environment-based provisioning of the master secret.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt

import (
	"fmt"
	"os"

	goerrors "github.com/agilira/go-errors"
	"github.com/joho/godotenv"
)

// Environment variables read by FromEnv.
const (
	// EnvMasterKey holds the 32-byte master secret, base64- or hex-encoded.
	EnvMasterKey = "FIELDCRYPT_MASTER_KEY"

	// EnvMasterPassphrase holds an operator passphrase to derive the master
	// secret from when no raw key is provisioned. Requires EnvKDFSalt.
	EnvMasterPassphrase = "FIELDCRYPT_MASTER_PASSPHRASE"

	// EnvKDFSalt holds the base64 Argon2id salt for passphrase derivation.
	EnvKDFSalt = "FIELDCRYPT_KDF_SALT"
)

// FromEnv builds a Service from environment-provisioned secrets. A .env file
// in the working directory is loaded first if present (development
// convenience; production deployments set real environment variables).
//
// FIELDCRYPT_MASTER_KEY wins when both forms are set. The raw key may be
// base64 or hex; either way it must decode to exactly 32 bytes.
func FromEnv() (*Service, error) {
	// Missing .env is the normal production case, not an error.
	_ = godotenv.Load()

	if encoded := os.Getenv(EnvMasterKey); encoded != "" {
		master, err := decodeMasterKey(encoded)
		if err != nil {
			return nil, err
		}
		defer Zeroize(master)
		return NewService(master)
	}

	if passphrase := os.Getenv(EnvMasterPassphrase); passphrase != "" {
		saltB64 := os.Getenv(EnvKDFSalt)
		if saltB64 == "" {
			return nil, goerrors.New(ErrCodeProvision, fmt.Sprintf("%s requires %s", EnvMasterPassphrase, EnvKDFSalt))
		}
		salt, err := KeyFromBase64(saltB64)
		if err != nil {
			return nil, err
		}
		master, err := DeriveKey([]byte(passphrase), salt, nil)
		if err != nil {
			return nil, err
		}
		defer Zeroize(master)
		return NewService(master)
	}

	return nil, goerrors.New(ErrCodeProvision, fmt.Sprintf("neither %s nor %s is set", EnvMasterKey, EnvMasterPassphrase))
}

// decodeMasterKey accepts a base64- or hex-encoded 32-byte master secret.
func decodeMasterKey(encoded string) ([]byte, error) {
	if master, err := KeyFromBase64(encoded); err == nil && len(master) == KeySize {
		return master, nil
	}
	master, err := KeyFromHex(encoded)
	if err != nil {
		return nil, goerrors.New(ErrCodeProvision, "master key is neither valid base64 nor hex")
	}
	if err := ValidateKey(master); err != nil {
		return nil, err
	}
	return master, nil
}
