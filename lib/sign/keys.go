// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package sign

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
)

// GenerateKeypair creates a new Ed25519 keypair for a principal.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	return public, private, nil
}

// SaveSeed writes the 32-byte private key seed to path with 0600
// permissions. Only the seed is stored; the full private key and the
// public key derive from it on load.
func SaveSeed(path string, private ed25519.PrivateKey) error {
	if err := os.WriteFile(path, private.Seed(), 0600); err != nil {
		return fmt.Errorf("writing key seed: %w", err)
	}
	return nil
}

// LoadSeed reads a 32-byte seed file and reconstructs the keypair.
// Returns an error if the file is missing or has an unexpected size.
func LoadSeed(path string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	seed, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, nil, fmt.Errorf("key seed has %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	private := ed25519.NewKeyFromSeed(seed)
	return private.Public().(ed25519.PublicKey), private, nil
}
