// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

// Package sign implements envelope authentication: the canonical
// byte layout that gets signed, Ed25519 signing and verification over
// it, seed file handling for principal keypairs, and short public key
// fingerprints for display.
//
// Key exports:
//
//   - CanonicalBytes: the exact byte string covered by a signature
//   - Envelope / VerifyEnvelope: Ed25519 over the canonical bytes
//   - GenerateKeypair, SaveSeed, LoadSeed: principal key management
//   - Fingerprint: BLAKE3-based short identifier for a public key
package sign
