// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for the
// bunker file. It wraps filippo.io/age for the specific operations
// turret needs: generate x25519 keypairs, encrypt to multiple
// operator recipients, and decrypt with operator identities.
//
// Ciphertext is the raw binary age format written straight to disk.
// Private keys and decrypted plaintext are returned as
// [secret.Buffer] values backed by mmap memory outside the Go heap
// (locked against swap, excluded from core dumps, zeroed on Close).
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 keypair in a secret.Buffer
//   - [Encrypt] / [Decrypt] -- seal and unseal bunker plaintext
//   - [ParseRecipient] -- age1... or ssh- operator recipient strings
//   - [LoadIdentities] -- identities from an age or OpenSSH key file
//   - [ScryptIdentity] / [ScryptRecipient] -- passphrase sealing
//   - [IsAgeFile] -- sniff the age format header
//
// Depends on lib/secret for secure memory allocation.
package sealed
