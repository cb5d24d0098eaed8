// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data:
// the decrypted bunker plaintext, secret values, and operator unlock
// material (age private keys and passphrases).
//
// Buffer allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped.
//
// Because the memory lives outside the Go heap, the garbage collector
// never copies or relocates it, so zeroing on Close actually destroys
// the only copy. This is best-effort hygiene, not a defense against a
// privileged on-host adversary.
//
// Key exports:
//
//   - [New] -- allocate a protected buffer of a given size
//   - [NewFromBytes] -- move existing bytes into protection, zeroing the source
//   - [Buffer.Bytes] / [Buffer.String] -- access the contents
//   - [Buffer.Close] -- zero and release
package secret
