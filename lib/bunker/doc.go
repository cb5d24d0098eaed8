// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

// Package bunker implements the persisted policy store: an
// age-encrypted YAML document naming operators, principals, actions,
// permissions, and secrets, plus the validated in-memory indexes the
// gate consults at runtime.
//
// The document is strict: unknown keys are rejected, every reference
// must resolve, and every public key must decode to a 32-byte Ed25519
// key. A document that fails any check never produces a Store, so a
// running gate can assume full referential integrity.
//
// Key exports:
//
//   - Document: the YAML shape of the bunker plaintext
//   - ParseDocument / EncodeDocument: strict YAML codec
//   - Store: indexed runtime view (principals, permissions, actions)
//   - Open / Seal: sealed file load and atomic save
package bunker
