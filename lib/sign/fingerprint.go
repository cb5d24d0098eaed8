// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package sign

import (
	"crypto/ed25519"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint returns a short stable identifier for a public key: the
// first 8 bytes of its BLAKE3 hash, hex-encoded. Used anywhere a full
// 32-byte key would clutter output, such as status listings.
func Fingerprint(public ed25519.PublicKey) string {
	sum := blake3.Sum256(public)
	return hex.EncodeToString(sum[:8])
}
