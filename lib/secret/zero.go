// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package secret

// Zero overwrites b with zero bytes. Use on transient heap copies of
// secret material that cannot be moved into a Buffer.
func Zero(b []byte) {
	for index := range b {
		b[index] = 0
	}
}
