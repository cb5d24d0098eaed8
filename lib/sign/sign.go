// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package sign

import (
	"crypto/ed25519"
	"errors"
	"strconv"

	"github.com/overyonder/turret/lib/wire"
)

// ErrBadSignature reports an envelope whose signature does not verify
// against the claimed principal's public key.
var ErrBadSignature = errors.New("signature verification failed")

// CanonicalBytes builds the byte string a signature covers: the
// principal, the timestamp as ASCII decimal, the nonce, and the body,
// joined by single newline bytes with no trailing newline. The nonce
// and body are included raw, never re-encoded.
func CanonicalBytes(principal []byte, timestampMS uint64, nonce, body []byte) []byte {
	timestamp := strconv.FormatUint(timestampMS, 10)
	canonical := make([]byte, 0, len(principal)+1+len(timestamp)+1+len(nonce)+1+len(body))
	canonical = append(canonical, principal...)
	canonical = append(canonical, '\n')
	canonical = append(canonical, timestamp...)
	canonical = append(canonical, '\n')
	canonical = append(canonical, nonce...)
	canonical = append(canonical, '\n')
	canonical = append(canonical, body...)
	return canonical
}

// Envelope signs the canonical bytes of e with private and fills in
// e.Sig. The other envelope fields must already be set.
func Envelope(e *wire.Envelope, private ed25519.PrivateKey) {
	canonical := CanonicalBytes(e.Principal, e.TimestampMS, e.Nonce, e.Body)
	e.Sig = ed25519.Sign(private, canonical)
}

// VerifyEnvelope checks e.Sig against public over the canonical bytes
// of e. Returns ErrBadSignature on any mismatch, including a
// signature of the wrong length.
func VerifyEnvelope(e *wire.Envelope, public ed25519.PublicKey) error {
	if len(e.Sig) != ed25519.SignatureSize {
		return ErrBadSignature
	}
	canonical := CanonicalBytes(e.Principal, e.TimestampMS, e.Nonce, e.Body)
	if !ed25519.Verify(public, canonical, e.Sig) {
		return ErrBadSignature
	}
	return nil
}
