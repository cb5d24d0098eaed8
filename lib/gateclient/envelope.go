// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package gateclient

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/overyonder/turret/lib/clock"
	"github.com/overyonder/turret/lib/sign"
	"github.com/overyonder/turret/lib/wire"
)

// nonceSize is the nonce length on client envelopes.
const nonceSize = 16

// signedEnvelope builds and signs one outbound envelope.
func signedEnvelope(clk clock.Clock, principal string, key ed25519.PrivateKey, envelopeType uint16, body []byte) *wire.Envelope {
	nonce := make([]byte, nonceSize)
	rand.Read(nonce)
	envelope := &wire.Envelope{
		Type:        envelopeType,
		Principal:   []byte(principal),
		TimestampMS: uint64(clk.Now().UnixMilli()),
		Nonce:       nonce,
		Body:        body,
	}
	sign.Envelope(envelope, key)
	return envelope
}

// InvokeError is a failure reply carrying its protocol code. It may
// come from the gate (authorization, routing, deadline) or from the
// repeater serving the action.
type InvokeError struct {
	Code    wire.Code
	Message string
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
