// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateclient speaks the turret framed protocol from the
// client side. AgentClient invokes actions over the agent socket and
// correlates replies by request id. RepeaterClient registers a set of
// actions on the repeater socket and serves forwarded invokes through
// a handler function.
//
// Both clients sign every outbound envelope with the principal's
// ed25519 key. Inbound envelopes come from the gate itself and carry
// a zero signature; the clients trust the socket, not the signature.
//
// Key exports:
//   - AgentClient, DialAgent: invoke-side connection
//   - RepeaterClient, DialRepeater: serve-side connection
//   - Handler: the repeater's per-invoke callback
//   - InvokeError: a gate or repeater failure with its protocol code
package gateclient
