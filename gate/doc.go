// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

// Package gate implements the turret daemon core: the action
// directory, the dispatcher, the agent and repeater socket listeners,
// the lifecycle controller, and the CBOR control socket.
//
// The gate accepts signed envelopes from agents on one Unix socket
// and from repeaters on another. Every envelope is authenticated
// against the bunker (signature, replay window, principal pinning),
// authorized against the permission table, and routed: agent invokes
// forward to the live repeater owning the action, repeater replies
// correlate back to the originating agent by request id.
//
// The package is organized around the request flow:
//
//   - config.go: daemon configuration (JSONC file + defaults)
//   - conn.go: per-connection state, serialized writes
//   - directory.go: static action table plus live repeater bindings
//   - pending.go: in-flight invoke records with deadlines
//   - dispatcher.go: authentication, authorization, and routing
//   - server.go: lifecycle states, listeners, accept and framed read loops
//   - control.go: CBOR status/disengage protocol for the CLI
package gate
