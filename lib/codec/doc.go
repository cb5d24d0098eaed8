// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides turret's standard CBOR encoding configuration.
//
// Turret uses two serialization formats with a clear boundary: the
// agent/repeater envelope protocol is a fixed binary layout owned by
// lib/wire, and the local control surface (status, disengage) speaks
// CBOR. This package provides the shared CBOR modes so every consumer
// encodes identically. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items.
//
// Key exports:
//
//   - [Marshal] / [Unmarshal] -- buffer-oriented operations
//   - [NewEncoder] / [NewDecoder] -- stream-oriented operations (sockets)
package codec
