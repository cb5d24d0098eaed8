// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the turret envelope protocol: length-framed
// binary envelopes carried over stream sockets, with typed bodies for
// register, invoke, result, and error messages.
//
// The frame format is a 4-byte big-endian payload length followed by
// the payload. The envelope inside the frame is a fixed header (magic,
// version, type) followed by length-prefixed byte strings; envelope
// integers are little-endian, byte string length prefixes big-endian.
// Decoding fails closed: wrong magic, wrong version, unknown type,
// truncation, oversized fields, and trailing bytes are all errors.
//
// Key exports:
//
//   - ReadFrame / WriteFrame: stream framing with the 256 KiB cap
//   - Envelope: the signed message header common to all types
//   - RegisterBody, InvokeBody, ResultBody, ErrorBody: typed payloads
//   - Code: protocol error codes carried by error bodies
package wire
