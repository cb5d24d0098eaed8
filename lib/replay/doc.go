// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

// Package replay implements the envelope anti-replay window: a
// sliding in-memory map of (principal, nonce) pairs bounded by the
// timestamp tolerance. An envelope whose timestamp falls outside the
// tolerance is rejected outright; within the tolerance, a repeated
// (principal, nonce) pair is rejected as a replay.
//
// The window is purely in-memory and starts empty on every engage.
package replay
