// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects [Real]; tests inject [Fake] and drive time explicitly with
// Advance. The replay window uses Now for skew checks and the
// dispatcher uses NewTicker for its deadline sweep, so property tests
// for both run without wall-clock sleeps.
//
// Key exports:
//
//   - [Clock] -- Now / After / NewTicker
//   - [Real] -- standard time package implementation
//   - [Fake] -- deterministic clock with Advance
package clock
