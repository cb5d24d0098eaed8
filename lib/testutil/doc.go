// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for turret packages:
// channel operations with timeout safety valves and short-path
// directories for Unix domain sockets.
package testutil
