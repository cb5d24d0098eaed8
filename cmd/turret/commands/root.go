// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the turret CLI command tree.
package commands

import (
	"os"

	"github.com/overyonder/turret/cmd/turret/cli"
)

// defaultRuntimeDir is where the bunker and sockets live unless
// TURRET_RUNTIME_DIR overrides it.
const defaultRuntimeDir = "/run/turret"

func runtimeDir() string {
	if dir := os.Getenv("TURRET_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return defaultRuntimeDir
}

// Root returns the top-level turret command.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "turret",
		Summary: "local capability gate",
		Description: "Turret brokers signed action invocations between local agent\n" +
			"processes and the repeaters that serve them, enforcing a sealed\n" +
			"policy file (the bunker) that only an operator can edit.",
		Subcommands: []*cli.Command{
			keygenCommand(),
			digCommand(),
			agentCommand(),
			repeaterCommand(),
			actionCommand(),
			permitCommand(),
			revokeCommand(),
			secretCommand(),
			operatorCommand(),
			showCommand(),
			engageCommand(),
			disengageCommand(),
			statusCommand(),
			invokeCommand(),
		},
	}
}
