// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/overyonder/turret/cmd/turret/cli"
	"github.com/overyonder/turret/lib/bunker"
)

func digCommand() *cli.Command {
	var bunkerPath string
	var recipients []string
	return &cli.Command{
		Name:    "dig",
		Summary: "create a new empty bunker",
		Description: "Creates a sealed bunker with no principals, actions, or secrets.\n" +
			"At least one operator age recipient is required; only holders of a\n" +
			"matching identity can edit or engage the bunker afterwards.",
		Usage: "turret dig --recipient <age-recipient> [--recipient ...]",
		Examples: []cli.Example{
			{Description: "new bunker for one operator", Command: "turret dig --recipient age1ql3z7hjy54pw3hyww5ayyfg7zqgvc7w3j2elw8zmrj2kg5sfn9aqmcac8p"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("dig", pflag.ContinueOnError)
			flagSet.StringVar(&bunkerPath, "bunker", runtimeDir()+"/turret.bunker", "path for the new bunker file")
			flagSet.StringArrayVar(&recipients, "recipient", nil, "operator age recipient (repeatable, at least one)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("dig takes no positional arguments")
			}
			if len(recipients) == 0 {
				return fmt.Errorf("at least one --recipient is required")
			}
			if _, err := os.Stat(bunkerPath); err == nil {
				return fmt.Errorf("%s already exists; refusing to overwrite", bunkerPath)
			}
			document := &bunker.Document{
				Version:   bunker.DocumentVersion,
				Operators: bunker.OperatorsSection{Recipients: recipients},
			}
			if err := bunker.Seal(document, bunkerPath); err != nil {
				return err
			}
			fmt.Printf("bunker created at %s with %d operator recipient(s)\n", bunkerPath, len(recipients))
			return nil
		},
	}
}
