// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"

	"github.com/overyonder/turret/cmd/turret/cli"
	"github.com/overyonder/turret/lib/bunker"
	"github.com/overyonder/turret/lib/sealed"
)

func operatorCommand() *cli.Command {
	return &cli.Command{
		Name:    "operator",
		Summary: "manage operator recipients",
		Subcommands: []*cli.Command{
			operatorAddCommand(),
			operatorRemoveCommand(),
		},
	}
}

func operatorAddCommand() *cli.Command {
	var flags bunkerFlags
	return &cli.Command{
		Name:    "add",
		Summary: "add an operator age recipient",
		Usage:   "turret operator add <age-recipient>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("operator add", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: turret operator add <age-recipient>")
			}
			recipient := args[0]
			if _, err := sealed.ParseRecipient(recipient); err != nil {
				return fmt.Errorf("invalid recipient: %w", err)
			}
			return flags.mutate(func(document *bunker.Document) error {
				if slices.Contains(document.Operators.Recipients, recipient) {
					return fmt.Errorf("recipient is already an operator")
				}
				document.Operators.Recipients = append(document.Operators.Recipients, recipient)
				return nil
			})
		},
	}
}

func operatorRemoveCommand() *cli.Command {
	var flags bunkerFlags
	return &cli.Command{
		Name:    "remove",
		Summary: "remove an operator age recipient",
		Description: "Removes an operator recipient. The final operator cannot be\n" +
			"removed; a bunker nobody can open is a brick.",
		Usage: "turret operator remove <age-recipient>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("operator remove", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: turret operator remove <age-recipient>")
			}
			recipient := args[0]
			return flags.mutate(func(document *bunker.Document) error {
				if !slices.Contains(document.Operators.Recipients, recipient) {
					return fmt.Errorf("recipient is not an operator")
				}
				if len(document.Operators.Recipients) == 1 {
					return fmt.Errorf("refusing to remove the final operator")
				}
				document.Operators.Recipients = slices.DeleteFunc(document.Operators.Recipients,
					func(existing string) bool { return existing == recipient })
				return nil
			})
		},
	}
}
