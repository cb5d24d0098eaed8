// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/pflag"

	"github.com/overyonder/turret/cmd/turret/cli"
	"github.com/overyonder/turret/lib/bunker"
)

func agentCommand() *cli.Command {
	return &cli.Command{
		Name:    "agent",
		Summary: "manage agent principals",
		Subcommands: []*cli.Command{
			agentAddCommand(),
			agentRemoveCommand(),
		},
	}
}

func agentAddCommand() *cli.Command {
	var flags bunkerFlags
	var pubkey string
	return &cli.Command{
		Name:    "add",
		Summary: "add an agent principal",
		Usage:   "turret agent add <id> --pubkey <base64>",
		Examples: []cli.Example{
			{Description: "enroll an agent with a key from keygen", Command: "turret agent add corvus --pubkey kX9f..."},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("agent add", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&pubkey, "pubkey", "", "base64 ed25519 public key (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: turret agent add <id> --pubkey <base64>")
			}
			if pubkey == "" {
				return fmt.Errorf("--pubkey is required")
			}
			id := args[0]
			return flags.mutate(func(document *bunker.Document) error {
				if _, exists := document.Agents[id]; exists {
					return fmt.Errorf("agent %q already exists", id)
				}
				if document.Agents == nil {
					document.Agents = make(map[string]bunker.PrincipalEntry)
				}
				document.Agents[id] = bunker.PrincipalEntry{Ed25519PubkeyB64: pubkey}
				return nil
			})
		},
	}
}

func agentRemoveCommand() *cli.Command {
	var flags bunkerFlags
	return &cli.Command{
		Name:    "remove",
		Summary: "remove an agent principal and its permissions",
		Usage:   "turret agent remove <id>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("agent remove", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: turret agent remove <id>")
			}
			id := args[0]
			return flags.mutate(func(document *bunker.Document) error {
				if _, exists := document.Agents[id]; !exists {
					return fmt.Errorf("agent %q is not in the bunker", id)
				}
				delete(document.Agents, id)
				delete(document.Permissions, id)
				return nil
			})
		},
	}
}

func repeaterCommand() *cli.Command {
	return &cli.Command{
		Name:    "repeater",
		Summary: "manage repeater principals",
		Subcommands: []*cli.Command{
			repeaterAddCommand(),
			repeaterRemoveCommand(),
		},
	}
}

func repeaterAddCommand() *cli.Command {
	var flags bunkerFlags
	var pubkey string
	return &cli.Command{
		Name:    "add",
		Summary: "add a repeater principal",
		Usage:   "turret repeater add <id> --pubkey <base64>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("repeater add", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&pubkey, "pubkey", "", "base64 ed25519 public key (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: turret repeater add <id> --pubkey <base64>")
			}
			if pubkey == "" {
				return fmt.Errorf("--pubkey is required")
			}
			id := args[0]
			return flags.mutate(func(document *bunker.Document) error {
				if _, exists := document.Repeaters[id]; exists {
					return fmt.Errorf("repeater %q already exists", id)
				}
				if document.Repeaters == nil {
					document.Repeaters = make(map[string]bunker.PrincipalEntry)
				}
				document.Repeaters[id] = bunker.PrincipalEntry{Ed25519PubkeyB64: pubkey}
				return nil
			})
		},
	}
}

func repeaterRemoveCommand() *cli.Command {
	var flags bunkerFlags
	return &cli.Command{
		Name:    "remove",
		Summary: "remove a repeater principal",
		Description: "Removes a repeater from the bunker. Refused while any action\n" +
			"still routes to it; remove or reassign those actions first.",
		Usage: "turret repeater remove <id>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("repeater remove", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: turret repeater remove <id>")
			}
			id := args[0]
			return flags.mutate(func(document *bunker.Document) error {
				if _, exists := document.Repeaters[id]; !exists {
					return fmt.Errorf("repeater %q is not in the bunker", id)
				}
				var owned []string
				for action, owner := range document.Actions {
					if owner == id {
						owned = append(owned, action)
					}
				}
				if len(owned) > 0 {
					sort.Strings(owned)
					return fmt.Errorf("repeater %q still serves actions %v; remove them first", id, owned)
				}
				delete(document.Repeaters, id)
				return nil
			})
		},
	}
}
