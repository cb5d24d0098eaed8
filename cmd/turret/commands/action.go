// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"

	"github.com/overyonder/turret/cmd/turret/cli"
	"github.com/overyonder/turret/lib/bunker"
)

func actionCommand() *cli.Command {
	return &cli.Command{
		Name:    "action",
		Summary: "manage the action table",
		Subcommands: []*cli.Command{
			actionAddCommand(),
			actionRemoveCommand(),
		},
	}
}

func actionAddCommand() *cli.Command {
	var flags bunkerFlags
	var repeaterID string
	return &cli.Command{
		Name:    "add",
		Summary: "declare an action served by a repeater",
		Usage:   "turret action add <name> --repeater <id>",
		Examples: []cli.Example{
			{Description: "route git.push to the git repeater", Command: "turret action add git.push --repeater rep-git"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("action add", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&repeaterID, "repeater", "", "repeater that serves this action (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: turret action add <name> --repeater <id>")
			}
			if repeaterID == "" {
				return fmt.Errorf("--repeater is required")
			}
			name := args[0]
			return flags.mutate(func(document *bunker.Document) error {
				if owner, exists := document.Actions[name]; exists {
					return fmt.Errorf("action %q already routes to %q", name, owner)
				}
				if _, exists := document.Repeaters[repeaterID]; !exists {
					return fmt.Errorf("repeater %q is not in the bunker", repeaterID)
				}
				if document.Actions == nil {
					document.Actions = make(map[string]string)
				}
				document.Actions[name] = repeaterID
				return nil
			})
		},
	}
}

func actionRemoveCommand() *cli.Command {
	var flags bunkerFlags
	return &cli.Command{
		Name:    "remove",
		Summary: "remove an action and every permit for it",
		Usage:   "turret action remove <name>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("action remove", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: turret action remove <name>")
			}
			name := args[0]
			return flags.mutate(func(document *bunker.Document) error {
				if _, exists := document.Actions[name]; !exists {
					return fmt.Errorf("action %q is not in the bunker", name)
				}
				delete(document.Actions, name)
				for agentID, entry := range document.Permissions {
					entry.Allow = slices.DeleteFunc(entry.Allow, func(action string) bool {
						return action == name
					})
					if len(entry.Allow) == 0 {
						delete(document.Permissions, agentID)
						continue
					}
					document.Permissions[agentID] = entry
				}
				return nil
			})
		},
	}
}
