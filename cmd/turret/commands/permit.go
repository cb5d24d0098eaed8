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

func permitCommand() *cli.Command {
	var flags bunkerFlags
	return &cli.Command{
		Name:    "permit",
		Summary: "allow an agent to invoke an action",
		Usage:   "turret permit <agent> <action>",
		Examples: []cli.Example{
			{Description: "let corvus push", Command: "turret permit corvus git.push"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("permit", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: turret permit <agent> <action>")
			}
			agentID, action := args[0], args[1]
			return flags.mutate(func(document *bunker.Document) error {
				if _, exists := document.Agents[agentID]; !exists {
					return fmt.Errorf("agent %q is not in the bunker", agentID)
				}
				if _, exists := document.Actions[action]; !exists {
					return fmt.Errorf("action %q is not in the bunker", action)
				}
				entry := document.Permissions[agentID]
				if slices.Contains(entry.Allow, action) {
					return fmt.Errorf("agent %q already has %q", agentID, action)
				}
				entry.Allow = append(entry.Allow, action)
				slices.Sort(entry.Allow)
				if document.Permissions == nil {
					document.Permissions = make(map[string]bunker.PermissionEntry)
				}
				document.Permissions[agentID] = entry
				return nil
			})
		},
	}
}

func revokeCommand() *cli.Command {
	var flags bunkerFlags
	return &cli.Command{
		Name:    "revoke",
		Summary: "withdraw an agent's permit for an action",
		Usage:   "turret revoke <agent> <action>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("revoke", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("usage: turret revoke <agent> <action>")
			}
			agentID, action := args[0], args[1]
			return flags.mutate(func(document *bunker.Document) error {
				entry, exists := document.Permissions[agentID]
				if !exists || !slices.Contains(entry.Allow, action) {
					return fmt.Errorf("agent %q has no permit for %q", agentID, action)
				}
				entry.Allow = slices.DeleteFunc(entry.Allow, func(name string) bool {
					return name == action
				})
				if len(entry.Allow) == 0 {
					delete(document.Permissions, agentID)
					return nil
				}
				document.Permissions[agentID] = entry
				return nil
			})
		},
	}
}
