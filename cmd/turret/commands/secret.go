// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/overyonder/turret/cmd/turret/cli"
	"github.com/overyonder/turret/lib/bunker"
	"github.com/overyonder/turret/lib/secret"
	"github.com/overyonder/turret/lib/unlock"
)

func secretCommand() *cli.Command {
	return &cli.Command{
		Name:    "secret",
		Summary: "manage sealed secret values",
		Subcommands: []*cli.Command{
			secretSetCommand(),
			secretUnsetCommand(),
		},
	}
}

func secretSetCommand() *cli.Command {
	var flags bunkerFlags
	var fromFile string
	return &cli.Command{
		Name:    "set",
		Summary: "store a secret value in the bunker",
		Description: "Stores a named secret. The value is read from a hidden terminal\n" +
			"prompt, or from --from-file for non-interactive use. Repeaters see\n" +
			"secrets only while the daemon is engaged; agents never do.",
		Usage: "turret secret set <NAME> [--from-file <path>]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("secret set", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&fromFile, "from-file", "", "read the secret value from this file instead of prompting")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: turret secret set <NAME>")
			}
			name := args[0]
			value, err := readSecretValue(fromFile)
			if err != nil {
				return err
			}
			defer value.Close()
			return flags.mutate(func(document *bunker.Document) error {
				if document.Secrets == nil {
					document.Secrets = make(map[string]string)
				}
				document.Secrets[name] = value.String()
				return nil
			})
		},
	}
}

func secretUnsetCommand() *cli.Command {
	var flags bunkerFlags
	return &cli.Command{
		Name:    "unset",
		Summary: "remove a secret from the bunker",
		Usage:   "turret secret unset <NAME>",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("secret unset", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: turret secret unset <NAME>")
			}
			name := args[0]
			return flags.mutate(func(document *bunker.Document) error {
				if _, exists := document.Secrets[name]; !exists {
					return fmt.Errorf("secret %q is not in the bunker", name)
				}
				delete(document.Secrets, name)
				return nil
			})
		},
	}
}

// readSecretValue collects a secret value from a file or a hidden
// prompt. A single trailing newline from the file is trimmed.
func readSecretValue(fromFile string) (*secret.Buffer, error) {
	if fromFile == "" {
		return unlock.ReadPassphrase("Secret value: ")
	}
	raw, err := os.ReadFile(fromFile)
	if err != nil {
		return nil, fmt.Errorf("reading secret value: %w", err)
	}
	raw = bytes.TrimSuffix(raw, []byte("\n"))
	return secret.NewFromBytes(raw)
}
