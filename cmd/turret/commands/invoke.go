// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/overyonder/turret/cmd/turret/cli"
	"github.com/overyonder/turret/lib/clock"
	"github.com/overyonder/turret/lib/gateclient"
	"github.com/overyonder/turret/lib/sign"
)

func invokeCommand() *cli.Command {
	var flags daemonFlags
	var principal string
	var seedPath string
	var timeoutSeconds int
	return &cli.Command{
		Name:    "invoke",
		Summary: "invoke an action as an agent",
		Description: "Connects to the agent socket as the given principal, invokes one\n" +
			"action, and writes the result bytes to stdout. Params come from the\n" +
			"second argument, or from stdin when it is \"-\".",
		Usage: "turret invoke <action> [params|-] --principal <id> --seed <file>",
		Examples: []cli.Example{
			{Description: "echo through the gate", Command: "turret invoke echo 'hello' --principal corvus --seed corvus.seed"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("invoke", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&principal, "principal", "", "agent principal id (required)")
			flagSet.StringVar(&seedPath, "seed", "", "ed25519 seed file from keygen (required)")
			flagSet.IntVar(&timeoutSeconds, "timeout", 60, "seconds to wait for the result")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return fmt.Errorf("usage: turret invoke <action> [params|-]")
			}
			if principal == "" || seedPath == "" {
				return fmt.Errorf("--principal and --seed are required")
			}

			var params []byte
			if len(args) == 2 {
				if args[1] == "-" {
					stdin, err := io.ReadAll(os.Stdin)
					if err != nil {
						return fmt.Errorf("reading params from stdin: %w", err)
					}
					params = stdin
				} else {
					params = []byte(args[1])
				}
			}

			_, key, err := sign.LoadSeed(seedPath)
			if err != nil {
				return err
			}
			config, err := flags.load()
			if err != nil {
				return err
			}

			client, err := gateclient.DialAgent(config.AgentSocketPath, principal, key, clock.Real())
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSeconds)*time.Second)
			defer cancel()
			result, err := client.Invoke(ctx, args[0], params)
			if err != nil {
				return err
			}
			os.Stdout.Write(result)
			return nil
		},
	}
}
