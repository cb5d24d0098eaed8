// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/overyonder/turret/cmd/turret/cli"
	"github.com/overyonder/turret/lib/sign"
)

func keygenCommand() *cli.Command {
	var outPath string
	return &cli.Command{
		Name:    "keygen",
		Summary: "generate an ed25519 principal keypair",
		Description: "Generates an ed25519 keypair for an agent or repeater. The seed\n" +
			"is written to the --out file (mode 0600); the public key is printed\n" +
			"in the base64 form the bunker expects.",
		Usage: "turret keygen --out <seed-file>",
		Examples: []cli.Example{
			{Description: "key for a new agent", Command: "turret keygen --out corvus.seed"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flagSet.StringVar(&outPath, "out", "", "file to write the private seed to (required)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("keygen takes no positional arguments")
			}
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}
			public, private, err := sign.GenerateKeypair()
			if err != nil {
				return err
			}
			if err := sign.SaveSeed(outPath, private); err != nil {
				return err
			}
			fmt.Printf("seed:        %s\n", outPath)
			fmt.Printf("pubkey_b64:  %s\n", base64.StdEncoding.EncodeToString(public))
			fmt.Printf("fingerprint: %s\n", sign.Fingerprint(public))
			return nil
		},
	}
}
