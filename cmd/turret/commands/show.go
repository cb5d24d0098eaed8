// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/overyonder/turret/cmd/turret/cli"
	"github.com/overyonder/turret/lib/bunker"
	"github.com/overyonder/turret/lib/sign"
)

func showCommand() *cli.Command {
	var flags bunkerFlags
	return &cli.Command{
		Name:    "show",
		Summary: "print the bunker contents (secret values elided)",
		Usage:   "turret show",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("show takes no positional arguments")
			}
			document, err := flags.openDocument()
			if err != nil {
				return err
			}
			printDocument(document)
			return nil
		},
	}
}

func printDocument(document *bunker.Document) {
	fmt.Printf("version: %d\n", document.Version)

	fmt.Printf("\noperators (%d):\n", len(document.Operators.Recipients))
	for _, recipient := range document.Operators.Recipients {
		fmt.Printf("  %s\n", recipient)
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)

	fmt.Printf("\nagents (%d):\n", len(document.Agents))
	for _, id := range sortedKeys(document.Agents) {
		fmt.Fprintf(tw, "  %s\t%s\n", id, keyFingerprint(document.Agents[id]))
	}
	tw.Flush()

	fmt.Printf("\nrepeaters (%d):\n", len(document.Repeaters))
	for _, id := range sortedKeys(document.Repeaters) {
		fmt.Fprintf(tw, "  %s\t%s\n", id, keyFingerprint(document.Repeaters[id]))
	}
	tw.Flush()

	fmt.Printf("\nactions (%d):\n", len(document.Actions))
	for _, name := range sortedKeys(document.Actions) {
		fmt.Fprintf(tw, "  %s\t-> %s\n", name, document.Actions[name])
	}
	tw.Flush()

	fmt.Printf("\npermissions (%d):\n", len(document.Permissions))
	for _, agentID := range sortedKeys(document.Permissions) {
		fmt.Fprintf(tw, "  %s\t%v\n", agentID, document.Permissions[agentID].Allow)
	}
	tw.Flush()

	fmt.Printf("\nsecrets (%d):\n", len(document.Secrets))
	for _, name := range sortedKeys(document.Secrets) {
		fmt.Printf("  %s (elided)\n", name)
	}
}

// keyFingerprint renders a principal's key as a short fingerprint, or
// the decode failure when the stored key is unusable.
func keyFingerprint(entry bunker.PrincipalEntry) string {
	raw, err := base64.StdEncoding.DecodeString(entry.Ed25519PubkeyB64)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return "(bad key)"
	}
	return sign.Fingerprint(ed25519.PublicKey(raw))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
