// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

// turret-echo-repeater registers the "echo" action and answers every
// invoke with its params, unchanged. It exists to exercise a gate end
// to end without wiring a real backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/overyonder/turret/lib/clock"
	"github.com/overyonder/turret/lib/gateclient"
	"github.com/overyonder/turret/lib/sign"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	socketPath := pflag.String("socket", "/run/turret/turret-repeater.sock", "gate repeater socket")
	repeaterID := pflag.String("repeater", "echo-repeater", "repeater principal id")
	seedPath := pflag.String("seed", "", "ed25519 seed file from turret keygen (required)")
	action := pflag.String("action", "echo", "action name to register")
	pflag.Parse()

	if *seedPath == "" {
		return fmt.Errorf("--seed is required")
	}
	_, key, err := sign.LoadSeed(*seedPath)
	if err != nil {
		return err
	}

	client, err := gateclient.DialRepeater(*socketPath, *repeaterID, key, clock.Real())
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Register([]string{*action}); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "serving %q as %q on %s\n", *action, *repeaterID, *socketPath)

	return client.Serve(func(action string, params []byte) ([]byte, error) {
		return params, nil
	})
}
