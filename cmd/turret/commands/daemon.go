// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/overyonder/turret/cmd/turret/cli"
	"github.com/overyonder/turret/gate"
	"github.com/overyonder/turret/lib/bunker"
	"github.com/overyonder/turret/lib/clock"
	"github.com/overyonder/turret/lib/unlock"
)

// daemonFlags locate the running daemon's configuration.
type daemonFlags struct {
	configPath string
	runtimeDir string
}

func (f *daemonFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "JSONC config file (defaults apply when empty)")
	flagSet.StringVar(&f.runtimeDir, "runtime-dir", runtimeDir(), "directory for the bunker and sockets")
}

func (f *daemonFlags) load() (gate.Config, error) {
	if f.configPath == "" {
		config := gate.DefaultConfig(f.runtimeDir)
		return config, config.Validate()
	}
	return gate.LoadConfig(f.configPath, f.runtimeDir)
}

func engageCommand() *cli.Command {
	var flags daemonFlags
	var identity string
	var logLevel string
	return &cli.Command{
		Name:    "engage",
		Summary: "unlock the bunker and run the gate daemon",
		Description: "Unseals the bunker, opens the agent and repeater sockets, and\n" +
			"serves until SIGINT, SIGTERM, or a disengage on the control socket.\n" +
			"Key material is zeroized before exit.",
		Usage: "turret engage [--identity <file>] [--config <file>]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("engage", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&identity, "identity", "", "age identity file for unsealing (prompts for a passphrase when empty)")
			flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("engage takes no positional arguments")
			}
			level, err := parseLogLevel(logLevel)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			config, err := flags.load()
			if err != nil {
				return err
			}
			identities, err := unlock.Identities(identity)
			if err != nil {
				return err
			}
			store, err := bunker.Open(config.BunkerPath, identities)
			if err != nil {
				return err
			}

			server := gate.NewServer(config, store, clock.Real(), logger)
			if err := server.Engage(); err != nil {
				store.Close()
				return err
			}

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				received := <-signals
				logger.Info("signal received", "signal", received.String())
				server.Disengage()
			}()

			server.Wait()
			return nil
		},
	}
}

func disengageCommand() *cli.Command {
	var flags daemonFlags
	return &cli.Command{
		Name:    "disengage",
		Summary: "ask a running daemon to drain and zeroize",
		Usage:   "turret disengage",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("disengage", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("disengage takes no positional arguments")
			}
			config, err := flags.load()
			if err != nil {
				return err
			}
			if err := gate.ControlDisengage(config.ControlSocketPath); err != nil {
				return err
			}
			fmt.Println("disengage acknowledged")
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	var flags daemonFlags
	return &cli.Command{
		Name:    "status",
		Summary: "report a running daemon's state",
		Usage:   "turret status",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("status takes no positional arguments")
			}
			config, err := flags.load()
			if err != nil {
				return err
			}
			status, err := gate.ControlStatus(config.ControlSocketPath)
			if err != nil {
				return err
			}
			fmt.Printf("state:                %s\n", status.State)
			fmt.Printf("uptime:               %ds\n", status.UptimeSeconds)
			fmt.Printf("agent connections:    %d\n", status.AgentConnections)
			fmt.Printf("repeater connections: %d\n", status.RepeaterConnections)
			fmt.Printf("pending invokes:      %d\n", status.PendingInvokes)
			fmt.Printf("actions in bunker:    %d\n", status.BunkerActions)
			fmt.Printf("live actions:         %v\n", status.LiveActions)
			return nil
		},
	}
}

func parseLogLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}
