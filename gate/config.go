// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"
)

// Config holds the daemon's operating parameters. A zero Config is
// not usable; start from DefaultConfig and override.
type Config struct {
	// BunkerPath is the sealed policy file.
	BunkerPath string `json:"bunker_path"`

	// AgentSocketPath and RepeaterSocketPath are the two listener
	// endpoints. They must be distinct.
	AgentSocketPath    string `json:"agent_socket_path"`
	RepeaterSocketPath string `json:"repeater_socket_path"`

	// ControlSocketPath serves the CBOR status/disengage protocol.
	ControlSocketPath string `json:"control_socket_path"`

	// MaxConnections caps concurrent connections per listener.
	// Further connections are accepted and immediately closed.
	MaxConnections int `json:"max_connections"`

	// MaxPendingPerAgent caps in-flight invokes per agent connection.
	// The overflowing invoke fails with an internal error.
	MaxPendingPerAgent int `json:"max_pending_per_agent"`

	// MaxReplayEntries caps the replay window cardinality.
	MaxReplayEntries int `json:"max_replay_entries"`

	// InvokeTimeout bounds how long a forwarded invoke may stay
	// pending before the agent receives an internal error.
	InvokeTimeout time.Duration `json:"-"`

	// InvokeTimeoutSeconds is the JSON-facing form of InvokeTimeout.
	InvokeTimeoutSeconds int `json:"invoke_timeout_seconds"`
}

// DefaultConfig returns the documented resource caps and conventional
// socket names rooted in the given runtime directory.
func DefaultConfig(runtimeDir string) Config {
	return Config{
		BunkerPath:           runtimeDir + "/turret.bunker",
		AgentSocketPath:      runtimeDir + "/turret-agent.sock",
		RepeaterSocketPath:   runtimeDir + "/turret-repeater.sock",
		ControlSocketPath:    runtimeDir + "/turret-control.sock",
		MaxConnections:       64,
		MaxPendingPerAgent:   128,
		MaxReplayEntries:     65536,
		InvokeTimeout:        30 * time.Second,
		InvokeTimeoutSeconds: 30,
	}
}

// LoadConfig reads a JSONC config file and overlays it on the
// defaults for runtimeDir. Comments and trailing commas are
// tolerated; unknown keys are not.
func LoadConfig(path, runtimeDir string) (Config, error) {
	config := DefaultConfig(runtimeDir)

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(raw)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if config.InvokeTimeoutSeconds > 0 {
		config.InvokeTimeout = time.Duration(config.InvokeTimeoutSeconds) * time.Second
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.BunkerPath == "" {
		return fmt.Errorf("bunker_path is required")
	}
	if c.AgentSocketPath == "" || c.RepeaterSocketPath == "" {
		return fmt.Errorf("both socket paths are required")
	}
	if c.AgentSocketPath == c.RepeaterSocketPath {
		return fmt.Errorf("agent and repeater sockets must be distinct paths")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive")
	}
	if c.MaxPendingPerAgent <= 0 {
		return fmt.Errorf("max_pending_per_agent must be positive")
	}
	if c.MaxReplayEntries <= 0 {
		return fmt.Errorf("max_replay_entries must be positive")
	}
	if c.InvokeTimeout <= 0 {
		return fmt.Errorf("invoke timeout must be positive")
	}
	return nil
}
