// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package bunker

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// DocumentVersion is the only bunker document version this
// implementation reads or writes.
const DocumentVersion = 1

// Document is the decrypted bunker plaintext. Field names follow the
// on-disk YAML keys exactly; unknown keys are a parse error.
type Document struct {
	Version     int                        `yaml:"version"`
	Operators   OperatorsSection           `yaml:"operators"`
	Agents      map[string]PrincipalEntry  `yaml:"agents,omitempty"`
	Repeaters   map[string]PrincipalEntry  `yaml:"repeaters,omitempty"`
	Actions     map[string]string          `yaml:"actions,omitempty"`
	Permissions map[string]PermissionEntry `yaml:"permissions,omitempty"`
	Secrets     map[string]string          `yaml:"secrets,omitempty"`
}

// OperatorsSection lists the age recipients the bunker is sealed to.
type OperatorsSection struct {
	Recipients []string `yaml:"recipients"`
}

// PrincipalEntry declares one agent or repeater public key.
type PrincipalEntry struct {
	Ed25519PubkeyB64 string `yaml:"ed25519_pubkey_b64"`
}

// PermissionEntry lists the actions one agent may invoke.
type PermissionEntry struct {
	Allow []string `yaml:"allow"`
}

// ParseDocument decodes and validates bunker plaintext. Unknown keys
// anywhere in the document are rejected; so is any document that
// fails Validate.
func ParseDocument(plaintext []byte) (*Document, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(plaintext))
	decoder.KnownFields(true)

	var document Document
	if err := decoder.Decode(&document); err != nil {
		return nil, fmt.Errorf("parsing bunker document: %w", err)
	}
	// A second YAML document in the stream is as suspect as an
	// unknown key.
	if err := decoder.Decode(new(Document)); err != io.EOF {
		return nil, fmt.Errorf("bunker document: trailing YAML document")
	}

	if err := document.Validate(); err != nil {
		return nil, err
	}
	return &document, nil
}

// EncodeDocument serializes a document back to YAML. The document is
// validated first so a corrupt in-memory state never reaches disk.
func EncodeDocument(document *Document) ([]byte, error) {
	if err := document.Validate(); err != nil {
		return nil, err
	}
	encoded, err := yaml.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("encoding bunker document: %w", err)
	}
	return encoded, nil
}

// Validate checks structural and referential integrity: the version,
// non-empty operator recipients, well-formed 32-byte public keys,
// non-empty distinct ids, no agent/repeater id overlap, that every
// action and permission reference resolves, and non-empty secret names.
func (d *Document) Validate() error {
	if d.Version != DocumentVersion {
		return fmt.Errorf("bunker version %d, want %d", d.Version, DocumentVersion)
	}
	if len(d.Operators.Recipients) == 0 {
		return fmt.Errorf("bunker has no operator recipients")
	}
	for i, recipient := range d.Operators.Recipients {
		if recipient == "" {
			return fmt.Errorf("operator recipient %d is empty", i)
		}
	}

	for id, entry := range d.Agents {
		if id == "" {
			return fmt.Errorf("agent with empty id")
		}
		if err := validatePubkey(entry.Ed25519PubkeyB64); err != nil {
			return fmt.Errorf("agent %q: %w", id, err)
		}
	}
	for id, entry := range d.Repeaters {
		if id == "" {
			return fmt.Errorf("repeater with empty id")
		}
		if err := validatePubkey(entry.Ed25519PubkeyB64); err != nil {
			return fmt.Errorf("repeater %q: %w", id, err)
		}
		if _, both := d.Agents[id]; both {
			return fmt.Errorf("id %q is both an agent and a repeater", id)
		}
	}

	for action, repeaterID := range d.Actions {
		if action == "" {
			return fmt.Errorf("action with empty name")
		}
		if _, ok := d.Repeaters[repeaterID]; !ok {
			return fmt.Errorf("action %q names unknown repeater %q", action, repeaterID)
		}
	}

	for agentID, entry := range d.Permissions {
		if _, ok := d.Agents[agentID]; !ok {
			return fmt.Errorf("permissions name unknown agent %q", agentID)
		}
		for _, action := range entry.Allow {
			if _, ok := d.Actions[action]; !ok {
				return fmt.Errorf("permissions for %q name unknown action %q", agentID, action)
			}
		}
	}

	for name := range d.Secrets {
		if name == "" {
			return fmt.Errorf("secret with empty name")
		}
	}
	return nil
}

// validatePubkey checks that a base64 public key decodes to exactly
// 32 bytes.
func validatePubkey(encoded string) error {
	if encoded == "" {
		return fmt.Errorf("missing ed25519_pubkey_b64")
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("ed25519_pubkey_b64 is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("ed25519_pubkey_b64 decodes to %d bytes, want 32", len(key))
	}
	return nil
}
