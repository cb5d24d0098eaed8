// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package bunker

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/overyonder/turret/lib/secret"
)

// Class distinguishes the two principal kinds.
type Class int

const (
	// ClassAgent marks a distrusted automation client.
	ClassAgent Class = iota + 1
	// ClassRepeater marks a trusted action adapter.
	ClassRepeater
)

// String returns "agent" or "repeater".
func (c Class) String() string {
	switch c {
	case ClassAgent:
		return "agent"
	case ClassRepeater:
		return "repeater"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Principal is a resolved identity: id, class, and verifying key.
type Principal struct {
	ID        string
	Class     Class
	PublicKey ed25519.PublicKey
}

// Store is the validated, indexed runtime view of a bunker document.
// All lookups are read-only after construction; the document is
// immutable for the lifetime of an engagement. Secrets live in
// mmap-backed buffers zeroed by Close.
type Store struct {
	principals  map[string]Principal
	actions     map[string]string
	permissions map[string]map[string]struct{}
	secrets     map[string]*secret.Buffer
	recipients  []string
}

// NewStore indexes a validated document. Secret values are moved into
// protected buffers; the caller should discard the document (and the
// plaintext it was parsed from) promptly afterwards.
func NewStore(document *Document) (*Store, error) {
	if err := document.Validate(); err != nil {
		return nil, err
	}

	store := &Store{
		principals:  make(map[string]Principal),
		actions:     make(map[string]string, len(document.Actions)),
		permissions: make(map[string]map[string]struct{}, len(document.Permissions)),
		secrets:     make(map[string]*secret.Buffer, len(document.Secrets)),
		recipients:  append([]string(nil), document.Operators.Recipients...),
	}

	for id, entry := range document.Agents {
		key, _ := base64.StdEncoding.DecodeString(entry.Ed25519PubkeyB64)
		store.principals[id] = Principal{ID: id, Class: ClassAgent, PublicKey: key}
	}
	for id, entry := range document.Repeaters {
		key, _ := base64.StdEncoding.DecodeString(entry.Ed25519PubkeyB64)
		store.principals[id] = Principal{ID: id, Class: ClassRepeater, PublicKey: key}
	}

	for action, repeaterID := range document.Actions {
		store.actions[action] = repeaterID
	}

	for agentID, entry := range document.Permissions {
		allowed := make(map[string]struct{}, len(entry.Allow))
		for _, action := range entry.Allow {
			allowed[action] = struct{}{}
		}
		store.permissions[agentID] = allowed
	}

	for name, value := range document.Secrets {
		buffer, err := secret.NewFromString(value)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("protecting secret %q: %w", name, err)
		}
		store.secrets[name] = buffer
	}
	return store, nil
}

// Principal resolves an id to its class and public key.
func (s *Store) Principal(id string) (Principal, bool) {
	principal, ok := s.principals[id]
	return principal, ok
}

// Allows reports whether agentID may invoke action. Absence of the
// agent or the action from the permission table is a deny.
func (s *Store) Allows(agentID, action string) bool {
	allowed, ok := s.permissions[agentID]
	if !ok {
		return false
	}
	_, ok = allowed[action]
	return ok
}

// ActionRepeater resolves an action name to the repeater id that owns
// it.
func (s *Store) ActionRepeater(action string) (string, bool) {
	repeaterID, ok := s.actions[action]
	return repeaterID, ok
}

// ActionNames returns all action names in sorted order.
func (s *Store) ActionNames() []string {
	names := make([]string, 0, len(s.actions))
	for name := range s.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Secret returns the protected buffer for a named secret. The buffer
// is owned by the store; callers must not Close it.
func (s *Store) Secret(name string) (*secret.Buffer, bool) {
	buffer, ok := s.secrets[name]
	return buffer, ok
}

// SecretNames returns all secret names in sorted order. Values are
// never exposed this way.
func (s *Store) SecretNames() []string {
	names := make([]string, 0, len(s.secrets))
	for name := range s.secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Recipients returns the operator recipient strings the bunker is
// sealed to.
func (s *Store) Recipients() []string {
	return append([]string(nil), s.recipients...)
}

// Counts reports table sizes for status output.
func (s *Store) Counts() (agents, repeaters, actions, secrets int) {
	for _, principal := range s.principals {
		switch principal.Class {
		case ClassAgent:
			agents++
		case ClassRepeater:
			repeaters++
		}
	}
	return agents, repeaters, len(s.actions), len(s.secrets)
}

// Close zeroes and releases every secret buffer. Idempotent; the
// store must not be used for secret lookups afterwards.
func (s *Store) Close() {
	for name, buffer := range s.secrets {
		buffer.Close()
		delete(s.secrets, name)
	}
}
