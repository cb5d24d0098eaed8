// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"fmt"
	"sort"

	"github.com/overyonder/turret/lib/bunker"
	"github.com/overyonder/turret/lib/wire"
)

// registerError is a register failure with its protocol code. The
// whole register fails with the first violation found; no partial
// bindings are committed.
type registerError struct {
	code    wire.Code
	message string
}

func (e *registerError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// directory tracks which repeater connection currently serves each
// action. The static action table comes from the bunker store; the
// live side binds at most one connection per action name.
//
// The dispatcher mutex guards all directory state.
type directory struct {
	store *bunker.Store

	// live maps action name to the repeater connection that has
	// registered it.
	live map[string]*conn
}

func newDirectory(store *bunker.Store) *directory {
	return &directory{
		store: store,
		live:  make(map[string]*conn),
	}
}

// register validates and applies a repeater's action claims
// atomically. Every claimed action must exist in the bunker, be owned
// by repeaterID, and not already be live under another connection.
// The first violation aborts the whole registration.
func (d *directory) register(connection *conn, repeaterID string, actions [][]byte) *registerError {
	names := make([]string, 0, len(actions))
	seen := make(map[string]struct{}, len(actions))
	for _, raw := range actions {
		name := string(raw)
		if name == "" {
			return &registerError{wire.CodeBadRequest, "empty action name"}
		}
		if _, dup := seen[name]; dup {
			return &registerError{wire.CodeBadRequest, fmt.Sprintf("action %q claimed twice", name)}
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	for _, name := range names {
		owner, ok := d.store.ActionRepeater(name)
		if !ok {
			return &registerError{wire.CodeUnknownAction, fmt.Sprintf("action %q is not in the bunker", name)}
		}
		if owner != repeaterID {
			return &registerError{wire.CodeDenied, fmt.Sprintf("action %q belongs to %q", name, owner)}
		}
		if holder, bound := d.live[name]; bound && holder != connection {
			return &registerError{wire.CodeBadRequest, fmt.Sprintf("action %q is already registered", name)}
		}
	}

	for _, name := range names {
		d.live[name] = connection
	}
	return nil
}

// liveRepeater returns the connection currently serving an action.
func (d *directory) liveRepeater(action string) (*conn, bool) {
	connection, ok := d.live[action]
	return connection, ok
}

// unbind clears every binding held by a departing connection.
func (d *directory) unbind(connection *conn) {
	for action, holder := range d.live {
		if holder == connection {
			delete(d.live, action)
		}
	}
}

// liveActions returns the currently bound action names in sorted
// order. Status hook.
func (d *directory) liveActions() []string {
	names := make([]string, 0, len(d.live))
	for name := range d.live {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
