// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"slices"
	"testing"

	"github.com/overyonder/turret/lib/wire"
)

func testDirectory(t *testing.T) *directory {
	t.Helper()
	store, _ := newTestStore(t)
	t.Cleanup(store.Close)
	return newDirectory(store)
}

func rawActions(names ...string) [][]byte {
	raw := make([][]byte, len(names))
	for index, name := range names {
		raw[index] = []byte(name)
	}
	return raw
}

func TestDirectoryRegisterAndLookup(t *testing.T) {
	directory := testDirectory(t)
	connection := &conn{id: 1}

	if err := directory.register(connection, "rep-1", rawActions("echo", "admin")); err != nil {
		t.Fatalf("register: %v", err)
	}
	holder, ok := directory.liveRepeater("echo")
	if !ok || holder != connection {
		t.Fatalf("echo not bound to the registering connection")
	}
	if got := directory.liveActions(); !slices.Equal(got, []string{"admin", "echo"}) {
		t.Fatalf("live actions = %v", got)
	}
}

func TestDirectoryRegisterFailures(t *testing.T) {
	tests := []struct {
		name       string
		repeaterID string
		actions    []string
		wantCode   wire.Code
	}{
		{"empty action name", "rep-1", []string{""}, wire.CodeBadRequest},
		{"duplicate claim", "rep-1", []string{"echo", "echo"}, wire.CodeBadRequest},
		{"unknown action", "rep-1", []string{"nonexistent"}, wire.CodeUnknownAction},
		{"not the owner", "rep-2", []string{"echo"}, wire.CodeDenied},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			directory := testDirectory(t)
			err := directory.register(&conn{id: 1}, test.repeaterID, rawActions(test.actions...))
			if err == nil {
				t.Fatalf("expected register failure")
			}
			if err.code != test.wantCode {
				t.Fatalf("code = %s, want %s", err.code, test.wantCode)
			}
		})
	}
}

func TestDirectoryRegisterIsAtomic(t *testing.T) {
	directory := testDirectory(t)
	connection := &conn{id: 1}

	// One valid claim plus one violation: nothing binds.
	if err := directory.register(connection, "rep-1", rawActions("echo", "nonexistent")); err == nil {
		t.Fatalf("expected register failure")
	}
	if _, ok := directory.liveRepeater("echo"); ok {
		t.Fatalf("echo bound despite failed register")
	}
}

func TestDirectorySecondConnectionCannotSteal(t *testing.T) {
	directory := testDirectory(t)
	first := &conn{id: 1}
	second := &conn{id: 2}

	if err := directory.register(first, "rep-1", rawActions("echo")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := directory.register(second, "rep-1", rawActions("echo"))
	if err == nil || err.code != wire.CodeBadRequest {
		t.Fatalf("second register error = %v, want BAD_REQUEST", err)
	}
	holder, _ := directory.liveRepeater("echo")
	if holder != first {
		t.Fatalf("binding moved to the second connection")
	}
}

func TestDirectoryUnbindFreesActions(t *testing.T) {
	directory := testDirectory(t)
	first := &conn{id: 1}
	second := &conn{id: 2}

	if err := directory.register(first, "rep-1", rawActions("echo", "admin")); err != nil {
		t.Fatalf("register: %v", err)
	}
	directory.unbind(first)
	if got := directory.liveActions(); len(got) != 0 {
		t.Fatalf("live actions after unbind = %v", got)
	}
	if err := directory.register(second, "rep-1", rawActions("echo")); err != nil {
		t.Fatalf("re-register after unbind: %v", err)
	}
}
