// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/overyonder/turret/lib/bunker"
	"github.com/overyonder/turret/lib/unlock"
)

// bunkerFlags are the flags shared by every command that opens the
// sealed bunker file.
type bunkerFlags struct {
	path     string
	identity string
}

func (f *bunkerFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.path, "bunker", runtimeDir()+"/turret.bunker", "path to the sealed bunker file")
	flagSet.StringVar(&f.identity, "identity", "", "age identity file for unsealing (prompts for a passphrase when empty)")
}

// openDocument unseals the bunker and returns its editable document.
func (f *bunkerFlags) openDocument() (*bunker.Document, error) {
	identities, err := unlock.Identities(f.identity)
	if err != nil {
		return nil, err
	}
	return bunker.OpenDocument(f.path, identities)
}

// mutate unseals the bunker, applies edit, and reseals atomically.
// Validation runs inside Seal, so an edit that leaves the document
// inconsistent never reaches disk.
func (f *bunkerFlags) mutate(edit func(*bunker.Document) error) error {
	document, err := f.openDocument()
	if err != nil {
		return err
	}
	if err := edit(document); err != nil {
		return err
	}
	if err := bunker.Seal(document, f.path); err != nil {
		return fmt.Errorf("resealing bunker: %w", err)
	}
	return nil
}
