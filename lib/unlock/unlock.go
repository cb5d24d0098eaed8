// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

// Package unlock collects operator identities for opening the sealed
// bunker: identity key files and interactive passphrase prompts. All
// secret material lands in lib/secret buffers, never in plain heap
// strings held beyond the parsing boundary.
package unlock

import (
	"fmt"
	"os"

	"filippo.io/age"
	"golang.org/x/term"

	"github.com/overyonder/turret/lib/sealed"
	"github.com/overyonder/turret/lib/secret"
)

// ReadPassphrase prompts on stderr and reads a passphrase from the
// terminal without echo. Fails when stdin is not a terminal; callers
// should offer an identity file path for non-interactive use.
func ReadPassphrase(prompt string) (*secret.Buffer, error) {
	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return nil, fmt.Errorf("no terminal available for passphrase prompt (use --identity)")
	}

	fmt.Fprint(os.Stderr, prompt)
	passphraseBytes, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	if len(passphraseBytes) == 0 {
		return nil, fmt.Errorf("empty passphrase")
	}

	buffer, err := secret.NewFromBytes(passphraseBytes)
	if err != nil {
		secret.Zero(passphraseBytes)
		return nil, err
	}
	return buffer, nil
}

// IdentitiesFromFile loads operator identities from an age identity
// file or an unencrypted OpenSSH private key file.
func IdentitiesFromFile(path string) ([]age.Identity, error) {
	keyFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identity file: %w", err)
	}
	defer secret.Zero(keyFile)

	identities, err := sealed.LoadIdentities(keyFile)
	if err != nil {
		return nil, fmt.Errorf("identity file %s: %w", path, err)
	}
	return identities, nil
}

// Identities resolves the operator's identities for a bunker
// operation. When identityPath is non-empty the file is used;
// otherwise the operator is prompted for a passphrase and a scrypt
// identity is built from it.
func Identities(identityPath string) ([]age.Identity, error) {
	if identityPath != "" {
		return IdentitiesFromFile(identityPath)
	}
	passphrase, err := ReadPassphrase("Bunker passphrase: ")
	if err != nil {
		return nil, err
	}
	defer passphrase.Close()

	identity, err := sealed.ScryptIdentity(passphrase)
	if err != nil {
		return nil, err
	}
	return []age.Identity{identity}, nil
}
