// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package bunker

import (
	"fmt"
	"os"
	"path/filepath"

	"filippo.io/age"

	"github.com/overyonder/turret/lib/sealed"
	"github.com/overyonder/turret/lib/secret"
)

// Open reads a sealed bunker file, decrypts it with the given
// identities, parses and validates the plaintext, and returns the
// indexed store. The decrypted plaintext buffer is zeroed before
// returning on every path.
func Open(path string, identities []age.Identity) (*Store, error) {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bunker: %w", err)
	}
	if !sealed.IsAgeFile(ciphertext) {
		return nil, fmt.Errorf("bunker %s is not an age file", path)
	}

	plaintext, err := sealed.Decrypt(ciphertext, identities...)
	if err != nil {
		return nil, fmt.Errorf("unsealing bunker: %w", err)
	}
	defer plaintext.Close()

	document, err := ParseDocument(plaintext.Bytes())
	if err != nil {
		return nil, err
	}
	store, err := NewStore(document)
	if err != nil {
		return nil, err
	}
	// Secret values now live in protected buffers; drop the decoder's
	// string copies so they stop being reachable.
	document.Secrets = nil
	return store, nil
}

// OpenDocument reads and decrypts a sealed bunker file and returns
// the raw document for editing. CLI verbs use this; the gate itself
// uses Open.
func OpenDocument(path string, identities []age.Identity) (*Document, error) {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bunker: %w", err)
	}
	if !sealed.IsAgeFile(ciphertext) {
		return nil, fmt.Errorf("bunker %s is not an age file", path)
	}

	plaintext, err := sealed.Decrypt(ciphertext, identities...)
	if err != nil {
		return nil, fmt.Errorf("unsealing bunker: %w", err)
	}
	defer plaintext.Close()

	return ParseDocument(plaintext.Bytes())
}

// Seal validates, encodes, and encrypts document to every operator
// recipient it names, then writes the ciphertext to path atomically
// (temp file in the same directory, fsync, rename). A crash mid-save
// leaves the previous bunker intact.
func Seal(document *Document, path string) error {
	plaintext, err := EncodeDocument(document)
	if err != nil {
		return err
	}
	defer secret.Zero(plaintext)

	ciphertext, err := sealed.Encrypt(plaintext, document.Operators.Recipients)
	if err != nil {
		return fmt.Errorf("sealing bunker: %w", err)
	}

	directory := filepath.Dir(path)
	temp, err := os.CreateTemp(directory, ".bunker-*")
	if err != nil {
		return fmt.Errorf("creating temp bunker: %w", err)
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)

	if _, err := temp.Write(ciphertext); err != nil {
		temp.Close()
		return fmt.Errorf("writing temp bunker: %w", err)
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		return fmt.Errorf("syncing temp bunker: %w", err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("closing temp bunker: %w", err)
	}
	if err := os.Chmod(tempPath, 0600); err != nil {
		return fmt.Errorf("setting bunker permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming bunker into place: %w", err)
	}
	return nil
}
