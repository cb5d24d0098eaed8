// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"filippo.io/age/agessh"

	"github.com/overyonder/turret/lib/secret"
)

// ageHeaderPrefix is the first line of every age file, shared by all
// format versions.
const ageHeaderPrefix = "age-encryption.org/"

// Keypair holds an age x25519 keypair. The private key lives in a
// secret.Buffer (mmap-backed, locked against swap, excluded from core
// dumps). The public key is a plain string, safe to publish.
//
// The caller must call Close when the keypair is no longer needed.
type Keypair struct {
	// PrivateKey is the secret key in AGE-SECRET-KEY-1... format,
	// stored in mmap memory outside the Go heap. Must never be
	// logged, stored in plaintext on disk, or passed as a CLI
	// argument.
	PrivateKey *secret.Buffer

	// PublicKey is the corresponding recipient in age1... format.
	PublicKey string
}

// Close releases the private key memory (zeros, unlocks, unmaps).
// Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new age x25519 keypair. The private key
// is returned in a secret.Buffer; the caller must Close the returned
// Keypair when done.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	// Move the private key string into mmap-backed memory
	// immediately. The transient heap copy is unavoidable since the
	// age API hands the key back as a string.
	privateKeyBytes := []byte(identity.String())
	privateKey, err := secret.NewFromBytes(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}

	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// ParseRecipient parses an operator recipient string. Both native age
// x25519 recipients (age1...) and OpenSSH public keys (ssh-ed25519
// ..., ssh-rsa ...) are accepted, so operators can reuse the SSH keys
// they already carry.
func ParseRecipient(key string) (age.Recipient, error) {
	trimmed := strings.TrimSpace(key)
	if strings.HasPrefix(trimmed, "ssh-") {
		recipient, err := agessh.ParseRecipient(trimmed)
		if err != nil {
			return nil, fmt.Errorf("parsing ssh recipient: %w", err)
		}
		return recipient, nil
	}
	recipient, err := age.ParseX25519Recipient(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parsing age recipient: %w", err)
	}
	return recipient, nil
}

// Encrypt seals plaintext to one or more operator recipient strings
// and returns raw binary age ciphertext. At least one recipient is
// required; the bunker is unreadable without an operator identity.
func Encrypt(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := ParseRecipient(key)
		if err != nil {
			return nil, fmt.Errorf("recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Decrypt unseals raw age ciphertext with the given identities and
// returns the plaintext in a secret.Buffer (mmap-backed, zeroed on
// close). The caller must Close the returned buffer.
func Decrypt(ciphertext []byte, identities ...age.Identity) (*secret.Buffer, error) {
	if len(identities) == 0 {
		return nil, fmt.Errorf("at least one identity is required")
	}

	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}

	if len(plaintext) == 0 {
		// age can produce empty plaintext (sealed empty file).
		buffer, err := secret.New(1)
		if err != nil {
			return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
		}
		return buffer, nil
	}

	// NewFromBytes zeros the heap copy.
	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		for index := range plaintext {
			plaintext[index] = 0
		}
		return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
	}
	return buffer, nil
}

// ScryptIdentity builds a passphrase identity for decryption. The
// passphrase is borrowed from the buffer and not closed here.
func ScryptIdentity(passphrase *secret.Buffer) (age.Identity, error) {
	identity, err := age.NewScryptIdentity(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("building scrypt identity: %w", err)
	}
	return identity, nil
}

// ScryptRecipient builds a passphrase recipient for encryption. The
// passphrase is borrowed from the buffer and not closed here.
func ScryptRecipient(passphrase *secret.Buffer) (age.Recipient, error) {
	recipient, err := age.NewScryptRecipient(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("building scrypt recipient: %w", err)
	}
	return recipient, nil
}

// LoadIdentities parses operator identities from key file contents.
// Both native age identity files (AGE-SECRET-KEY-1... lines, comments
// allowed) and unencrypted OpenSSH private keys are accepted.
func LoadIdentities(keyFile []byte) ([]age.Identity, error) {
	if bytes.HasPrefix(keyFile, []byte("-----BEGIN ")) {
		identity, err := agessh.ParseIdentity(keyFile)
		if err != nil {
			return nil, fmt.Errorf("parsing ssh identity: %w", err)
		}
		return []age.Identity{identity}, nil
	}
	identities, err := age.ParseIdentities(bytes.NewReader(keyFile))
	if err != nil {
		return nil, fmt.Errorf("parsing age identities: %w", err)
	}
	return identities, nil
}

// IsAgeFile reports whether data begins with the age format header.
// Used to distinguish a sealed bunker from a plaintext one left
// behind by an interrupted dig.
func IsAgeFile(data []byte) bool {
	return bytes.HasPrefix(data, []byte(ageHeaderPrefix))
}
