// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"strings"
	"testing"

	"filippo.io/age"

	"github.com/overyonder/turret/lib/secret"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	plaintext := []byte("version: 1\n")
	ciphertext, err := Encrypt(bytes.Clone(plaintext), []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if !IsAgeFile(ciphertext) {
		t.Error("ciphertext does not carry the age header")
	}

	identity, err := age.ParseX25519Identity(keypair.PrivateKey.String())
	if err != nil {
		t.Fatalf("ParseX25519Identity: %v", err)
	}
	decrypted, err := Decrypt(ciphertext, identity)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	defer decrypted.Close()

	if !bytes.Equal(decrypted.Bytes(), plaintext) {
		t.Errorf("round trip = %q, want %q", decrypted.Bytes(), plaintext)
	}
}

func TestEncryptToMultipleRecipients(t *testing.T) {
	first, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer first.Close()
	second, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer second.Close()

	plaintext := []byte("shared bunker")
	ciphertext, err := Encrypt(bytes.Clone(plaintext), []string{first.PublicKey, second.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// Either operator alone can open it.
	for _, keypair := range []*Keypair{first, second} {
		identity, err := age.ParseX25519Identity(keypair.PrivateKey.String())
		if err != nil {
			t.Fatalf("ParseX25519Identity: %v", err)
		}
		decrypted, err := Decrypt(ciphertext, identity)
		if err != nil {
			t.Fatalf("Decrypt with %s: %v", keypair.PublicKey, err)
		}
		if !bytes.Equal(decrypted.Bytes(), plaintext) {
			t.Errorf("plaintext mismatch for %s", keypair.PublicKey)
		}
		decrypted.Close()
	}
}

func TestDecryptWithWrongIdentityFails(t *testing.T) {
	owner, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer owner.Close()
	stranger, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer stranger.Close()

	ciphertext, err := Encrypt([]byte("sealed"), []string{owner.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	identity, err := age.ParseX25519Identity(stranger.PrivateKey.String())
	if err != nil {
		t.Fatalf("ParseX25519Identity: %v", err)
	}
	if _, err := Decrypt(ciphertext, identity); err == nil {
		t.Error("Decrypt with wrong identity succeeded, want error")
	}
}

func TestEncryptRequiresRecipients(t *testing.T) {
	if _, err := Encrypt([]byte("data"), nil); err == nil {
		t.Error("Encrypt with no recipients succeeded, want error")
	}
}

func TestScryptRoundTrip(t *testing.T) {
	passphrase, err := secret.NewFromString("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewFromString: %v", err)
	}
	defer passphrase.Close()

	recipient, err := ScryptRecipient(passphrase)
	if err != nil {
		t.Fatalf("ScryptRecipient: %v", err)
	}

	plaintext := []byte("passphrase sealed")
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipient)
	if err != nil {
		t.Fatalf("age.Encrypt: %v", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	identity, err := ScryptIdentity(passphrase)
	if err != nil {
		t.Fatalf("ScryptIdentity: %v", err)
	}
	decrypted, err := Decrypt(ciphertext.Bytes(), identity)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	defer decrypted.Close()
	if !bytes.Equal(decrypted.Bytes(), plaintext) {
		t.Errorf("round trip = %q, want %q", decrypted.Bytes(), plaintext)
	}
}

func TestParseRecipientRejectsGarbage(t *testing.T) {
	for _, key := range []string{"", "age1", "ssh-ed25519", "not a key"} {
		if _, err := ParseRecipient(key); err == nil {
			t.Errorf("ParseRecipient(%q) succeeded, want error", key)
		}
	}
}

func TestLoadIdentitiesAgeFormat(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()

	keyFile := "# operator key\n" + keypair.PrivateKey.String() + "\n"
	identities, err := LoadIdentities([]byte(keyFile))
	if err != nil {
		t.Fatalf("LoadIdentities: %v", err)
	}
	if len(identities) != 1 {
		t.Fatalf("identities = %d, want 1", len(identities))
	}

	ciphertext, err := Encrypt([]byte("via key file"), []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	decrypted, err := Decrypt(ciphertext, identities...)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	decrypted.Close()
}

func TestIsAgeFile(t *testing.T) {
	if IsAgeFile([]byte("version: 1\n")) {
		t.Error("plaintext detected as age file")
	}
	if !IsAgeFile([]byte("age-encryption.org/v1\n...")) {
		t.Error("age header not detected")
	}
}

func TestKeypairShapes(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want age1... prefix", keypair.PublicKey)
	}
	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Errorf("PrivateKey does not carry AGE-SECRET-KEY-1 prefix")
	}
}
