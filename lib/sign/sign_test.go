// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package sign

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/overyonder/turret/lib/wire"
)

func TestCanonicalBytesLayout(t *testing.T) {
	got := CanonicalBytes([]byte("agent-1"), 123, []byte("nonce"), []byte("body"))
	want := []byte("agent-1\n123\nnonce\nbody")
	if !bytes.Equal(got, want) {
		t.Errorf("CanonicalBytes = %q, want %q", got, want)
	}
}

func TestCanonicalBytesNoTrailingNewline(t *testing.T) {
	got := CanonicalBytes([]byte("p"), 0, nil, nil)
	if want := []byte("p\n0\n\n"); !bytes.Equal(got, want) {
		t.Errorf("CanonicalBytes = %q, want %q", got, want)
	}
}

func TestCanonicalBytesRawFields(t *testing.T) {
	// Newlines inside fields are carried raw. The layout is not
	// injective across field boundaries, which is why the timestamp
	// and replay window exist; the codec must still never escape.
	nonce := []byte("a\nb")
	got := CanonicalBytes([]byte("p"), 1, nonce, []byte{0x00, 0xFF})
	want := append([]byte("p\n1\na\nb\n"), 0x00, 0xFF)
	if !bytes.Equal(got, want) {
		t.Errorf("CanonicalBytes = %x, want %x", got, want)
	}
}

func signedEnvelope(t *testing.T, private ed25519.PrivateKey) *wire.Envelope {
	t.Helper()
	e := &wire.Envelope{
		Type:        wire.TypeInvoke,
		Principal:   []byte("agent-1"),
		TimestampMS: 1722945600000,
		Nonce:       []byte("0123456789abcdef"),
		Body:        []byte("body"),
	}
	Envelope(e, private)
	return e
}

func TestSignVerifyRoundTrip(t *testing.T) {
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	e := signedEnvelope(t, private)
	if len(e.Sig) != wire.SignatureSize {
		t.Fatalf("Sig = %d bytes, want %d", len(e.Sig), wire.SignatureSize)
	}
	if err := VerifyEnvelope(e, public); err != nil {
		t.Errorf("VerifyEnvelope: %v", err)
	}
}

func TestVerifyRejectsTamperedFields(t *testing.T) {
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	tests := []struct {
		name   string
		tamper func(*wire.Envelope)
	}{
		{"principal", func(e *wire.Envelope) { e.Principal = []byte("agent-2") }},
		{"timestamp", func(e *wire.Envelope) { e.TimestampMS++ }},
		{"nonce", func(e *wire.Envelope) { e.Nonce[0] ^= 0x01 }},
		{"body", func(e *wire.Envelope) { e.Body = append(e.Body, '!') }},
		{"signature bit", func(e *wire.Envelope) { e.Sig[0] ^= 0x01 }},
		{"signature length", func(e *wire.Envelope) { e.Sig = e.Sig[:32] }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			e := signedEnvelope(t, private)
			test.tamper(e)
			if err := VerifyEnvelope(e, public); !errors.Is(err, ErrBadSignature) {
				t.Errorf("VerifyEnvelope after tamper = %v, want ErrBadSignature", err)
			}
		})
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	_, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	otherPublic, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	e := signedEnvelope(t, private)
	if err := VerifyEnvelope(e, otherPublic); !errors.Is(err, ErrBadSignature) {
		t.Errorf("VerifyEnvelope with wrong key = %v, want ErrBadSignature", err)
	}
}

func TestSeedFileRoundTrip(t *testing.T) {
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	path := filepath.Join(t.TempDir(), "agent-1.key")
	if err := SaveSeed(path, private); err != nil {
		t.Fatalf("SaveSeed: %v", err)
	}

	loadedPublic, loadedPrivate, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if !loadedPublic.Equal(public) {
		t.Error("loaded public key differs from generated key")
	}
	if !loadedPrivate.Equal(private) {
		t.Error("loaded private key differs from generated key")
	}
}

func TestLoadSeedRejectsWrongSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.key")
	if err := os.WriteFile(path, make([]byte, 16), 0600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, _, err := LoadSeed(path); err == nil {
		t.Error("LoadSeed on 16-byte file succeeded, want error")
	}
}

func TestFingerprintStableAndShort(t *testing.T) {
	public, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	first := Fingerprint(public)
	second := Fingerprint(public)
	if first != second {
		t.Errorf("Fingerprint not stable: %q vs %q", first, second)
	}
	if len(first) != 16 {
		t.Errorf("Fingerprint length = %d, want 16 hex chars", len(first))
	}

	otherPublic, _, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if Fingerprint(otherPublic) == first {
		t.Error("distinct keys produced identical fingerprints")
	}
}
