// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the four-byte envelope preamble. It never changes across
// protocol versions; the version field after it does.
var Magic = [4]byte{'T', 'R', 'T', '1'}

// Version is the envelope version this implementation speaks.
const Version uint16 = 1

// SignatureSize is the exact length of the envelope signature field.
const SignatureSize = 64

// Envelope type constants. Unknown types are a decode error.
const (
	TypeRegister uint16 = 1
	TypeInvoke   uint16 = 2
	TypeResult   uint16 = 3
	TypeError    uint16 = 4
)

// Decode failure modes. The dispatcher closes the connection without
// a reply when an envelope fails to decode, since no request id is
// recoverable; a body that fails to decode gets a BAD_REQUEST reply.
var (
	ErrBadMagic     = errors.New("bad envelope magic")
	ErrBadVersion   = errors.New("unsupported envelope version")
	ErrBadType      = errors.New("unknown envelope type")
	ErrTruncated    = errors.New("truncated message")
	ErrOversized    = errors.New("byte string exceeds limits")
	ErrTrailingData = errors.New("trailing bytes after message")
	ErrBadSignature = errors.New("signature field is not 64 bytes")
)

// Envelope is the signed message header common to every protocol
// message. Body holds the still-encoded type-specific payload; Sig is
// always exactly SignatureSize bytes.
type Envelope struct {
	Type        uint16
	Principal   []byte
	TimestampMS uint64
	Nonce       []byte
	Body        []byte
	Sig         []byte
}

// EncodeEnvelope serializes e into frame payload bytes.
func EncodeEnvelope(e *Envelope) ([]byte, error) {
	switch e.Type {
	case TypeRegister, TypeInvoke, TypeResult, TypeError:
	default:
		return nil, fmt.Errorf("encode envelope: %w (type %d)", ErrBadType, e.Type)
	}
	if len(e.Sig) != SignatureSize {
		return nil, fmt.Errorf("encode envelope: %w (got %d)", ErrBadSignature, len(e.Sig))
	}

	var w encodeBuffer
	w.raw(Magic[:])
	w.u16(Version)
	w.u16(e.Type)
	w.bstr(e.Principal)
	w.u64(e.TimestampMS)
	w.bstr(e.Nonce)
	w.bstr(e.Body)
	w.bstr(e.Sig)
	return w.buf.Bytes(), nil
}

// DecodeEnvelope parses a frame payload into an Envelope. It fails
// closed: every malformed input, including trailing bytes after the
// signature, returns an error.
func DecodeEnvelope(payload []byte) (*Envelope, error) {
	r := decodeBuffer{buf: payload}

	magic, err := r.raw(len(Magic))
	if err != nil {
		return nil, fmt.Errorf("decode envelope magic: %w", err)
	}
	if !bytes.Equal(magic, Magic[:]) {
		return nil, fmt.Errorf("decode envelope: %w (got %x)", ErrBadMagic, magic)
	}

	version, err := r.u16()
	if err != nil {
		return nil, fmt.Errorf("decode envelope version: %w", err)
	}
	if version != Version {
		return nil, fmt.Errorf("decode envelope: %w (got %d)", ErrBadVersion, version)
	}

	envelopeType, err := r.u16()
	if err != nil {
		return nil, fmt.Errorf("decode envelope type: %w", err)
	}
	switch envelopeType {
	case TypeRegister, TypeInvoke, TypeResult, TypeError:
	default:
		return nil, fmt.Errorf("decode envelope: %w (type %d)", ErrBadType, envelopeType)
	}

	envelope := &Envelope{Type: envelopeType}
	if envelope.Principal, err = r.bstr(); err != nil {
		return nil, fmt.Errorf("decode envelope principal: %w", err)
	}
	if envelope.TimestampMS, err = r.u64(); err != nil {
		return nil, fmt.Errorf("decode envelope timestamp: %w", err)
	}
	if envelope.Nonce, err = r.bstr(); err != nil {
		return nil, fmt.Errorf("decode envelope nonce: %w", err)
	}
	if envelope.Body, err = r.bstr(); err != nil {
		return nil, fmt.Errorf("decode envelope body: %w", err)
	}
	if envelope.Sig, err = r.bstr(); err != nil {
		return nil, fmt.Errorf("decode envelope signature: %w", err)
	}
	if len(envelope.Sig) != SignatureSize {
		return nil, fmt.Errorf("decode envelope: %w (got %d)", ErrBadSignature, len(envelope.Sig))
	}
	if err := r.done(); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return envelope, nil
}

// encodeBuffer accumulates the binary layout shared by envelopes and
// bodies: little-endian integers, big-endian length prefixes.
type encodeBuffer struct {
	buf bytes.Buffer
}

func (w *encodeBuffer) raw(b []byte) {
	w.buf.Write(b)
}

func (w *encodeBuffer) u16(v uint16) {
	var scratch [2]byte
	binary.LittleEndian.PutUint16(scratch[:], v)
	w.buf.Write(scratch[:])
}

func (w *encodeBuffer) u32(v uint32) {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], v)
	w.buf.Write(scratch[:])
}

func (w *encodeBuffer) u64(v uint64) {
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], v)
	w.buf.Write(scratch[:])
}

func (w *encodeBuffer) bstr(b []byte) {
	var scratch [4]byte
	binary.BigEndian.PutUint32(scratch[:], uint32(len(b)))
	w.buf.Write(scratch[:])
	w.buf.Write(b)
}

// decodeBuffer walks a byte slice with bounds checking on every read.
// Reads never panic; exhausted input yields ErrTruncated.
type decodeBuffer struct {
	buf    []byte
	offset int
}

func (r *decodeBuffer) remaining() int {
	return len(r.buf) - r.offset
}

func (r *decodeBuffer) raw(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, ErrTruncated
	}
	b := r.buf[r.offset : r.offset+n]
	r.offset += n
	return b, nil
}

func (r *decodeBuffer) u16() (uint16, error) {
	b, err := r.raw(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *decodeBuffer) u32() (uint32, error) {
	b, err := r.raw(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *decodeBuffer) u64() (uint64, error) {
	b, err := r.raw(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *decodeBuffer) bstr() ([]byte, error) {
	prefix, err := r.raw(4)
	if err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(prefix)
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w (announced %d bytes)", ErrOversized, length)
	}
	if int(length) > r.remaining() {
		return nil, fmt.Errorf("%w (announced %d bytes, %d remain)", ErrOversized, length, r.remaining())
	}
	return r.raw(int(length))
}

// done verifies the entire input was consumed.
func (r *decodeBuffer) done() error {
	if r.remaining() != 0 {
		return fmt.Errorf("%w (%d bytes)", ErrTrailingData, r.remaining())
	}
	return nil
}
