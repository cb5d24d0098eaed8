// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize is the maximum frame payload in bytes. A peer that
// announces a larger frame has violated the protocol and its
// connection must be closed.
const MaxFrameSize = 262144

// frameHeaderLength is the fixed size of the frame header: a 4-byte
// big-endian payload length.
const frameHeaderLength = 4

// ErrFrameTooLarge reports a frame whose announced payload length
// exceeds MaxFrameSize.
var ErrFrameTooLarge = fmt.Errorf("frame exceeds %d bytes", MaxFrameSize)

// WriteFrame writes payload to w as a single frame: a 4-byte
// big-endian length followed by the payload bytes.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("write frame: %w (payload %d bytes)", ErrFrameTooLarge, len(payload))
	}
	var header [frameHeaderLength]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one frame from r and returns its payload. An
// announced length above MaxFrameSize returns ErrFrameTooLarge
// without consuming the payload; the caller must close the
// connection.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	payloadLength := binary.BigEndian.Uint32(header[:])
	if payloadLength > MaxFrameSize {
		return nil, fmt.Errorf("read frame: %w (announced %d bytes)", ErrFrameTooLarge, payloadLength)
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return payload, nil
}
