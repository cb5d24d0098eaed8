// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// Code is a protocol error code carried by error bodies.
type Code uint16

// Protocol error codes. The dispatcher picks exactly one per failed
// request; clients switch on these rather than on message text.
const (
	CodeUnauthenticated Code = 1
	CodeReplay          Code = 2
	CodeDenied          Code = 3
	CodeUnknownAction   Code = 4
	CodeNoRepeater      Code = 5
	CodeBadRequest      Code = 6
	CodeInternal        Code = 7
)

// String returns the canonical name of the code, or a numeric form
// for codes this implementation does not know.
func (c Code) String() string {
	switch c {
	case CodeUnauthenticated:
		return "UNAUTHENTICATED"
	case CodeReplay:
		return "REPLAY"
	case CodeDenied:
		return "DENIED"
	case CodeUnknownAction:
		return "UNKNOWN_ACTION"
	case CodeNoRepeater:
		return "NO_REPEATER"
	case CodeBadRequest:
		return "BAD_REQUEST"
	case CodeInternal:
		return "INTERNAL"
	default:
		return fmt.Sprintf("code(%d)", uint16(c))
	}
}

// RegisterBody announces a repeater and the actions it serves.
type RegisterBody struct {
	RepeaterID []byte
	Actions    [][]byte
}

// InvokeBody asks the gate to run an action with opaque parameters.
type InvokeBody struct {
	RequestID []byte
	Action    []byte
	Params    []byte
}

// ResultBody carries a successful action outcome back to the caller.
type ResultBody struct {
	RequestID []byte
	Result    []byte
}

// ErrorBody carries a failed action outcome back to the caller.
type ErrorBody struct {
	RequestID []byte
	Code      Code
	Message   []byte
}

// EncodeRegisterBody serializes b into envelope body bytes.
func EncodeRegisterBody(b *RegisterBody) []byte {
	var w encodeBuffer
	w.bstr(b.RepeaterID)
	w.u32(uint32(len(b.Actions)))
	for _, action := range b.Actions {
		w.bstr(action)
	}
	return w.buf.Bytes()
}

// DecodeRegisterBody parses envelope body bytes as a register body.
func DecodeRegisterBody(data []byte) (*RegisterBody, error) {
	r := decodeBuffer{buf: data}
	body := &RegisterBody{}
	var err error
	if body.RepeaterID, err = r.bstr(); err != nil {
		return nil, fmt.Errorf("decode register repeater id: %w", err)
	}
	actionCount, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("decode register action count: %w", err)
	}
	// Each action costs at least a 4-byte length prefix, so the
	// count can never exceed the remaining bytes divided by four.
	if int(actionCount) > r.remaining()/4 {
		return nil, fmt.Errorf("decode register action count: %w (announced %d)", ErrOversized, actionCount)
	}
	for i := uint32(0); i < actionCount; i++ {
		action, err := r.bstr()
		if err != nil {
			return nil, fmt.Errorf("decode register action %d: %w", i, err)
		}
		body.Actions = append(body.Actions, action)
	}
	if err := r.done(); err != nil {
		return nil, fmt.Errorf("decode register body: %w", err)
	}
	return body, nil
}

// EncodeInvokeBody serializes b into envelope body bytes.
func EncodeInvokeBody(b *InvokeBody) []byte {
	var w encodeBuffer
	w.bstr(b.RequestID)
	w.bstr(b.Action)
	w.bstr(b.Params)
	return w.buf.Bytes()
}

// DecodeInvokeBody parses envelope body bytes as an invoke body.
func DecodeInvokeBody(data []byte) (*InvokeBody, error) {
	r := decodeBuffer{buf: data}
	body := &InvokeBody{}
	var err error
	if body.RequestID, err = r.bstr(); err != nil {
		return nil, fmt.Errorf("decode invoke request id: %w", err)
	}
	if body.Action, err = r.bstr(); err != nil {
		return nil, fmt.Errorf("decode invoke action: %w", err)
	}
	if body.Params, err = r.bstr(); err != nil {
		return nil, fmt.Errorf("decode invoke params: %w", err)
	}
	if err := r.done(); err != nil {
		return nil, fmt.Errorf("decode invoke body: %w", err)
	}
	return body, nil
}

// EncodeResultBody serializes b into envelope body bytes.
func EncodeResultBody(b *ResultBody) []byte {
	var w encodeBuffer
	w.bstr(b.RequestID)
	w.bstr(b.Result)
	return w.buf.Bytes()
}

// DecodeResultBody parses envelope body bytes as a result body.
func DecodeResultBody(data []byte) (*ResultBody, error) {
	r := decodeBuffer{buf: data}
	body := &ResultBody{}
	var err error
	if body.RequestID, err = r.bstr(); err != nil {
		return nil, fmt.Errorf("decode result request id: %w", err)
	}
	if body.Result, err = r.bstr(); err != nil {
		return nil, fmt.Errorf("decode result payload: %w", err)
	}
	if err := r.done(); err != nil {
		return nil, fmt.Errorf("decode result body: %w", err)
	}
	return body, nil
}

// EncodeErrorBody serializes b into envelope body bytes.
func EncodeErrorBody(b *ErrorBody) []byte {
	var w encodeBuffer
	w.bstr(b.RequestID)
	w.u16(uint16(b.Code))
	w.bstr(b.Message)
	return w.buf.Bytes()
}

// DecodeErrorBody parses envelope body bytes as an error body.
func DecodeErrorBody(data []byte) (*ErrorBody, error) {
	r := decodeBuffer{buf: data}
	body := &ErrorBody{}
	var err error
	if body.RequestID, err = r.bstr(); err != nil {
		return nil, fmt.Errorf("decode error request id: %w", err)
	}
	code, err := r.u16()
	if err != nil {
		return nil, fmt.Errorf("decode error code: %w", err)
	}
	body.Code = Code(code)
	if body.Message, err = r.bstr(); err != nil {
		return nil, fmt.Errorf("decode error message: %w", err)
	}
	if err := r.done(); err != nil {
		return nil, fmt.Errorf("decode error body: %w", err)
	}
	return body, nil
}
