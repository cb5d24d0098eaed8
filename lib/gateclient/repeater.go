// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package gateclient

import (
	"crypto/ed25519"
	"fmt"
	"net"
	"sync"

	"github.com/overyonder/turret/lib/clock"
	"github.com/overyonder/turret/lib/wire"
)

// Handler serves one forwarded invoke. The returned bytes become the
// result; a returned error becomes an INTERNAL error reply carrying
// the error text.
type Handler func(action string, params []byte) ([]byte, error)

// RepeaterClient is one repeater connection: register once, then
// serve forwarded invokes until the gate goes away.
type RepeaterClient struct {
	repeaterID string
	key        ed25519.PrivateKey
	clock      clock.Clock
	netConn    net.Conn

	writeMu sync.Mutex
}

// DialRepeater connects to the gate's repeater socket as the given
// repeater principal.
func DialRepeater(socketPath, repeaterID string, key ed25519.PrivateKey, clk clock.Clock) (*RepeaterClient, error) {
	netConn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dialing repeater socket: %w", err)
	}
	return &RepeaterClient{
		repeaterID: repeaterID,
		key:        key,
		clock:      clk,
		netConn:    netConn,
	}, nil
}

// Close tears the connection down. The gate fails any invoke still
// pending on this repeater.
func (c *RepeaterClient) Close() error {
	return c.netConn.Close()
}

// Register claims the given actions. The gate stays silent on
// success; a violation arrives as an error envelope on the next read
// and surfaces from Serve.
func (c *RepeaterClient) Register(actions []string) error {
	rawActions := make([][]byte, len(actions))
	for index, action := range actions {
		rawActions[index] = []byte(action)
	}
	body := wire.EncodeRegisterBody(&wire.RegisterBody{
		RepeaterID: []byte(c.repeaterID),
		Actions:    rawActions,
	})
	return c.writeEnvelope(signedEnvelope(c.clock, c.repeaterID, c.key, wire.TypeRegister, body))
}

// Serve reads forwarded invokes and answers each through handler.
// Each invoke runs on its own goroutine so a slow action does not
// stall the rest. Serve returns when the connection ends, or with
// *InvokeError when the gate rejects the registration.
func (c *RepeaterClient) Serve(handler Handler) error {
	for {
		payload, err := wire.ReadFrame(c.netConn)
		if err != nil {
			return fmt.Errorf("repeater connection closed: %w", err)
		}
		envelope, err := wire.DecodeEnvelope(payload)
		if err != nil {
			c.netConn.Close()
			return fmt.Errorf("malformed envelope from gate: %w", err)
		}

		switch envelope.Type {
		case wire.TypeInvoke:
			body, err := wire.DecodeInvokeBody(envelope.Body)
			if err != nil {
				c.netConn.Close()
				return fmt.Errorf("malformed invoke from gate: %w", err)
			}
			go c.serveInvoke(handler, body)
		case wire.TypeError:
			body, err := wire.DecodeErrorBody(envelope.Body)
			if err != nil {
				c.netConn.Close()
				return fmt.Errorf("malformed error from gate: %w", err)
			}
			return &InvokeError{Code: body.Code, Message: string(body.Message)}
		default:
			c.netConn.Close()
			return fmt.Errorf("unexpected envelope type %d from gate", envelope.Type)
		}
	}
}

func (c *RepeaterClient) serveInvoke(handler Handler, invoke *wire.InvokeBody) {
	result, err := handler(string(invoke.Action), invoke.Params)
	if err != nil {
		body := wire.EncodeErrorBody(&wire.ErrorBody{
			RequestID: invoke.RequestID,
			Code:      wire.CodeInternal,
			Message:   []byte(err.Error()),
		})
		c.writeEnvelope(signedEnvelope(c.clock, c.repeaterID, c.key, wire.TypeError, body))
		return
	}
	body := wire.EncodeResultBody(&wire.ResultBody{
		RequestID: invoke.RequestID,
		Result:    result,
	})
	c.writeEnvelope(signedEnvelope(c.clock, c.repeaterID, c.key, wire.TypeResult, body))
}

func (c *RepeaterClient) writeEnvelope(envelope *wire.Envelope) error {
	payload, err := wire.EncodeEnvelope(envelope)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteFrame(c.netConn, payload)
}
