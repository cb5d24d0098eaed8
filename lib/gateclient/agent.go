// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package gateclient

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"sync"

	"github.com/overyonder/turret/lib/clock"
	"github.com/overyonder/turret/lib/wire"
)

// AgentClient is one authenticated agent connection. Invoke may be
// called from multiple goroutines; a background read loop routes each
// reply to the call that owns its request id.
type AgentClient struct {
	principal string
	key       ed25519.PrivateKey
	clock     clock.Clock
	netConn   net.Conn

	writeMu sync.Mutex

	mu          sync.Mutex
	waiters     map[string]chan *wire.Envelope
	readErr     error
	nextRequest uint64
	idPrefix    string

	done chan struct{}
}

// DialAgent connects to the gate's agent socket as the given
// principal.
func DialAgent(socketPath, principal string, key ed25519.PrivateKey, clk clock.Clock) (*AgentClient, error) {
	netConn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dialing agent socket: %w", err)
	}
	prefix := make([]byte, 4)
	rand.Read(prefix)
	client := &AgentClient{
		principal: principal,
		key:       key,
		clock:     clk,
		netConn:   netConn,
		waiters:   make(map[string]chan *wire.Envelope),
		idPrefix:  hex.EncodeToString(prefix),
		done:      make(chan struct{}),
	}
	go client.readLoop()
	return client, nil
}

// Close tears the connection down. In-flight Invoke calls fail.
func (c *AgentClient) Close() error {
	return c.netConn.Close()
}

// Invoke runs one action through the gate and returns the result
// bytes. A gate or repeater failure comes back as *InvokeError; a
// dead connection or expired context as a plain error.
func (c *AgentClient) Invoke(ctx context.Context, action string, params []byte) ([]byte, error) {
	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return nil, err
	}
	c.nextRequest++
	requestID := fmt.Sprintf("%s-%d", c.idPrefix, c.nextRequest)
	replyCh := make(chan *wire.Envelope, 1)
	c.waiters[requestID] = replyCh
	c.mu.Unlock()

	body := wire.EncodeInvokeBody(&wire.InvokeBody{
		RequestID: []byte(requestID),
		Action:    []byte(action),
		Params:    params,
	})
	envelope := signedEnvelope(c.clock, c.principal, c.key, wire.TypeInvoke, body)
	payload, err := wire.EncodeEnvelope(envelope)
	if err != nil {
		c.forgetWaiter(requestID)
		return nil, err
	}

	c.writeMu.Lock()
	err = wire.WriteFrame(c.netConn, payload)
	c.writeMu.Unlock()
	if err != nil {
		c.forgetWaiter(requestID)
		return nil, fmt.Errorf("sending invoke: %w", err)
	}

	select {
	case reply := <-replyCh:
		return decodeReply(reply)
	case <-c.done:
		c.mu.Lock()
		readErr := c.readErr
		c.mu.Unlock()
		return nil, readErr
	case <-ctx.Done():
		c.forgetWaiter(requestID)
		return nil, ctx.Err()
	}
}

func (c *AgentClient) forgetWaiter(requestID string) {
	c.mu.Lock()
	delete(c.waiters, requestID)
	c.mu.Unlock()
}

// readLoop routes inbound envelopes to waiting Invoke calls. Any read
// or decode error ends the connection for every caller.
func (c *AgentClient) readLoop() {
	for {
		payload, err := wire.ReadFrame(c.netConn)
		if err != nil {
			c.fail(fmt.Errorf("agent connection closed: %w", err))
			return
		}
		envelope, err := wire.DecodeEnvelope(payload)
		if err != nil {
			c.netConn.Close()
			c.fail(fmt.Errorf("malformed envelope from gate: %w", err))
			return
		}
		requestID := replyRequestID(envelope)

		c.mu.Lock()
		waiter, found := c.waiters[string(requestID)]
		if found {
			delete(c.waiters, string(requestID))
		}
		c.mu.Unlock()

		if found {
			waiter <- envelope
		}
	}
}

func (c *AgentClient) fail(err error) {
	c.mu.Lock()
	if c.readErr == nil {
		c.readErr = err
		close(c.done)
	}
	c.mu.Unlock()
}

// replyRequestID pulls the request id out of a result or error
// envelope. Unattributable envelopes yield nil and are dropped.
func replyRequestID(envelope *wire.Envelope) []byte {
	switch envelope.Type {
	case wire.TypeResult:
		if body, err := wire.DecodeResultBody(envelope.Body); err == nil {
			return body.RequestID
		}
	case wire.TypeError:
		if body, err := wire.DecodeErrorBody(envelope.Body); err == nil {
			return body.RequestID
		}
	}
	return nil
}

func decodeReply(envelope *wire.Envelope) ([]byte, error) {
	switch envelope.Type {
	case wire.TypeResult:
		body, err := wire.DecodeResultBody(envelope.Body)
		if err != nil {
			return nil, fmt.Errorf("malformed result body: %w", err)
		}
		return body.Result, nil
	case wire.TypeError:
		body, err := wire.DecodeErrorBody(envelope.Body)
		if err != nil {
			return nil, fmt.Errorf("malformed error body: %w", err)
		}
		return nil, &InvokeError{Code: body.Code, Message: string(body.Message)}
	}
	return nil, fmt.Errorf("unexpected envelope type %d from gate", envelope.Type)
}
