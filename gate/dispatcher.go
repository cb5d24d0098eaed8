// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/overyonder/turret/lib/bunker"
	"github.com/overyonder/turret/lib/clock"
	"github.com/overyonder/turret/lib/replay"
	"github.com/overyonder/turret/lib/sign"
	"github.com/overyonder/turret/lib/wire"
)

// GatePrincipal is the principal name the gate puts on its own
// outbound envelopes (forwarded invokes, error replies). The gate has
// no signing key; its envelopes carry a zero signature and clients
// treat them as local-trust diagnostics.
const GatePrincipal = "turret"

// gateNonceSize is the nonce length on gate-originated envelopes.
const gateNonceSize = 16

// dispatcher owns the authoritative routing state: the live action
// directory, the pending-request table, and the replay window. One
// mutex guards all of it; forward writes to peer sockets are issued
// after the state mutation, never under the lock.
type dispatcher struct {
	config Config
	store  *bunker.Store
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	directory *directory
	pending   *pendingTable
	window    *replay.Window
}

func newDispatcher(config Config, store *bunker.Store, clk clock.Clock, logger *slog.Logger) *dispatcher {
	return &dispatcher{
		config:    config,
		store:     store,
		clock:     clk,
		logger:    logger,
		directory: newDirectory(store),
		pending:   newPendingTable(),
		window:    replay.NewWindow(clk, config.MaxReplayEntries),
	}
}

// gateEnvelope builds an outbound envelope from the gate itself.
func (d *dispatcher) gateEnvelope(envelopeType uint16, body []byte) *wire.Envelope {
	nonce := make([]byte, gateNonceSize)
	rand.Read(nonce)
	return &wire.Envelope{
		Type:        envelopeType,
		Principal:   []byte(GatePrincipal),
		TimestampMS: uint64(d.clock.Now().UnixMilli()),
		Nonce:       nonce,
		Body:        body,
		Sig:         make([]byte, wire.SignatureSize),
	}
}

// sendError writes a gate error envelope on the connection. A nil
// requestID means the failure is not attributable to a request.
// Write failures are logged; the read loop notices the dead socket.
func (d *dispatcher) sendError(connection *conn, requestID []byte, code wire.Code, message string) {
	body := wire.EncodeErrorBody(&wire.ErrorBody{
		RequestID: requestID,
		Code:      code,
		Message:   []byte(message),
	})
	if err := connection.writeEnvelope(d.gateEnvelope(wire.TypeError, body)); err != nil {
		connection.logger.Debug("error reply not delivered", "code", code.String(), "error", err)
	}
}

// recoverRequestID extracts the request id from an envelope body when
// the body parses as its declared type. Used so that failures can be
// attributed to the request that caused them.
func recoverRequestID(envelope *wire.Envelope) []byte {
	switch envelope.Type {
	case wire.TypeInvoke:
		if body, err := wire.DecodeInvokeBody(envelope.Body); err == nil {
			return body.RequestID
		}
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

// handleFrame processes one inbound frame. The returned flag tells
// the read loop to close the connection.
func (d *dispatcher) handleFrame(connection *conn, payload []byte) (closeConn bool) {
	envelope, err := wire.DecodeEnvelope(payload)
	if err != nil {
		// No request id is recoverable from an envelope that did not
		// decode; drop and close.
		connection.logger.Info("closing connection on malformed envelope", "error", err)
		return true
	}

	ok, closeConn := d.authenticate(connection, envelope)
	if !ok {
		// authenticate replied with the failure already.
		return closeConn
	}

	switch connection.listener {
	case bunker.ClassAgent:
		if envelope.Type != wire.TypeInvoke {
			d.sendError(connection, recoverRequestID(envelope), wire.CodeBadRequest, "only invoke is accepted on the agent socket")
			return false
		}
		return d.handleInvoke(connection, envelope)
	case bunker.ClassRepeater:
		if !connection.isRegistered(d) {
			if envelope.Type != wire.TypeRegister {
				d.sendError(connection, recoverRequestID(envelope), wire.CodeBadRequest, "first message on the repeater socket must be register")
				return true
			}
			return d.handleRegister(connection, envelope)
		}
		if envelope.Type != wire.TypeResult && envelope.Type != wire.TypeError {
			d.sendError(connection, recoverRequestID(envelope), wire.CodeBadRequest, "only result or error is accepted after register")
			return false
		}
		return d.handleRepeaterReply(connection, envelope)
	}
	return true
}

// isRegistered reads the registered flag under the dispatcher mutex.
func (c *conn) isRegistered(d *dispatcher) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return c.registered
}

// authenticate runs signature, replay, pinning, and class admission
// checks. On failure it sends the error reply itself and reports
// whether the connection must also close. On first success the
// principal is pinned to the connection.
func (d *dispatcher) authenticate(connection *conn, envelope *wire.Envelope) (ok, closeConn bool) {
	principalID := string(envelope.Principal)
	requestID := recoverRequestID(envelope)

	d.mu.Lock()
	pinned := connection.principal
	d.mu.Unlock()

	if pinned != "" && pinned != principalID {
		d.sendError(connection, requestID, wire.CodeUnauthenticated, "principal does not match this connection")
		return false, true
	}

	principal, known := d.store.Principal(principalID)
	if !known {
		d.sendError(connection, requestID, wire.CodeUnauthenticated, "unknown principal")
		return false, false
	}

	if err := sign.VerifyEnvelope(envelope, principal.PublicKey); err != nil {
		d.sendError(connection, requestID, wire.CodeUnauthenticated, "signature verification failed")
		// A forged envelope on an already-authenticated connection
		// ends the session; before pinning the peer may retry.
		return false, pinned != ""
	}

	if err := d.window.Check(envelope.Principal, envelope.TimestampMS, envelope.Nonce); err != nil {
		switch {
		case errors.Is(err, replay.ErrWindowFull):
			d.sendError(connection, requestID, wire.CodeInternal, "replay window at capacity")
		default:
			d.sendError(connection, requestID, wire.CodeReplay, err.Error())
		}
		return false, false
	}

	if principal.Class != connection.listener {
		d.sendError(connection, requestID, wire.CodeBadRequest, "principal class does not match this socket")
		return false, true
	}

	if pinned == "" {
		d.mu.Lock()
		connection.principal = principalID
		if connection.listener == bunker.ClassAgent && connection.usedRequestIDs == nil {
			connection.usedRequestIDs = make(map[string]struct{})
		}
		d.mu.Unlock()
		connection.logger.Info("principal authenticated", "principal", principalID, "fingerprint", sign.Fingerprint(principal.PublicKey))
	}
	return true, false
}

// handleRegister applies a repeater's action registration. Any
// violation fails the whole register with one error reply and closes
// the connection; success sends no reply.
func (d *dispatcher) handleRegister(connection *conn, envelope *wire.Envelope) (closeConn bool) {
	body, err := wire.DecodeRegisterBody(envelope.Body)
	if err != nil {
		d.sendError(connection, nil, wire.CodeBadRequest, "malformed register body")
		return true
	}
	if string(body.RepeaterID) != connection.principal {
		d.sendError(connection, nil, wire.CodeBadRequest, "repeater id does not match authenticated principal")
		return true
	}

	d.mu.Lock()
	registerErr := d.directory.register(connection, connection.principal, body.Actions)
	if registerErr == nil {
		connection.registered = true
	}
	d.mu.Unlock()

	if registerErr != nil {
		connection.logger.Info("registration rejected", "repeater", connection.principal, "code", registerErr.code.String(), "reason", registerErr.message)
		d.sendError(connection, nil, registerErr.code, registerErr.message)
		return true
	}
	connection.logger.Info("repeater registered", "repeater", connection.principal, "actions", len(body.Actions))
	return false
}

// handleInvoke authorizes and forwards an agent invocation.
func (d *dispatcher) handleInvoke(connection *conn, envelope *wire.Envelope) (closeConn bool) {
	body, err := wire.DecodeInvokeBody(envelope.Body)
	if err != nil {
		d.sendError(connection, nil, wire.CodeBadRequest, "malformed invoke body")
		return true
	}
	requestID := string(body.RequestID)
	action := string(body.Action)

	d.mu.Lock()
	if _, used := connection.usedRequestIDs[requestID]; used {
		d.mu.Unlock()
		d.sendError(connection, body.RequestID, wire.CodeBadRequest, "request id already used on this connection")
		return false
	}
	connection.usedRequestIDs[requestID] = struct{}{}

	if _, exists := d.store.ActionRepeater(action); !exists {
		d.mu.Unlock()
		d.sendError(connection, body.RequestID, wire.CodeUnknownAction, "action is not in the bunker")
		return false
	}
	if !d.store.Allows(connection.principal, action) {
		d.mu.Unlock()
		d.sendError(connection, body.RequestID, wire.CodeDenied, "permission denied")
		return false
	}
	repeater, live := d.directory.liveRepeater(action)
	if !live {
		d.mu.Unlock()
		d.sendError(connection, body.RequestID, wire.CodeNoRepeater, "no live repeater for action")
		return false
	}
	if connection.pendingCount >= d.config.MaxPendingPerAgent {
		d.mu.Unlock()
		d.sendError(connection, body.RequestID, wire.CodeInternal, "too many pending requests on this connection")
		return false
	}

	deadline := d.clock.Now().Add(d.config.InvokeTimeout)
	d.pending.put(pendingKey{repeater.id, requestID}, &pendingRequest{
		agent:    connection,
		action:   action,
		deadline: deadline,
	})
	connection.pendingCount++
	d.mu.Unlock()

	// Forward the invoke body bytes verbatim under a gate envelope.
	// The write happens outside the dispatcher lock; if it fails the
	// repeater's read loop tears the connection down and the pending
	// record fails over to NO_REPEATER.
	if err := repeater.writeEnvelope(d.gateEnvelope(wire.TypeInvoke, envelope.Body)); err != nil {
		repeater.logger.Info("forward to repeater failed", "action", action, "error", err)
		repeater.close()
	}
	return false
}

// handleRepeaterReply correlates a result or error from a repeater
// back to the agent that asked.
func (d *dispatcher) handleRepeaterReply(connection *conn, envelope *wire.Envelope) (closeConn bool) {
	requestID := recoverRequestID(envelope)
	if requestID == nil {
		connection.logger.Info("closing repeater connection on malformed reply body")
		return true
	}

	d.mu.Lock()
	request, found := d.pending.take(pendingKey{connection.id, string(requestID)})
	if found {
		request.agent.pendingCount--
	}
	d.mu.Unlock()

	if !found {
		d.sendError(connection, requestID, wire.CodeBadRequest, "unknown request id")
		return false
	}

	if err := request.agent.writeEnvelope(d.gateEnvelope(envelope.Type, envelope.Body)); err != nil {
		request.agent.logger.Info("reply to agent failed", "error", err)
		request.agent.close()
	}
	return false
}

// connectionClosed releases everything rooted at a dead connection:
// live action bindings, pending requests, and (for repeater loss) the
// NO_REPEATER failure replies owed to waiting agents.
func (d *dispatcher) connectionClosed(connection *conn) {
	d.mu.Lock()
	var orphaned map[string]*pendingRequest
	switch connection.listener {
	case bunker.ClassRepeater:
		d.directory.unbind(connection)
		orphaned = d.pending.takeByRepeater(connection.id)
		for _, request := range orphaned {
			request.agent.pendingCount--
		}
	case bunker.ClassAgent:
		d.pending.dropByAgent(connection)
	}
	d.mu.Unlock()

	for requestID, request := range orphaned {
		d.sendError(request.agent, []byte(requestID), wire.CodeNoRepeater, "repeater disconnected")
	}
}

// sweepDeadlines fails every pending request past its deadline with
// an internal error to the agent. Late repeater replies then hit the
// unknown-request-id path.
func (d *dispatcher) sweepDeadlines(now time.Time) {
	d.mu.Lock()
	expired := d.pending.takeExpired(now)
	for _, request := range expired {
		request.agent.pendingCount--
	}
	d.mu.Unlock()

	for key, request := range expired {
		request.agent.logger.Info("invoke deadline expired", "action", request.action, "request_id", key.requestID)
		d.sendError(request.agent, []byte(key.requestID), wire.CodeInternal, "invoke deadline exceeded")
	}
}

// snapshot reports dispatcher state for the control socket.
func (d *dispatcher) snapshot() (liveActions []string, pendingCount int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.directory.liveActions(), d.pending.len()
}
