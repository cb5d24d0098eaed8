// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/overyonder/turret/lib/bunker"
	"github.com/overyonder/turret/lib/clock"
	"github.com/overyonder/turret/lib/sign"
	"github.com/overyonder/turret/lib/testutil"
	"github.com/overyonder/turret/lib/wire"
)

const testTimeout = 5 * time.Second

// testSecretValue is planted in every test bunker so confidentiality
// checks can scan outbound frames for it.
const testSecretValue = "hunter2-api-token"

// newTestKeys generates keypairs for the standard test principals.
func newTestKeys(t *testing.T) (map[string]ed25519.PrivateKey, map[string]ed25519.PublicKey) {
	t.Helper()
	private := make(map[string]ed25519.PrivateKey)
	public := make(map[string]ed25519.PublicKey)
	for _, id := range []string{"corvus", "rep-1", "rep-2"} {
		publicKey, privateKey, err := ed25519.GenerateKey(nil)
		if err != nil {
			t.Fatalf("generating key for %s: %v", id, err)
		}
		private[id] = privateKey
		public[id] = publicKey
	}
	return private, public
}

// newTestStore builds the standard test bunker: agent corvus may
// invoke echo, actions echo and admin both route to rep-1, rep-2 is
// enrolled but owns nothing.
func newTestStore(t *testing.T) (*bunker.Store, map[string]ed25519.PrivateKey) {
	t.Helper()
	private, public := newTestKeys(t)
	entry := func(id string) bunker.PrincipalEntry {
		return bunker.PrincipalEntry{Ed25519PubkeyB64: base64.StdEncoding.EncodeToString(public[id])}
	}
	document := &bunker.Document{
		Version:   bunker.DocumentVersion,
		Operators: bunker.OperatorsSection{Recipients: []string{"age1qtestoperatorrecipient"}},
		Agents:    map[string]bunker.PrincipalEntry{"corvus": entry("corvus")},
		Repeaters: map[string]bunker.PrincipalEntry{"rep-1": entry("rep-1"), "rep-2": entry("rep-2")},
		Actions:   map[string]string{"echo": "rep-1", "admin": "rep-1"},
		Permissions: map[string]bunker.PermissionEntry{
			"corvus": {Allow: []string{"echo"}},
		},
		Secrets: map[string]string{"API_TOKEN": testSecretValue},
	}
	store, err := bunker.NewStore(document)
	if err != nil {
		t.Fatalf("building store: %v", err)
	}
	return store, private
}

// testGate is an engaged server plus everything needed to speak to it.
type testGate struct {
	t      *testing.T
	clk    *clock.FakeClock
	config Config
	server *Server
	keys   map[string]ed25519.PrivateKey
}

func newTestGate(t *testing.T, adjust ...func(*Config)) *testGate {
	t.Helper()
	store, keys := newTestStore(t)
	config := DefaultConfig(testutil.SocketDir(t))
	for _, fn := range adjust {
		fn(&config)
	}
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	server := NewServer(config, store, clk, logger)
	if err := server.Engage(); err != nil {
		t.Fatalf("engaging: %v", err)
	}
	t.Cleanup(func() { server.Disengage() })

	return &testGate{t: t, clk: clk, config: config, server: server, keys: keys}
}

// waitLive blocks until an action is bound in the live directory.
// Register success sends no reply, so tests synchronize through the
// status snapshot instead.
func (g *testGate) waitLive(action string) {
	g.t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if slices.Contains(g.server.Status().LiveActions, action) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	g.t.Fatalf("action %q never went live", action)
}

// waitPending blocks until the pending-invoke count reaches want.
func (g *testGate) waitPending(want int) {
	g.t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if g.server.Status().PendingInvokes == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	g.t.Fatalf("pending count never reached %d (now %d)", want, g.server.Status().PendingInvokes)
}

// testClient is a raw protocol client. Tests drive it frame by frame
// so they can exercise exact failure paths.
type testClient struct {
	t         *testing.T
	gate      *testGate
	netConn   net.Conn
	principal string
	key       ed25519.PrivateKey
}

func (g *testGate) dial(socketPath, principal string, key ed25519.PrivateKey) *testClient {
	g.t.Helper()
	netConn, err := net.Dial("unix", socketPath)
	if err != nil {
		g.t.Fatalf("dialing %s: %v", socketPath, err)
	}
	g.t.Cleanup(func() { netConn.Close() })
	return &testClient{t: g.t, gate: g, netConn: netConn, principal: principal, key: key}
}

func (g *testGate) dialAgent(principal string) *testClient {
	return g.dial(g.config.AgentSocketPath, principal, g.keys[principal])
}

func (g *testGate) dialRepeater(principal string) *testClient {
	return g.dial(g.config.RepeaterSocketPath, principal, g.keys[principal])
}

// envelope builds a signed envelope from this client's principal at
// the gate's current fake time.
func (c *testClient) envelope(envelopeType uint16, body []byte) *wire.Envelope {
	nonce := make([]byte, 16)
	rand.Read(nonce)
	envelope := &wire.Envelope{
		Type:        envelopeType,
		Principal:   []byte(c.principal),
		TimestampMS: uint64(c.gate.clk.Now().UnixMilli()),
		Nonce:       nonce,
		Body:        body,
	}
	sign.Envelope(envelope, c.key)
	return envelope
}

func (c *testClient) send(envelope *wire.Envelope) {
	c.t.Helper()
	payload, err := wire.EncodeEnvelope(envelope)
	if err != nil {
		c.t.Fatalf("encoding envelope: %v", err)
	}
	c.sendPayload(payload)
}

func (c *testClient) sendPayload(payload []byte) {
	c.t.Helper()
	if err := wire.WriteFrame(c.netConn, payload); err != nil {
		c.t.Fatalf("writing frame: %v", err)
	}
}

func (c *testClient) invoke(requestID, action, params string) {
	c.t.Helper()
	body := wire.EncodeInvokeBody(&wire.InvokeBody{
		RequestID: []byte(requestID),
		Action:    []byte(action),
		Params:    []byte(params),
	})
	c.send(c.envelope(wire.TypeInvoke, body))
}

func (c *testClient) register(repeaterID string, actions ...string) {
	c.t.Helper()
	rawActions := make([][]byte, len(actions))
	for index, action := range actions {
		rawActions[index] = []byte(action)
	}
	body := wire.EncodeRegisterBody(&wire.RegisterBody{
		RepeaterID: []byte(repeaterID),
		Actions:    rawActions,
	})
	c.send(c.envelope(wire.TypeRegister, body))
}

func (c *testClient) result(requestID, result string) {
	c.t.Helper()
	body := wire.EncodeResultBody(&wire.ResultBody{
		RequestID: []byte(requestID),
		Result:    []byte(result),
	})
	c.send(c.envelope(wire.TypeResult, body))
}

func (c *testClient) readFrame() []byte {
	c.t.Helper()
	c.netConn.SetReadDeadline(time.Now().Add(testTimeout))
	payload, err := wire.ReadFrame(c.netConn)
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	return payload
}

func (c *testClient) readEnvelope() *wire.Envelope {
	c.t.Helper()
	envelope, err := wire.DecodeEnvelope(c.readFrame())
	if err != nil {
		c.t.Fatalf("decoding envelope: %v", err)
	}
	return envelope
}

func (c *testClient) expectResult(requestID string) *wire.ResultBody {
	c.t.Helper()
	envelope := c.readEnvelope()
	if envelope.Type != wire.TypeResult {
		c.t.Fatalf("envelope type = %d, want result", envelope.Type)
	}
	body, err := wire.DecodeResultBody(envelope.Body)
	if err != nil {
		c.t.Fatalf("decoding result body: %v", err)
	}
	if string(body.RequestID) != requestID {
		c.t.Fatalf("result request id = %q, want %q", body.RequestID, requestID)
	}
	return body
}

func (c *testClient) expectError(requestID string, code wire.Code) *wire.ErrorBody {
	c.t.Helper()
	envelope := c.readEnvelope()
	if envelope.Type != wire.TypeError {
		c.t.Fatalf("envelope type = %d, want error", envelope.Type)
	}
	body, err := wire.DecodeErrorBody(envelope.Body)
	if err != nil {
		c.t.Fatalf("decoding error body: %v", err)
	}
	if string(body.RequestID) != requestID {
		c.t.Fatalf("error request id = %q, want %q", body.RequestID, requestID)
	}
	if body.Code != code {
		c.t.Fatalf("error code = %s, want %s (message %q)", body.Code, code, body.Message)
	}
	return body
}

// expectNoFrame asserts that nothing arrives for the given window.
func (c *testClient) expectNoFrame(wait time.Duration) {
	c.t.Helper()
	c.netConn.SetReadDeadline(time.Now().Add(wait))
	payload, err := wire.ReadFrame(c.netConn)
	if err == nil {
		c.t.Fatalf("unexpected frame (%d bytes)", len(payload))
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		c.t.Fatalf("connection ended while expecting silence: %v", err)
	}
}

// expectClosed asserts that the server has closed the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	c.netConn.SetReadDeadline(time.Now().Add(testTimeout))
	_, err := wire.ReadFrame(c.netConn)
	if err == nil {
		c.t.Fatalf("expected connection close, got a frame")
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		c.t.Fatalf("connection still open")
	}
}

func TestInvokeRoundTrip(t *testing.T) {
	g := newTestGate(t)

	repeater := g.dialRepeater("rep-1")
	repeater.register("rep-1", "echo")
	g.waitLive("echo")

	agent := g.dialAgent("corvus")
	agent.invoke("r1", "echo", "hi")

	forwarded := repeater.readEnvelope()
	if forwarded.Type != wire.TypeInvoke {
		t.Fatalf("forwarded type = %d, want invoke", forwarded.Type)
	}
	if string(forwarded.Principal) != GatePrincipal {
		t.Fatalf("forwarded principal = %q, want %q", forwarded.Principal, GatePrincipal)
	}
	for _, b := range forwarded.Sig {
		if b != 0 {
			t.Fatalf("forwarded envelope carries a non-zero signature")
		}
	}
	invoke, err := wire.DecodeInvokeBody(forwarded.Body)
	if err != nil {
		t.Fatalf("decoding forwarded invoke: %v", err)
	}
	if string(invoke.RequestID) != "r1" || string(invoke.Action) != "echo" || string(invoke.Params) != "hi" {
		t.Fatalf("forwarded invoke = (%q, %q, %q)", invoke.RequestID, invoke.Action, invoke.Params)
	}

	repeater.result("r1", "hi")
	body := agent.expectResult("r1")
	if string(body.Result) != "hi" {
		t.Fatalf("result = %q, want %q", body.Result, "hi")
	}
	g.waitPending(0)
}

func TestInvokeDenied(t *testing.T) {
	g := newTestGate(t)

	repeater := g.dialRepeater("rep-1")
	repeater.register("rep-1", "echo")
	g.waitLive("echo")

	agent := g.dialAgent("corvus")
	agent.invoke("r2", "admin", "format-disk")
	agent.expectError("r2", wire.CodeDenied)

	repeater.expectNoFrame(100 * time.Millisecond)
}

func TestInvokeNoRepeater(t *testing.T) {
	g := newTestGate(t)

	agent := g.dialAgent("corvus")
	agent.invoke("r3", "echo", "hi")
	agent.expectError("r3", wire.CodeNoRepeater)
}

func TestReplayedInvokeRejected(t *testing.T) {
	g := newTestGate(t)

	repeater := g.dialRepeater("rep-1")
	repeater.register("rep-1", "echo")
	g.waitLive("echo")

	agent := g.dialAgent("corvus")
	body := wire.EncodeInvokeBody(&wire.InvokeBody{
		RequestID: []byte("r4"),
		Action:    []byte("echo"),
		Params:    []byte("hi"),
	})
	payload, err := wire.EncodeEnvelope(agent.envelope(wire.TypeInvoke, body))
	if err != nil {
		t.Fatalf("encoding envelope: %v", err)
	}

	agent.sendPayload(payload)
	forwarded := repeater.readEnvelope()
	if forwarded.Type != wire.TypeInvoke {
		t.Fatalf("forwarded type = %d, want invoke", forwarded.Type)
	}

	agent.sendPayload(payload)
	agent.expectError("r4", wire.CodeReplay)
	repeater.expectNoFrame(100 * time.Millisecond)
}

func TestRegisterOwnershipDenied(t *testing.T) {
	g := newTestGate(t)

	intruder := g.dialRepeater("rep-2")
	intruder.register("rep-2", "echo")
	intruder.expectError("", wire.CodeDenied)
	intruder.expectClosed()

	if live := g.server.Status().LiveActions; len(live) != 0 {
		t.Fatalf("live actions = %v, want none", live)
	}

	// The rightful owner can still bind.
	repeater := g.dialRepeater("rep-1")
	repeater.register("rep-1", "echo")
	g.waitLive("echo")
}

func TestRepeaterDisconnectMidFlight(t *testing.T) {
	g := newTestGate(t)

	repeater := g.dialRepeater("rep-1")
	repeater.register("rep-1", "echo")
	g.waitLive("echo")

	agent := g.dialAgent("corvus")
	agent.invoke("r6", "echo", "hi")

	forwarded := repeater.readEnvelope()
	if forwarded.Type != wire.TypeInvoke {
		t.Fatalf("forwarded type = %d, want invoke", forwarded.Type)
	}
	repeater.netConn.Close()

	agent.expectError("r6", wire.CodeNoRepeater)
	g.waitPending(0)
}

func TestRepliesCorrelateOutOfOrder(t *testing.T) {
	g := newTestGate(t)

	repeater := g.dialRepeater("rep-1")
	repeater.register("rep-1", "echo")
	g.waitLive("echo")

	agent := g.dialAgent("corvus")
	agent.invoke("r1", "echo", "first")
	agent.invoke("r2", "echo", "second")

	first := repeater.readEnvelope()
	second := repeater.readEnvelope()
	firstInvoke, err := wire.DecodeInvokeBody(first.Body)
	if err != nil {
		t.Fatalf("decoding first forward: %v", err)
	}
	secondInvoke, err := wire.DecodeInvokeBody(second.Body)
	if err != nil {
		t.Fatalf("decoding second forward: %v", err)
	}
	if string(firstInvoke.RequestID) != "r1" || string(secondInvoke.RequestID) != "r2" {
		t.Fatalf("forward order = %q, %q; want r1, r2", firstInvoke.RequestID, secondInvoke.RequestID)
	}

	// Replies in reverse order; the agent sees them in reply order
	// with the matching request ids.
	repeater.result("r2", "second")
	agent.expectResult("r2")
	repeater.result("r1", "first")
	agent.expectResult("r1")
	g.waitPending(0)
}

func TestDisengageClosesEverything(t *testing.T) {
	g := newTestGate(t)

	repeater := g.dialRepeater("rep-1")
	repeater.register("rep-1", "echo")
	g.waitLive("echo")
	agent := g.dialAgent("corvus")
	agent.invoke("warm", "echo", "hi")
	repeater.readEnvelope()

	if err := g.server.Disengage(); err != nil {
		t.Fatalf("disengaging: %v", err)
	}

	agent.expectError("warm", wire.CodeNoRepeater)
	agent.expectClosed()
	repeater.expectClosed()

	if state := g.server.Status().State; state != "cold" {
		t.Fatalf("state after disengage = %q, want cold", state)
	}
	if err := g.server.Disengage(); !errors.Is(err, ErrNotEngaged) {
		t.Fatalf("second disengage error = %v, want ErrNotEngaged", err)
	}
	if _, err := net.Dial("unix", g.config.AgentSocketPath); err == nil {
		t.Fatalf("agent socket still accepts after disengage")
	}
}

func TestControlStatusAndDisengage(t *testing.T) {
	g := newTestGate(t)

	repeater := g.dialRepeater("rep-1")
	repeater.register("rep-1", "echo")
	g.waitLive("echo")

	status, err := ControlStatus(g.config.ControlSocketPath)
	if err != nil {
		t.Fatalf("control status: %v", err)
	}
	if status.State != "engaged" {
		t.Fatalf("state = %q, want engaged", status.State)
	}
	if !slices.Contains(status.LiveActions, "echo") {
		t.Fatalf("live actions = %v, want echo", status.LiveActions)
	}
	if status.RepeaterConnections != 1 {
		t.Fatalf("repeater connections = %d, want 1", status.RepeaterConnections)
	}

	if err := ControlDisengage(g.config.ControlSocketPath); err != nil {
		t.Fatalf("control disengage: %v", err)
	}
	done := make(chan struct{})
	go func() {
		g.server.Wait()
		close(done)
	}()
	testutil.RequireClosed(t, done, testTimeout, "waiting for disengage")
	repeater.expectClosed()
}

func TestConnectionCapRefusesExtras(t *testing.T) {
	g := newTestGate(t, func(config *Config) { config.MaxConnections = 1 })

	first := g.dialAgent("corvus")
	second := g.dialAgent("corvus")
	second.expectClosed()

	// The admitted connection still works.
	first.invoke("r1", "echo", "hi")
	first.expectError("r1", wire.CodeNoRepeater)
}
