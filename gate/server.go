// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/overyonder/turret/lib/bunker"
	"github.com/overyonder/turret/lib/clock"
	"github.com/overyonder/turret/lib/wire"
)

// State is the daemon lifecycle phase.
type State int

const (
	// StateCold means no bunker material is resident in memory.
	StateCold State = iota

	// StateUnlocking covers the window between passphrase entry and a
	// fully validated bunker.
	StateUnlocking

	// StateEngaged means the listeners are accepting connections.
	StateEngaged

	// StateDisengaging means listeners are closed and in-flight work
	// is draining before key material is zeroized.
	StateDisengaging
)

func (s State) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateUnlocking:
		return "unlocking"
	case StateEngaged:
		return "engaged"
	case StateDisengaging:
		return "disengaging"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrNotEngaged is returned by Disengage when the server is not
// currently serving.
var ErrNotEngaged = errors.New("server is not engaged")

// ErrAlreadyEngaged is returned by Engage when the server is already
// serving.
var ErrAlreadyEngaged = errors.New("server is already engaged")

// sweepInterval is how often pending invoke deadlines are checked.
const sweepInterval = time.Second

// Server is the engaged daemon: two principal listeners, the control
// socket, and the dispatcher that routes between them. Engage starts
// serving; Disengage drains and zeroizes.
type Server struct {
	config     Config
	store      *bunker.Store
	clock      clock.Clock
	logger     *slog.Logger
	dispatcher *dispatcher

	mu          sync.Mutex
	state       State
	engagedAt   time.Time
	nextConnID  uint64
	connections map[uint64]*conn
	connCount   map[bunker.Class]int

	agentListener    net.Listener
	repeaterListener net.Listener
	control          *controlServer

	closing chan struct{}
	loops   sync.WaitGroup

	// disengaged is closed once Disengage completes. Serve callers
	// block on it.
	disengaged chan struct{}
}

// NewServer wires a server around an unlocked bunker store. The store
// is owned by the server from this point; Disengage closes it.
func NewServer(config Config, store *bunker.Store, clk clock.Clock, logger *slog.Logger) *Server {
	return &Server{
		config:      config,
		store:       store,
		clock:       clk,
		logger:      logger,
		dispatcher:  newDispatcher(config, store, clk, logger),
		state:       StateUnlocking,
		connections: make(map[uint64]*conn),
		connCount:   make(map[bunker.Class]int),
		closing:     make(chan struct{}),
		disengaged:  make(chan struct{}),
	}
}

// Engage opens the agent, repeater, and control sockets and starts
// accepting connections. A server engages at most once; after
// Disengage it stays cold.
func (s *Server) Engage() error {
	s.mu.Lock()
	if s.state != StateUnlocking {
		s.mu.Unlock()
		return ErrAlreadyEngaged
	}
	s.state = StateEngaged
	s.engagedAt = s.clock.Now()
	s.mu.Unlock()

	fail := func(err error) error {
		s.mu.Lock()
		s.state = StateUnlocking
		s.mu.Unlock()
		return err
	}

	agentListener, err := listenUnix(s.config.AgentSocketPath)
	if err != nil {
		return fail(fmt.Errorf("agent socket: %w", err))
	}
	repeaterListener, err := listenUnix(s.config.RepeaterSocketPath)
	if err != nil {
		agentListener.Close()
		return fail(fmt.Errorf("repeater socket: %w", err))
	}
	control, err := newControlServer(s)
	if err != nil {
		agentListener.Close()
		repeaterListener.Close()
		return fail(fmt.Errorf("control socket: %w", err))
	}

	s.mu.Lock()
	s.agentListener = agentListener
	s.repeaterListener = repeaterListener
	s.control = control
	s.mu.Unlock()

	s.loops.Add(3)
	go s.acceptLoop(agentListener, bunker.ClassAgent)
	go s.acceptLoop(repeaterListener, bunker.ClassRepeater)
	go s.sweepLoop()
	control.start()

	agents, repeaters, actions, secrets := s.store.Counts()
	s.logger.Info("engaged",
		"agent_socket", s.config.AgentSocketPath,
		"repeater_socket", s.config.RepeaterSocketPath,
		"agents", agents,
		"repeaters", repeaters,
		"actions", actions,
		"secrets", secrets)
	return nil
}

// Wait blocks until Disengage has completed.
func (s *Server) Wait() {
	<-s.disengaged
}

// Disengage stops accepting, fails every pending invoke to its agent
// with NO_REPEATER, closes every connection, waits for the read loops
// to drain, and zeroizes the bunker store. The server ends cold and
// cannot be re-engaged.
func (s *Server) Disengage() error {
	s.mu.Lock()
	if s.state != StateEngaged {
		s.mu.Unlock()
		return ErrNotEngaged
	}
	s.state = StateDisengaging
	agentListener := s.agentListener
	repeaterListener := s.repeaterListener
	control := s.control
	open := make([]*conn, 0, len(s.connections))
	for _, connection := range s.connections {
		open = append(open, connection)
	}
	s.mu.Unlock()

	s.logger.Info("disengaging", "open_connections", len(open))

	// Fail in-flight invokes while the agent sockets are still open.
	d := s.dispatcher
	d.mu.Lock()
	cancelled := d.pending.requests
	d.pending.requests = make(map[pendingKey]*pendingRequest)
	for _, request := range cancelled {
		request.agent.pendingCount--
	}
	d.mu.Unlock()
	for key, request := range cancelled {
		d.sendError(request.agent, []byte(key.requestID), wire.CodeNoRepeater, "gate disengaging")
	}

	close(s.closing)
	agentListener.Close()
	repeaterListener.Close()
	for _, connection := range open {
		connection.close()
	}
	s.loops.Wait()
	control.stop()

	s.store.Close()
	os.Remove(s.config.AgentSocketPath)
	os.Remove(s.config.RepeaterSocketPath)

	s.mu.Lock()
	s.state = StateCold
	s.mu.Unlock()

	s.logger.Info("disengaged")
	close(s.disengaged)
	return nil
}

// Status is the snapshot served on the control socket.
type Status struct {
	State               string   `cbor:"state"`
	UptimeSeconds       int64    `cbor:"uptime_seconds"`
	AgentConnections    int      `cbor:"agent_connections"`
	RepeaterConnections int      `cbor:"repeater_connections"`
	LiveActions         []string `cbor:"live_actions"`
	PendingInvokes      int      `cbor:"pending_invokes"`
	BunkerActions       int      `cbor:"bunker_actions"`
}

// Status reports the current lifecycle state and routing load.
func (s *Server) Status() Status {
	liveActions, pendingCount := s.dispatcher.snapshot()
	_, _, actions, _ := s.store.Counts()

	s.mu.Lock()
	defer s.mu.Unlock()
	var uptime int64
	if s.state == StateEngaged {
		uptime = int64(s.clock.Now().Sub(s.engagedAt) / time.Second)
	}
	return Status{
		State:               s.state.String(),
		UptimeSeconds:       uptime,
		AgentConnections:    s.connCount[bunker.ClassAgent],
		RepeaterConnections: s.connCount[bunker.ClassRepeater],
		LiveActions:         liveActions,
		PendingInvokes:      pendingCount,
		BunkerActions:       actions,
	}
}

// listenUnix binds a unix socket, replacing any stale socket file left
// by a previous run.
func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restricting socket %s: %w", path, err)
	}
	return listener, nil
}

// acceptLoop admits connections on one listener until it closes.
// Connections beyond the per-listener cap are accepted and
// immediately closed so the client sees EOF rather than a hang.
func (s *Server) acceptLoop(listener net.Listener, class bunker.Class) {
	defer s.loops.Done()
	for {
		netConn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "listener", class.String(), "error", err)
			continue
		}

		s.mu.Lock()
		if s.state != StateEngaged || s.connCount[class] >= s.config.MaxConnections {
			s.mu.Unlock()
			s.logger.Warn("connection refused at capacity", "listener", class.String())
			netConn.Close()
			continue
		}
		s.nextConnID++
		connection := newConn(s.nextConnID, netConn, class, s.logger)
		s.connections[connection.id] = connection
		s.connCount[class]++
		s.mu.Unlock()

		s.loops.Add(1)
		go s.serveConn(connection)
	}
}

// serveConn is the per-connection read loop: frames in, dispatcher
// verdicts out. Any read error or close verdict ends the connection.
func (s *Server) serveConn(connection *conn) {
	defer s.loops.Done()
	defer s.releaseConn(connection)

	connection.logger.Debug("connection accepted")
	for {
		payload, err := wire.ReadFrame(connection.netConn)
		if err != nil {
			connection.logger.Debug("connection read ended", "error", err)
			return
		}
		if s.dispatcher.handleFrame(connection, payload) {
			return
		}
	}
}

// releaseConn tears down one connection and its dispatcher state.
func (s *Server) releaseConn(connection *conn) {
	connection.close()

	s.mu.Lock()
	delete(s.connections, connection.id)
	s.connCount[connection.listener]--
	s.mu.Unlock()

	s.dispatcher.connectionClosed(connection)
	connection.logger.Debug("connection released")
}

// sweepLoop fails pending invokes whose deadline has passed.
func (s *Server) sweepLoop() {
	defer s.loops.Done()
	ticker := s.clock.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// Read the clock at sweep time; the tick value lags when
			// delivery is delayed.
			s.dispatcher.sweepDeadlines(s.clock.Now())
		case <-s.closing:
			return
		}
	}
}
