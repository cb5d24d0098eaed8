// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/overyonder/turret/lib/codec"
)

// Control socket operations.
const (
	ControlOpStatus    = "status"
	ControlOpDisengage = "disengage"
)

// ControlRequest is one CBOR request on the control socket.
type ControlRequest struct {
	Op string `cbor:"op"`
}

// ControlResponse is the reply to a control request. Exactly one of
// Status or Error is meaningful when OK is true or false respectively.
type ControlResponse struct {
	OK     bool    `cbor:"ok"`
	Error  string  `cbor:"error,omitempty"`
	Status *Status `cbor:"status,omitempty"`
}

// controlDeadline bounds how long one control exchange may take.
const controlDeadline = 5 * time.Second

// controlServer answers status and disengage requests from the CLI.
// One request per connection: decode, act, reply, close.
type controlServer struct {
	server   *Server
	listener net.Listener
	handlers sync.WaitGroup
}

func newControlServer(server *Server) (*controlServer, error) {
	listener, err := listenUnix(server.config.ControlSocketPath)
	if err != nil {
		return nil, err
	}
	return &controlServer{server: server, listener: listener}, nil
}

func (cs *controlServer) start() {
	cs.handlers.Add(1)
	go cs.acceptLoop()
}

// stop closes the listener and waits for in-flight exchanges.
func (cs *controlServer) stop() {
	cs.listener.Close()
	cs.handlers.Wait()
	os.Remove(cs.server.config.ControlSocketPath)
}

func (cs *controlServer) acceptLoop() {
	defer cs.handlers.Done()
	for {
		netConn, err := cs.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			cs.server.logger.Warn("control accept failed", "error", err)
			continue
		}
		cs.handlers.Add(1)
		go cs.handle(netConn)
	}
}

func (cs *controlServer) handle(netConn net.Conn) {
	defer cs.handlers.Done()
	defer netConn.Close()
	netConn.SetDeadline(time.Now().Add(controlDeadline))

	var request ControlRequest
	if err := codec.NewDecoder(netConn).Decode(&request); err != nil {
		cs.server.logger.Warn("control request not decoded", "error", err)
		return
	}

	response := cs.dispatch(request)
	if err := codec.NewEncoder(netConn).Encode(response); err != nil {
		cs.server.logger.Warn("control reply not delivered", "op", request.Op, "error", err)
	}
}

func (cs *controlServer) dispatch(request ControlRequest) ControlResponse {
	switch request.Op {
	case ControlOpStatus:
		status := cs.server.Status()
		return ControlResponse{OK: true, Status: &status}
	case ControlOpDisengage:
		cs.server.logger.Info("disengage requested on control socket")
		// Reply before tearing down; the teardown closes this very
		// listener, so it must run off the handler goroutine.
		go cs.server.Disengage()
		return ControlResponse{OK: true}
	default:
		return ControlResponse{OK: false, Error: fmt.Sprintf("unknown control op %q", request.Op)}
	}
}

// ControlStatus performs a status request against a running daemon's
// control socket.
func ControlStatus(socketPath string) (*Status, error) {
	response, err := controlExchange(socketPath, ControlRequest{Op: ControlOpStatus})
	if err != nil {
		return nil, err
	}
	if !response.OK {
		return nil, fmt.Errorf("status refused: %s", response.Error)
	}
	if response.Status == nil {
		return nil, fmt.Errorf("status reply carried no status")
	}
	return response.Status, nil
}

// ControlDisengage asks a running daemon to disengage.
func ControlDisengage(socketPath string) error {
	response, err := controlExchange(socketPath, ControlRequest{Op: ControlOpDisengage})
	if err != nil {
		return err
	}
	if !response.OK {
		return fmt.Errorf("disengage refused: %s", response.Error)
	}
	return nil
}

func controlExchange(socketPath string, request ControlRequest) (*ControlResponse, error) {
	netConn, err := net.DialTimeout("unix", socketPath, controlDeadline)
	if err != nil {
		return nil, fmt.Errorf("dialing control socket: %w", err)
	}
	defer netConn.Close()
	netConn.SetDeadline(time.Now().Add(controlDeadline))

	if err := codec.NewEncoder(netConn).Encode(request); err != nil {
		return nil, fmt.Errorf("sending control request: %w", err)
	}
	var response ControlResponse
	if err := codec.NewDecoder(netConn).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading control reply: %w", err)
	}
	return &response, nil
}
