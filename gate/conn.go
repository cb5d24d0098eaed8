// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import (
	"log/slog"
	"net"
	"sync"

	"github.com/overyonder/turret/lib/bunker"
	"github.com/overyonder/turret/lib/wire"
)

// conn is one accepted socket connection. The read loop in server.go
// feeds its frames to the dispatcher; writes from any goroutine are
// serialized through writeMu.
//
// The identity and routing fields (principal, registered,
// usedRequestIDs, pendingCount) belong to the dispatcher and are
// guarded by the dispatcher mutex, not by the conn itself.
type conn struct {
	id       uint64
	netConn  net.Conn
	listener bunker.Class
	logger   *slog.Logger

	writeMu sync.Mutex

	// principal is pinned by the first authenticated envelope. Empty
	// until then.
	principal string

	// registered is set once a repeater connection's register has
	// been accepted.
	registered bool

	// usedRequestIDs tracks every request id an agent connection has
	// ever sent. Reuse within a connection is rejected even after the
	// original request completed.
	usedRequestIDs map[string]struct{}

	// pendingCount is the number of in-flight invokes originating
	// from this agent connection.
	pendingCount int
}

func newConn(id uint64, netConn net.Conn, listener bunker.Class, logger *slog.Logger) *conn {
	return &conn{
		id:       id,
		netConn:  netConn,
		listener: listener,
		logger:   logger.With("conn", id, "listener", listener.String()),
	}
}

// writeFrame sends one frame on the connection. Concurrent callers
// are serialized; a write error is returned to the caller, who
// decides whether to tear the connection down.
func (c *conn) writeFrame(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteFrame(c.netConn, payload)
}

// writeEnvelope encodes and sends an envelope.
func (c *conn) writeEnvelope(envelope *wire.Envelope) error {
	payload, err := wire.EncodeEnvelope(envelope)
	if err != nil {
		return err
	}
	return c.writeFrame(payload)
}

// close shuts the underlying socket. Safe to call more than once.
func (c *conn) close() {
	c.netConn.Close()
}
