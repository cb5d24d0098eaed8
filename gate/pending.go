// Copyright 2026 The Turret Authors
// SPDX-License-Identifier: Apache-2.0

package gate

import "time"

// pendingKey identifies an in-flight invoke: the repeater connection
// it was forwarded to plus the request id, which is unique per agent
// connection and preserved verbatim on the forward.
type pendingKey struct {
	repeaterConnID uint64
	requestID      string
}

// pendingRequest is the record between invoke acceptance and the
// correlated repeater reply.
type pendingRequest struct {
	agent    *conn
	action   string
	deadline time.Time
}

// pendingTable indexes in-flight invokes. The dispatcher mutex guards
// all access.
type pendingTable struct {
	requests map[pendingKey]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{requests: make(map[pendingKey]*pendingRequest)}
}

func (t *pendingTable) put(key pendingKey, request *pendingRequest) {
	t.requests[key] = request
}

// take removes and returns the record for key.
func (t *pendingTable) take(key pendingKey) (*pendingRequest, bool) {
	request, ok := t.requests[key]
	if ok {
		delete(t.requests, key)
	}
	return request, ok
}

// takeByRepeater removes every record forwarded to the given repeater
// connection.
func (t *pendingTable) takeByRepeater(repeaterConnID uint64) map[string]*pendingRequest {
	taken := make(map[string]*pendingRequest)
	for key, request := range t.requests {
		if key.repeaterConnID == repeaterConnID {
			taken[key.requestID] = request
			delete(t.requests, key)
		}
	}
	return taken
}

// dropByAgent removes every record originating from the given agent
// connection. Late repeater replies for these request ids become
// unknown and are answered with a bad-request notice.
func (t *pendingTable) dropByAgent(agent *conn) {
	for key, request := range t.requests {
		if request.agent == agent {
			delete(t.requests, key)
		}
	}
}

// takeExpired removes and returns every record whose deadline is at
// or before now.
func (t *pendingTable) takeExpired(now time.Time) map[pendingKey]*pendingRequest {
	expired := make(map[pendingKey]*pendingRequest)
	for key, request := range t.requests {
		if !request.deadline.After(now) {
			expired[key] = request
			delete(t.requests, key)
		}
	}
	return expired
}

func (t *pendingTable) len() int {
	return len(t.requests)
}
