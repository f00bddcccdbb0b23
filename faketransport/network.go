// Package faketransport is an in-memory transport.Transport used by
// tests and cmd/polisdemo — never a real network. Grounded on
// QuangTung97-libpaxos/paxos/fake's fake-implementation style (a plain
// struct satisfying the real interface, mutex-guarded, kept intentionally
// simple) and the transport-abstraction idea sketched in
// senutpal-quorum/internal/transport.
package faketransport

import (
	"context"
	"sync"

	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/transport"
	"github.com/polis-dev/polis/wire"
)

// Handler is the server side of one exchange — exactly citizen.Citizen's
// Request method, kept as a narrow interface here so faketransport never
// needs to import the citizen package.
type Handler interface {
	Request(now int64, req wire.Request) wire.Response
}

// Network is an in-memory switchboard: Send delivers synchronously to
// whatever Handler is Registered for the destination id, or reports
// unreachable (nil, nil) if nothing is registered there or the link is
// currently Dropped/Partitioned.
type Network struct {
	now func() int64

	mu        sync.Mutex
	handlers  map[government.CitizenID]Handler
	dropTo    map[government.CitizenID]bool
	partition map[government.CitizenID]map[government.CitizenID]bool
}

var _ transport.Transport = (*Network)(nil)

// New returns an empty Network. now supplies the timestamp a delivered
// request is stamped with, letting a deterministic test drive the clock
// itself rather than the network reading a wall clock.
func New(now func() int64) *Network {
	return &Network{
		now:       now,
		handlers:  map[government.CitizenID]Handler{},
		dropTo:    map[government.CitizenID]bool{},
		partition: map[government.CitizenID]map[government.CitizenID]bool{},
	}
}

// Register installs h as the destination for id, replacing any prior
// registration.
func (n *Network) Register(id government.CitizenID, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[id] = h
}

// Drop, when set, makes every message addressed to id report unreachable
// regardless of sender — used to isolate a leader (spec.md §8 S5).
func (n *Network) Drop(id government.CitizenID, drop bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if drop {
		n.dropTo[id] = true
	} else {
		delete(n.dropTo, id)
	}
}

// Partition, when set, drops messages specifically from -> to (and does
// not affect the reverse direction) — used to model asymmetric link
// failure.
func (n *Network) Partition(from, to government.CitizenID, cut bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cut {
		peers, ok := n.partition[from]
		if !ok {
			peers = map[government.CitizenID]bool{}
			n.partition[from] = peers
		}
		peers[to] = true
		return
	}
	if peers, ok := n.partition[from]; ok {
		delete(peers, to)
	}
}

// Send implements transport.Transport: it looks up the destination's
// Handler and calls Request synchronously, translating "nothing there"
// or "blocked" into the (nil, nil) unreachable case spec.md §6 defines.
func (n *Network) Send(ctx context.Context, to government.CitizenID, req wire.Request) (*wire.Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	from := req.Sync.From

	n.mu.Lock()
	h, ok := n.handlers[to]
	blocked := n.dropTo[to] || n.partition[from][to]
	n.mu.Unlock()

	if !ok || blocked {
		return nil, nil
	}

	resp := h.Request(n.now(), req)
	return &resp, nil
}
