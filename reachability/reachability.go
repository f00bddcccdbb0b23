// Package reachability tracks, per peer, whether a citizen believes it
// can still reach that peer, and computes the cluster-wide truncation
// minimum that gates ledger trailer advancement.
//
// This implements the second of the two ping/minimum propagation
// variants spec.md §9 leaves open (the index-by-peer `_minimums`/
// `_committed` variant), per spec.md's own recommendation that it is the
// more complete of the two.
package reachability

import (
	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/promise"
)

// PeerPing is what a citizen knows about one peer as of its last
// response.
type PeerPing struct {
	Committed  promise.Promise
	Naturalized bool
	When       int64
	Reachable  bool
}

// Minimum is the truncation promise a citizen advertises, the
// government version that produced it, and the floor it can reduce to.
type Minimum struct {
	Propagated promise.Promise
	Version    promise.Promise
	Reduced    promise.Promise
}

// Tracker owns the per-peer ping table and disappearance clock for one
// citizen, and computes the minimum triple it should advertise.
type Tracker struct {
	timeout     int64
	peers       map[government.CitizenID]PeerPing
	disappeared map[government.CitizenID]int64
	reportedMin map[government.CitizenID]Minimum // constituents' reported `reduced`, keyed by peer
}

// New returns a tracker with no peers yet known.
func New(timeout int64) *Tracker {
	return &Tracker{
		timeout:     timeout,
		peers:       map[government.CitizenID]PeerPing{},
		disappeared: map[government.CitizenID]int64{},
		reportedMin: map[government.CitizenID]Minimum{},
	}
}

// Reset keeps the ping records of the peers in keep and drops every other
// peer's; disappearance clocks and constituent reports are cleared for all
// peers — used on government enactment, which recomputes constituency
// (spec.md §4.8).
func (t *Tracker) Reset(keep []government.CitizenID) {
	newPeers := map[government.CitizenID]PeerPing{}
	newDisappeared := map[government.CitizenID]int64{}
	newReported := map[government.CitizenID]Minimum{}
	for _, id := range keep {
		if p, ok := t.peers[id]; ok {
			newPeers[id] = p
		}
	}
	t.peers = newPeers
	t.disappeared = newDisappeared
	t.reportedMin = newReported
}

// DropDisappearance clears the disappearance clock for id — used when a
// member becomes newly present in majority/minority after a Paxos round
// that may have succeeded despite stale disappearance tracking.
func (t *Tracker) DropDisappearance(id government.CitizenID) {
	delete(t.disappeared, id)
}

// Success records a reachable response from peer at `now` carrying its
// committed promise, clearing any disappearance clock.
func (t *Tracker) Success(peer government.CitizenID, now int64, committed promise.Promise, naturalized bool) {
	t.peers[peer] = PeerPing{Committed: committed, Naturalized: naturalized, When: now, Reachable: true}
	delete(t.disappeared, peer)
}

// Failure records that peer failed to respond at `now`. It returns true
// the first time this escalates the peer to Unreachable (elapsed >=
// timeout since the first failure), which is the shaper's cue to queue
// an exile.
func (t *Tracker) Failure(peer government.CitizenID, now int64) (becameUnreachable bool) {
	first, ok := t.disappeared[peer]
	if !ok {
		t.disappeared[peer] = now
		first = now
	}

	wasReachable := t.IsReachable(peer)
	isUnreachableNow := now-first >= t.timeout

	p, seen := t.peers[peer]
	if !seen {
		p = PeerPing{When: now}
	}
	p.When = now
	p.Reachable = !isUnreachableNow
	t.peers[peer] = p

	return wasReachable && isUnreachableNow
}

// IsReachable reports the last-known reachability of peer. Peers never
// seen are assumed reachable until proven otherwise.
func (t *Tracker) IsReachable(peer government.CitizenID) bool {
	p, ok := t.peers[peer]
	if !ok {
		return true
	}
	return p.Reachable
}

// DisappearedSince reports how long, as of now, peer has been
// continuously unreachable, and whether it has disappeared at all.
func (t *Tracker) DisappearedSince(peer government.CitizenID, now int64) (int64, bool) {
	first, ok := t.disappeared[peer]
	if !ok {
		return 0, false
	}
	return now - first, true
}

// Peer returns the last recorded ping state for peer.
func (t *Tracker) Peer(peer government.CitizenID) (PeerPing, bool) {
	p, ok := t.peers[peer]
	return p, ok
}

// RecordConstituentReport stores the Minimum a constituent most recently
// reported, keyed by its identity, for ReducedFor to fold into this
// citizen's own reduced floor.
func (t *Tracker) RecordConstituentReport(peer government.CitizenID, m Minimum) {
	t.reportedMin[peer] = m
}

// ReducedFor computes this citizen's `reduced` floor for the given
// government version and the set of constituents it is responsible for:
// the minimum of selfCommitted and every constituent's reported
// `reduced`, but only if
// every one of them has reported under this exact version — otherwise
// 0/0, per spec.md §4.7.
func (t *Tracker) ReducedFor(version promise.Promise, constituents []government.CitizenID, selfCommitted promise.Promise) promise.Promise {
	reduced := selfCommitted
	for _, c := range constituents {
		rep, ok := t.reportedMin[c]
		if !ok || rep.Version != version {
			return promise.Zero
		}
		reduced = promise.Min(reduced, rep.Reduced)
	}
	return reduced
}
