// Package replication implements the two polymorphic strategy slots
// described in spec.md §9: writer <-> proposer on the leader side, and
// recorder <-> acceptor on the follower side. Both pairs are modeled as
// tagged variants exposing a uniform surface, grounded on the
// interface-swapped-at-the-call-site pattern in
// QuangTung97-libpaxos/paxos/core.go's coreLogicImpl (which swaps
// follower/candidate/leader state blocks behind one CoreLogic interface)
// rather than by inheritance.
package replication

import (
	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/ledger"
	"github.com/polis-dev/polis/promise"
)

// Proposal is a client- or government-originated entry waiting to be
// written. It is owned by the Writer until it commits or is re-mapped by
// a new government.
type Proposal struct {
	Promise    promise.Promise
	Quorum     []government.CitizenID
	Body       []byte
	Kind       ledger.EntryKind
	Was        *promise.Promise          // prior promise, set when re-mapped by a new government
	Government *government.Government // set when Kind is EntryGovernment
}

// Version identifies the leader/writer generation a write belongs to:
// the government promise currently enacted, and whether the writer has
// collapsed (rejected into Paxos recovery).
type Version struct {
	Government promise.Promise
	Collapsed  bool
}
