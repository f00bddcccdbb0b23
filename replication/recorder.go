package replication

import (
	"github.com/polis-dev/polis/ledger"
	"github.com/polis-dev/polis/promise"
	"github.com/polis-dev/polis/wire"
)

// Recorder accepts writes from the current leader and finalizes them on
// commit (spec.md §4.4). It is the follower-side half of the
// recorder<->acceptor slot.
type Recorder struct {
	version     promise.Promise // the enacted government this recorder serves
	expected    promise.Promise // the next promise this recorder expects to write
	provisional map[promise.Promise]ledger.Entry
}

// NewRecorder returns a recorder bound to version, expecting its next
// write at the promise immediately after currentHead.
func NewRecorder(version promise.Promise, currentHead promise.Promise) *Recorder {
	return &Recorder{
		version:     version,
		expected:    currentHead,
		provisional: map[promise.Promise]ledger.Entry{},
	}
}

// Convert reports, for an inbound request, whether this recorder must
// step aside for a freshly constructed Acceptor: a prepare message, or a
// promise beyond the recorder's expected next slot, converts the
// follower into Paxos-recovery mode (spec.md §4.4).
func (r *Recorder) Convert(req wire.Request) bool {
	if req.Message.Method == wire.MethodPrepare {
		return true
	}
	if req.Message.Method == wire.MethodWrite && promise.Less(r.expected, req.Message.Promise) {
		return true
	}
	return false
}

// HandleWrite accepts a provisional write from the current leader,
// rejecting it if it does not carry this recorder's enacted government
// version.
func (r *Recorder) HandleWrite(req wire.Request) wire.Message {
	if req.Message.Version != r.version {
		return rejection(wire.MethodWrite, req.Message.Promise)
	}

	r.provisional[req.Message.Promise] = ledger.Entry{
		Promise:    req.Message.Promise,
		Previous:   r.previousOf(),
		Body:       req.Message.Body,
		Kind:       req.Message.Kind,
		Government: req.Message.Government,
	}

	return wire.Message{Method: wire.MethodWrite, Promise: req.Message.Promise, Version: r.version}
}

// previousOf is the chain link a provisionally written entry must carry.
// The recorder only ever accepts writes at its expected frontier (Convert
// hands anything further ahead to an Acceptor instead), so that frontier
// is always the correct previous-link.
func (r *Recorder) previousOf() promise.Promise {
	return r.expected
}

// HandleCommit finalizes a previously written provisional entry,
// returning it so the citizen can append it to the log, and advances
// this recorder's expected frontier.
func (r *Recorder) HandleCommit(req wire.Request) (ledger.Entry, wire.Message, bool) {
	if req.Message.Version != r.version {
		return ledger.Entry{}, rejection(wire.MethodCommit, req.Message.Promise), false
	}

	entry, ok := r.provisional[req.Message.Promise]
	if !ok {
		return ledger.Entry{}, rejection(wire.MethodCommit, req.Message.Promise), false
	}

	delete(r.provisional, req.Message.Promise)
	r.expected = req.Message.Promise

	return entry, wire.Message{Method: wire.MethodCommit, Promise: req.Message.Promise, Version: r.version}, true
}

// AdvanceExpected is called by the citizen after replaying synchronize
// commits, so the recorder's frontier stays consistent with the log even
// when entries arrive via catch-up rather than write/commit.
func (r *Recorder) AdvanceExpected(head promise.Promise) {
	if promise.Less(r.expected, head) {
		r.expected = head
	}
}

func rejection(method wire.Method, p promise.Promise) wire.Message {
	rp := p
	return wire.Message{Method: method, RejectPromise: &rp}
}
