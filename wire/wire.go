// Package wire defines the envelope, request, response, and message
// shapes the replication core emits and consumes, per spec.md §6. No
// wire encoding is implemented here — that is explicitly out of scope
// (spec.md §1) — these are plain Go structs a transport is free to
// encode however it likes.
package wire

import (
	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/ledger"
	"github.com/polis-dev/polis/promise"
	"github.com/polis-dev/polis/reachability"
)

// Method names one of the seven message kinds spec.md §6 enumerates.
type Method string

const (
	MethodSynchronize Method = "synchronize"
	MethodWrite       Method = "write"
	MethodCommit      Method = "commit"
	MethodPrepare     Method = "prepare"
	MethodAccept      Method = "accept"
	MethodLearn       Method = "learn"
	MethodPing        Method = "ping"

	// MethodUnreachable appears in the synthetic response NullResponse
	// manufactures for a transport timeout, and in the reply citizen.Request
	// gives to a request for another republic or with an unknown method.
	MethodUnreachable Method = "unreachable"
)

// Message is the single polymorphic payload carried by every request and
// response; which fields are meaningful depends on Method.
type Message struct {
	Method  Method
	Promise promise.Promise // the promise this message concerns
	Version promise.Promise // the government version the sender believes is current

	Quorum []government.CitizenID // write: the quorum this proposal targets
	Body   []byte                 // write/accept/learn: the proposed entry body
	Kind   ledger.EntryKind
	Was    *promise.Promise // re-mapped proposal's prior promise, if any

	// Government carries the struct itself rather than an encoded form,
	// since no wire encoding is in scope. Set on write/commit when Kind is
	// EntryGovernment, and on prepare/accept/learn during Paxos recovery.
	Government *government.Government

	// Proposer bookkeeping (Paxos recovery, spec.md §4.5).
	AcceptedPromise *promise.Promise // promise: the highest promise this acceptor has already accepted
	AcceptedBody    []byte

	// RejectPromise, when non-nil, signals a rejection: the writer
	// collapses on receiving it (spec.md §4.3).
	RejectPromise *promise.Promise
}

// Sync is the piggyback segment carried on every outgoing request
// (spec.md §4.9).
type Sync struct {
	Republic    government.Republic
	From        government.CitizenID
	FromPromise promise.Promise // the promise under which From immigrated
	Minimum     reachability.Minimum
	Committed   promise.Promise // sender's head promise
	Commits     []ledger.Entry  // up to N commits the receiver may be missing
}

// Request is the client-to-server half of one exchange.
type Request struct {
	Message Message
	Sync    Sync
}

// Response is the server-to-client half of one exchange.
type Response struct {
	Message     Message
	Sync        Sync
	Minimum     *reachability.Minimum
	Unreachable map[government.CitizenID]bool
}

// NullResponse is the response a citizen must synthesize when its
// transport reports a timeout or unreachable peer (spec.md §6): a nil
// *Response denotes network failure, but every caller inside the core
// wants a concrete value to pattern-match against.
func NullResponse() Response {
	return Response{
		Message: Message{Method: MethodUnreachable, Promise: promise.Zero},
		Sync:    Sync{Committed: promise.Zero},
	}
}

// Envelope is one outbound message, paired with the responses gathered
// for it so far.
type Envelope struct {
	To        government.CitizenID
	From      government.CitizenID
	Request   Request
	Responses map[government.CitizenID]Response
}
