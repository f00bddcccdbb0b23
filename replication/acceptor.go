package replication

import (
	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/promise"
	"github.com/polis-dev/polis/wire"
)

// Acceptor is the standard Paxos acceptor (spec.md §4.5): it never accepts
// a promise lower than the highest one it has prepared, and always
// remembers the highest-numbered value it has accepted so a later
// proposer can recover it. It is the follower-side half of the
// recorder<->acceptor slot, installed once a Recorder converts.
type Acceptor struct {
	highestPrepared promise.Promise

	acceptedPromise *promise.Promise
	acceptedBody    []byte
	acceptedGov     *government.Government
}

// NewAcceptor returns an acceptor that will refuse to prepare or accept
// anything at or below highestKnown — typically the enacted government
// promise the converting recorder was serving.
func NewAcceptor(highestKnown promise.Promise) *Acceptor {
	return &Acceptor{highestPrepared: highestKnown}
}

// HighestPrepared reports the highest promise this acceptor has agreed to
// prepare for.
func (a *Acceptor) HighestPrepared() promise.Promise {
	return a.highestPrepared
}

// HandlePrepare answers a prepare request: rejecting it if p does not
// strictly exceed the highest promise already prepared, otherwise
// recording p and returning whatever value this acceptor previously
// accepted (if any) so the proposer can recover it.
func (a *Acceptor) HandlePrepare(req wire.Request) wire.Message {
	p := req.Message.Promise
	if !promise.Less(a.highestPrepared, p) {
		rp := p
		return wire.Message{Method: wire.MethodPrepare, RejectPromise: &rp}
	}

	a.highestPrepared = p
	return wire.Message{
		Method:          wire.MethodPrepare,
		Promise:         p,
		AcceptedPromise: a.acceptedPromise,
		AcceptedBody:    a.acceptedBody,
		Government:      a.acceptedGov,
	}
}

// HandleAccept answers an accept request: rejecting it if p has fallen
// below the highest promise prepared, otherwise recording the value as
// this acceptor's accepted value.
func (a *Acceptor) HandleAccept(req wire.Request) wire.Message {
	p := req.Message.Promise
	if promise.Less(p, a.highestPrepared) {
		rp := p
		return wire.Message{Method: wire.MethodAccept, RejectPromise: &rp}
	}

	a.highestPrepared = promise.Max(a.highestPrepared, p)
	pp := p
	a.acceptedPromise = &pp
	a.acceptedBody = req.Message.Body
	a.acceptedGov = req.Message.Government

	return wire.Message{Method: wire.MethodAccept, Promise: p}
}

// HandleLearn installs a value this acceptor did not itself participate
// in accepting (it arrives via the learn broadcast once some proposer's
// accept quorum has been reached), so its own government state stays
// current for the next prepare it answers.
func (a *Acceptor) HandleLearn(req wire.Request) {
	p := req.Message.Promise
	if promise.Less(a.highestPrepared, p) {
		a.highestPrepared = p
	}
	pp := p
	a.acceptedPromise = &pp
	a.acceptedBody = req.Message.Body
	a.acceptedGov = req.Message.Government
}
