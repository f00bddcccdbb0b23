package replication

import (
	"sort"

	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/internal/assert"
	"github.com/polis-dev/polis/internal/lcg"
	"github.com/polis-dev/polis/promise"
	"github.com/polis-dev/polis/wire"
)

// BuildRecoveryGovernment decides the government a collapsed citizen will
// propose during Paxos recovery (spec.md §4.5, §9): self is always the
// preferred leader, the rest of the majority is filled from the
// currently-reachable members of the old government in deterministic
// order, and members that fell out of the majority are pushed down to
// minority and then constituents. If fewer than majoritySize members are
// reachable, the attempt is reported as desperate (the second return
// value); the majority is still filled in the same order, unreachable
// members included, so the proposal can still go out.
func BuildRecoveryGovernment(current government.Government, target promise.Promise, parliamentSize int, self government.CitizenID, reachable map[government.CitizenID]bool) (government.Government, bool) {
	pool := current.AllMembers()
	if !contains(pool, self) {
		pool = append(pool, self)
	}

	majoritySize := government.MajoritySize(parliamentSize, len(pool))

	ordered := orderCandidates(pool, self, reachable)
	reachableCount := 1 // self
	for _, id := range ordered[1:] {
		if reachable[id] {
			reachableCount++
		}
	}
	desperate := reachableCount < majoritySize

	newMajority := ordered[:min(majoritySize, len(ordered))]
	rest := ordered[len(newMajority):]

	// A government's majority must satisfy QuorumSize() ==
	// len(Majority) (spec.md §8 invariant 7), which for an odd majority
	// holds when minority == majority-1 — the ratio Dictator() and every
	// enacted shape already carry.
	minoritySize := len(newMajority) - 1
	if minoritySize > len(rest) {
		minoritySize = len(rest)
	}
	if minoritySize < 0 {
		minoritySize = 0
	}
	newMinority := rest[:minoritySize]
	demoted := rest[minoritySize:]

	newConstituents := make([]government.CitizenID, 0, len(demoted)+len(current.Constituents))
	newConstituents = append(newConstituents, demoted...)
	for _, id := range current.Constituents {
		if !contains(newConstituents, id) {
			newConstituents = append(newConstituents, id)
		}
	}

	gov := government.Government{
		Promise:      target,
		Majority:     newMajority,
		Minority:     newMinority,
		Constituents: newConstituents,
		Properties:   current.Properties,
		Immigrated:   current.Immigrated,
	}
	return gov, desperate
}

// orderCandidates returns pool ordered with self first, then reachable
// peers sorted by id, then unreachable peers sorted by id: majority-fill
// prefers reachable members, but an unreachable one can still be handed
// a minority or constituent seat rather than being dropped outright.
func orderCandidates(pool []government.CitizenID, self government.CitizenID, reachable map[government.CitizenID]bool) []government.CitizenID {
	var reachablePeers, unreachablePeers []government.CitizenID
	for _, id := range pool {
		if id == self {
			continue
		}
		if reachable[id] {
			reachablePeers = append(reachablePeers, id)
		} else {
			unreachablePeers = append(unreachablePeers, id)
		}
	}
	sort.Slice(reachablePeers, func(i, j int) bool { return reachablePeers[i] < reachablePeers[j] })
	sort.Slice(unreachablePeers, func(i, j int) bool { return unreachablePeers[i] < unreachablePeers[j] })

	out := make([]government.CitizenID, 0, len(pool))
	out = append(out, self)
	out = append(out, reachablePeers...)
	out = append(out, unreachablePeers...)
	return out
}

func contains(ids []government.CitizenID, target government.CitizenID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

type proposerStage int

const (
	proposerPreparing proposerStage = iota
	proposerAccepting
	proposerLearning
	proposerDone
)

// Proposer drives the prepare/accept/learn rounds of Paxos recovery
// (spec.md §4.5) across the old government's parliament, which remains
// the acceptor quorum until a new government actually commits. It is the
// leader-side half of the writer<->proposer slot, installed once a
// Writer collapses.
type Proposer struct {
	self   government.CitizenID
	target promise.Promise
	quorum []government.CitizenID

	candidate government.Government
	chosen    government.Government

	stage proposerStage
	acked map[government.CitizenID]bool

	bestPromise *promise.Promise
	bestBody    []byte
	bestGov     *government.Government

	incumbent bool
	seed      uint64
}

// NewProposer returns a proposer targeting promise target, soliciting
// quorum (the old government's parliament), proposing candidate if no
// higher-numbered value is recovered from a majority of acceptors.
// selfAccepted/selfBody/selfGov are this citizen's own acceptor state
// (the proposer always counts itself first, without sending itself a
// message). incumbent marks whether self led the pre-collapse
// government — BuildRecoveryGovernment always places self first in its
// own candidate, so "self heads its candidate" can't break the tie
// between two citizens racing independent recovery attempts;
// incumbency is the only asymmetry every citizen agrees on without
// communicating, so it is what IsPreferredLeader keys off instead. seed
// drives this proposer's LCG retry-backoff sequence.
func NewProposer(self government.CitizenID, target promise.Promise, quorum []government.CitizenID, candidate government.Government, selfAccepted *promise.Promise, selfBody []byte, selfGov *government.Government, incumbent bool, seed uint64) *Proposer {
	p := &Proposer{
		self:      self,
		target:    target,
		quorum:    quorum,
		candidate: candidate,
		stage:     proposerPreparing,
		acked:     map[government.CitizenID]bool{self: true},
		incumbent: incumbent,
		seed:      seed,
	}
	p.bestPromise = selfAccepted
	p.bestBody = selfBody
	p.bestGov = selfGov
	return p
}

// Target is the promise this proposer is trying to commit a government
// value at.
func (p *Proposer) Target() promise.Promise {
	return p.target
}

// IsPreferredLeader reports whether self led the pre-collapse
// government (spec.md §4.5: "leader retries without delay"). Every
// citizen's own candidate names itself first, so that alone can't break
// a tie between two independently racing proposers; incumbency is the
// one fact both sides already agree on without exchanging a message.
func (p *Proposer) IsPreferredLeader() bool {
	return p.incumbent
}

// NextRetryDelay advances this proposer's LCG seed and returns the delay
// (spec.md §9: (seed*16807 mod 2^31-1) mod timeout) a retry of this
// attempt should wait before resending prepare. The preferred leader
// never waits.
func (p *Proposer) NextRetryDelay(timeout int64) int64 {
	if p.IsPreferredLeader() {
		return 0
	}
	delay := lcg.Backoff(p.seed, timeout)
	p.seed = lcg.Next(p.seed)
	return delay
}

// Start returns the prepare envelopes to send to every other member of
// the acceptor quorum.
func (p *Proposer) Start() []wire.Envelope {
	return p.broadcast(wire.Message{Method: wire.MethodPrepare, Promise: p.target})
}

func (p *Proposer) broadcast(msg wire.Message) []wire.Envelope {
	var out []wire.Envelope
	for _, peer := range p.quorum {
		if peer == p.self {
			continue
		}
		out = append(out, wire.Envelope{
			To:   peer,
			From: p.self,
			Request: wire.Request{
				Message: msg,
			},
		})
	}
	return out
}

// ProposerOutcome is the result of feeding a round of responses to a
// Proposer.
type ProposerOutcome struct {
	Done    bool
	Learned *government.Government
	Retry   bool
	Outbox  []wire.Envelope
}

// Response feeds the responses gathered for a previously sent prepare or
// accept request into the proposer, advancing it to the next stage once
// a majority of the quorum has answered.
func (p *Proposer) Response(req wire.Request, responses map[government.CitizenID]wire.Response) ProposerOutcome {
	if req.Message.Promise != p.target || p.stage == proposerDone {
		return ProposerOutcome{}
	}

	for peer, resp := range responses {
		if resp.Message.Method == wire.MethodUnreachable {
			continue
		}
		if resp.Message.RejectPromise != nil {
			return ProposerOutcome{Retry: true}
		}
		p.acked[peer] = true
		if p.stage == proposerPreparing && resp.Message.AcceptedPromise != nil {
			if p.bestPromise == nil || promise.Less(*p.bestPromise, *resp.Message.AcceptedPromise) {
				bp := *resp.Message.AcceptedPromise
				p.bestPromise = &bp
				p.bestBody = resp.Message.AcceptedBody
				p.bestGov = resp.Message.Government
			}
		}
	}

	if !government.HasMajorityQuorum(p.quorum, p.acked) {
		return ProposerOutcome{}
	}

	switch p.stage {
	case proposerPreparing:
		p.chosen = p.candidate
		if p.bestGov != nil {
			p.chosen = *p.bestGov
		}
		p.stage = proposerAccepting
		p.acked = map[government.CitizenID]bool{p.self: true}
		return ProposerOutcome{Outbox: p.broadcast(wire.Message{
			Method:     wire.MethodAccept,
			Promise:    p.target,
			Government: &p.chosen,
			Body:       p.bestBody,
		})}

	case proposerAccepting:
		p.stage = proposerDone
		learned := p.chosen
		outbox := p.broadcast(wire.Message{
			Method:     wire.MethodLearn,
			Promise:    p.target,
			Government: &learned,
			Body:       p.bestBody,
		})
		return ProposerOutcome{Done: true, Learned: &learned, Outbox: outbox}

	default:
		assert.True(false, "replication: unknown proposer stage %v", p.stage)
		return ProposerOutcome{}
	}
}
