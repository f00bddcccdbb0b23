package replication

import (
	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/internal/assert"
	"github.com/polis-dev/polis/ledger"
	"github.com/polis-dev/polis/promise"
	"github.com/polis-dev/polis/wire"
)

type writeStage int

const (
	stageWriting writeStage = iota
	stageCommitting
)

type writingSlot struct {
	proposal Proposal
	stage    writeStage
	acked    map[government.CitizenID]bool
}

func newWritingSlot(self government.CitizenID, p Proposal) *writingSlot {
	return &writingSlot{
		proposal: p,
		stage:    stageWriting,
		acked:    map[government.CitizenID]bool{self: true},
	}
}

// Writer batches proposals to a quorum under the two-phase commit
// strategy used while a stable leader exists (spec.md §4.3). It is the
// leader-side half of the writer<->proposer slot.
type Writer struct {
	self     government.CitizenID
	version  Version
	frontier promise.Promise // next promise to hand to a non-government Push

	queue   []Proposal
	writing []*writingSlot // at most two: current write/commit, optional piggyback next
}

// NewWriter returns a writer bound to version, whose next non-government
// proposal will be assigned the promise immediately after currentHead.
func NewWriter(self government.CitizenID, version Version, currentHead promise.Promise) *Writer {
	return &Writer{
		self:     self,
		version:  version,
		frontier: currentHead,
	}
}

// Version reports the writer's government/collapsed version pair.
func (w *Writer) Version() Version {
	return w.version
}

// Collapsed reports whether this writer has already given up to Paxos
// recovery.
func (w *Writer) Collapsed() bool {
	return w.version.Collapsed
}

// Push assigns the next minor promise to a command proposal and appends
// it to the queue.
func (w *Writer) Push(body []byte, quorum []government.CitizenID) Proposal {
	w.frontier = promise.IncrementMinor(w.frontier)
	p := Proposal{Promise: w.frontier, Quorum: quorum, Body: body, Kind: ledger.EntryCommand}
	w.queue = append(w.queue, p)
	return p
}

// Unshift prepends a proposal so it jumps the queue — used for
// governments, which must land ahead of whatever a client already
// enqueued.
func (w *Writer) Unshift(p Proposal) {
	w.frontier = promise.Max(w.frontier, p.Promise)
	w.queue = append([]Proposal{p}, w.queue...)
}

// NextGovernmentPromise is the promise a new government proposal pushed
// right now would need to carry: (g+1)/0 of the writer's own version.
func (w *Writer) NextGovernmentPromise() promise.Promise {
	return promise.NextGovernment(w.version.Government)
}

// QueueLen reports how many proposals are still waiting to be written.
func (w *Writer) QueueLen() int {
	return len(w.queue)
}

// InFlight reports how many writes are currently in flight (0, 1, or 2).
func (w *Writer) InFlight() int {
	return len(w.writing)
}

// Nudge starts writing the head of the queue if nothing is currently in
// flight, returning the proposals that committed immediately (possible
// when the proposal's quorum is self alone, e.g. a single-member
// government — there is nobody to hear from, so the slot must close
// itself rather than wait on a Response that will never arrive) and the
// write envelopes to send for anything still outstanding.
func (w *Writer) Nudge(now int64) (ready []Proposal, outbox []wire.Envelope) {
	if len(w.writing) > 0 || len(w.queue) == 0 || w.version.Collapsed {
		return nil, nil
	}

	p := w.queue[0]
	w.queue = w.queue[1:]
	slot := newWritingSlot(w.self, p)
	w.writing = append(w.writing, slot)

	outbox = w.buildEnvelopes(slot, wire.MethodWrite)
	more, moreOut := w.tryAdvance(now, slot)
	return more, append(outbox, moreOut...)
}

func (w *Writer) buildEnvelopes(slot *writingSlot, method wire.Method) []wire.Envelope {
	var out []wire.Envelope
	for _, peer := range slot.proposal.Quorum {
		if peer == w.self {
			continue
		}
		out = append(out, wire.Envelope{
			To:   peer,
			From: w.self,
			Request: wire.Request{
				Message: wire.Message{
					Method:  method,
					Promise: slot.proposal.Promise,
					Version: w.version.Government,
					Quorum:  slot.proposal.Quorum,
					Body:       slot.proposal.Body,
					Kind:       slot.proposal.Kind,
					Was:        slot.proposal.Was,
					Government: slot.proposal.Government,
				},
			},
		})
	}
	return out
}

// Response processes the responses gathered for a previously sent
// request. It returns whether the writer collapsed, the proposals now
// ready to append to the log (in order), and any new outbound envelopes
// (commit requests, or a piggybacked second write).
//
// A non-null RejectPromise triggers collapse, but only when it concerns
// the promise actually in flight for this response — see DESIGN.md's
// decision on stale writer rejections, a resolution of spec.md §9's open
// question about whether the rejecting sender should be checked.
func (w *Writer) Response(now int64, req wire.Request, responses map[government.CitizenID]wire.Response) (collapsed bool, ready []Proposal, outbox []wire.Envelope) {
	if w.version.Collapsed {
		return true, nil, nil
	}
	if req.Message.Version != w.version.Government {
		return false, nil, nil // stale request from a prior/old version
	}

	slot := w.findSlot(req.Message.Promise)
	if slot == nil {
		return false, nil, nil // stale or already-resolved slot
	}

	for peer, resp := range responses {
		if resp.Message.RejectPromise != nil && resp.Message.Promise == slot.proposal.Promise {
			w.version.Collapsed = true
			return true, nil, nil
		}
		if resp.Message.Method == wire.MethodUnreachable {
			continue
		}
		slot.acked[peer] = true
	}

	ready, outbox = w.tryAdvance(now, slot)
	return false, ready, outbox
}

// tryAdvance moves slot through writing->committing->done once its quorum
// is satisfied, recursing into the next stage (and the next queued
// proposal) whenever that stage's quorum is already met by the acks on
// hand — in particular by self alone, which happens whenever the
// proposal's quorum has no other members (a single-member government has
// nobody else to hear from, so the slot must close itself here rather
// than wait on a Response nobody will ever send).
func (w *Writer) tryAdvance(now int64, slot *writingSlot) (ready []Proposal, outbox []wire.Envelope) {
	if !government.HasMajorityQuorum(slot.proposal.Quorum, slot.acked) {
		return nil, nil
	}

	switch slot.stage {
	case stageWriting:
		slot.stage = stageCommitting
		slot.acked = map[government.CitizenID]bool{w.self: true}
		outbox = append(outbox, w.buildEnvelopes(slot, wire.MethodCommit)...)
		// Piggyback while slot is still the lone occupant of w.writing,
		// before the recursive self-close below can remove it (or pull the
		// next queued proposal through Nudge instead) and change that count.
		pbReady, pbOut := w.maybePiggyback(now, slot)
		ready = append(ready, pbReady...)
		outbox = append(outbox, pbOut...)
		more, moreOut := w.tryAdvance(now, slot)
		ready = append(ready, more...)
		outbox = append(outbox, moreOut...)

	case stageCommitting:
		w.writing = removeSlot(w.writing, slot)
		ready = append(ready, slot.proposal)
		nextReady, nextOut := w.Nudge(now)
		ready = append(ready, nextReady...)
		outbox = append(outbox, nextOut...)

	default:
		assert.True(false, "replication: unknown write stage %v", slot.stage)
	}

	return ready, outbox
}

// maybePiggyback starts writing the next queued proposal alongside a
// just-acked write, but only when neither the current proposal (now
// committing) nor the next one is a government boundary — governments
// must land alone (spec.md §4.3's batching rule).
func (w *Writer) maybePiggyback(now int64, current *writingSlot) (ready []Proposal, outbox []wire.Envelope) {
	if len(w.writing) != 1 {
		return nil, nil
	}
	if len(w.queue) == 0 {
		return nil, nil
	}
	if current.proposal.Kind == ledger.EntryGovernment {
		return nil, nil
	}
	next := w.queue[0]
	if next.Kind == ledger.EntryGovernment {
		return nil, nil
	}

	w.queue = w.queue[1:]
	slot := newWritingSlot(w.self, next)
	w.writing = append(w.writing, slot)
	outbox = w.buildEnvelopes(slot, wire.MethodWrite)
	ready, more := w.tryAdvance(now, slot)
	return ready, append(outbox, more...)
}

func (w *Writer) findSlot(p promise.Promise) *writingSlot {
	for _, s := range w.writing {
		if s.proposal.Promise == p {
			return s
		}
	}
	return nil
}

func removeSlot(slots []*writingSlot, target *writingSlot) []*writingSlot {
	out := make([]*writingSlot, 0, len(slots))
	for _, s := range slots {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// RemapAfterGovernment is called once a government entry commits: every
// proposal still queued behind it (the government always lands alone, so
// nothing is mid-flight past it) is re-mapped to a fresh promise anchored
// on the new government, recording its prior promise in Was.
func (w *Writer) RemapAfterGovernment(newGovernmentPromise promise.Promise) {
	frontier := newGovernmentPromise
	remapped := make([]Proposal, 0, len(w.queue))
	for _, p := range w.queue {
		old := p.Promise
		frontier = promise.IncrementMinor(frontier)
		p.Promise = frontier
		p.Was = &old
		remapped = append(remapped, p)
	}
	w.queue = remapped
	w.frontier = frontier
}

// DrainQueue removes and returns the writer's still-queued proposals,
// leaving the queue empty. Used alongside RemapAfterGovernment to carry
// proposals across a government boundary into the fresh Writer enactment
// installs.
func (w *Writer) DrainQueue() []Proposal {
	q := w.queue
	w.queue = nil
	return q
}

// SeedQueue installs already-promised proposals at the front of the
// queue, preserving their order, and advances the frontier past them. Used
// to carry proposals remapped across a government boundary into the new
// Writer that enactment installs in place of the one that remapped them.
func (w *Writer) SeedQueue(proposals []Proposal) {
	if len(proposals) == 0 {
		return
	}
	w.queue = append(proposals, w.queue...)
	w.frontier = promise.Max(w.frontier, proposals[len(proposals)-1].Promise)
}
