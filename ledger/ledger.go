// Package ledger implements the atomic, append-only log at the heart of
// the replication engine: entries keyed by promise, a moving trailer
// that garbage-collects committed history, and O(1) append with
// promise-indexed lookup.
//
// The backing store is a ring buffer in the style of
// QuangTung97-libpaxos's MemLog, indexed by a hash map from promise to
// slot instead of a position offset, since promises are not contiguous
// integers once governments interleave with commands.
package ledger

import (
	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/internal/assert"
	"github.com/polis-dev/polis/promise"
)

// EntryKind tags a log entry as either a government boundary or an
// ordinary command.
type EntryKind int

const (
	EntryCommand EntryKind = iota
	EntryGovernment
)

// Entry is a single position in the canonical chain. Government is set
// only when Kind is EntryGovernment; no wire encoding is in scope
// (spec.md §1), so a government entry carries the struct itself rather
// than an encoded form of it.
type Entry struct {
	Promise    promise.Promise
	Previous   promise.Promise
	Body       []byte
	Kind       EntryKind
	Government *government.Government
}

// Log is the append-only, single-chain log owned by one citizen.
type Log struct {
	ring      []Entry
	front     int // index of the oldest retained entry
	size      int
	index     map[promise.Promise]int // promise -> absolute slot in ring
	trailer   promise.Promise         // promise below which entries are gone
	headVal   promise.Promise
	headKnown bool
}

// New returns an empty log whose trailer and head both start at 0/0.
func New() *Log {
	return &Log{
		ring:  make([]Entry, 8),
		index: map[promise.Promise]int{},
	}
}

// Head returns the promise of the most recently pushed entry, and
// whether the log is non-empty.
func (l *Log) Head() (promise.Promise, bool) {
	if !l.headKnown {
		return promise.Zero, false
	}
	return l.headVal, true
}

// Trailer returns the garbage-collection floor: entries with a promise
// strictly less than this have been shifted out of the log.
func (l *Log) Trailer() promise.Promise {
	return l.trailer
}

// Size returns the number of entries currently retained.
func (l *Log) Size() int {
	return l.size
}

// Push appends entry at the head. Invariants I1-I2/I3 (spec.md §3) are
// checked by the caller (writer/recorder/proposer/acceptor), which knows
// whether this is a government or command entry and what the legal next
// promise is; Push itself only enforces monotonicity of the chain.
func (l *Log) Push(entry Entry) {
	if l.headKnown {
		assert.True(promise.Less(l.headVal, entry.Promise),
			"ledger: pushed promise %s does not advance head %s", entry.Promise, l.headVal)
	}

	l.growIfFull()
	slot := (l.front + l.size) % len(l.ring)
	l.ring[slot] = entry
	l.index[entry.Promise] = slot
	l.size++
	l.headVal = entry.Promise
	l.headKnown = true
}

// growIfFull doubles the ring and repacks every retained entry starting
// at slot 0, so it must also rewrite l.index: the offsets it stores are
// absolute ring slots, and every entry's slot changes on repack.
func (l *Log) growIfFull() {
	if l.size < len(l.ring) {
		return
	}
	newRing := make([]Entry, len(l.ring)*2)
	for i := 0; i < l.size; i++ {
		entry := l.ring[(l.front+i)%len(l.ring)]
		newRing[i] = entry
		l.index[entry.Promise] = i
	}
	l.ring = newRing
	l.front = 0
}

// Find returns the entry at promise p, if retained.
func (l *Log) Find(p promise.Promise) (Entry, bool) {
	slot, ok := l.index[p]
	if !ok {
		return Entry{}, false
	}
	return l.ring[slot], true
}

// EntriesFrom returns, in order, every retained entry with promise
// strictly greater than from, up to limit entries (0 means unlimited).
// Used to build synchronize commit batches (spec.md §4.9).
func (l *Log) EntriesFrom(from promise.Promise, limit int) []Entry {
	var out []Entry
	for i := 0; i < l.size; i++ {
		e := l.ring[(l.front+i)%len(l.ring)]
		if promise.Less(from, e.Promise) {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// Oldest returns the oldest retained entry, if any.
func (l *Log) Oldest() (Entry, bool) {
	if l.size == 0 {
		return Entry{}, false
	}
	return l.ring[l.front], true
}

// AdvanceTrailer raises the trailer and drops retained entries whose
// promise is strictly below the new propagated minimum. Spec.md §8
// invariant 6: never shifts past an entry whose promise is >= propagated,
// and propagated must be non-decreasing (enforced by the caller, which
// owns the reachability.Minimum that feeds this).
func (l *Log) AdvanceTrailer(propagated promise.Promise) {
	assert.True(promise.LessOrEqual(l.trailer, propagated),
		"ledger: propagated minimum %s regressed below trailer %s", propagated, l.trailer)

	l.trailer = propagated

	// Never shift past head: at least the head entry always survives,
	// even if propagated has outrun the rest of the retained chain.
	for l.size > 1 {
		oldest := l.ring[l.front]
		if !promise.Less(oldest.Promise, propagated) {
			break
		}
		delete(l.index, oldest.Promise)
		l.front = (l.front + 1) % len(l.ring)
		l.size--
	}
}

// CheckChainIntegrity asserts spec.md §8 invariant 1: every retained
// entry's Previous equals the promise of the entry immediately preceding
// it in the chain. Used by tests and CheckInvariant debug hooks.
func (l *Log) CheckChainIntegrity() bool {
	var prev promise.Promise
	havePrev := false
	for i := 0; i < l.size; i++ {
		e := l.ring[(l.front+i)%len(l.ring)]
		if havePrev && e.Previous != prev {
			return false
		}
		prev = e.Promise
		havePrev = true
	}
	return true
}
