// Package memsink implements an in-memory logsink.Sink, for tests and
// cmd/polisdemo only — grounded on QuangTung97-libpaxos/paxos/fake's
// LogStorageFake (a mutex-guarded slice standing in for a real
// LogStorage).
package memsink

import (
	"sync"

	"github.com/polis-dev/polis/ledger"
	"github.com/polis-dev/polis/logsink"
	"github.com/polis-dev/polis/promise"
)

// Sink is an in-memory logsink.Sink backed by a plain slice.
type Sink struct {
	mu      sync.Mutex
	entries []ledger.Entry
	head    promise.Promise
	hasHead bool
}

var _ logsink.Sink = &Sink{}

// New returns an empty in-memory sink.
func New() *Sink {
	return &Sink{}
}

// Append records entry if it strictly extends the promise sequence
// already recorded. An entry at or below the recorded head is treated as
// a re-delivery and ignored without error.
func (s *Sink) Append(entry ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasHead && !promise.Less(s.head, entry.Promise) {
		return nil // already durable: re-delivery of an already-committed entry
	}
	s.entries = append(s.entries, entry)
	s.head = entry.Promise
	s.hasHead = true
	return nil
}

// Entries returns every entry recorded so far, oldest first.
func (s *Sink) Entries() ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ledger.Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Len reports how many entries are currently recorded.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
