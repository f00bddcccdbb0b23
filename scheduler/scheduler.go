// Package scheduler implements the keyed timer that drives ping,
// synchronize, collapse, and propose events inside a citizen.
//
// Scheduling an event under a key replaces any prior event under that
// key, mirroring the insert-or-replace-by-key semantics of
// QuangTung97-libpaxos's key_runner.KeyRunner.Upsert — but without that
// package's goroutines: the core is cooperative and single-threaded
// (spec.md §5), so Scheduler only tracks deadlines and hands due events
// back to the caller on demand via Due, the way
// async.SimulateRuntime.RunNext drains its queue in tests.
package scheduler

// Key identifies one pending event slot. Re-scheduling the same key
// replaces whatever was pending under it.
type Key string

// Event is the opaque payload a citizen attaches to a scheduled deadline.
type Event any

type entry struct {
	when  int64
	key   Key
	event Event
	seq   uint64
	live  bool
}

// Scheduler is a keyed timer: at most one pending event per key, due
// events are returned in (deadline, insertion order) order so that
// replaying an identical sequence of Schedule calls against identical
// `now` inputs always yields the same event order (spec.md §4.2's
// determinism requirement).
type Scheduler struct {
	byKey   map[Key]*entry
	pending []*entry // unsorted; sorted lazily by Due
	nextSeq uint64
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{byKey: map[Key]*entry{}}
}

// Schedule arranges for event to fire at or after when, under key,
// replacing whatever was previously scheduled under key.
func (s *Scheduler) Schedule(when int64, key Key, event Event) {
	if old, ok := s.byKey[key]; ok {
		old.live = false
	}
	e := &entry{when: when, key: key, event: event, seq: s.nextSeq, live: true}
	s.nextSeq++
	s.byKey[key] = e
	s.pending = append(s.pending, e)
}

// Unschedule removes any event pending under key.
func (s *Scheduler) Unschedule(key Key) {
	if old, ok := s.byKey[key]; ok {
		old.live = false
		delete(s.byKey, key)
	}
}

// Clear removes every pending event, used on government enactment
// (spec.md §4.8).
func (s *Scheduler) Clear() {
	s.byKey = map[Key]*entry{}
	s.pending = nil
}

// Due pops every event whose deadline is <= now, in stable
// (deadline, insertion-order) order, removing them from the scheduler.
func (s *Scheduler) Due(now int64) []Fired {
	var due []*entry
	var keep []*entry
	for _, e := range s.pending {
		if !e.live {
			continue
		}
		if e.when <= now {
			due = append(due, e)
		} else {
			keep = append(keep, e)
		}
	}
	s.pending = keep

	sortEntries(due)

	out := make([]Fired, 0, len(due))
	for _, e := range due {
		delete(s.byKey, e.key)
		out = append(out, Fired{Key: e.key, Event: e.event, When: e.when})
	}
	return out
}

// Fired is one event whose deadline has arrived.
type Fired struct {
	Key   Key
	Event Event
	When  int64
}

// Peek reports the earliest pending deadline, if any, without removing
// it — used by a driving loop to decide how far to advance `now`.
func (s *Scheduler) Peek() (int64, bool) {
	have := false
	var min int64
	for _, e := range s.pending {
		if !e.live {
			continue
		}
		if !have || e.when < min {
			min = e.when
			have = true
		}
	}
	return min, have
}

// Len returns the number of live pending events.
func (s *Scheduler) Len() int {
	n := 0
	for _, e := range s.pending {
		if e.live {
			n++
		}
	}
	return n
}

func sortEntries(es []*entry) {
	// Insertion sort: the pending set between two Due calls is always
	// small (a handful of scheduler keys per citizen), and stability on
	// (when, seq) must be exact, so a hand-rolled stable sort avoids any
	// doubt about sort.Slice's stability guarantees.
	for i := 1; i < len(es); i++ {
		j := i
		for j > 0 && less(es[j], es[j-1]) {
			es[j], es[j-1] = es[j-1], es[j]
			j--
		}
	}
}

func less(a, b *entry) bool {
	if a.when != b.when {
		return a.when < b.when
	}
	return a.seq < b.seq
}
