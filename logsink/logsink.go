// Package logsink declares the optional pluggable durable-log interface
// spec.md §6 allows ("Persisted state ... the sequence of committed
// entries suffices; the shaper, writer, recorder, and scheduler are
// derived from the log on recovery"). Disk persistence itself is out of
// scope (spec.md §1) — only an in-memory implementation (memsink) ships
// with this module.
//
// Grounded on QuangTung97-libpaxos/paxos/log_storage.go's LogStorage
// interface, split here into the narrower leader/follower shape spec.md
// §6 actually needs for a durable sink: append what committed, and
// return the sequence back on recovery.
package logsink

import "github.com/polis-dev/polis/ledger"

// Sink is a durable append-only mirror of a citizen's log. A citizen
// never depends on Sink directly (spec.md §1 keeps persistence out of the
// core) — an outer layer appends every entry a citizen commits and, on
// restart, replays Entries back through a fresh citizen's log.
type Sink interface {
	// Append durably records entry, which must be the next entry in
	// promise order after whatever Append last recorded.
	Append(entry ledger.Entry) error

	// Entries returns every durably recorded entry, oldest first.
	Entries() ([]ledger.Entry, error)
}
