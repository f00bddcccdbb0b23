// Package transport declares the collaborator interface the replication
// core requires but never implements itself (spec.md §1: "the core emits
// envelopes and consumes responses"; §6: "a transport that ships
// envelopes to named peers and returns either a response object or
// null").
//
// No implementation lives here beyond the in-memory fake in
// faketransport — a real network transport is explicitly out of scope.
package transport

import (
	"context"

	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/wire"
)

// Transport ships one envelope's Request to the named peer and returns
// its Response. A nil *wire.Response with a nil error denotes the
// network-failure/timeout case spec.md §6 describes; callers normalize
// that with wire.NullResponse. A non-nil error is reserved for transport
// plumbing failures (e.g. a cancelled context) rather than peer
// unreachability, which is always represented by the nil-response case.
type Transport interface {
	Send(ctx context.Context, to government.CitizenID, req wire.Request) (*wire.Response, error)
}
