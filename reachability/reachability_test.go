package reachability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/promise"
	"github.com/polis-dev/polis/reachability"
)

func TestSuccessClearsDisappearance(t *testing.T) {
	tr := reachability.New(2)
	tr.Failure("a", 0)
	_, disappeared := tr.DisappearedSince("a", 0)
	assert.True(t, disappeared)

	tr.Success("a", 1, promise.New(1, 1), false)
	_, disappeared = tr.DisappearedSince("a", 1)
	assert.False(t, disappeared)
	assert.True(t, tr.IsReachable("a"))
}

func TestFailureEscalatesAfterTimeout(t *testing.T) {
	tr := reachability.New(2)

	became := tr.Failure("a", 0)
	assert.False(t, became)
	assert.True(t, tr.IsReachable("a"))

	became = tr.Failure("a", 1)
	assert.False(t, became)
	assert.True(t, tr.IsReachable("a"))

	became = tr.Failure("a", 2)
	assert.True(t, became)
	assert.False(t, tr.IsReachable("a"))

	// already unreachable: no further transition reported
	became = tr.Failure("a", 3)
	assert.False(t, became)
}

func TestUnseenPeerAssumedReachable(t *testing.T) {
	tr := reachability.New(2)
	assert.True(t, tr.IsReachable("never-seen"))
}

func TestResetKeepsOnlyListedPeers(t *testing.T) {
	tr := reachability.New(2)
	tr.Success("a", 0, promise.New(1, 0), false)
	tr.Success("b", 0, promise.New(1, 0), false)

	tr.Reset([]government.CitizenID{"a"})

	_, ok := tr.Peer("a")
	assert.True(t, ok)
	_, ok = tr.Peer("b")
	assert.False(t, ok)
}

func TestReducedForRequiresAllConstituentsReportingCurrentVersion(t *testing.T) {
	tr := reachability.New(2)
	version := promise.New(3, 0)

	constituents := []government.CitizenID{"x", "y"}

	// nobody reported yet
	assert.Equal(t, promise.Zero, tr.ReducedFor(version, constituents, promise.New(3, 5)))

	tr.RecordConstituentReport("x", reachability.Minimum{Version: version, Reduced: promise.New(3, 2)})
	// y still missing
	assert.Equal(t, promise.Zero, tr.ReducedFor(version, constituents, promise.New(3, 5)))

	tr.RecordConstituentReport("y", reachability.Minimum{Version: version, Reduced: promise.New(3, 4)})
	assert.Equal(t, promise.New(3, 2), tr.ReducedFor(version, constituents, promise.New(3, 5)))
}

func TestReducedForIgnoresStaleVersionReports(t *testing.T) {
	tr := reachability.New(2)
	version := promise.New(3, 0)
	stale := promise.New(2, 0)

	tr.RecordConstituentReport("x", reachability.Minimum{Version: stale, Reduced: promise.New(2, 9)})
	assert.Equal(t, promise.Zero, tr.ReducedFor(version, []government.CitizenID{"x"}, promise.New(3, 5)))
}

func TestReducedForWithNoConstituentsUsesSelfCommitted(t *testing.T) {
	tr := reachability.New(2)
	version := promise.New(3, 0)
	assert.Equal(t, promise.New(3, 5), tr.ReducedFor(version, nil, promise.New(3, 5)))
}
