// Package shaper implements the advisory membership planner described in
// spec.md §4.6: it watches immigration requests and reachability evidence
// and, at most one at a time, proposes a new government shape for the
// citizen to enqueue. It never writes to the log itself — a proposed
// shape carries no promise; the citizen assigns one (via the writer's
// NextGovernmentPromise) before pushing it.
//
// The three variants spec.md §9 describes (Shaper, Assembly, Relay) are
// modeled as one Capability interface swapped at the call site, in the
// style of QuangTung97-libpaxos/paxos/core.go's coreLogicImpl: an active
// leader runs *Shaper, everyone else runs the no-op *Relay. Assembly (the
// in-flight state while a proposed shape has not yet enacted) is folded
// into *Shaper's own `decided` latch rather than kept as a separate type,
// since the two only ever differ by that one boolean.
package shaper

import (
	"sort"

	"github.com/polis-dev/polis/government"
	"github.com/polis-dev/polis/promise"
)

// ImmigrationRequest is a pending admission: a new citizen asking to
// join, with the generation cookie its immigrate clause will carry.
type ImmigrationRequest struct {
	ID     government.CitizenID
	Cookie int64
	Props  government.Properties
}

// View is the read-only window onto citizen state the shaper needs.
// Modeled as a read-only view rather than a back-reference to the
// citizen itself (spec.md §9: "the shaper holds a back-reference to the
// citizen only for reading government state").
type View interface {
	Current() government.Government
	ParliamentSize() int
	Reachable(id government.CitizenID) bool
	DisappearedFor(id government.CitizenID, now int64) (elapsed int64, everDisappeared bool)
}

// Capability is the uniform surface both the active Shaper and the
// no-op Relay expose; the citizen always calls through this interface
// without caring which variant is installed.
type Capability interface {
	Immigrate(now int64, req ImmigrationRequest) *government.Government
	Unreachable(now int64, id government.CitizenID) *government.Government
	Naturalized(now int64, id government.CitizenID) *government.Government
	Decided() bool
	Reset()
}

// Relay is the no-op capability installed on non-leader citizens: it
// never proposes a shape, since only the leader drives membership
// changes.
type Relay struct{}

func (Relay) Immigrate(int64, ImmigrationRequest) *government.Government    { return nil }
func (Relay) Unreachable(int64, government.CitizenID) *government.Government { return nil }
func (Relay) Naturalized(int64, government.CitizenID) *government.Government { return nil }
func (Relay) Decided() bool                                                  { return false }
func (Relay) Reset()                                                         {}

// Shaper is the active capability run by the current leader.
type Shaper struct {
	view    View
	timeout int64

	decided    bool
	exileQueue []government.CitizenID
}

// New returns a Shaper reading state from view, escalating unreachable
// peers to exile after timeout.
func New(view View, timeout int64) *Shaper {
	return &Shaper{view: view, timeout: timeout}
}

// Decided reports whether a proposal is currently in flight, latching
// out further emissions until the next government enacts.
func (s *Shaper) Decided() bool {
	return s.decided
}

// Reset clears the decided latch. The citizen does not call it: each
// enactment installs a fresh Shaper, whose latch starts clear.
func (s *Shaper) Reset() {
	s.decided = false
}

// Immigrate admits a new citizen as a constituent. Growing the
// constituent straight into majority/minority is left to Naturalized,
// which re-evaluates growth once the citizen proves itself reachable —
// mirroring S2 (admitted as constituent, no growth yet) followed by S3
// (growth once the parliament can support a larger odd total).
func (s *Shaper) Immigrate(now int64, req ImmigrationRequest) *government.Government {
	if s.decided {
		return nil
	}
	cur := s.view.Current()
	if cur.Contains(req.ID) {
		return nil
	}

	next := cur
	next.Constituents = append(append([]government.CitizenID{}, cur.Constituents...), req.ID)
	next.Properties = withProperty(cur.Properties, req.ID, req.Props)
	next.Immigrate = &government.ImmigrateClause{ID: req.ID, Cookie: req.Cookie, Props: req.Props}
	next.Promise = promise.Zero

	s.decided = true
	return &next
}

// Naturalized re-evaluates the grow-majority-toward-parliamentSize
// policy now that id has proven itself caught up and reachable.
func (s *Shaper) Naturalized(now int64, id government.CitizenID) *government.Government {
	if s.decided {
		return nil
	}
	cur := s.view.Current()
	if !cur.Contains(id) {
		return nil
	}

	wanted := government.MajoritySize(s.view.ParliamentSize(), len(cur.AllMembers()))
	if wanted <= len(cur.Majority) {
		return nil
	}

	pool := s.reachablePromotionPool(cur, id)
	if len(pool) == 0 {
		return nil
	}

	next := growInto(cur, pool, wanted)
	if next == nil {
		return nil
	}
	s.decided = true
	return next
}

// reachablePromotionPool returns minority-then-constituent candidates
// eligible for promotion, sorted deterministically but with prefer
// placed first since it is the member that just proved itself
// reachable.
func (s *Shaper) reachablePromotionPool(cur government.Government, prefer government.CitizenID) []government.CitizenID {
	var pool []government.CitizenID
	for _, id := range append(append([]government.CitizenID{}, cur.Minority...), cur.Constituents...) {
		if s.view.Reachable(id) {
			pool = append(pool, id)
		}
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i] == prefer {
			return true
		}
		if pool[j] == prefer {
			return false
		}
		return pool[i] < pool[j]
	})
	return pool
}

// growInto promotes members from pool into majority/minority until
// majority reaches wanted and minority reaches wanted-1, returning nil
// if there aren't enough candidates to make any progress.
func growInto(cur government.Government, pool []government.CitizenID, wanted int) *government.Government {
	majorityNeed := wanted - len(cur.Majority)
	minorityWant := wanted - 1

	newMajority := append([]government.CitizenID{}, cur.Majority...)
	promoted := map[government.CitizenID]bool{}
	for _, id := range pool {
		if majorityNeed == 0 {
			break
		}
		newMajority = append(newMajority, id)
		promoted[id] = true
		majorityNeed--
	}
	if len(promoted) == 0 {
		return nil
	}

	newMinority := filterOut(cur.Minority, promoted)
	newConstituents := filterOut(cur.Constituents, promoted)
	for _, id := range pool {
		if promoted[id] || len(newMinority) >= minorityWant {
			continue
		}
		if contained(newConstituents, id) {
			newMinority = append(newMinority, id)
			newConstituents = removeOne(newConstituents, id)
		}
	}

	next := cur
	next.Majority = newMajority
	next.Minority = newMinority
	next.Constituents = newConstituents
	next.Promise = promise.Zero
	next.Immigrate = nil
	return &next
}

// Unreachable demotes id out of the majority (promoting a reachable
// replacement) and, once id has been unreachable past timeout, queues
// it for exile.
func (s *Shaper) Unreachable(now int64, id government.CitizenID) *government.Government {
	if elapsed, ok := s.view.DisappearedFor(id, now); ok && elapsed >= s.timeout {
		s.queueExile(id)
	}

	if s.decided {
		return nil
	}
	cur := s.view.Current()

	if contained(s.exileQueue, id) && cur.Contains(id) {
		next := exile(cur, id)
		s.decided = true
		s.exileQueue = removeOne(s.exileQueue, id)
		return next
	}

	if !contained(cur.Majority, id) {
		return nil
	}

	replacement := s.bestReplacement(cur, id)
	if replacement == "" {
		return nil
	}

	newMajority := removeOne(cur.Majority, id)
	newMajority = append(newMajority, replacement)
	newMinority := append(removeOne(cur.Minority, replacement), id)
	newConstituents := removeOne(cur.Constituents, replacement)

	next := cur
	next.Majority = newMajority
	next.Minority = newMinority
	next.Constituents = newConstituents
	next.Promise = promise.Zero
	s.decided = true
	return &next
}

func (s *Shaper) bestReplacement(cur government.Government, excluding government.CitizenID) government.CitizenID {
	candidates := append(append([]government.CitizenID{}, cur.Minority...), cur.Constituents...)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
	for _, id := range candidates {
		if id == excluding {
			continue
		}
		if s.view.Reachable(id) {
			return id
		}
	}
	return ""
}

func (s *Shaper) queueExile(id government.CitizenID) {
	if !contained(s.exileQueue, id) {
		s.exileQueue = append(s.exileQueue, id)
	}
}

func exile(cur government.Government, id government.CitizenID) *government.Government {
	next := cur
	next.Majority = removeOne(cur.Majority, id)
	next.Minority = removeOne(cur.Minority, id)
	next.Constituents = removeOne(cur.Constituents, id)
	next.Exile = append(append([]government.CitizenID{}, cur.Exile...), id)
	next.Immigrated = cur.Immigrated.Without(id)
	if cur.Properties != nil {
		props := map[government.CitizenID]government.Properties{}
		for k, v := range cur.Properties {
			if k != id {
				props[k] = v
			}
		}
		next.Properties = props
	}
	next.Promise = promise.Zero
	return &next
}

func withProperty(props map[government.CitizenID]government.Properties, id government.CitizenID, p government.Properties) map[government.CitizenID]government.Properties {
	out := map[government.CitizenID]government.Properties{}
	for k, v := range props {
		out[k] = v
	}
	out[id] = p
	return out
}

func filterOut(ids []government.CitizenID, drop map[government.CitizenID]bool) []government.CitizenID {
	out := make([]government.CitizenID, 0, len(ids))
	for _, id := range ids {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}

func contained(ids []government.CitizenID, target government.CitizenID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func removeOne(ids []government.CitizenID, target government.CitizenID) []government.CitizenID {
	out := make([]government.CitizenID, 0, len(ids))
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
