// Package government models the membership snapshot that governs a
// replication cluster: who votes (majority, minority), who merely
// replicates (constituents), and the bookkeeping needed to admit and
// exile citizens over time.
package government

import (
	"slices"

	"github.com/polis-dev/polis/promise"
)

// CitizenID identifies a single participant in a republic.
type CitizenID string

// Republic identifies a cluster. All citizens of one cluster share a
// Republic value; requests carrying a different one are rejected.
type Republic string

// Properties is an opaque, per-citizen property bag (e.g. address hints)
// carried by a government entry. The core never interprets its contents.
type Properties map[string]string

// ImmigratedRecord is the bijection between a citizen id and the
// government promise under which it immigrated, used as a generation
// cookie to validate late-arriving synchronize traffic.
type ImmigratedRecord struct {
	ByID      map[CitizenID]promise.Promise
	ByPromise map[promise.Promise]CitizenID
}

// NewImmigratedRecord returns an empty bijection.
func NewImmigratedRecord() ImmigratedRecord {
	return ImmigratedRecord{
		ByID:      map[CitizenID]promise.Promise{},
		ByPromise: map[promise.Promise]CitizenID{},
	}
}

// Clone returns a deep copy so a Government snapshot can be amended
// without mutating a previous one still referenced elsewhere.
func (r ImmigratedRecord) Clone() ImmigratedRecord {
	out := NewImmigratedRecord()
	for id, p := range r.ByID {
		out.ByID[id] = p
	}
	for p, id := range r.ByPromise {
		out.ByPromise[p] = id
	}
	return out
}

// With returns a copy of r with id recorded as having immigrated under at.
func (r ImmigratedRecord) With(id CitizenID, at promise.Promise) ImmigratedRecord {
	out := r.Clone()
	out.ByID[id] = at
	out.ByPromise[at] = id
	return out
}

// Without returns a copy of r with id's bijection entry removed.
func (r ImmigratedRecord) Without(id CitizenID) ImmigratedRecord {
	out := r.Clone()
	if at, ok := out.ByID[id]; ok {
		delete(out.ByID, id)
		delete(out.ByPromise, at)
	}
	return out
}

// ImmigrateClause, when present on a government entry, names the citizen
// being admitted and the generation cookie the admitting citizen
// presented; it is how a follower with an empty log recognizes the one
// government entry that is "theirs" (spec.md §4.9, rule (b)).
type ImmigrateClause struct {
	ID     CitizenID
	Cookie int64
	Props  Properties
}

// Government is an immutable membership snapshot installed by a
// committed log entry at a g/0 promise.
type Government struct {
	Promise      promise.Promise
	Majority     []CitizenID
	Minority     []CitizenID
	Constituents []CitizenID
	Properties   map[CitizenID]Properties
	Immigrated   ImmigratedRecord
	Map          map[CitizenID]CitizenID // old id -> new id, set on reshape/remap
	Immigrate    *ImmigrateClause
	Exile        []CitizenID
}

// Dictator returns the promise-1/0 government installed by Bootstrap: a
// single-member majority containing only self.
func Dictator(self CitizenID, props Properties) Government {
	return Government{
		Promise:    promise.New(1, 0),
		Majority:   []CitizenID{self},
		Properties: map[CitizenID]Properties{self: props},
		Immigrated: NewImmigratedRecord().With(self, promise.New(1, 0)),
	}
}

// Leader is majority[0]. A government with an empty majority has no
// leader (can only happen transiently while the engine is being bootstrapped).
func (g Government) Leader() (CitizenID, bool) {
	if len(g.Majority) == 0 {
		return "", false
	}
	return g.Majority[0], true
}

// IsLeader reports whether id is the current leader.
func (g Government) IsLeader(id CitizenID) bool {
	leader, ok := g.Leader()
	return ok && leader == id
}

// Parliament is majority union minority — the full set of voters.
func (g Government) Parliament() []CitizenID {
	out := make([]CitizenID, 0, len(g.Majority)+len(g.Minority))
	out = append(out, g.Majority...)
	out = append(out, g.Minority...)
	return out
}

// AllMembers is majority, minority, and constituents combined.
func (g Government) AllMembers() []CitizenID {
	out := make([]CitizenID, 0, len(g.Majority)+len(g.Minority)+len(g.Constituents))
	out = append(out, g.Majority...)
	out = append(out, g.Minority...)
	out = append(out, g.Constituents...)
	return out
}

// Contains reports whether id is present anywhere in this government
// (majority, minority, or constituents).
func (g Government) Contains(id CitizenID) bool {
	return slices.Contains(g.Majority, id) ||
		slices.Contains(g.Minority, id) ||
		slices.Contains(g.Constituents, id)
}

// Constituency returns the peers id is responsible for fanning out to:
// the leader fans out to the rest of majority, majority members fan out
// to minority, and minority members fan out to constituents. When there
// is no minority tier to relay through, the leader also covers
// constituents directly — otherwise a government with an empty minority
// (S2's worked example: majority=['0'], constituents=['1']) would leave
// its constituents with nobody ever synchronizing to them at all.
func (g Government) Constituency(id CitizenID) []CitizenID {
	switch {
	case g.IsLeader(id):
		out := append([]CitizenID{}, g.Majority[1:]...)
		if len(g.Minority) == 0 {
			out = append(out, g.Constituents...)
		}
		return out
	case slices.Contains(g.Majority, id):
		return g.Minority
	case slices.Contains(g.Minority, id):
		return g.Constituents
	default:
		return nil
	}
}

// MajoritySize returns the majority count for a cluster of total known
// citizens under a configured parliamentSize: the parliament (voters)
// is the largest odd number not exceeding min(parliamentSize, total),
// and majority is ceil((parliament+1)/2) of that. S2/S3's worked
// examples (one voter admits a second citizen as a constituent before
// any growth; a third citizen grows the parliament to 3, majority 2)
// pin this formula down — see government_test.go.
func MajoritySize(parliamentSize, total int) int {
	n := parliamentSize
	if total < n {
		n = total
	}
	if n%2 == 0 {
		n--
	}
	if n < 1 {
		n = 1
	}
	return (n + 1) / 2
}

// QuorumSize returns ceil((|majority|+|minority|+1)/2), the number of
// majority votes needed to commit — spec.md §8 invariant 7.
func (g Government) QuorumSize() int {
	total := len(g.Majority) + len(g.Minority)
	return (total + 2) / 2
}

// CheckShape validates invariant 7 from spec.md §8: the parliament
// (majority+minority) is odd-sized, majority equals
// ceil((|majority|+|minority|+1)/2), and the parliament does not exceed
// parliamentSize. S3's worked example (majority size 2, minority size 1)
// shows the "odd" clause binds the parliament total, not majority length
// on its own.
func (g Government) CheckShape(parliamentSize int) bool {
	total := len(g.Majority) + len(g.Minority)
	if total%2 == 0 {
		return false
	}
	if total > parliamentSize {
		return false
	}
	return len(g.Majority) == g.QuorumSize()
}

// HasMajorityQuorum reports whether acks, a set of citizens that have
// acknowledged something, contains a majority of members.
func HasMajorityQuorum(members []CitizenID, acks map[CitizenID]bool) bool {
	need := len(members)/2 + 1
	have := 0
	for _, id := range members {
		if acks[id] {
			have++
		}
	}
	return have >= need
}

// Remap returns the new id for old under g.Map, or old unchanged if no
// remap is recorded.
func (g Government) Remap(old CitizenID) CitizenID {
	if g.Map == nil {
		return old
	}
	if nv, ok := g.Map[old]; ok {
		return nv
	}
	return old
}
