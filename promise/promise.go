// Package promise implements the g/r promise pair that keys every log
// entry in the replication engine: a government number and a round
// number, compared lexicographically.
package promise

import (
	"cmp"
	"fmt"
)

// Promise is a g/r pair: the government number and the round number
// within that government. Zero value is 0/0.
type Promise struct {
	G uint64
	R uint64
}

// Zero is the promise below which no real log entry ever sits.
var Zero = Promise{}

func New(g, r uint64) Promise {
	return Promise{G: g, R: r}
}

func (p Promise) String() string {
	return fmt.Sprintf("%d/%d", p.G, p.R)
}

// IsZero reports whether p is the zero promise 0/0.
func (p Promise) IsZero() bool {
	return p.G == 0 && p.R == 0
}

// IsGovernmentBoundary reports whether p denotes a government boundary,
// i.e. p.R == 0.
func (p Promise) IsGovernmentBoundary() bool {
	return p.R == 0
}

// Compare orders promises lexicographically on (G, R): government number
// first, then round number. Returns -1, 0, or 1.
func Compare(a, b Promise) int {
	if c := cmp.Compare(a.G, b.G); c != 0 {
		return c
	}
	return cmp.Compare(a.R, b.R)
}

// Less reports whether a < b.
func Less(a, b Promise) bool {
	return Compare(a, b) < 0
}

// LessOrEqual reports whether a <= b.
func LessOrEqual(a, b Promise) bool {
	return Compare(a, b) <= 0
}

// Equal reports whether a == b.
func Equal(a, b Promise) bool {
	return a == b
}

// Max returns the greater of a and b.
func Max(a, b Promise) Promise {
	if Less(a, b) {
		return b
	}
	return a
}

// Min returns the lesser of a and b.
func Min(a, b Promise) Promise {
	if Less(a, b) {
		return a
	}
	return b
}

// IncrementMajor bumps the government number and resets the round to
// zero: (g/r) -> (g+1)/0.
func IncrementMajor(p Promise) Promise {
	return Promise{G: p.G + 1, R: 0}
}

// IncrementMinor bumps the round number within the current government:
// (g/r) -> g/(r+1).
func IncrementMinor(p Promise) Promise {
	return Promise{G: p.G, R: p.R + 1}
}

// NextGovernment computes the promise a freshly proposed government
// entry must carry given the current government's promise: (g+1)/0,
// regardless of how many rounds it took a proposer to get there (see
// DESIGN.md, "Government promise advance on repeated Paxos rounds").
func NextGovernment(current Promise) Promise {
	return Promise{G: current.G + 1, R: 0}
}
