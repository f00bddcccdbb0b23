// Package assert panics on invariant breaches inside the replication core.
//
// These are bugs, not runtime errors: wrong previous-promise links, a
// government committed out of order, a quorum computed with the wrong
// shape. None of these can legitimately happen once the core is correct,
// so there is no error return to design around.
package assert

import "fmt"

// True panics with msg (formatted with args) if cond is false.
func True(cond bool, msg string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(msg, args...))
	}
}
