// Package vclock implements vector clocks: a mapping from node identifier to
// monotonic integer used to track causality between replicas of the same
// entity across the metadata gossip network.
package vclock

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/uplo-tech/fastrand"
)

// Ordering is the result of comparing two vector clocks.
type Ordering int

// The four possible outcomes of comparing two vector clocks.
const (
	Equal Ordering = iota
	Before
	After
	Concurrent
)

// String implements fmt.Stringer.
func (o Ordering) String() string {
	switch o {
	case Equal:
		return "equal"
	case Before:
		return "before"
	case After:
		return "after"
	case Concurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// Clock is a vector clock: node identifier -> monotonic counter. The zero
// value is the empty clock, equivalent to every node being at 0.
type Clock map[string]uint64

// New returns an empty vector clock.
func New() Clock {
	return make(Clock)
}

// Clone returns an independent copy of c.
func (c Clock) Clone() Clock {
	out := make(Clock, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Increment returns a new clock equal to c except that id's entry is one
// larger than it was in c (0 if id was absent).
func (c Clock) Increment(id string) Clock {
	out := c.Clone()
	out[id] = out[id] + 1
	return out
}

// Merge returns the pointwise maximum of a and b.
func Merge(a, b Clock) Clock {
	out := a.Clone()
	for k, v := range b {
		if v > out[k] {
			out[k] = v
		}
	}
	return out
}

// Compare returns the causal relationship of a to b.
//
//	Before     a happened-before b: every a[k] <= b[k], and some a[k] < b[k]
//	After      b happened-before a: the mirror image of Before
//	Equal      a and b agree on every key
//	Concurrent neither dominates the other
func Compare(a, b Clock) Ordering {
	aLessEq, aLess := dominates(a, b)
	bLessEq, bLess := dominates(b, a)
	switch {
	case aLessEq && bLessEq:
		return Equal
	case aLessEq && aLess:
		return Before
	case bLessEq && bLess:
		return After
	default:
		return Concurrent
	}
}

// dominates reports whether every entry of a is <= the corresponding entry
// of b (lessEq), and whether at least one entry is strictly smaller (less).
func dominates(a, b Clock) (lessEq, less bool) {
	lessEq = true
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	for k := range keys {
		if a[k] > b[k] {
			lessEq = false
		}
		if a[k] < b[k] {
			less = true
		}
	}
	return lessEq, less
}

// Digest returns a short, order-independent string representation of c,
// suitable for anti-entropy state-summary exchanges where only a cheap
// equality/divergence check is needed, not the full clock.
func (c Clock) Digest() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%d;", k, c[k])
	}
	return b.String()
}

// NodeID composes a host identifier with a per-process-start session epoch,
// so that a node restarting after a crash never reuses the vector-clock slot
// it held before the restart (a fresh epoch always produces a clock entry
// that is incomparable-by-equality to any pre-restart value for that slot,
// since the slot's key itself changes).
func NodeID(host string, epoch time.Time) string {
	return fmt.Sprintf("%s#%d", host, epoch.UnixNano())
}

// RandomSessionSuffix returns a short random string that can be mixed into a
// NodeID when the host identity alone is not guaranteed unique (e.g. two
// nodes started within the same process on a test harness).
func RandomSessionSuffix() string {
	return fmt.Sprintf("%x", fastrand.Bytes(4))
}
