package vclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompareStrictOrder(t *testing.T) {
	a := New().Increment("m1")
	b := a.Increment("m1")
	require.Equal(t, Before, Compare(a, b))
	require.Equal(t, After, Compare(b, a))
	require.Equal(t, Equal, Compare(a, a.Clone()))
}

func TestCompareConcurrent(t *testing.T) {
	base := New().Increment("m1")
	a := base.Increment("m1")
	b := base.Increment("m2")
	require.Equal(t, Concurrent, Compare(a, b))
	require.Equal(t, Concurrent, Compare(b, a))
}

func TestMergeIsPointwiseMax(t *testing.T) {
	a := Clock{"m1": 3, "m2": 1}
	b := Clock{"m1": 1, "m2": 5, "m3": 2}
	merged := Merge(a, b)
	require.Equal(t, Clock{"m1": 3, "m2": 5, "m3": 2}, merged)
}

// TestRestartNeverEqual is property P3: a node restarting with a fresh
// session epoch must never produce an "equal" verdict against its
// pre-restart clock entries, because the NodeID slot itself changes.
func TestRestartNeverEqual(t *testing.T) {
	host := "sn1.lan"
	epoch1 := time.Unix(0, 1000)
	epoch2 := time.Unix(0, 2000)

	id1 := NodeID(host, epoch1)
	id2 := NodeID(host, epoch2)
	require.NotEqual(t, id1, id2)

	before := New().Increment(id1).Increment(id1)
	after := New().Increment(id2)
	require.NotEqual(t, Equal, Compare(before, after))
}

// TestComparePartialOrder checks the defining axioms of a strict partial
// order over vector clocks: irreflexivity of Before/After and transitivity
// of Before.
func TestComparePartialOrder(t *testing.T) {
	a := New().Increment("m1")
	b := a.Increment("m2")
	c := b.Increment("m1")

	require.Equal(t, Before, Compare(a, b))
	require.Equal(t, Before, Compare(b, c))
	require.Equal(t, Before, Compare(a, c), "Before must be transitive")

	require.NotEqual(t, Before, Compare(a, a))
	require.NotEqual(t, After, Compare(a, a))
}

func TestDigestIsOrderIndependent(t *testing.T) {
	a := Clock{"m1": 1, "m2": 2}
	b := Clock{"m2": 2, "m1": 1}
	require.Equal(t, a.Digest(), b.Digest())
}
