package conflict

import (
	"testing"
	"time"

	"github.com/redcloud/files/modules"
	"github.com/redcloud/files/modules/vclock"
	"github.com/stretchr/testify/require"
)

func meta(clock vclock.Clock, by string, at time.Time) modules.EntityMeta {
	return modules.EntityMeta{VClock: clock, LastModifiedBy: by, ModifiedAt: at}
}

func TestResolveFileStrictOrder(t *testing.T) {
	now := time.Unix(1000, 0)
	later := now.Add(time.Second)

	local := modules.File{Name: "a.txt", Meta: meta(vclock.Clock{"n1": 1}, "n1", now)}
	remote := modules.File{Name: "b.txt", Meta: meta(vclock.Clock{"n1": 2}, "n1", later)}

	winner, outcome := ResolveFile(local, remote)
	require.Equal(t, OutcomeRemote, outcome)
	require.Equal(t, "b.txt", winner.Name)
}

func TestResolveFileEqualIsIdempotent(t *testing.T) {
	now := time.Unix(1000, 0)
	clock := vclock.Clock{"n1": 3}
	local := modules.File{Name: "a.txt", Meta: meta(clock, "n1", now)}
	remote := modules.File{Name: "a.txt", Meta: meta(clock, "n1", now)}

	winner, outcome := ResolveFile(local, remote)
	require.Equal(t, OutcomeLocal, outcome)
	require.Equal(t, local, winner)
}

func TestResolveFileConcurrentLWW(t *testing.T) {
	early := time.Unix(1000, 0)
	late := early.Add(time.Minute)

	local := modules.File{Name: "local.txt", Meta: meta(vclock.Clock{"n1": 1, "n2": 0}, "n1", early)}
	remote := modules.File{Name: "remote.txt", Meta: meta(vclock.Clock{"n1": 0, "n2": 1}, "n2", late)}

	winner, outcome := ResolveFile(local, remote)
	require.Equal(t, OutcomeMerged, outcome)
	require.Equal(t, "remote.txt", winner.Name)
}

func TestResolveFileSoftDeleteIsSticky(t *testing.T) {
	now := time.Unix(1000, 0)
	local := modules.File{Deleted: false, Meta: meta(vclock.Clock{"n1": 1, "n2": 0}, "n1", now)}
	remote := modules.File{Deleted: true, Meta: meta(vclock.Clock{"n1": 0, "n2": 1}, "n2", now)}

	winner, _ := ResolveFile(local, remote)
	require.True(t, winner.Deleted)
}

func TestResolveTagSetUnionWithTombstones(t *testing.T) {
	now := time.Unix(1000, 0)
	local := modules.TagSet{
		Tags:       map[string]struct{}{"a": {}, "b": {}},
		Tombstoned: map[string]time.Time{},
		Meta:       meta(vclock.Clock{"n1": 1, "n2": 0}, "n1", now),
	}
	remote := modules.TagSet{
		Tags:       map[string]struct{}{"c": {}},
		Tombstoned: map[string]time.Time{"b": now},
		Meta:       meta(vclock.Clock{"n1": 0, "n2": 1}, "n2", now),
	}

	merged, outcome := ResolveTagSet(local, remote)
	require.Equal(t, OutcomeMerged, outcome)
	_, hasA := merged.Tags["a"]
	_, hasB := merged.Tags["b"]
	_, hasC := merged.Tags["c"]
	require.True(t, hasA)
	require.False(t, hasB, "tombstoned tag must not resurrect")
	require.True(t, hasC)
}

func TestMergeChunkLocationsUnion(t *testing.T) {
	now := time.Unix(1000, 0)
	local := []modules.ChunkLocation{{ChunkID: "c1", NodeID: "sn1", DiscoveredAt: now}}
	remote := []modules.ChunkLocation{{ChunkID: "c1", NodeID: "sn2", DiscoveredAt: now}}

	merged := MergeChunkLocations(local, remote)
	require.Len(t, merged, 2)
}

// TestConflictResolverCommutative covers spec property P2: the resolver
// must be commutative over concurrent updates to the same entity.
func TestConflictResolverCommutative(t *testing.T) {
	now := time.Unix(1000, 0)
	a := modules.File{Name: "a.txt", Meta: meta(vclock.Clock{"n1": 1, "n2": 0}, "n1", now)}
	b := modules.File{Name: "b.txt", Meta: meta(vclock.Clock{"n1": 0, "n2": 1}, "n2", now.Add(time.Second))}

	ab, _ := ResolveFile(a, b)
	ba, _ := ResolveFile(b, a)
	require.Equal(t, ab.Name, ba.Name)
	require.Equal(t, ab.Deleted, ba.Deleted)
}

// TestConflictResolverReapplyIdempotent covers spec property R2: applying
// the same update twice must not change the stored result.
func TestConflictResolverReapplyIdempotent(t *testing.T) {
	now := time.Unix(1000, 0)
	local := modules.File{Name: "a.txt", Meta: meta(vclock.Clock{"n1": 1}, "n1", now)}
	remote := modules.File{Name: "a.txt", Meta: meta(vclock.Clock{"n1": 1}, "n1", now)}

	first, _ := ResolveFile(local, remote)
	second, _ := ResolveFile(first, remote)
	require.Equal(t, first, second)
}
