// Package conflict implements the deterministic, purely-functional
// conflict resolver named in spec §4.2. Every function here takes only
// its two input versions (and, where relevant, a clock digest compare) and
// returns a winner; none consult local-only state, so the same inputs on
// any replica always produce the same output.
package conflict

import (
	"time"

	"github.com/redcloud/files/modules"
	"github.com/redcloud/files/modules/vclock"
)

// Outcome classifies how a resolution was reached, useful for logging and
// for the gossip-log "apply on first observation" bookkeeping.
type Outcome int

const (
	// OutcomeLocal means the local version was kept unchanged.
	OutcomeLocal Outcome = iota
	// OutcomeRemote means the remote version replaced the local one.
	OutcomeRemote
	// OutcomeMerged means a type-specific concurrent-merge rule produced
	// a new value distinct from both inputs.
	OutcomeMerged
)

// order resolves steps 1-3 of the procedure: strict ordering or equality.
// ok is false when the clocks are concurrent and a type-specific rule
// (step 4) must run.
func order(local, remote modules.EntityMeta) (winner modules.EntityMeta, outcome Outcome, ok bool) {
	switch vclock.Compare(local.VClock, remote.VClock) {
	case vclock.Equal:
		return local, OutcomeLocal, true
	case vclock.Before:
		return remote, OutcomeRemote, true
	case vclock.After:
		return local, OutcomeLocal, true
	default:
		return modules.EntityMeta{}, OutcomeLocal, false
	}
}

// lww breaks a concurrent scalar conflict by wall-clock stamp, then by
// lexicographic originator id (spec §4.2 step 4).
func lww(local, remote modules.EntityMeta) bool {
	if !local.ModifiedAt.Equal(remote.ModifiedAt) {
		return local.ModifiedAt.After(remote.ModifiedAt)
	}
	return local.LastModifiedBy >= remote.LastModifiedBy
}

// mergedMeta returns the meta to stamp on a concurrent-merge result: the
// vector clocks are merged (so the result dominates both inputs) and the
// later wall-clock/version bookkeeping is carried forward for display.
func mergedMeta(local, remote modules.EntityMeta) modules.EntityMeta {
	out := local
	out.VClock = vclock.Merge(local.VClock, remote.VClock)
	if remote.Version > out.Version {
		out.Version = remote.Version
	}
	if remote.ModifiedAt.After(out.ModifiedAt) {
		out.ModifiedAt = remote.ModifiedAt
	}
	if lww(local, remote) {
		out.LastModifiedBy = local.LastModifiedBy
	} else {
		out.LastModifiedBy = remote.LastModifiedBy
	}
	return out
}

// ResolveUser resolves two concurrent User versions. The scalar fields
// (username, password verifier, token) are LWW by wall-clock stamp.
func ResolveUser(local, remote modules.User) (modules.User, Outcome) {
	if winner, outcome, ok := order(local.Meta, remote.Meta); ok {
		if outcome == OutcomeRemote {
			return remote, outcome
		}
		_ = winner
		return local, outcome
	}
	out := local
	if !lww(local.Meta, remote.Meta) {
		out.Username = remote.Username
		out.PasswordVerifier = remote.PasswordVerifier
		out.Token = remote.Token
		out.TokenRotatedAt = remote.TokenRotatedAt
	}
	out.Meta = mergedMeta(local.Meta, remote.Meta)
	return out, OutcomeMerged
}

// ResolveFile resolves two concurrent File versions. Name is LWW; the
// soft-delete flag is sticky-OR (spec §4.2 step 4, open question O1: a
// losing name collision is never hidden here — the caller that detects a
// name collision at creation time is responsible for renaming one of the
// two files before either reaches this resolver, see spec §9 O1).
func ResolveFile(local, remote modules.File) (modules.File, Outcome) {
	if winner, outcome, ok := order(local.Meta, remote.Meta); ok {
		if outcome == OutcomeRemote {
			return remote, outcome
		}
		_ = winner
		return local, outcome
	}
	out := local
	if !lww(local.Meta, remote.Meta) {
		out.Name = remote.Name
		out.Size = remote.Size
		out.ChunkCount = remote.ChunkCount
	}
	out.Deleted = local.Deleted || remote.Deleted
	if out.Deleted {
		switch {
		case local.Deleted && remote.Deleted:
			if remote.DeletedAt.Before(local.DeletedAt) || local.DeletedAt.IsZero() {
				out.DeletedAt = remote.DeletedAt
			} else {
				out.DeletedAt = local.DeletedAt
			}
		case remote.Deleted:
			out.DeletedAt = remote.DeletedAt
		default:
			out.DeletedAt = local.DeletedAt
		}
	}
	out.Meta = mergedMeta(local.Meta, remote.Meta)
	return out, OutcomeMerged
}

// ResolveTagSet resolves two concurrent TagSet versions by unioning tags
// and tombstones, applying tombstones last so a concurrent remove always
// wins over a concurrent add of the same tag (spec §4.2 step 4).
func ResolveTagSet(local, remote modules.TagSet) (modules.TagSet, Outcome) {
	if winner, outcome, ok := order(local.Meta, remote.Meta); ok {
		if outcome == OutcomeRemote {
			return remote, outcome
		}
		_ = winner
		return local, outcome
	}
	out := modules.TagSet{
		FileID:     local.FileID,
		Tags:       make(map[string]struct{}),
		Tombstoned: make(map[string]time.Time),
	}
	for t := range local.Tags {
		out.Tags[t] = struct{}{}
	}
	for t := range remote.Tags {
		out.Tags[t] = struct{}{}
	}
	for t, ts := range local.Tombstoned {
		out.Tombstoned[t] = ts
	}
	for t, ts := range remote.Tombstoned {
		if existing, ok := out.Tombstoned[t]; !ok || ts.After(existing) {
			out.Tombstoned[t] = ts
		}
	}
	for t := range out.Tombstoned {
		delete(out.Tags, t)
	}
	out.Meta = mergedMeta(local.Meta, remote.Meta)
	return out, OutcomeMerged
}

// ResolveStorageNode resolves two concurrent StorageNode versions: the
// liveness-bearing scalar fields are LWW by heartbeat recency.
func ResolveStorageNode(local, remote modules.StorageNode) (modules.StorageNode, Outcome) {
	if winner, outcome, ok := order(local.Meta, remote.Meta); ok {
		if outcome == OutcomeRemote {
			return remote, outcome
		}
		_ = winner
		return local, outcome
	}
	out := local
	if remote.LastHeartbeat.After(local.LastHeartbeat) {
		out.LastHeartbeat = remote.LastHeartbeat
		out.Status = remote.Status
		out.Capacity = remote.Capacity
		out.Used = remote.Used
	}
	out.Meta = mergedMeta(local.Meta, remote.Meta)
	return out, OutcomeMerged
}

// ResolveMetadataNode resolves two concurrent MetadataNode versions by
// LWW on LastSeen.
func ResolveMetadataNode(local, remote modules.MetadataNode) (modules.MetadataNode, Outcome) {
	if winner, outcome, ok := order(local.Meta, remote.Meta); ok {
		if outcome == OutcomeRemote {
			return remote, outcome
		}
		_ = winner
		return local, outcome
	}
	out := local
	if remote.LastSeen.After(local.LastSeen) {
		out.Address = remote.Address
		out.LastSeen = remote.LastSeen
		out.ClockDigest = remote.ClockDigest
	}
	out.Meta = mergedMeta(local.Meta, remote.Meta)
	return out, OutcomeMerged
}

// MergeChunkLocations unions two chunk-location sets for the same chunk id
// (spec §4.2 step 4: "Chunk-location set: union"). The result has no
// duplicate (ChunkID, NodeID) pairs; where both sides have a location for
// the same node, the one discovered earliest is kept since DiscoveredAt is
// informational only.
func MergeChunkLocations(local, remote []modules.ChunkLocation) []modules.ChunkLocation {
	byNode := make(map[string]modules.ChunkLocation, len(local)+len(remote))
	for _, loc := range local {
		byNode[loc.NodeID] = loc
	}
	for _, loc := range remote {
		existing, ok := byNode[loc.NodeID]
		if !ok || loc.DiscoveredAt.Before(existing.DiscoveredAt) {
			byNode[loc.NodeID] = loc
		}
	}
	out := make([]modules.ChunkLocation, 0, len(byNode))
	for _, loc := range byNode {
		out = append(out, loc)
	}
	return out
}
