package mn

import (
	"net"
	"time"

	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/fastrand"

	"github.com/redcloud/files/modules"
	"github.com/redcloud/files/modules/conflict"
	"github.com/redcloud/files/modules/vclock"
)

// peerSnapshot returns a copy of the peer registry, excluding this node and
// in no particular order, for loops that must not hold peersMu across a
// network call (spec §5).
func (n *Node) peerSnapshot() []modules.MetadataNode {
	n.peersMu.RLock()
	defer n.peersMu.RUnlock()
	out := make([]modules.MetadataNode, 0, len(n.peers))
	for _, p := range n.peers {
		if p.ID != n.staticNodeID {
			out = append(out, p)
		}
	}
	return out
}

// randomPeers picks up to k distinct peers uniformly at random from
// candidates (spec §4.3 step 1).
func randomPeers(candidates []modules.MetadataNode, k int) []modules.MetadataNode {
	if k >= len(candidates) {
		k = len(candidates)
	}
	perm := fastrand.Perm(len(candidates))
	out := make([]modules.MetadataNode, 0, k)
	for _, i := range perm[:k] {
		out = append(out, candidates[i])
	}
	return out
}

// threadedGossipPush runs the push-gossip loop (spec §4.3 push loop).
func (n *Node) threadedGossipPush() {
	if err := n.staticTG.Add(); err != nil {
		return
	}
	defer n.staticTG.Done()
	for {
		select {
		case <-n.staticTG.StopChan():
			return
		case <-time.After(n.staticConfig.GossipPeriod):
		}
		n.managedGossipPushRound()
	}
}

// managedGossipPushRound selects up to Fanout peers and sends each its
// unacknowledged gossip-log entries.
func (n *Node) managedGossipPushRound() {
	candidates := n.peerSnapshot()
	if len(candidates) == 0 {
		return
	}
	targets := randomPeers(candidates, n.staticConfig.Fanout)

	var entries []modules.GossipEntry
	err := n.staticStore.View(func(tx modules.MetadataTx) error {
		var err error
		entries, err = tx.GossipSince(0, 0)
		return err
	})
	if err != nil {
		n.staticLog.Println("ERROR: gossip push could not load log:", err)
		return
	}

	for _, peer := range targets {
		pending := make([]modules.GossipEntry, 0, len(entries))
		for _, e := range entries {
			if !e.AckedBy(peer.ID) {
				pending = append(pending, e)
			}
		}
		if len(pending) == 0 {
			continue
		}
		if len(pending) > n.staticConfig.GossipBatchSize {
			pending = pending[:n.staticConfig.GossipBatchSize]
		}
		if err := n.managedSendGossip(peer, pending); err != nil {
			// Transient peer unreachable: log and leave ack state
			// unchanged, retried next cycle (spec §4.3 step 4, §7).
			n.staticLog.Debugln("gossip push to", peer.ID, "failed:", err)
			continue
		}
		n.managedMarkAcked(peer.ID, pending)
	}
}

// managedSendGossip opens a connection to peer and sends pending.
func (n *Node) managedSendGossip(peer modules.MetadataNode, pending []modules.GossipEntry) error {
	conn, err := net.DialTimeout("tcp", peer.Address.String(), n.staticConfig.GossipDeadline)
	if err != nil {
		return err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(n.staticConfig.GossipDeadline))

	if err := modules.RPCWrite(conn, modules.RPCGossipPush); err != nil {
		return err
	}
	req := modules.GossipPushRequest{FromNodeID: n.staticNodeID, Entries: pending}
	if err := modules.RPCWrite(conn, req); err != nil {
		return err
	}
	var resp modules.GossipPushResponse
	return modules.RPCRead(conn, &resp)
}

// managedMarkAcked records peerID as having acknowledged every entry in
// sent (spec §4.3 step 3).
func (n *Node) managedMarkAcked(peerID string, sent []modules.GossipEntry) {
	err := n.staticStore.Update(func(tx modules.MetadataTx) error {
		for _, e := range sent {
			stored, ok, err := tx.GossipEntryAt(e.Seq)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			stored.Acknowledge(peerID)
			if err := tx.PutGossipEntry(stored); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		n.staticLog.Println("ERROR: failed to persist gossip acks:", err)
	}
}

// threadedAntiEntropy runs the pull anti-entropy loop (spec §4.3
// anti-entropy loop).
func (n *Node) threadedAntiEntropy() {
	if err := n.staticTG.Add(); err != nil {
		return
	}
	defer n.staticTG.Done()
	for {
		select {
		case <-n.staticTG.StopChan():
			return
		case <-time.After(n.staticConfig.AntiEntropyPeriod):
		}
		n.managedAntiEntropyRound()
	}
}

// managedAntiEntropyRound picks one random peer and exchanges every log
// entry neither side has seen yet. The log's monotone sequence number
// doubles as the digest: any entry the peer's LastSeq has not reached is,
// by construction, something the peer cannot yet have (spec §4.3 step 2-4).
func (n *Node) managedAntiEntropyRound() {
	candidates := n.peerSnapshot()
	if len(candidates) == 0 {
		return
	}
	peer := randomPeers(candidates, 1)[0]

	var lastSeq uint64
	err := n.staticStore.View(func(tx modules.MetadataTx) error {
		var err error
		lastSeq, err = tx.LastSeq()
		return err
	})
	if err != nil {
		n.staticLog.Println("ERROR: anti-entropy could not read local sequence:", err)
		return
	}

	conn, err := net.DialTimeout("tcp", peer.Address.String(), n.staticConfig.AntiEntropyDeadline)
	if err != nil {
		n.staticLog.Debugln("anti-entropy dial to", peer.ID, "failed:", err)
		return
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(n.staticConfig.AntiEntropyDeadline))

	if err := modules.RPCWrite(conn, modules.RPCAntiEntropy); err != nil {
		n.staticLog.Debugln("anti-entropy write to", peer.ID, "failed:", err)
		return
	}
	if err := modules.RPCWrite(conn, modules.AntiEntropyRequest{FromNodeID: n.staticNodeID, HaveSeq: lastSeq}); err != nil {
		return
	}
	var req modules.AntiEntropyRequest
	if err := modules.RPCRead(conn, &req); err != nil {
		return
	}

	var toPull []modules.GossipEntry
	err = n.staticStore.View(func(tx modules.MetadataTx) error {
		var err error
		toPull, err = tx.GossipSince(req.HaveSeq, 0)
		return err
	})
	if err != nil {
		return
	}
	if err := modules.RPCWrite(conn, modules.AntiEntropyResponse{Entries: toPull}); err != nil {
		return
	}

	var resp modules.AntiEntropyResponse
	if err := modules.RPCRead(conn, &resp); err != nil {
		return
	}
	for _, e := range resp.Entries {
		n.managedApplyGossipEntry(e)
	}
}

// managedApplyGossipEntry runs the shared receive-side apply path (spec
// §4.3 "Receive side"): look up the local version, run the conflict
// resolver if one exists, store the winner, and append a local gossip
// entry on first observation so the update re-propagates via push fanout.
func (n *Node) managedApplyGossipEntry(entry modules.GossipEntry) {
	err := n.staticStore.Update(func(tx modules.MetadataTx) error {
		changed, err := n.applyEntityPayload(tx, entry)
		if err != nil {
			return err
		}
		if changed {
			entry.Seq = 0
			entry.Acked = nil
			_, err = tx.AppendGossip(entry)
			return err
		}
		return nil
	})
	if err != nil {
		n.staticLog.Println("ERROR: failed to apply gossip entry:", err)
		return
	}
	n.refreshRegistryCachesFor(entry)
}

// applyEntityPayload decodes entry's payload against its declared kind and
// merges it into the store via the conflict resolver. It reports whether
// the stored value changed as a result (used to decide whether to
// re-gossip, giving R2: re-applying an unchanged entry is a no-op).
func (n *Node) applyEntityPayload(tx modules.MetadataTx, entry modules.GossipEntry) (bool, error) {
	switch entry.Kind {
	case modules.KindUser:
		return applyMerge(entry.Payload, tx.User, tx.PutUser, conflict.ResolveUser)
	case modules.KindFile:
		return applyMerge(entry.Payload, tx.File, tx.PutFile, conflict.ResolveFile)
	case modules.KindTagSet:
		lookup := func(id string) (modules.TagSet, bool, error) { return tx.TagSetForFile(id) }
		return applyMerge(entry.Payload, lookup, tx.PutTagSet, conflict.ResolveTagSet)
	case modules.KindChunk:
		return applyMerge(entry.Payload, tx.Chunk, tx.PutChunk, resolveChunkKeepLocal)
	case modules.KindChunkLocation:
		return applyChunkLocations(tx, entry)
	case modules.KindStorageNode:
		return applyMerge(entry.Payload, tx.StorageNode, tx.PutStorageNode, conflict.ResolveStorageNode)
	case modules.KindMetadataNode:
		return applyMerge(entry.Payload, tx.MetadataNode, tx.PutMetadataNode, conflict.ResolveMetadataNode)
	default:
		return false, errors.New("unknown gossip entity kind: " + string(entry.Kind))
	}
}

// resolveChunkKeepLocal resolves concurrent Chunk versions. Chunks are
// immutable once created (spec invariant I2); the only thing that can
// legitimately arrive as a "concurrent" Chunk update is a replay of the
// same create, so the resolver is a no-op pick-by-version.
func resolveChunkKeepLocal(local, remote modules.Chunk) (modules.Chunk, conflict.Outcome) {
	if remote.Meta.Version > local.Meta.Version {
		return remote, conflict.OutcomeRemote
	}
	return local, conflict.OutcomeLocal
}

// applyChunkLocations applies a gossiped chunk-location set, keyed by
// entry.EntityID (the chunk id), via the set-union merge rule (spec §4.2
// step 4: "Chunk-location set: union"). Unlike applyMerge, the payload is
// the full set a peer knows of for one chunk rather than a single
// versioned record, so there is no "not found -> just store" shortcut:
// the union is always computed against whatever the local store already
// holds for that chunk.
func applyChunkLocations(tx modules.MetadataTx, entry modules.GossipEntry) (bool, error) {
	var remote []modules.ChunkLocation
	if err := decodePayload(entry.Payload, &remote); err != nil {
		return false, err
	}
	local, err := tx.ChunkLocations(entry.EntityID)
	if err != nil {
		return false, err
	}
	merged := conflict.MergeChunkLocations(local, remote)
	if len(merged) == len(local) {
		return false, nil
	}
	for _, loc := range merged {
		if err := tx.PutChunkLocation(loc); err != nil {
			return false, err
		}
	}
	return true, nil
}

// applyMerge is the generic shape of "decode payload of type T keyed by
// id, look up the local version, resolve, store the winner, report
// whether anything changed".
func applyMerge[T any](
	payload []byte,
	lookup func(id string) (T, bool, error),
	put func(T) error,
	resolve func(local, remote T) (T, conflict.Outcome),
) (bool, error) {
	var remote T
	if err := decodePayload(payload, &remote); err != nil {
		return false, err
	}
	id := idOf(remote)
	local, ok, err := lookup(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, put(remote)
	}
	winner, outcome := resolve(local, remote)
	if outcome == conflict.OutcomeLocal {
		return false, nil
	}
	if err := put(winner); err != nil {
		return false, err
	}
	return true, nil
}

// refreshRegistryCachesFor keeps the in-memory peer/SN snapshots in sync
// immediately after a gossiped peer-register or heartbeat-relay entry is
// applied, so the gossip/health loops do not have to wait for the next
// reconciliation pass to see a newly joined peer or SN (spec §4.4).
func (n *Node) refreshRegistryCachesFor(entry modules.GossipEntry) {
	switch entry.Kind {
	case modules.KindMetadataNode:
		var mn modules.MetadataNode
		if err := decodePayload(entry.Payload, &mn); err == nil {
			n.peersMu.Lock()
			n.peers[mn.ID] = mn
			n.peersMu.Unlock()
		}
	case modules.KindStorageNode:
		var sn modules.StorageNode
		if err := decodePayload(entry.Payload, &sn); err == nil {
			n.snsMu.Lock()
			n.sns[sn.ID] = sn
			n.snsMu.Unlock()
		}
	}
}

// vclockForNewEntry returns a freshly incremented clock for a mutation
// this node originates (spec §4.1 increment). The request handlers advance
// clocks through EntityMeta.Bump instead and do not call it.
func (n *Node) vclockForNewEntry(prior vclock.Clock) vclock.Clock {
	return prior.Increment(n.staticNodeID)
}
