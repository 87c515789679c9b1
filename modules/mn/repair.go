package mn

import (
	"strconv"
	"sync"
	"time"

	"github.com/redcloud/files/modules"
)

// threadedRepair runs the full-replication repair loop (spec §4.6).
func (n *Node) threadedRepair() {
	if err := n.staticTG.Add(); err != nil {
		return
	}
	defer n.staticTG.Done()
	for {
		select {
		case <-n.staticTG.StopChan():
			return
		case <-time.After(n.staticConfig.RepairPeriod):
		}
		n.managedRepairRound()
	}
}

// managedRepairRound enumerates chunk descriptors and tops up any that
// are missing locations on an active SN (spec §4.6 steps 1-6).
func (n *Node) managedRepairRound() {
	active := n.activeStorageNodes()
	if len(active) == 0 {
		return
	}
	activeByID := make(map[string]modules.StorageNode, len(active))
	for _, sn := range active {
		activeByID[sn.ID] = sn
	}

	type job struct {
		chunk  modules.Chunk
		target modules.StorageNode
		source modules.StorageNode
	}
	var jobs []job

	n.walkAllChunks(func(chunk modules.Chunk) {
		locs, err := n.chunkLocations(chunk.ID)
		if err != nil {
			n.staticLog.Debugln("repair: could not read locations for", chunk.ID, ":", err)
			return
		}
		have := make(map[string]bool, len(locs))
		var sourceCandidate *modules.StorageNode
		for _, loc := range locs {
			have[loc.NodeID] = true
			if sn, ok := activeByID[loc.NodeID]; ok {
				s := sn
				sourceCandidate = &s
			}
		}
		if sourceCandidate == nil {
			return // no healthy source to repair from this cycle
		}
		for _, sn := range active {
			if !have[sn.ID] {
				jobs = append(jobs, job{chunk: chunk, target: sn, source: *sourceCandidate})
			}
		}
	})

	var wg sync.WaitGroup
	for _, j := range jobs {
		select {
		case n.repairSem <- struct{}{}:
		case <-n.staticTG.StopChan():
			return
		}
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			defer func() { <-n.repairSem }()
			n.managedRepairOne(j.chunk, j.target, j.source)
		}(j)
	}
	wg.Wait()
}

// managedRepairOne asks target to pull chunk from source and, on
// success, records the new location fact and emits a gossip entry (spec
// §4.6 steps 4-6). Repair is idempotent: racing MNs converge because the
// SN's write is an overwrite-of-identical-bytes no-op and the location
// fact is set-valued.
func (n *Node) managedRepairOne(chunk modules.Chunk, target, source modules.StorageNode) {
	err := snReplicateChunk(target.Address, chunk.ID, source.Address, chunk.Checksum, chunk.Size, n.staticConfig.WriteDeadline)
	if err != nil {
		n.staticLog.Debugln("repair of", chunk.ID, "onto", target.ID, "failed:", err)
		return
	}

	now := time.Now()
	err = n.staticStore.Update(func(tx modules.MetadataTx) error {
		loc := modules.ChunkLocation{ChunkID: chunk.ID, NodeID: target.ID, DiscoveredAt: now}
		if err := tx.PutChunkLocation(loc); err != nil {
			return err
		}
		locs, err := tx.ChunkLocations(chunk.ID)
		if err != nil {
			return err
		}
		_, err = tx.AppendGossip(modules.GossipEntry{
			Kind:      modules.KindChunkLocation,
			EntityID:  chunk.ID,
			Op:        modules.OpUpdate,
			Payload:   encodePayload(locs),
			EmittedAt: now,
		})
		return err
	})
	if err != nil {
		n.staticLog.Println("ERROR: repair could not persist new location for", chunk.ID, ":", err)
	}
}

// chunkLocations is a small store-view helper used by the repair loop.
func (n *Node) chunkLocations(chunkID string) ([]modules.ChunkLocation, error) {
	var locs []modules.ChunkLocation
	err := n.staticStore.View(func(tx modules.MetadataTx) error {
		var err error
		locs, err = tx.ChunkLocations(chunkID)
		return err
	})
	return locs, err
}

// walkAllChunks calls fn for every chunk descriptor belonging to a
// non-tombstoned file, walking every live file's deterministic chunk-id
// sequence (fileID-ordinal, spec invariant I4).
func (n *Node) walkAllChunks(fn func(modules.Chunk)) {
	n.staticStore.View(func(tx modules.MetadataTx) error {
		files, err := tx.AllFiles()
		if err != nil {
			return err
		}
		for _, f := range files {
			if f.Deleted {
				continue
			}
			for ordinal := 0; ordinal < f.ChunkCount; ordinal++ {
				chunkID := f.ID + "-" + strconv.Itoa(ordinal)
				chunk, ok, err := tx.Chunk(chunkID)
				if err != nil || !ok {
					continue
				}
				fn(chunk)
			}
		}
		return nil
	})
}
