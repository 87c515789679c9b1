package mn

import (
	"sync"
	"time"

	"github.com/redcloud/files/modules"
	"github.com/redcloud/files/modules/chunkstore"
)

// writeSemFor returns (lazily creating) the per-SN write backpressure
// semaphore for snID (spec §5 backpressure, default 16 in-flight writes
// per SN).
func (n *Node) writeSemFor(snID string) chan struct{} {
	n.writeSemMu.Lock()
	defer n.writeSemMu.Unlock()
	sem, ok := n.writeSems[snID]
	if !ok {
		sem = make(chan struct{}, n.staticConfig.InflightWritesPerSN)
		n.writeSems[snID] = sem
	}
	return sem
}

// chunkWriteResult is one SN's outcome from a fan-out write.
type chunkWriteResult struct {
	sn  modules.StorageNode
	err error
}

// managedWriteChunk fans chunkID/data out to every active SN concurrently,
// commits the chunk descriptor plus every successful location fact in a
// single metadata transaction once at least MinWriteAcks have succeeded,
// and emits the corresponding gossip entries (spec §4.5 write path).
func (n *Node) managedWriteChunk(chunk modules.Chunk, data []byte) error {
	targets := n.activeStorageNodes()
	if len(targets) == 0 {
		return modules.ErrNoCapacity
	}

	results := make(chan chunkWriteResult, len(targets))
	var wg sync.WaitGroup
	for _, sn := range targets {
		wg.Add(1)
		go func(sn modules.StorageNode) {
			defer wg.Done()
			sem := n.writeSemFor(sn.ID)
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			default:
				results <- chunkWriteResult{sn: sn, err: modules.ErrQueueFull}
				return
			}
			err := snWriteChunk(sn.Address, chunk.ID, chunk.Checksum, data, n.staticConfig.WriteDeadline)
			results <- chunkWriteResult{sn: sn, err: err}
		}(sn)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var succeeded []modules.StorageNode
	for r := range results {
		if r.err != nil {
			n.staticLog.Debugln("chunk write to", r.sn.ID, "failed:", r.err)
			continue
		}
		succeeded = append(succeeded, r.sn)
	}

	if len(succeeded) < n.staticConfig.MinWriteAcks {
		// Zero (or too few) acknowledgements: fail and compensate any
		// partial successes (spec §4.5 step 6).
		for _, sn := range succeeded {
			snDeleteChunk(sn.Address, chunk.ID, n.staticConfig.WriteDeadline)
		}
		return modules.ErrNoCapacity
	}

	now := time.Now()
	return n.staticStore.Update(func(tx modules.MetadataTx) error {
		if err := tx.PutChunk(chunk); err != nil {
			return err
		}
		locs := make([]modules.ChunkLocation, 0, len(succeeded))
		for _, sn := range succeeded {
			loc := modules.ChunkLocation{ChunkID: chunk.ID, NodeID: sn.ID, DiscoveredAt: now}
			if err := tx.PutChunkLocation(loc); err != nil {
				return err
			}
			locs = append(locs, loc)
		}
		if _, err := tx.AppendGossip(modules.GossipEntry{
			Kind:        modules.KindChunk,
			EntityID:    chunk.ID,
			Op:          modules.OpCreate,
			Payload:     encodePayload(chunk),
			OriginClock: chunk.Meta.VClock,
			EmittedAt:   now,
		}); err != nil {
			return err
		}
		_, err := tx.AppendGossip(modules.GossipEntry{
			Kind:      modules.KindChunkLocation,
			EntityID:  chunk.ID,
			Op:        modules.OpUpdate,
			Payload:   encodePayload(locs),
			EmittedAt: now,
		})
		return err
	})
}

// managedReadChunk reads a chunk's bytes, trying healthy locations first
// and then any remaining replica (spec §4.5 read path).
func (n *Node) managedReadChunk(chunkID string) ([]byte, error) {
	var chunk modules.Chunk
	var locs []modules.ChunkLocation
	err := n.staticStore.View(func(tx modules.MetadataTx) error {
		var ok bool
		var err error
		chunk, ok, err = tx.Chunk(chunkID)
		if err != nil {
			return err
		}
		if !ok {
			return modules.ErrNotFound
		}
		locs, err = tx.ChunkLocations(chunkID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(locs) == 0 {
		return nil, modules.ErrUnavailable
	}

	all := n.allStorageNodesSnapshot()
	var healthy, rest []modules.ChunkLocation
	for _, loc := range locs {
		if sn, ok := all[loc.NodeID]; ok && sn.Status == modules.StatusActive {
			healthy = append(healthy, loc)
		} else {
			rest = append(rest, loc)
		}
	}

	for _, loc := range append(healthy, rest...) {
		sn, ok := all[loc.NodeID]
		if !ok {
			continue
		}
		data, err := snReadChunk(sn.Address, chunkID, n.staticConfig.ReadDeadline)
		if err != nil {
			n.staticLog.Debugln("chunk read from", sn.ID, "failed:", err)
			continue
		}
		if !verifyChecksum(data, chunk.Checksum) {
			n.staticLog.Println("WARN: checksum mismatch reading chunk", chunkID, "from", sn.ID)
			continue
		}
		return data, nil
	}
	return nil, modules.ErrUnavailable
}

// managedDeleteChunk enqueues delete requests to every SN currently
// holding chunkID and clears their location facts on success (spec §4.5
// delete path).
func (n *Node) managedDeleteChunk(chunkID string) error {
	var locs []modules.ChunkLocation
	err := n.staticStore.View(func(tx modules.MetadataTx) error {
		var err error
		locs, err = tx.ChunkLocations(chunkID)
		return err
	})
	if err != nil {
		return err
	}

	all := n.allStorageNodesSnapshot()
	var acked []string
	for _, loc := range locs {
		sn, ok := all[loc.NodeID]
		if !ok {
			continue
		}
		if err := snDeleteChunk(sn.Address, chunkID, n.staticConfig.WriteDeadline); err != nil {
			n.staticLog.Debugln("chunk delete at", sn.ID, "failed:", err)
			continue
		}
		acked = append(acked, sn.ID)
	}

	return n.staticStore.Update(func(tx modules.MetadataTx) error {
		for _, id := range acked {
			if err := tx.DeleteChunkLocation(chunkID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// chunkChecksum computes the content checksum for a chunk's bytes (spec
// §3 Chunk descriptor).
func chunkChecksum(data []byte) ([32]byte, error) {
	return chunkstore.Checksum(data)
}
