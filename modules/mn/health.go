package mn

import (
	"time"

	"github.com/montanaflynn/stats"

	"github.com/redcloud/files/modules"
)

// threadedHealthMonitor runs the storage-node health monitor (spec §4.7).
func (n *Node) threadedHealthMonitor() {
	if err := n.staticTG.Add(); err != nil {
		return
	}
	defer n.staticTG.Done()
	for {
		select {
		case <-n.staticTG.StopChan():
			return
		case <-time.After(n.staticConfig.HealthCheckPeriod):
		}
		n.managedHealthCheckRound()
	}
}

// managedHealthCheckRound scans the SN registry, flips liveness on
// timeout, gossips transitions, and logs a cluster-wide usage summary.
func (n *Node) managedHealthCheckRound() {
	now := time.Now()

	var transitioned []modules.StorageNode
	var usageRatios []float64

	n.snsMu.Lock()
	for id, sn := range n.sns {
		if sn.Status == modules.StatusActive && now.Sub(sn.LastHeartbeat) >= n.staticConfig.HeartbeatTimeout {
			sn.Status = modules.StatusFailed
			sn.Meta = sn.Meta.Bump(n.staticNodeID, now)
			n.sns[id] = sn
			transitioned = append(transitioned, sn)
		}
		if sn.Status == modules.StatusActive && sn.Capacity > 0 {
			usageRatios = append(usageRatios, float64(sn.Used)/float64(sn.Capacity))
		}
	}
	n.snsMu.Unlock()

	for _, sn := range transitioned {
		n.staticLog.Println("storage node", sn.ID, "marked failed: heartbeat timeout exceeded")
		n.managedPersistAndGossipStorageNode(sn)
	}

	if len(usageRatios) > 0 {
		mean, err := stats.Mean(stats.Float64Data(usageRatios))
		if err == nil {
			n.staticLog.Debugf("cluster storage utilization: mean=%.2f across %d active nodes", mean, len(usageRatios))
		}
	}
}

// managedPersistAndGossipStorageNode commits sn to the durable store and
// emits a gossip entry for it.
func (n *Node) managedPersistAndGossipStorageNode(sn modules.StorageNode) {
	err := n.staticStore.Update(func(tx modules.MetadataTx) error {
		if err := tx.PutStorageNode(sn); err != nil {
			return err
		}
		_, err := tx.AppendGossip(modules.GossipEntry{
			Kind:        modules.KindStorageNode,
			EntityID:    sn.ID,
			Op:          modules.OpHeartbeatRelay,
			Payload:     encodePayload(sn),
			OriginClock: sn.Meta.VClock,
			EmittedAt:   time.Now(),
		})
		return err
	})
	if err != nil {
		n.staticLog.Println("ERROR: failed to persist storage node", sn.ID, ":", err)
	}
}

// ReceiveHeartbeat upserts the SN registry from a heartbeat payload and
// emits a "heartbeat-relay" gossip entry (spec §4.8). It is called from
// the HTTP API's SN-to-MN heartbeat endpoint.
func (n *Node) ReceiveHeartbeat(nodeID string, addr modules.NetAddress, capacity, used uint64) {
	now := time.Now()

	n.snsMu.RLock()
	existing, ok := n.sns[nodeID]
	n.snsMu.RUnlock()

	sn := modules.StorageNode{
		ID:            nodeID,
		Address:       addr,
		LastHeartbeat: now,
		Capacity:      capacity,
		Used:          used,
		Status:        modules.StatusActive,
	}
	if ok {
		sn.Meta = existing.Meta.Bump(n.staticNodeID, now)
	} else {
		sn.Meta = modules.NewEntityMeta(n.staticNodeID, now)
	}

	n.snsMu.Lock()
	n.sns[nodeID] = sn
	n.snsMu.Unlock()

	n.managedPersistAndGossipStorageNode(sn)
}

// activeStorageNodes returns a snapshot of every SN currently believed
// active, used by the write/read/repair paths (spec §4.5, §4.6).
func (n *Node) activeStorageNodes() []modules.StorageNode {
	n.snsMu.RLock()
	defer n.snsMu.RUnlock()
	out := make([]modules.StorageNode, 0, len(n.sns))
	for _, sn := range n.sns {
		if sn.Status == modules.StatusActive {
			out = append(out, sn)
		}
	}
	return out
}

// allStorageNodesSnapshot returns every known SN regardless of liveness,
// used by the read path's "then any remaining replicas" fallback (spec
// §4.5 read path step 2).
func (n *Node) allStorageNodesSnapshot() map[string]modules.StorageNode {
	n.snsMu.RLock()
	defer n.snsMu.RUnlock()
	out := make(map[string]modules.StorageNode, len(n.sns))
	for id, sn := range n.sns {
		out[id] = sn
	}
	return out
}
