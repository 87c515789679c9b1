package mn

import (
	"net"
	"time"

	"github.com/redcloud/files/modules"
)

// managedRegisterPeer upserts peer into both the durable store and the
// in-memory cache, emitting a gossip entry on first observation or
// meaningful change so the registration propagates (spec §4.4, R3:
// registering the same peer twice is a no-op).
func (n *Node) managedRegisterPeer(peer modules.MetadataNode) {
	var changed bool
	err := n.staticStore.Update(func(tx modules.MetadataTx) error {
		existing, ok, err := tx.MetadataNode(peer.ID)
		if err != nil {
			return err
		}
		now := time.Now()
		if !ok {
			peer.Meta = modules.NewEntityMeta(n.staticNodeID, now)
			changed = true
		} else if existing.Address != peer.Address {
			peer.Meta = existing.Meta.Bump(n.staticNodeID, now)
			changed = true
		} else {
			return nil
		}
		peer.LastSeen = now
		if err := tx.PutMetadataNode(peer); err != nil {
			return err
		}
		_, err = tx.AppendGossip(modules.GossipEntry{
			Kind:        modules.KindMetadataNode,
			EntityID:    peer.ID,
			Op:          modules.OpPeerRegister,
			Payload:     encodePayload(peer),
			OriginClock: peer.Meta.VClock,
			EmittedAt:   now,
		})
		return err
	})
	if err != nil {
		n.staticLog.Println("ERROR: failed to register peer", peer.ID, ":", err)
		return
	}
	if changed {
		n.peersMu.Lock()
		n.peers[peer.ID] = peer
		n.peersMu.Unlock()
	}
}

// Bootstrap resolves metadataAlias and, for each distinct address
// returned, says hello and registers itself (spec §4.4 "Bootstrap").
// Called once at startup by node construction code.
func (n *Node) Bootstrap() error {
	addrs, err := net.LookupHost(n.staticConfig.MetadataAlias)
	if err != nil {
		return err
	}

	self := modules.MetadataNode{
		ID:       n.staticNodeID,
		Address:  n.staticAddress,
		LastSeen: time.Now(),
	}
	n.managedRegisterPeer(self)

	for _, addr := range addrs {
		peerAddr := modules.NetAddress(net.JoinHostPort(addr, n.staticAddress.Port()))
		if peerAddr == n.staticAddress {
			continue
		}
		n.managedSayHello(peerAddr)
	}
	return nil
}

// managedSayHello dials addr, performs a PeerHello exchange, and
// registers whatever peer record comes back.
func (n *Node) managedSayHello(addr modules.NetAddress) {
	self, ok := n.selfRecord()
	if !ok {
		return
	}

	conn, err := net.DialTimeout("tcp", addr.String(), n.staticConfig.GossipDeadline)
	if err != nil {
		n.staticLog.Debugln("bootstrap dial to", addr, "failed:", err)
		return
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(n.staticConfig.GossipDeadline))

	if err := modules.RPCWrite(conn, modules.RPCPeerHello); err != nil {
		return
	}
	if err := modules.RPCWrite(conn, modules.PeerHelloRequest{Self: self}); err != nil {
		return
	}
	var resp modules.PeerHelloResponse
	if err := modules.RPCRead(conn, &resp); err != nil {
		return
	}
	n.managedRegisterPeer(resp.Self)
}

// threadedPeerReconcile periodically replaces the in-memory peer registry
// with the persisted one, keeping only this node and peers whose LastSeen
// is within PeerTTL (spec §4.4 "Steady state"). Drift is repaired in one
// direction only: in-memory entries are never written back to the store,
// and peers dropped for age stay in the store.
func (n *Node) threadedPeerReconcile() {
	if err := n.staticTG.Add(); err != nil {
		return
	}
	defer n.staticTG.Done()
	for {
		select {
		case <-n.staticTG.StopChan():
			return
		case <-time.After(n.staticConfig.PeerReconcilePeriod):
		}
		n.managedReconcilePeers()
	}
}

// managedReconcilePeers implements the reconciliation pass.
func (n *Node) managedReconcilePeers() {
	var persisted []modules.MetadataNode
	err := n.staticStore.View(func(tx modules.MetadataTx) error {
		var err error
		persisted, err = tx.AllMetadataNodes()
		return err
	})
	if err != nil {
		n.staticLog.Println("ERROR: peer reconcile could not read store:", err)
		return
	}

	now := time.Now()
	fresh := make(map[string]modules.MetadataNode, len(persisted))
	for _, p := range persisted {
		if p.ID == n.staticNodeID || now.Sub(p.LastSeen) < n.staticConfig.PeerTTL {
			fresh[p.ID] = p
		}
	}

	n.peersMu.Lock()
	n.peers = fresh
	n.peersMu.Unlock()
}
