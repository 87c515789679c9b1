package mn

import (
	"net"
	"time"

	"github.com/redcloud/files/modules"
)

// threadedServeRPC accepts control-surface connections from peer MNs
// until the thread group is stopped.
func (n *Node) threadedServeRPC() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.staticTG.StopChan():
				return
			default:
				n.staticLog.Debugln("accept error:", err)
				continue
			}
		}
		if err := n.staticTG.Add(); err != nil {
			conn.Close()
			return
		}
		go func() {
			defer n.staticTG.Done()
			n.managedHandleConn(conn)
		}()
	}
}

// managedHandleConn dispatches one control-surface RPC (spec §6).
func (n *Node) managedHandleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(n.staticConfig.AntiEntropyDeadline))

	var rpcID string
	if err := modules.RPCRead(conn, &rpcID); err != nil {
		return
	}

	switch rpcID {
	case modules.RPCGossipPush:
		n.managedHandleGossipPush(conn)
	case modules.RPCAntiEntropy:
		n.managedHandleAntiEntropy(conn)
	case modules.RPCPeerHello:
		n.managedHandlePeerHello(conn)
	default:
		n.staticLog.Debugln("unknown control-surface RPC:", rpcID)
	}
}

// managedHandleGossipPush is the receive side of push gossip (spec §4.3
// "Receive side").
func (n *Node) managedHandleGossipPush(conn net.Conn) {
	var req modules.GossipPushRequest
	if err := modules.RPCRead(conn, &req); err != nil {
		return
	}
	for _, e := range req.Entries {
		n.managedApplyGossipEntry(e)
	}
	modules.RPCWrite(conn, modules.GossipPushResponse{Applied: len(req.Entries)})
}

// managedHandleAntiEntropy is the receive side of pull anti-entropy (spec
// §4.3 anti-entropy loop steps 2-5). The initiator sends its HaveSeq; this
// side replies with its own HaveSeq as an implicit digest, the initiator
// sends back everything it has beyond that, and this side applies it and
// returns everything this side has beyond the initiator's HaveSeq.
func (n *Node) managedHandleAntiEntropy(conn net.Conn) {
	var initReq modules.AntiEntropyRequest
	if err := modules.RPCRead(conn, &initReq); err != nil {
		return
	}

	var lastSeq uint64
	err := n.staticStore.View(func(tx modules.MetadataTx) error {
		var err error
		lastSeq, err = tx.LastSeq()
		return err
	})
	if err != nil {
		return
	}
	if err := modules.RPCWrite(conn, modules.AntiEntropyRequest{FromNodeID: n.staticNodeID, HaveSeq: lastSeq}); err != nil {
		return
	}

	var toApply modules.AntiEntropyResponse
	if err := modules.RPCRead(conn, &toApply); err != nil {
		return
	}
	for _, e := range toApply.Entries {
		n.managedApplyGossipEntry(e)
	}

	var toPull []modules.GossipEntry
	err = n.staticStore.View(func(tx modules.MetadataTx) error {
		var err error
		toPull, err = tx.GossipSince(initReq.HaveSeq, 0)
		return err
	})
	if err != nil {
		return
	}
	modules.RPCWrite(conn, modules.AntiEntropyResponse{Entries: toPull})
}

// managedHandlePeerHello handles first-contact bootstrap (spec §4.4):
// register the caller, reply with this node's own record, and gossip the
// registration so it reaches every peer.
func (n *Node) managedHandlePeerHello(conn net.Conn) {
	var req modules.PeerHelloRequest
	if err := modules.RPCRead(conn, &req); err != nil {
		return
	}
	n.managedRegisterPeer(req.Self)

	self, ok := n.selfRecord()
	if !ok {
		return
	}
	modules.RPCWrite(conn, modules.PeerHelloResponse{Self: self})
}

// selfRecord returns this node's own MetadataNode registry record.
func (n *Node) selfRecord() (modules.MetadataNode, bool) {
	n.peersMu.RLock()
	defer n.peersMu.RUnlock()
	mn, ok := n.peers[n.staticNodeID]
	return mn, ok
}
