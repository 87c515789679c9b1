// Package mn implements the metadata node: the client-facing, gossiping,
// chunk-coordinating half of RedCloud Files. Its shape follows the
// teacher's renter package — a long-lived struct wrapping a thread group,
// a handful of in-memory caches guarded by a single mutex each, and a set
// of threadedXxx background loops launched from the constructor.
package mn

import (
	"net"
	"sync"

	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/threadgroup"

	"github.com/redcloud/files/modules"
	"github.com/redcloud/files/persist"
)

// Node is a metadata node.
type Node struct {
	staticNodeID  string
	staticAddress modules.NetAddress
	staticConfig  modules.Config

	staticStore      modules.MetadataStore
	staticLog        *persist.Logger
	staticPersistDir string

	staticTG threadgroup.ThreadGroup

	// peersMu guards peers, the in-memory peer-registry snapshot used by
	// the gossip loops. Mutated only by reconciliation/gossip-apply code;
	// everyone else reads a snapshot (spec §5 shared-resource policy).
	peersMu sync.RWMutex
	peers   map[string]modules.MetadataNode

	// snsMu guards sns, the in-memory storage-node registry snapshot
	// consulted by the write/read/repair paths and mutated only by the
	// health monitor, the heartbeat handler and gossip apply.
	snsMu sync.RWMutex
	sns   map[string]modules.StorageNode

	// writeSems bounds concurrent in-flight chunk writes per SN
	// (spec §5 backpressure, default 16).
	writeSemMu  sync.Mutex
	writeSems   map[string]chan struct{}
	repairSem   chan struct{}

	listener net.Listener
}

// New constructs a metadata node bound to store and persistDir, with
// cfg.FillDefaults() applied for any zero-valued field. The returned node
// has not yet started its background loops or RPC listener; call Run for
// that.
func New(cfg modules.Config, store modules.MetadataStore, persistDir string, log *persist.Logger) (*Node, error) {
	cfg = cfg.FillDefaults()
	if cfg.OwnNodeID == "" {
		return nil, errors.New("mn.New: OwnNodeID must be set by the caller at startup (host#session-epoch)")
	}

	n := &Node{
		staticNodeID:     cfg.OwnNodeID,
		staticAddress:    cfg.OwnAdvertiseAddr,
		staticConfig:     cfg,
		staticStore:      store,
		staticLog:        log,
		staticPersistDir: persistDir,
		peers:            make(map[string]modules.MetadataNode),
		sns:              make(map[string]modules.StorageNode),
		writeSems:        make(map[string]chan struct{}),
		repairSem:        make(chan struct{}, cfg.InflightRepairs),
	}

	if err := n.loadRegistriesFromStore(); err != nil {
		return nil, errors.AddContext(err, "failed to hydrate in-memory registries")
	}

	return n, nil
}

// loadRegistriesFromStore populates the in-memory peer and SN caches from
// the durable metadata store, so a restarted node resumes with its last
// known registry view rather than an empty one.
func (n *Node) loadRegistriesFromStore() error {
	return n.staticStore.View(func(tx modules.MetadataTx) error {
		peers, err := tx.AllMetadataNodes()
		if err != nil {
			return err
		}
		n.peersMu.Lock()
		for _, p := range peers {
			n.peers[p.ID] = p
		}
		n.peersMu.Unlock()

		sns, err := tx.AllStorageNodes()
		if err != nil {
			return err
		}
		n.snsMu.Lock()
		for _, sn := range sns {
			n.sns[sn.ID] = sn
		}
		n.snsMu.Unlock()
		return nil
	})
}

// Run starts every background loop (spec §4.3, §4.6, §4.7) and the RPC
// listener on addr. It blocks until the listener is bound, then returns;
// the loops and the accept loop continue in the background until Close.
func (n *Node) Run(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.AddContext(err, "failed to bind metadata-node listener")
	}
	n.listener = l

	if err := n.staticTG.Add(); err != nil {
		return err
	}
	go func() {
		defer n.staticTG.Done()
		n.threadedServeRPC()
	}()

	go n.threadedGossipPush()
	go n.threadedAntiEntropy()
	go n.threadedRepair()
	go n.threadedHealthMonitor()
	go n.threadedPeerReconcile()

	n.staticTG.OnStop(func() error {
		return l.Close()
	})

	return nil
}

// Close stops every background loop and waits for them to exit.
func (n *Node) Close() error {
	return n.staticTG.Stop()
}

// ID returns the node's session-epoch-qualified identifier.
func (n *Node) ID() string {
	return n.staticNodeID
}

// Peers returns a snapshot of the in-memory peer-metadata-node registry,
// used by the debug/registries API endpoint.
func (n *Node) Peers() []modules.MetadataNode {
	n.peersMu.RLock()
	defer n.peersMu.RUnlock()
	out := make([]modules.MetadataNode, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	return out
}

// StorageNodes returns a snapshot of every known storage node regardless
// of liveness, used by the debug/registries API endpoint.
func (n *Node) StorageNodes() []modules.StorageNode {
	snapshot := n.allStorageNodesSnapshot()
	out := make([]modules.StorageNode, 0, len(snapshot))
	for _, sn := range snapshot {
		out = append(out, sn)
	}
	return out
}
