// Package sn implements the storage node: the chunk-blob-holding half of
// RedCloud Files. Like mn, its shape follows the teacher's long-lived
// struct + threadgroup + threadedXxx background loop convention, here
// scaled down to the one loop an SN needs: the heartbeat sender.
package sn

import (
	"net"
	"time"

	connmonitor "github.com/uplo-tech/monitor"
	"github.com/uplo-tech/ratelimit"
	"github.com/uplo-tech/threadgroup"

	"github.com/redcloud/files/modules"
	"github.com/redcloud/files/persist"
)

// Node is a storage node.
type Node struct {
	staticNodeID  string
	staticAddress modules.NetAddress
	staticConfig  modules.Config

	staticStore modules.ChunkStore
	staticLog   *persist.Logger

	staticMonitor *connmonitor.Monitor
	staticRL      *ratelimit.RateLimit
	staticTG      threadgroup.ThreadGroup

	listener net.Listener
}

// New constructs a storage node bound to store.
func New(cfg modules.Config, store modules.ChunkStore, log *persist.Logger) *Node {
	cfg = cfg.FillDefaults()
	return &Node{
		staticNodeID:  cfg.OwnNodeID,
		staticAddress: cfg.OwnAdvertiseAddr,
		staticConfig:  cfg,
		staticStore:   store,
		staticLog:     log,
		staticMonitor: connmonitor.NewMonitor(),
		staticRL:      ratelimit.NewRateLimit(cfg.DownloadSpeedLimit, cfg.UploadSpeedLimit, 0),
	}
}

// Run binds the data-surface listener on addr and starts the heartbeat
// sender loop.
func (n *Node) Run(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	n.listener = l

	if err := n.staticTG.Add(); err != nil {
		return err
	}
	go func() {
		defer n.staticTG.Done()
		n.threadedServeData()
	}()

	go n.threadedHeartbeat()

	n.staticTG.OnStop(func() error {
		return l.Close()
	})
	return nil
}

// Close stops the listener and the heartbeat loop.
func (n *Node) Close() error {
	return n.staticTG.Stop()
}

// ID returns the node's session-epoch-qualified identifier.
func (n *Node) ID() string {
	return n.staticNodeID
}

// ListenAddr returns the data-surface listener's bound address, useful
// when the node was started on an ephemeral port (":0").
func (n *Node) ListenAddr() string {
	return n.listener.Addr().String()
}

// BandwidthCounts reports cumulative bytes read/written across every
// monitored connection since startup, mirroring the teacher gateway's
// bandwidth accounting.
func (n *Node) BandwidthCounts() (readBytes, writeBytes uint64, startTime time.Time) {
	r, w := n.staticMonitor.Counts()
	return r, w, n.staticMonitor.StartTime()
}
