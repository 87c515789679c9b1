package mn

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uplo-tech/errors"

	"github.com/redcloud/files/build"
	"github.com/redcloud/files/modules"
	"github.com/redcloud/files/modules/chunkstore"
	"github.com/redcloud/files/modules/metastore"
	"github.com/redcloud/files/modules/sn"
	"github.com/redcloud/files/persist"
)

// newTestNode builds a metadata node backed by a real bolt-backed store,
// with no storage nodes registered.
func newTestNode(t *testing.T, id string) *Node {
	t.Helper()
	dir := build.TempDir("mn", t.Name()+"-"+id)
	require.NoError(t, os.MkdirAll(dir, 0700))
	store, err := metastore.New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log, err := persist.NewLogger(io.Discard)
	require.NoError(t, err)

	n, err := New(modules.Config{OwnNodeID: id}.FillDefaults(), store, dir, log)
	require.NoError(t, err)
	require.NoError(t, n.Run("127.0.0.1:0"))
	t.Cleanup(func() { n.Close() })
	return n
}

// newTestStorageNode spins up a real storage node and returns it registered
// against n via a synthetic heartbeat.
func newTestStorageNode(t *testing.T, n *Node, id string) *sn.Node {
	t.Helper()
	dir := build.TempDir("mn", t.Name()+"-sn-"+id)
	store, err := chunkstore.New(dir)
	require.NoError(t, err)

	log, err := persist.NewLogger(io.Discard)
	require.NoError(t, err)

	snNode := sn.New(modules.Config{OwnNodeID: id}.FillDefaults(), store, log)
	require.NoError(t, snNode.Run("127.0.0.1:0"))
	t.Cleanup(func() { snNode.Close() })

	n.ReceiveHeartbeat(id, modules.NetAddress(snNode.ListenAddr()), 1<<30, 0)
	return snNode
}

// TestUploadDownloadDeleteRoundtrip exercises the full file write/read/
// delete path across two real storage nodes.
func TestUploadDownloadDeleteRoundtrip(t *testing.T) {
	n := newTestNode(t, "md-1")
	newTestStorageNode(t, n, "sn-1")
	newTestStorageNode(t, n, "sn-2")

	data := make([]byte, 0)
	for i := 0; i < 3; i++ {
		data = append(data, []byte("some file bytes ")...)
	}

	f, err := n.UploadFile("alice", "report.txt", data, []string{"work"})
	require.NoError(t, err)
	require.Equal(t, "alice", f.OwnerID)

	got, err := n.DownloadFile(f.ID)
	require.NoError(t, err)
	require.Equal(t, data, got)

	ids, err := n.FilesByTag("alice", "work")
	require.NoError(t, err)
	require.Contains(t, ids, f.ID)

	require.NoError(t, n.DeleteFile(f.ID))
	_, err = n.DownloadFile(f.ID)
	require.ErrorIs(t, err, modules.ErrNotFound)

	ids, err = n.FilesByTag("alice", "work")
	require.NoError(t, err)
	require.NotContains(t, ids, f.ID)
}

// TestUploadNoCapacity checks that an upload with no active SNs fails with
// ErrNoCapacity rather than silently committing an orphaned file.
func TestUploadNoCapacity(t *testing.T) {
	n := newTestNode(t, "md-nocap")
	_, err := n.UploadFile("alice", "x.txt", []byte("data"), nil)
	require.ErrorIs(t, err, modules.ErrNoCapacity)
}

// TestWriteChunkIdempotent checks R1: writing the same chunk id and bytes
// twice leaves SN state and the location-fact set unchanged.
func TestWriteChunkIdempotent(t *testing.T) {
	n := newTestNode(t, "md-r1")
	newTestStorageNode(t, n, "sn-1")

	data := []byte("chunk bytes")
	checksum, err := chunkChecksum(data)
	require.NoError(t, err)
	chunk := modules.Chunk{
		ID:       "file-0",
		FileID:   "file",
		Ordinal:  0,
		Size:     int64(len(data)),
		Checksum: checksum,
		Meta:     modules.NewEntityMeta(n.staticNodeID, time.Now()),
	}

	require.NoError(t, n.managedWriteChunk(chunk, data))
	require.NoError(t, n.managedWriteChunk(chunk, data))

	var locs []modules.ChunkLocation
	err = n.staticStore.View(func(tx modules.MetadataTx) error {
		var err error
		locs, err = tx.ChunkLocations(chunk.ID)
		return err
	})
	require.NoError(t, err)
	require.Len(t, locs, 1)
}

// TestApplyGossipEntryIdempotent checks R2: applying the same gossip entry
// twice is a no-op (the second apply does not append a re-gossip entry).
func TestApplyGossipEntryIdempotent(t *testing.T) {
	n := newTestNode(t, "md-r2")

	f := modules.File{
		ID:      "f1",
		OwnerID: "alice",
		Name:    "a.txt",
		Meta:    modules.NewEntityMeta("origin", time.Now()),
	}
	entry := modules.GossipEntry{
		Kind:        modules.KindFile,
		EntityID:    f.ID,
		Op:          modules.OpCreate,
		Payload:     encodePayload(f),
		OriginClock: f.Meta.VClock,
		EmittedAt:   time.Now(),
	}

	n.managedApplyGossipEntry(entry)
	n.managedApplyGossipEntry(entry)

	var lastSeq uint64
	err := n.staticStore.View(func(tx modules.MetadataTx) error {
		var err error
		lastSeq, err = tx.LastSeq()
		return err
	})
	require.NoError(t, err)
	// Exactly one local gossip entry should exist for this file: the
	// first apply (a genuinely new entity); the second apply sees no
	// change and appends nothing.
	require.Equal(t, uint64(1), lastSeq)
}

// TestRegisterPeerIdempotent checks R3: registering the same peer twice
// leaves the registry unchanged and does not regossip.
func TestRegisterPeerIdempotent(t *testing.T) {
	n := newTestNode(t, "md-r3")

	peer := modules.MetadataNode{ID: "peer-1", Address: "127.0.0.1:9999"}
	n.managedRegisterPeer(peer)
	n.managedRegisterPeer(peer)

	peers := n.Peers()
	require.Len(t, peers, 1)

	var lastSeq uint64
	err := n.staticStore.View(func(tx modules.MetadataTx) error {
		var err error
		lastSeq, err = tx.LastSeq()
		return err
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), lastSeq)
}

// TestReceiveHeartbeatMarksActive checks the health registry reflects a
// freshly received heartbeat.
func TestReceiveHeartbeatMarksActive(t *testing.T) {
	n := newTestNode(t, "md-hb")
	n.ReceiveHeartbeat("sn-x", "127.0.0.1:1234", 100, 10)

	sns := n.StorageNodes()
	require.Len(t, sns, 1)
	require.Equal(t, modules.StatusActive, sns[0].Status)
}

// TestHealthCheckMarksFailedOnTimeout checks that a storage node whose
// heartbeat is older than the configured timeout flips to failed on the
// next health-check round (spec §4.7).
func TestHealthCheckMarksFailedOnTimeout(t *testing.T) {
	n := newTestNode(t, "md-timeout")
	n.staticConfig.HeartbeatTimeout = time.Millisecond

	n.ReceiveHeartbeat("sn-y", "127.0.0.1:1234", 100, 10)
	time.Sleep(5 * time.Millisecond)
	n.managedHealthCheckRound()

	sns := n.StorageNodes()
	require.Len(t, sns, 1)
	require.Equal(t, modules.StatusFailed, sns[0].Status)
}

// TestGossipPushRoundPropagates checks P1 at small scale: two nodes that
// exchange gossip converge on the same file record even though the create
// only happened on one of them.
func TestGossipPushRoundPropagates(t *testing.T) {
	a := newTestNode(t, "md-a")
	b := newTestNode(t, "md-b")

	a.managedRegisterPeer(modules.MetadataNode{ID: b.staticNodeID, Address: modules.NetAddress(b.listener.Addr().String())})
	b.managedRegisterPeer(modules.MetadataNode{ID: a.staticNodeID, Address: modules.NetAddress(a.listener.Addr().String())})

	newTestStorageNode(t, a, "sn-shared")

	f, err := a.UploadFile("alice", "shared.txt", []byte("hello"), nil)
	require.NoError(t, err)

	err = build.Retry(50, 20*time.Millisecond, func() error {
		a.managedGossipPushRound()
		_, ok, err := errFileLookup(b, f.ID)
		if err != nil {
			return err
		}
		if !ok {
			return errNotYetConverged
		}
		return nil
	})
	require.NoError(t, err)
}

var errNotYetConverged = errors.New("file has not yet converged")

func errFileLookup(n *Node, id string) (modules.File, bool, error) {
	var f modules.File
	var ok bool
	err := n.staticStore.View(func(tx modules.MetadataTx) error {
		var err error
		f, ok, err = tx.File(id)
		return err
	})
	return f, ok, err
}

// TestChunkLocationGossipEnablesCrossMNRepair checks §4.6's premise that
// repair does not depend on which metadata node coordinated the original
// write: a upload through node a must leave node b, which never saw the
// write, able to discover the chunk's location facts via gossip and top
// up its own storage node.
func TestChunkLocationGossipEnablesCrossMNRepair(t *testing.T) {
	a := newTestNode(t, "md-rep-a")
	b := newTestNode(t, "md-rep-b")

	a.managedRegisterPeer(modules.MetadataNode{ID: b.staticNodeID, Address: modules.NetAddress(b.listener.Addr().String())})
	b.managedRegisterPeer(modules.MetadataNode{ID: a.staticNodeID, Address: modules.NetAddress(a.listener.Addr().String())})

	newTestStorageNode(t, a, "sn-rep-a")
	newTestStorageNode(t, b, "sn-rep-b")

	f, err := a.UploadFile("alice", "repair.txt", []byte("redundant bytes"), nil)
	require.NoError(t, err)
	chunkID := f.ID + "-0"

	// Drive gossip from a to b until b has learned the file, the chunk,
	// the storage node that holds it, and the chunk's location facts.
	err = build.Retry(50, 20*time.Millisecond, func() error {
		a.managedGossipPushRound()

		if _, ok, err := errFileLookup(b, f.ID); err != nil {
			return err
		} else if !ok {
			return errNotYetConverged
		}
		locs, err := b.chunkLocations(chunkID)
		if err != nil {
			return err
		}
		if len(locs) == 0 {
			return errNotYetConverged
		}
		found := false
		for _, loc := range locs {
			if loc.NodeID == "sn-rep-a" {
				found = true
			}
		}
		if !found {
			return errNotYetConverged
		}
		active := b.activeStorageNodes()
		for _, sn := range active {
			if sn.ID == "sn-rep-a" {
				return nil
			}
		}
		return errNotYetConverged
	})
	require.NoError(t, err)

	// b never coordinated the write, but it now knows the chunk lives on
	// sn-rep-a; its own repair round should be able to use that as a
	// source to top up sn-rep-b, which it does know about locally.
	b.managedRepairRound()

	err = build.Retry(50, 20*time.Millisecond, func() error {
		locs, err := b.chunkLocations(chunkID)
		if err != nil {
			return err
		}
		for _, loc := range locs {
			if loc.NodeID == "sn-rep-b" {
				return nil
			}
		}
		b.managedRepairRound()
		return errNotYetConverged
	})
	require.NoError(t, err)
}
