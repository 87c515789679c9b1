package sn

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/redcloud/files/build"
	"github.com/redcloud/files/modules"
	"github.com/redcloud/files/modules/chunkstore"
	"github.com/redcloud/files/persist"
)

func newTestNode(t *testing.T) (*Node, string) {
	t.Helper()
	store, err := chunkstore.New(build.TempDir("sn", t.Name()))
	require.NoError(t, err)
	log, err := persist.NewLogger(io.Discard)
	require.NoError(t, err)

	cfg := modules.Config{OwnNodeID: "sn-test"}.FillDefaults()
	n := New(cfg, store, log)
	require.NoError(t, n.Run("127.0.0.1:0"))
	t.Cleanup(func() { n.Close() })
	return n, n.listener.Addr().String()
}

func dialRPC(t *testing.T, addr, rpcID string, deadline time.Duration) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, deadline)
	require.NoError(t, err)
	conn.SetDeadline(time.Now().Add(deadline))
	require.NoError(t, modules.RPCWrite(conn, rpcID))
	return conn
}

func TestWriteReadDeleteRoundtrip(t *testing.T) {
	_, addr := newTestNode(t)
	data := []byte("hello storage node")
	sum, err := chunkstore.Checksum(data)
	require.NoError(t, err)

	conn := dialRPC(t, addr, modules.RPCWriteChunk, time.Second)
	require.NoError(t, modules.RPCWrite(conn, modules.WriteChunkRequest{ChunkID: "c1", Size: int64(len(data)), Checksum: sum}))
	require.NoError(t, modules.WritePieceStream(conn, data))
	var wresp modules.WriteChunkResponse
	require.NoError(t, modules.RPCRead(conn, &wresp))
	conn.Close()
	require.True(t, wresp.Stored)

	conn = dialRPC(t, addr, modules.RPCReadChunk, time.Second)
	require.NoError(t, modules.RPCWrite(conn, modules.ReadChunkRequest{ChunkID: "c1"}))
	var rresp modules.ReadChunkResponse
	require.NoError(t, modules.RPCRead(conn, &rresp))
	require.True(t, rresp.Found)
	got, err := modules.ReadPieceStream(conn)
	conn.Close()
	require.NoError(t, err)
	require.Equal(t, data, got)

	conn = dialRPC(t, addr, modules.RPCDeleteChunk, time.Second)
	require.NoError(t, modules.RPCWrite(conn, modules.DeleteChunkRequest{ChunkID: "c1"}))
	var dresp modules.DeleteChunkResponse
	require.NoError(t, modules.RPCRead(conn, &dresp))
	conn.Close()
	require.True(t, dresp.Deleted)

	conn = dialRPC(t, addr, modules.RPCReadChunk, time.Second)
	require.NoError(t, modules.RPCWrite(conn, modules.ReadChunkRequest{ChunkID: "c1"}))
	require.NoError(t, modules.RPCRead(conn, &rresp))
	conn.Close()
	require.False(t, rresp.Found)
}

func TestWriteBadChecksumRejected(t *testing.T) {
	_, addr := newTestNode(t)
	data := []byte("payload")
	var badSum [32]byte

	conn := dialRPC(t, addr, modules.RPCWriteChunk, time.Second)
	require.NoError(t, modules.RPCWrite(conn, modules.WriteChunkRequest{ChunkID: "c1", Size: int64(len(data)), Checksum: badSum}))
	require.NoError(t, modules.WritePieceStream(conn, data))
	var resp modules.WriteChunkResponse
	require.NoError(t, modules.RPCRead(conn, &resp))
	conn.Close()
	require.False(t, resp.Stored)
}

func TestReplicateChunkPullsFromSource(t *testing.T) {
	source, sourceAddr := newTestNode(t)
	_, targetAddr := newTestNode(t)

	data := []byte("replicated bytes")
	sum, err := chunkstore.Checksum(data)
	require.NoError(t, err)
	require.NoError(t, source.staticStore.Write("shared-chunk", data))

	conn := dialRPC(t, targetAddr, modules.RPCReplicateChunk, time.Second)
	require.NoError(t, modules.RPCWrite(conn, modules.ReplicateChunkRequest{
		ChunkID:  "shared-chunk",
		FromAddr: modules.NetAddress(sourceAddr),
		Checksum: sum,
		Size:     int64(len(data)),
	}))
	var resp modules.ReplicateChunkResponse
	require.NoError(t, modules.RPCRead(conn, &resp))
	conn.Close()
	require.True(t, resp.Stored)
}

func TestPing(t *testing.T) {
	_, addr := newTestNode(t)
	conn := dialRPC(t, addr, modules.RPCPing, time.Second)
	var resp modules.PingResponse
	require.NoError(t, modules.RPCRead(conn, &resp))
	conn.Close()
}
