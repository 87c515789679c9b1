package sn

import (
	"net"
	"time"

	"github.com/uplo-tech/ratelimit"

	"github.com/redcloud/files/modules"
)

// threadedServeData accepts MN->SN and SN->SN data-surface connections
// (spec §6) until the thread group is stopped.
func (n *Node) threadedServeData() {
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
			rlConn := ratelimit.NewRLConn(n.staticMonitor.Monitor(conn), n.staticRL, n.staticTG.StopChan())
			n.managedHandleConn(rlConn)
		}()
	}
}

// managedHandleConn dispatches one data-surface RPC.
func (n *Node) managedHandleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(n.staticConfig.WriteDeadline))

	var rpcID string
	if err := modules.RPCRead(conn, &rpcID); err != nil {
		return
	}

	switch rpcID {
	case modules.RPCWriteChunk:
		n.managedHandleWriteChunk(conn)
	case modules.RPCReadChunk:
		n.managedHandleReadChunk(conn)
	case modules.RPCDeleteChunk:
		n.managedHandleDeleteChunk(conn)
	case modules.RPCListChunks:
		n.managedHandleListChunks(conn)
	case modules.RPCReplicateChunk:
		n.managedHandleReplicateChunk(conn)
	case modules.RPCPing:
		modules.RPCWrite(conn, modules.PingResponse{})
	default:
		n.staticLog.Debugln("unknown data-surface RPC:", rpcID)
	}
}

// managedHandleWriteChunk accepts a chunk write (spec §6 write-chunk,
// §5 idempotent-by-chunk-id policy).
func (n *Node) managedHandleWriteChunk(conn net.Conn) {
	var req modules.WriteChunkRequest
	if err := modules.RPCRead(conn, &req); err != nil {
		return
	}
	data, err := modules.ReadPieceStream(conn)
	if err != nil {
		return
	}
	if !verifyChecksum(data, req.Checksum) {
		modules.RPCWrite(conn, modules.WriteChunkResponse{Stored: false})
		return
	}
	err = n.staticStore.Write(req.ChunkID, data)
	if err != nil && err != modules.ErrConflict {
		n.staticLog.Println("ERROR: chunk store write failed for", req.ChunkID, ":", err)
		modules.RPCWrite(conn, modules.WriteChunkResponse{Stored: false})
		return
	}
	modules.RPCWrite(conn, modules.WriteChunkResponse{Stored: err == nil})
}

// managedHandleReadChunk streams a chunk's bytes back (spec §6 read-chunk).
func (n *Node) managedHandleReadChunk(conn net.Conn) {
	var req modules.ReadChunkRequest
	if err := modules.RPCRead(conn, &req); err != nil {
		return
	}
	data, err := n.staticStore.Read(req.ChunkID)
	if err != nil {
		modules.RPCWrite(conn, modules.ReadChunkResponse{Found: false})
		return
	}
	if err := modules.RPCWrite(conn, modules.ReadChunkResponse{Size: int64(len(data)), Found: true}); err != nil {
		return
	}
	modules.WritePieceStream(conn, data)
}

// managedHandleDeleteChunk removes a chunk (spec §6 delete-chunk).
func (n *Node) managedHandleDeleteChunk(conn net.Conn) {
	var req modules.DeleteChunkRequest
	if err := modules.RPCRead(conn, &req); err != nil {
		return
	}
	had, _ := n.staticStore.Has(req.ChunkID)
	err := n.staticStore.Delete(req.ChunkID)
	modules.RPCWrite(conn, modules.DeleteChunkResponse{Deleted: err == nil && had})
}

// managedHandleListChunks returns the full chunk inventory (spec §6
// list-chunks). Only ChunkID is set in each summary; the other summary
// fields are left zero, since that metadata is authoritative on the MN
// side.
func (n *Node) managedHandleListChunks(conn net.Conn) {
	ids, err := n.staticStore.List()
	if err != nil {
		modules.RPCWrite(conn, modules.ListChunksResponse{})
		return
	}
	out := make([]modules.ChunkSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, modules.ChunkSummary{ChunkID: id})
	}
	modules.RPCWrite(conn, modules.ListChunksResponse{Chunks: out})
}

// managedHandleReplicateChunk pulls a chunk from source and stores it
// locally (spec §6 replicate-chunk, §4.6 repair).
func (n *Node) managedHandleReplicateChunk(conn net.Conn) {
	var req modules.ReplicateChunkRequest
	if err := modules.RPCRead(conn, &req); err != nil {
		return
	}

	has, _ := n.staticStore.Has(req.ChunkID)
	if has {
		modules.RPCWrite(conn, modules.ReplicateChunkResponse{Stored: true})
		return
	}

	data, err := n.fetchChunkFromPeer(req.FromAddr, req.ChunkID, n.staticConfig.ReadDeadline)
	if err != nil {
		n.staticLog.Debugln("replicate pull of", req.ChunkID, "from", req.FromAddr, "failed:", err)
		modules.RPCWrite(conn, modules.ReplicateChunkResponse{Stored: false})
		return
	}
	if !verifyChecksum(data, req.Checksum) {
		modules.RPCWrite(conn, modules.ReplicateChunkResponse{Stored: false})
		return
	}
	if err := n.staticStore.Write(req.ChunkID, data); err != nil && err != modules.ErrConflict {
		modules.RPCWrite(conn, modules.ReplicateChunkResponse{Stored: false})
		return
	}
	modules.RPCWrite(conn, modules.ReplicateChunkResponse{Stored: true})
}

// fetchChunkFromPeer performs an SN-to-SN read-chunk call (spec §4.6
// step 4: "SN-to-SN byte copy").
func (n *Node) fetchChunkFromPeer(addr modules.NetAddress, chunkID string, deadline time.Duration) ([]byte, error) {
	dialed, err := net.DialTimeout("tcp", addr.String(), deadline)
	if err != nil {
		return nil, err
	}
	conn := ratelimit.NewRLConn(dialed, n.staticRL, n.staticTG.StopChan())
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(deadline))

	if err := modules.RPCWrite(conn, modules.RPCReadChunk); err != nil {
		return nil, err
	}
	if err := modules.RPCWrite(conn, modules.ReadChunkRequest{ChunkID: chunkID}); err != nil {
		return nil, err
	}
	var resp modules.ReadChunkResponse
	if err := modules.RPCRead(conn, &resp); err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, modules.ErrNotFound
	}
	return modules.ReadPieceStream(conn)
}
