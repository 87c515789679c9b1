package modules

import (
	"io"
	"net"

	"github.com/uplo-tech/encoding"
)

// rpcMaxLen bounds a single request/response object read off an RPC
// connection. It is generous enough for a full gossip batch but rejects a
// misbehaving peer trying to OOM a node with a bogus length prefix.
const rpcMaxLen = 64e6

// pieceMaxLen bounds a raw chunk-byte stream, independent of ChunkSize so a
// node with a smaller configured chunk size still accepts chunks written
// under the default.
const pieceMaxLen = 64e6

// RPCRead decodes the next length-prefixed object on conn into v. It is used
// for every request, response, and RPC identifier exchanged across both the
// metadata control surface (spec §4) and the storage data surface (spec
// §6).
func RPCRead(conn net.Conn, v interface{}) error {
	return encoding.ReadObject(conn, v, rpcMaxLen)
}

// RPCWrite encodes v as a length-prefixed object and writes it to conn.
func RPCWrite(conn net.Conn, v interface{}) error {
	return encoding.WriteObject(conn, v)
}

// WritePieceStream writes data to conn as a length-prefixed byte stream,
// used for chunk bytes once the surrounding request/response has already
// been exchanged (spec §6 write-chunk, read-chunk).
func WritePieceStream(conn net.Conn, data []byte) error {
	return encoding.WriteObject(conn, data)
}

// ReadPieceStream reads a length-prefixed byte stream off conn.
func ReadPieceStream(conn net.Conn) ([]byte, error) {
	var data []byte
	if err := encoding.ReadObject(conn, &data, pieceMaxLen); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return data, nil
}

// Control-surface RPC identifiers, exchanged between metadata nodes (spec
// §4.3 gossip push, anti-entropy; §4.4 bootstrap hello).
const (
	RPCGossipPush  = "GossipPush"
	RPCAntiEntropy = "AntiEntropy"
	RPCPeerHello   = "PeerHello"
)

// Data-surface RPC identifiers, exchanged between a metadata node and a
// storage node, or between two storage nodes during repair (spec §6).
const (
	RPCWriteChunk     = "WriteChunk"
	RPCReadChunk      = "ReadChunk"
	RPCDeleteChunk    = "DeleteChunk"
	RPCListChunks     = "ListChunks"
	RPCReplicateChunk = "ReplicateChunk"
	RPCPing           = "Ping"
)

// GossipPushRequest is the body of a push-gossip RPC (spec §4.3 step 3).
type GossipPushRequest struct {
	FromNodeID string        `json:"fromNodeId"`
	Entries    []GossipEntry `json:"entries"`
}

// GossipPushResponse acknowledges a GossipPushRequest.
type GossipPushResponse struct {
	Applied int `json:"applied"`
}

// AntiEntropyRequest carries the sending side's last-seen sequence number.
// It is reused for both directions of the anti-entropy exchange (spec
// §4.3 steps 2-4): the initiator sends its own HaveSeq, and the responder
// echoes back its own HaveSeq using the same type before both sides ship
// the entries the other is missing.
type AntiEntropyRequest struct {
	FromNodeID string `json:"fromNodeId"`
	HaveSeq    uint64 `json:"haveSeq"`
}

// AntiEntropyResponse carries every gossip entry the sender has beyond
// whatever sequence number the other side reported (spec §4.3 step 5).
type AntiEntropyResponse struct {
	Entries []GossipEntry `json:"entries"`
}

// PeerHelloRequest is the body of a bootstrap hello (spec §4.4).
type PeerHelloRequest struct {
	Self MetadataNode `json:"self"`
}

// PeerHelloResponse replies with the callee's own registry record.
type PeerHelloResponse struct {
	Self MetadataNode `json:"self"`
}

// WriteChunkRequest precedes the raw chunk bytes on a write-chunk RPC
// (spec §6).
type WriteChunkRequest struct {
	ChunkID  string   `json:"chunkId"`
	Size     int64    `json:"size"`
	Checksum [32]byte `json:"checksum"`
}

// WriteChunkResponse reports whether the bytes were accepted and stored.
type WriteChunkResponse struct {
	Stored bool `json:"stored"`
}

// ReadChunkRequest is the body of a read-chunk RPC.
type ReadChunkRequest struct {
	ChunkID string `json:"chunkId"`
}

// ReadChunkResponse precedes the raw chunk bytes on a read-chunk RPC, or
// reports Found=false with no following stream.
type ReadChunkResponse struct {
	Size  int64 `json:"size"`
	Found bool  `json:"found"`
}

// DeleteChunkRequest is the body of a delete-chunk RPC.
type DeleteChunkRequest struct {
	ChunkID string `json:"chunkId"`
}

// DeleteChunkResponse reports whether a chunk was actually removed.
type DeleteChunkResponse struct {
	Deleted bool `json:"deleted"`
}

// ListChunksResponse is the body of a list-chunks RPC response.
type ListChunksResponse struct {
	Chunks []ChunkSummary `json:"chunks"`
}

// ReplicateChunkRequest asks the callee to pull a chunk from another
// storage node (spec §4.6 repair step 4, §6 replicate-chunk).
type ReplicateChunkRequest struct {
	ChunkID  string     `json:"chunkId"`
	FromAddr NetAddress `json:"fromAddr"`
	Checksum [32]byte   `json:"checksum"`
	Size     int64      `json:"size"`
}

// ReplicateChunkResponse reports whether the callee now holds the chunk,
// whether because it already did or because the pull succeeded.
type ReplicateChunkResponse struct {
	Stored bool `json:"stored"`
}

// PingResponse is the empty body of a ping RPC response, used by the
// storage node tests to check a storage node's data surface is alive.
type PingResponse struct{}
