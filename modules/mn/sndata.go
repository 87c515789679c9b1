package mn

import (
	"bytes"
	"net"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/redcloud/files/modules"
	"github.com/redcloud/files/modules/chunkstore"
)

// dialSN opens a data-surface connection to sn with deadline applied.
func dialSN(addr modules.NetAddress, deadline time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr.String(), deadline)
	if err != nil {
		return nil, err
	}
	conn.SetDeadline(time.Now().Add(deadline))
	return conn, nil
}

// snWriteChunk sends chunkID/data to addr over the MN->SN data surface
// (spec §6 write-chunk).
func snWriteChunk(addr modules.NetAddress, chunkID string, checksum [32]byte, data []byte, deadline time.Duration) error {
	conn, err := dialSN(addr, deadline)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := modules.RPCWrite(conn, modules.RPCWriteChunk); err != nil {
		return err
	}
	req := modules.WriteChunkRequest{ChunkID: chunkID, Size: int64(len(data)), Checksum: checksum}
	if err := modules.RPCWrite(conn, req); err != nil {
		return err
	}
	if err := modules.WritePieceStream(conn, data); err != nil {
		return err
	}
	var resp modules.WriteChunkResponse
	if err := modules.RPCRead(conn, &resp); err != nil {
		return err
	}
	if !resp.Stored {
		return modules.ErrChecksumMismatch
	}
	return nil
}

// snReadChunk fetches chunkID's bytes from addr (spec §6 read-chunk).
func snReadChunk(addr modules.NetAddress, chunkID string, deadline time.Duration) ([]byte, error) {
	conn, err := dialSN(addr, deadline)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

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

// snDeleteChunk asks addr to delete chunkID (spec §6 delete-chunk).
func snDeleteChunk(addr modules.NetAddress, chunkID string, deadline time.Duration) error {
	conn, err := dialSN(addr, deadline)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := modules.RPCWrite(conn, modules.RPCDeleteChunk); err != nil {
		return err
	}
	if err := modules.RPCWrite(conn, modules.DeleteChunkRequest{ChunkID: chunkID}); err != nil {
		return err
	}
	var resp modules.DeleteChunkResponse
	return modules.RPCRead(conn, &resp)
}

// snReplicateChunk asks target to pull chunkID from source (spec §6
// replicate-chunk, used by the repair loop).
func snReplicateChunk(target modules.NetAddress, chunkID string, source modules.NetAddress, checksum [32]byte, size int64, deadline time.Duration) error {
	conn, err := dialSN(target, deadline)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := modules.RPCWrite(conn, modules.RPCReplicateChunk); err != nil {
		return err
	}
	req := modules.ReplicateChunkRequest{ChunkID: chunkID, FromAddr: source, Checksum: checksum, Size: size}
	if err := modules.RPCWrite(conn, req); err != nil {
		return err
	}
	var resp modules.ReplicateChunkResponse
	if err := modules.RPCRead(conn, &resp); err != nil {
		return err
	}
	if !resp.Stored {
		return errors.New("replicate-chunk: target refused")
	}
	return nil
}

// verifyChecksum recomputes the checksum of data and compares it to want.
func verifyChecksum(data []byte, want [32]byte) bool {
	got, err := chunkstore.Checksum(data)
	if err != nil {
		return false
	}
	return bytes.Equal(got[:], want[:])
}
