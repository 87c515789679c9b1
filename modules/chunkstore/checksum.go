package chunkstore

import (
	"bytes"
	"crypto/sha256"

	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/merkletree"
)

// leafSize is the segment size used when building the Merkle tree over a
// chunk's bytes, matching the leaf size the teacher's storage-proof code
// uses for on-disk sector data.
const leafSize = 4096

// Checksum returns the Merkle root of data's leafSize-byte segments. Two
// chunks with identical bytes always produce identical checksums.
func Checksum(data []byte) ([32]byte, error) {
	var out [32]byte
	root, err := merkletree.ReaderRoot(bytes.NewReader(data), sha256.New(), leafSize)
	if err != nil {
		return out, errors.AddContext(err, "failed to compute chunk checksum")
	}
	copy(out[:], root)
	return out, nil
}
