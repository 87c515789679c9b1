package sn

import "github.com/redcloud/files/modules/chunkstore"

// verifyChecksum recomputes the checksum of data and compares it to want,
// mirroring the check the metadata node performs on the read path.
func verifyChecksum(data []byte, want [32]byte) bool {
	got, err := chunkstore.Checksum(data)
	if err != nil {
		return false
	}
	return got == want
}
