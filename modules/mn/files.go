package mn

import (
	"strconv"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/redcloud/files/modules"
	"github.com/redcloud/files/persist"
)

// UploadFile splits data into fixed-size chunks, writes every chunk to
// every active SN, and commits a new File + TagSet (spec §4.5 "Data/
// control flow for a write"). Open question O1: if ownerID already has a
// live file named name, the new file is retained under a distinct id with
// a disambiguated name rather than rejected or hidden (spec §9 O1).
func (n *Node) UploadFile(ownerID, name string, data []byte, tags []string) (modules.File, error) {
	if len(n.activeStorageNodes()) == 0 {
		return modules.File{}, modules.ErrNoCapacity
	}

	name, err := n.disambiguateName(ownerID, name)
	if err != nil {
		return modules.File{}, err
	}

	now := time.Now()
	fileID := persist.UID()

	chunkSize := n.staticConfig.ChunkSize
	var ordinal int
	var writtenChunkIDs []string
	for offset := int64(0); offset < int64(len(data)) || (len(data) == 0 && ordinal == 0); offset += chunkSize {
		end := offset + chunkSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		piece := data[offset:end]

		checksum, err := chunkChecksum(piece)
		if err != nil {
			return modules.File{}, errors.AddContext(err, "failed to checksum chunk")
		}
		chunkID := fileID + "-" + strconv.Itoa(ordinal)
		chunk := modules.Chunk{
			ID:      chunkID,
			FileID:  fileID,
			Ordinal: ordinal,
			Size:    int64(len(piece)),
			Checksum: checksum,
			Meta:    modules.NewEntityMeta(n.staticNodeID, now),
		}
		if err := n.managedWriteChunk(chunk, piece); err != nil {
			n.managedCompensateChunks(writtenChunkIDs)
			return modules.File{}, err
		}
		writtenChunkIDs = append(writtenChunkIDs, chunkID)
		ordinal++
		if len(data) == 0 {
			break
		}
	}

	f := modules.File{
		ID:         fileID,
		OwnerID:    ownerID,
		Name:       name,
		Size:       int64(len(data)),
		ChunkCount: ordinal,
		Meta:       modules.NewEntityMeta(n.staticNodeID, now),
	}
	ts := modules.NewTagSet(fileID)
	for _, t := range tags {
		ts.Tags[t] = struct{}{}
	}
	ts.Meta = modules.NewEntityMeta(n.staticNodeID, now)

	err = n.staticStore.Update(func(tx modules.MetadataTx) error {
		if err := tx.PutFile(f); err != nil {
			return err
		}
		if err := tx.PutTagSet(ts); err != nil {
			return err
		}
		if _, err := tx.AppendGossip(modules.GossipEntry{
			Kind: modules.KindFile, EntityID: f.ID, Op: modules.OpCreate,
			Payload: encodePayload(f), OriginClock: f.Meta.VClock, EmittedAt: now,
		}); err != nil {
			return err
		}
		_, err := tx.AppendGossip(modules.GossipEntry{
			Kind: modules.KindTagSet, EntityID: ts.FileID, Op: modules.OpCreate,
			Payload: encodePayload(ts), OriginClock: ts.Meta.VClock, EmittedAt: now,
		})
		return err
	})
	if err != nil {
		n.managedCompensateChunks(writtenChunkIDs)
		return modules.File{}, errors.AddContext(err, "failed to commit file metadata")
	}
	return f, nil
}

// disambiguateName returns name unchanged if ownerID has no live file
// under that name, or a suffixed variant otherwise (spec §3, §9 O1).
func (n *Node) disambiguateName(ownerID, name string) (string, error) {
	var taken bool
	err := n.staticStore.View(func(tx modules.MetadataTx) error {
		files, err := tx.FilesByOwner(ownerID)
		if err != nil {
			return err
		}
		for _, f := range files {
			if !f.Deleted && f.Name == name {
				taken = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !taken {
		return name, nil
	}
	return name + "-" + persist.RandomSuffix(), nil
}

// managedCompensateChunks best-effort deletes every chunk id in ids after
// a failed upload (spec §4.5 step 6).
func (n *Node) managedCompensateChunks(ids []string) {
	for _, id := range ids {
		if err := n.managedDeleteChunk(id); err != nil {
			n.staticLog.Debugln("compensating delete of", id, "failed:", err)
		}
	}
}

// DownloadFile reassembles a file's bytes from its chunks in ordinal
// order (spec invariant I4).
func (n *Node) DownloadFile(fileID string) ([]byte, error) {
	var f modules.File
	err := n.staticStore.View(func(tx modules.MetadataTx) error {
		var ok bool
		var err error
		f, ok, err = tx.File(fileID)
		if err != nil {
			return err
		}
		if !ok || f.Deleted {
			return modules.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, f.Size)
	for ordinal := 0; ordinal < f.ChunkCount; ordinal++ {
		chunkID := fileID + "-" + strconv.Itoa(ordinal)
		data, err := n.managedReadChunk(chunkID)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	return out, nil
}

// DeleteFile soft-deletes fileID and enqueues SN deletes for every chunk
// it owns (spec §4.5 delete path).
func (n *Node) DeleteFile(fileID string) error {
	now := time.Now()
	var f modules.File
	err := n.staticStore.Update(func(tx modules.MetadataTx) error {
		var ok bool
		var err error
		f, ok, err = tx.File(fileID)
		if err != nil {
			return err
		}
		if !ok {
			return modules.ErrNotFound
		}
		if f.Deleted {
			return nil
		}
		f.Deleted = true
		f.DeletedAt = now
		f.Meta = f.Meta.Bump(n.staticNodeID, now)
		if err := tx.PutFile(f); err != nil {
			return err
		}
		_, err = tx.AppendGossip(modules.GossipEntry{
			Kind: modules.KindFile, EntityID: f.ID, Op: modules.OpSoftDelete,
			Payload: encodePayload(f), OriginClock: f.Meta.VClock, EmittedAt: now,
		})
		return err
	})
	if err != nil {
		return err
	}

	for ordinal := 0; ordinal < f.ChunkCount; ordinal++ {
		chunkID := fileID + "-" + strconv.Itoa(ordinal)
		if err := n.managedDeleteChunk(chunkID); err != nil {
			n.staticLog.Debugln("delete of chunk", chunkID, "failed:", err)
		}
	}
	return nil
}

// AddTag adds tag to fileID's tag set (spec §4.2 tag set union rule
// applies once this update meets a concurrent one via gossip).
func (n *Node) AddTag(fileID, tag string) error {
	return n.mutateTagSet(fileID, func(ts *modules.TagSet) {
		delete(ts.Tombstoned, tag)
		ts.Tags[tag] = struct{}{}
	})
}

// RemoveTag tombstones tag on fileID's tag set so it cannot be
// resurrected by a concurrent stale add (spec §4.2).
func (n *Node) RemoveTag(fileID, tag string) error {
	return n.mutateTagSet(fileID, func(ts *modules.TagSet) {
		delete(ts.Tags, tag)
		ts.Tombstoned[tag] = time.Now()
	})
}

func (n *Node) mutateTagSet(fileID string, mutate func(*modules.TagSet)) error {
	now := time.Now()
	return n.staticStore.Update(func(tx modules.MetadataTx) error {
		ts, ok, err := tx.TagSetForFile(fileID)
		if err != nil {
			return err
		}
		if !ok {
			ts = modules.NewTagSet(fileID)
		}
		mutate(&ts)
		ts.Meta = ts.Meta.Bump(n.staticNodeID, now)
		if err := tx.PutTagSet(ts); err != nil {
			return err
		}
		_, err = tx.AppendGossip(modules.GossipEntry{
			Kind: modules.KindTagSet, EntityID: fileID, Op: modules.OpUpdate,
			Payload: encodePayload(ts), OriginClock: ts.Meta.VClock, EmittedAt: now,
		})
		return err
	})
}

// FilesByTag lists every live file id owned by ownerID carrying tag (spec
// invariant I5: soft-deleted files never appear).
func (n *Node) FilesByTag(ownerID, tag string) ([]string, error) {
	var out []string
	err := n.staticStore.View(func(tx modules.MetadataTx) error {
		var err error
		out, err = tx.FilesByTag(ownerID, tag)
		return err
	})
	return out, err
}

