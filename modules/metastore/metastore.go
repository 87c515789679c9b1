// Package metastore implements modules.MetadataStore on top of an
// embedded bolt database, one bucket per entity table, following the
// bucket-per-table layout used throughout the teacher's consensus set
// database.
package metastore

import (
	"encoding/binary"
	"path/filepath"

	"github.com/uplo-tech/bolt"
	"github.com/uplo-tech/encoding"
	"github.com/uplo-tech/errors"

	"github.com/redcloud/files/modules"
)

var (
	bucketUsers          = []byte("Users")
	bucketUsersByName    = []byte("UsersByName")
	bucketFiles          = []byte("Files")
	bucketFilesByOwner   = []byte("FilesByOwner")
	bucketTagSets        = []byte("TagSets")
	bucketChunks         = []byte("Chunks")
	bucketChunkLocations = []byte("ChunkLocations")
	bucketStorageNodes   = []byte("StorageNodes")
	bucketMetadataNodes  = []byte("MetadataNodes")
	bucketGossipLog      = []byte("GossipLog")
	bucketMeta           = []byte("Meta")

	keyLastSeq = []byte("LastSeq")
)

var allBuckets = [][]byte{
	bucketUsers, bucketUsersByName, bucketFiles, bucketFilesByOwner,
	bucketTagSets, bucketChunks, bucketChunkLocations, bucketStorageNodes,
	bucketMetadataNodes, bucketGossipLog, bucketMeta,
}

// Store is a bolt-backed modules.MetadataStore.
type Store struct {
	db *bolt.DB
}

// New opens (creating if necessary) the bolt database at dir/metadata.db
// and ensures every table bucket exists.
func New(dir string) (*Store, error) {
	db, err := bolt.Open(filepath.Join(dir, "metadata.db"), 0600, nil)
	if err != nil {
		return nil, errors.AddContext(err, "failed to open metadata database")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.AddContext(err, "failed to initialize metadata buckets")
	}
	return &Store{db: db}, nil
}

// Close implements modules.MetadataStore.
func (s *Store) Close() error {
	return s.db.Close()
}

// Update implements modules.MetadataStore.
func (s *Store) Update(fn func(modules.MetadataTx) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// View implements modules.MetadataStore.
func (s *Store) View(fn func(modules.MetadataTx) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

// boltTx implements modules.MetadataTx against a single bolt transaction.
type boltTx struct {
	tx *bolt.Tx
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func seqFromKey(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func (b *boltTx) User(id string) (modules.User, bool, error) {
	var u modules.User
	raw := b.tx.Bucket(bucketUsers).Get([]byte(id))
	if raw == nil {
		return u, false, nil
	}
	if err := encoding.Unmarshal(raw, &u); err != nil {
		return u, false, errors.AddContext(err, "failed to decode user")
	}
	return u, true, nil
}

func (b *boltTx) UserByName(username string) (modules.User, bool, error) {
	id := b.tx.Bucket(bucketUsersByName).Get([]byte(username))
	if id == nil {
		return modules.User{}, false, nil
	}
	return b.User(string(id))
}

func (b *boltTx) PutUser(u modules.User) error {
	if err := b.tx.Bucket(bucketUsers).Put([]byte(u.ID), encoding.Marshal(u)); err != nil {
		return err
	}
	return b.tx.Bucket(bucketUsersByName).Put([]byte(u.Username), []byte(u.ID))
}

func (b *boltTx) File(id string) (modules.File, bool, error) {
	var f modules.File
	raw := b.tx.Bucket(bucketFiles).Get([]byte(id))
	if raw == nil {
		return f, false, nil
	}
	if err := encoding.Unmarshal(raw, &f); err != nil {
		return f, false, errors.AddContext(err, "failed to decode file")
	}
	return f, true, nil
}

func (b *boltTx) FilesByOwner(ownerID string) ([]modules.File, error) {
	raw := b.tx.Bucket(bucketFilesByOwner).Get([]byte(ownerID))
	if raw == nil {
		return nil, nil
	}
	var ids []string
	if err := encoding.Unmarshal(raw, &ids); err != nil {
		return nil, errors.AddContext(err, "failed to decode owner file index")
	}
	out := make([]modules.File, 0, len(ids))
	for _, id := range ids {
		f, ok, err := b.File(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (b *boltTx) AllFiles() ([]modules.File, error) {
	var out []modules.File
	err := b.tx.Bucket(bucketFiles).ForEach(func(k, v []byte) error {
		var f modules.File
		if err := encoding.Unmarshal(v, &f); err != nil {
			return err
		}
		out = append(out, f)
		return nil
	})
	return out, err
}

func (b *boltTx) PutFile(f modules.File) error {
	if err := b.tx.Bucket(bucketFiles).Put([]byte(f.ID), encoding.Marshal(f)); err != nil {
		return err
	}
	bkt := b.tx.Bucket(bucketFilesByOwner)
	raw := bkt.Get([]byte(f.OwnerID))
	var ids []string
	if raw != nil {
		if err := encoding.Unmarshal(raw, &ids); err != nil {
			return errors.AddContext(err, "failed to decode owner file index")
		}
	}
	for _, id := range ids {
		if id == f.ID {
			return nil
		}
	}
	ids = append(ids, f.ID)
	return bkt.Put([]byte(f.OwnerID), encoding.Marshal(ids))
}

func (b *boltTx) TagSetForFile(fileID string) (modules.TagSet, bool, error) {
	var ts modules.TagSet
	raw := b.tx.Bucket(bucketTagSets).Get([]byte(fileID))
	if raw == nil {
		return ts, false, nil
	}
	if err := encoding.Unmarshal(raw, &ts); err != nil {
		return ts, false, errors.AddContext(err, "failed to decode tag set")
	}
	return ts, true, nil
}

func (b *boltTx) PutTagSet(ts modules.TagSet) error {
	return b.tx.Bucket(bucketTagSets).Put([]byte(ts.FileID), encoding.Marshal(ts))
}

func (b *boltTx) FilesByTag(ownerID, tag string) ([]string, error) {
	files, err := b.FilesByOwner(ownerID)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range files {
		ts, ok, err := b.TagSetForFile(f.ID)
		if err != nil {
			return nil, err
		}
		if !ok || f.Deleted {
			continue
		}
		if _, has := ts.Tags[tag]; has {
			out = append(out, f.ID)
		}
	}
	return out, nil
}

func (b *boltTx) Chunk(id string) (modules.Chunk, bool, error) {
	var c modules.Chunk
	raw := b.tx.Bucket(bucketChunks).Get([]byte(id))
	if raw == nil {
		return c, false, nil
	}
	if err := encoding.Unmarshal(raw, &c); err != nil {
		return c, false, errors.AddContext(err, "failed to decode chunk")
	}
	return c, true, nil
}

func (b *boltTx) PutChunk(c modules.Chunk) error {
	return b.tx.Bucket(bucketChunks).Put([]byte(c.ID), encoding.Marshal(c))
}

func (b *boltTx) ChunkLocations(chunkID string) ([]modules.ChunkLocation, error) {
	raw := b.tx.Bucket(bucketChunkLocations).Get([]byte(chunkID))
	if raw == nil {
		return nil, nil
	}
	var locs []modules.ChunkLocation
	if err := encoding.Unmarshal(raw, &locs); err != nil {
		return nil, errors.AddContext(err, "failed to decode chunk locations")
	}
	return locs, nil
}

func (b *boltTx) putChunkLocations(chunkID string, locs []modules.ChunkLocation) error {
	return b.tx.Bucket(bucketChunkLocations).Put([]byte(chunkID), encoding.Marshal(locs))
}

func (b *boltTx) PutChunkLocation(loc modules.ChunkLocation) error {
	locs, err := b.ChunkLocations(loc.ChunkID)
	if err != nil {
		return err
	}
	for _, l := range locs {
		if l.NodeID == loc.NodeID {
			return nil
		}
	}
	locs = append(locs, loc)
	return b.putChunkLocations(loc.ChunkID, locs)
}

func (b *boltTx) DeleteChunkLocation(chunkID, nodeID string) error {
	locs, err := b.ChunkLocations(chunkID)
	if err != nil {
		return err
	}
	out := locs[:0]
	for _, l := range locs {
		if l.NodeID != nodeID {
			out = append(out, l)
		}
	}
	return b.putChunkLocations(chunkID, out)
}

func (b *boltTx) StorageNode(id string) (modules.StorageNode, bool, error) {
	var sn modules.StorageNode
	raw := b.tx.Bucket(bucketStorageNodes).Get([]byte(id))
	if raw == nil {
		return sn, false, nil
	}
	if err := encoding.Unmarshal(raw, &sn); err != nil {
		return sn, false, errors.AddContext(err, "failed to decode storage node")
	}
	return sn, true, nil
}

func (b *boltTx) AllStorageNodes() ([]modules.StorageNode, error) {
	var out []modules.StorageNode
	err := b.tx.Bucket(bucketStorageNodes).ForEach(func(k, v []byte) error {
		var sn modules.StorageNode
		if err := encoding.Unmarshal(v, &sn); err != nil {
			return err
		}
		out = append(out, sn)
		return nil
	})
	return out, err
}

func (b *boltTx) PutStorageNode(sn modules.StorageNode) error {
	return b.tx.Bucket(bucketStorageNodes).Put([]byte(sn.ID), encoding.Marshal(sn))
}

func (b *boltTx) MetadataNode(id string) (modules.MetadataNode, bool, error) {
	var mn modules.MetadataNode
	raw := b.tx.Bucket(bucketMetadataNodes).Get([]byte(id))
	if raw == nil {
		return mn, false, nil
	}
	if err := encoding.Unmarshal(raw, &mn); err != nil {
		return mn, false, errors.AddContext(err, "failed to decode metadata node")
	}
	return mn, true, nil
}

func (b *boltTx) AllMetadataNodes() ([]modules.MetadataNode, error) {
	var out []modules.MetadataNode
	err := b.tx.Bucket(bucketMetadataNodes).ForEach(func(k, v []byte) error {
		var mn modules.MetadataNode
		if err := encoding.Unmarshal(v, &mn); err != nil {
			return err
		}
		out = append(out, mn)
		return nil
	})
	return out, err
}

func (b *boltTx) PutMetadataNode(mn modules.MetadataNode) error {
	return b.tx.Bucket(bucketMetadataNodes).Put([]byte(mn.ID), encoding.Marshal(mn))
}

func (b *boltTx) LastSeq() (uint64, error) {
	raw := b.tx.Bucket(bucketMeta).Get(keyLastSeq)
	if raw == nil {
		return 0, nil
	}
	var seq uint64
	if err := encoding.Unmarshal(raw, &seq); err != nil {
		return 0, errors.AddContext(err, "failed to decode last sequence number")
	}
	return seq, nil
}

func (b *boltTx) AppendGossip(entry modules.GossipEntry) (uint64, error) {
	last, err := b.LastSeq()
	if err != nil {
		return 0, err
	}
	entry.Seq = last + 1
	if err := b.tx.Bucket(bucketGossipLog).Put(seqKey(entry.Seq), encoding.Marshal(entry)); err != nil {
		return 0, err
	}
	if err := b.tx.Bucket(bucketMeta).Put(keyLastSeq, encoding.Marshal(entry.Seq)); err != nil {
		return 0, err
	}
	return entry.Seq, nil
}

func (b *boltTx) PutGossipEntry(entry modules.GossipEntry) error {
	return b.tx.Bucket(bucketGossipLog).Put(seqKey(entry.Seq), encoding.Marshal(entry))
}

func (b *boltTx) GossipEntryAt(seq uint64) (modules.GossipEntry, bool, error) {
	var e modules.GossipEntry
	raw := b.tx.Bucket(bucketGossipLog).Get(seqKey(seq))
	if raw == nil {
		return e, false, nil
	}
	if err := encoding.Unmarshal(raw, &e); err != nil {
		return e, false, errors.AddContext(err, "failed to decode gossip entry")
	}
	return e, true, nil
}

func (b *boltTx) GossipSince(after uint64, limit int) ([]modules.GossipEntry, error) {
	var out []modules.GossipEntry
	c := b.tx.Bucket(bucketGossipLog).Cursor()
	for k, v := c.Seek(seqKey(after + 1)); k != nil; k, v = c.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var e modules.GossipEntry
		if err := encoding.Unmarshal(v, &e); err != nil {
			return nil, errors.AddContext(err, "failed to decode gossip entry")
		}
		if seqFromKey(k) <= after {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
