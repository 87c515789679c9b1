package metastore

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/redcloud/files/build"
	"github.com/redcloud/files/modules"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := build.TempDir("metastore", t.Name())
	require.NoError(t, os.MkdirAll(dir, 0700))
	s, err := New(dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutAndGetFile(t *testing.T) {
	s := newTestStore(t)
	f := modules.File{ID: "f1", OwnerID: "u1", Name: "a.txt", Meta: modules.NewEntityMeta("n1", time.Unix(1, 0))}

	require.NoError(t, s.Update(func(tx modules.MetadataTx) error {
		return tx.PutFile(f)
	}))

	var got modules.File
	require.NoError(t, s.View(func(tx modules.MetadataTx) error {
		var ok bool
		var err error
		got, ok, err = tx.File("f1")
		require.True(t, ok)
		return err
	}))
	require.Equal(t, f.Name, got.Name)
}

func TestFilesByOwnerIndexDedupes(t *testing.T) {
	s := newTestStore(t)
	f := modules.File{ID: "f1", OwnerID: "u1", Name: "a.txt"}

	require.NoError(t, s.Update(func(tx modules.MetadataTx) error {
		require.NoError(t, tx.PutFile(f))
		return tx.PutFile(f)
	}))

	require.NoError(t, s.View(func(tx modules.MetadataTx) error {
		files, err := tx.FilesByOwner("u1")
		require.NoError(t, err)
		require.Len(t, files, 1)
		return nil
	}))
}

func TestGossipAppendAndSince(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(tx modules.MetadataTx) error {
		for i := 0; i < 3; i++ {
			if _, err := tx.AppendGossip(modules.GossipEntry{EntityID: "e"}); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.View(func(tx modules.MetadataTx) error {
		entries, err := tx.GossipSince(1, 0)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.Equal(t, uint64(2), entries[0].Seq)
		return nil
	}))
}

func TestChunkLocationUnionNoDuplicates(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Update(func(tx modules.MetadataTx) error {
		require.NoError(t, tx.PutChunkLocation(modules.ChunkLocation{ChunkID: "c1", NodeID: "sn1"}))
		return tx.PutChunkLocation(modules.ChunkLocation{ChunkID: "c1", NodeID: "sn1"})
	}))

	require.NoError(t, s.View(func(tx modules.MetadataTx) error {
		locs, err := tx.ChunkLocations("c1")
		require.NoError(t, err)
		require.Len(t, locs, 1)
		return nil
	}))
}
