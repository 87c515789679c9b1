// Package chunkstore implements modules.ChunkStore as a content-addressed,
// flat-file directory store, following the write-to-temp-then-rename
// persistence pattern used throughout the teacher's persist package.
package chunkstore

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/redcloud/files/modules"
)

// Store is a disk-backed modules.ChunkStore. Chunk bytes for id are stored
// at dir/<id>; a chunk is never partially visible because writes land in a
// temp file and are renamed into place only after the bytes are fully
// flushed.
type Store struct {
	dir string

	mu    sync.RWMutex
	usage uint64
	sizes map[string]int64
}

// New opens (creating if necessary) a chunk store rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	s := &Store{dir: dir, sizes: make(map[string]int64)}
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		s.sizes[e.Name()] = e.Size()
		s.usage += uint64(e.Size())
	}
	return s, nil
}

func (s *Store) path(chunkID string) string {
	return filepath.Join(s.dir, chunkID)
}

// Write implements modules.ChunkStore.
func (s *Store) Write(chunkID string, data []byte) error {
	existing, err := s.Read(chunkID)
	if err == nil {
		if bytes.Equal(existing, data) {
			return nil
		}
		return modules.ErrConflict
	} else if !isNotFound(err) {
		return err
	}

	tmp := s.path(chunkID) + ".tmp"
	if err := ioutil.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path(chunkID)); err != nil {
		os.Remove(tmp)
		return err
	}

	s.mu.Lock()
	s.sizes[chunkID] = int64(len(data))
	s.usage += uint64(len(data))
	s.mu.Unlock()
	return nil
}

// Read implements modules.ChunkStore.
func (s *Store) Read(chunkID string) ([]byte, error) {
	data, err := ioutil.ReadFile(s.path(chunkID))
	if os.IsNotExist(err) {
		return nil, modules.ErrNotFound
	}
	return data, err
}

// ReadTo implements modules.ChunkStore.
func (s *Store) ReadTo(chunkID string, w io.Writer) error {
	f, err := os.Open(s.path(chunkID))
	if os.IsNotExist(err) {
		return modules.ErrNotFound
	} else if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Delete implements modules.ChunkStore.
func (s *Store) Delete(chunkID string) error {
	err := os.Remove(s.path(chunkID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	s.mu.Lock()
	if sz, ok := s.sizes[chunkID]; ok {
		s.usage -= uint64(sz)
		delete(s.sizes, chunkID)
	}
	s.mu.Unlock()
	return nil
}

// Has implements modules.ChunkStore.
func (s *Store) Has(chunkID string) (bool, error) {
	_, err := os.Stat(s.path(chunkID))
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// List implements modules.ChunkStore.
func (s *Store) List() ([]string, error) {
	entries, err := ioutil.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}

// Usage implements modules.ChunkStore.
func (s *Store) Usage() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage, nil
}

func isNotFound(err error) bool {
	return err == modules.ErrNotFound
}
