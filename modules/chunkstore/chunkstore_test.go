package chunkstore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redcloud/files/build"
	"github.com/redcloud/files/modules"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(build.TempDir("chunkstore", t.Name()))
	require.NoError(t, err)
	return s
}

func TestWriteReadRoundtrip(t *testing.T) {
	s := newTestStore(t)
	data := []byte("hello chunk")

	require.NoError(t, s.Write("c1", data))
	got, err := s.Read("c1")
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestWriteSameBytesIsNoop(t *testing.T) {
	s := newTestStore(t)
	data := []byte("same bytes")

	require.NoError(t, s.Write("c1", data))
	require.NoError(t, s.Write("c1", data))
}

func TestWriteDifferentBytesConflicts(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Write("c1", []byte("original")))
	err := s.Write("c1", []byte("different"))
	require.ErrorIs(t, err, modules.ErrConflict)
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Read("missing")
	require.ErrorIs(t, err, modules.ErrNotFound)
}

func TestDeleteAndUsageAccounting(t *testing.T) {
	s := newTestStore(t)
	data := []byte("twelve bytes")

	require.NoError(t, s.Write("c1", data))
	usage, err := s.Usage()
	require.NoError(t, err)
	require.Equal(t, uint64(len(data)), usage)

	require.NoError(t, s.Delete("c1"))
	usage, err = s.Usage()
	require.NoError(t, err)
	require.Equal(t, uint64(0), usage)
}

func TestReadToStreamsBytes(t *testing.T) {
	s := newTestStore(t)
	data := []byte("streamed bytes")
	require.NoError(t, s.Write("c1", data))

	var buf bytes.Buffer
	require.NoError(t, s.ReadTo("c1", &buf))
	require.Equal(t, data, buf.Bytes())
}

func TestChecksumIsDeterministic(t *testing.T) {
	data := []byte("checksum me")
	a, err := Checksum(data)
	require.NoError(t, err)
	b, err := Checksum(data)
	require.NoError(t, err)
	require.Equal(t, a, b)
}
