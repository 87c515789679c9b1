package node

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redcloud/files/build"
)

// TestNew is a basic smoke test for New that exercises every template.
func TestNew(t *testing.T) {
	if testing.Short() {
		t.SkipNow()
	}

	dir := build.TempDir("node", t.Name()+"-CombinedNode")
	n, err := New(CombinedNode(dir))
	require.NoError(t, err)
	require.NotNil(t, n.MetadataNode)
	require.NotNil(t, n.StorageNode)
	require.NoError(t, n.Close())

	dir = build.TempDir("node", t.Name()+"-MetadataNode")
	n, err = New(MetadataNode(dir))
	require.NoError(t, err)
	require.NotNil(t, n.MetadataNode)
	require.Nil(t, n.StorageNode)
	require.NoError(t, n.Close())

	dir = build.TempDir("node", t.Name()+"-StorageNode")
	n, err = New(StorageNode(dir))
	require.NoError(t, err)
	require.Nil(t, n.MetadataNode)
	require.NotNil(t, n.StorageNode)
	require.NoError(t, n.Close())
}
