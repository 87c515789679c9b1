package persist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string
	Count int
}

func TestSaveLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.json")

	in := sample{Name: "alpha", Count: 3}
	require.NoError(t, SaveJSON(path, in))

	var out sample
	require.NoError(t, LoadJSON(path, &out))
	require.Equal(t, in, out)
}

func TestRandomSuffixUnique(t *testing.T) {
	a := RandomSuffix()
	b := RandomSuffix()
	require.Len(t, a, 20)
	require.NotEqual(t, a, b)
}

func TestUIDUnique(t *testing.T) {
	require.NotEqual(t, UID(), UID())
}
