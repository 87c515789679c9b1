package build

import (
	"os"
	"path/filepath"
	"time"
)

// RedCloudTestingDir is the directory that contains all of the files and
// folders created during testing.
var RedCloudTestingDir = filepath.Join(os.TempDir(), "RedCloudTesting")

// TempDir joins the provided directories and prefixes them with the
// RedCloud testing directory, wiping any stale contents from a previous run.
func TempDir(dirs ...string) string {
	path := filepath.Join(RedCloudTestingDir, filepath.Join(dirs...))
	_ = os.RemoveAll(path)
	return path
}

// Retry calls fn up to tries times, waiting durationBetweenAttempts between
// each attempt, returning nil the first time fn succeeds. Used by tests that
// wait on eventual convergence (gossip, anti-entropy, repair).
func Retry(tries int, durationBetweenAttempts time.Duration, fn func() error) (err error) {
	for i := 1; i < tries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		time.Sleep(durationBetweenAttempts)
	}
	return fn()
}
