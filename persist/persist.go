package persist

import (
	"encoding/base32"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"

	"github.com/uplo-tech/errors"
	"github.com/uplo-tech/fastrand"
)

const (
	// DefaultDiskPermissionsTest is used when creating files or directories
	// in tests.
	DefaultDiskPermissionsTest = 0750

	// defaultFilePermissions is the default permissions when creating files.
	defaultFilePermissions = 0600

	// randomBytes is the number of bytes to use to ensure sufficient
	// randomness.
	randomBytes = 20

	// tempSuffix is the suffix applied to the temporary/backup version of a
	// file while it is being atomically persisted.
	tempSuffix = "_temp"
)

// ErrFileInUse is returned if SaveJSON or LoadJSON is called on a file
// that's already being manipulated by another goroutine.
var ErrFileInUse = errors.New("another goroutine is saving or loading this file")

// activeFiles tracks which filenames are currently being saved or loaded, so
// that two goroutines never race on the same persist file.
var (
	activeFiles   = make(map[string]struct{})
	activeFilesMu sync.Mutex
)

// RandomSuffix returns a 20 character base32 suffix, useful as a unique
// filename component. There are 100 bits of entropy, more than enough to
// avoid accidental collisions.
func RandomSuffix() string {
	str := base32.StdEncoding.EncodeToString(fastrand.Bytes(randomBytes))
	return str[:20]
}

// UID returns a hex-encoded string that can be used as a unique ID.
func UID() string {
	return hex.EncodeToString(fastrand.Bytes(randomBytes))
}

// RemoveFile removes a persisted file from disk, along with any uncommitted
// temporary version of it.
func RemoveFile(filename string) error {
	if err := os.RemoveAll(filename); err != nil {
		return err
	}
	return os.RemoveAll(filename + tempSuffix)
}

// lockFile marks filename as in-use, returning ErrFileInUse if some other
// goroutine already holds the lock.
func lockFile(filename string) error {
	activeFilesMu.Lock()
	defer activeFilesMu.Unlock()
	if _, ok := activeFiles[filename]; ok {
		return ErrFileInUse
	}
	activeFiles[filename] = struct{}{}
	return nil
}

func unlockFile(filename string) {
	activeFilesMu.Lock()
	defer activeFilesMu.Unlock()
	delete(activeFiles, filename)
}

// SaveJSON atomically writes a JSON-encoded snapshot of data to filename: it
// writes to a temp file first and renames over the destination, so a crash
// mid-write never corrupts the previous snapshot.
func SaveJSON(filename string, data interface{}) error {
	if err := lockFile(filename); err != nil {
		return err
	}
	defer unlockFile(filename)

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errors.AddContext(err, "unable to marshal persisted data")
	}

	tempFilename := filename + tempSuffix
	if err := os.WriteFile(tempFilename, b, defaultFilePermissions); err != nil {
		return errors.AddContext(err, "unable to write temp persist file")
	}
	if err := os.Rename(tempFilename, filename); err != nil {
		return errors.AddContext(err, "unable to commit persist file")
	}
	return nil
}

// LoadJSON reads a JSON snapshot previously written by SaveJSON into data.
func LoadJSON(filename string, data interface{}) error {
	if err := lockFile(filename); err != nil {
		return err
	}
	defer unlockFile(filename)

	b, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, data); err != nil {
		return errors.AddContext(err, "unable to parse persisted data")
	}
	return nil
}
