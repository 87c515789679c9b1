package build

import (
	"os"
	"testing"
)

// TestAPIPassword tests getting and setting the API password.
func TestAPIPassword(t *testing.T) {
	if err := os.Unsetenv(envAPIPassword); err != nil {
		t.Error(err)
	}

	pw, err := APIPassword()
	if err != nil {
		t.Error(err)
	}
	if pw == "" {
		t.Error("password should not be blank")
	}

	newPW := "abc123"
	if err := os.Setenv(envAPIPassword, newPW); err != nil {
		t.Error(err)
	}
	pw, err = APIPassword()
	if err != nil {
		t.Error(err)
	}
	if pw != newPW {
		t.Errorf("expected password to be %v but was %v", newPW, pw)
	}
}

// TestDataDir tests getting and setting the data directory.
func TestDataDir(t *testing.T) {
	if err := os.Unsetenv(envDataDirName); err != nil {
		t.Error(err)
	}
	if dir := DataDir(); dir != defaultDataDir() {
		t.Errorf("expected default data dir %v but got %v", defaultDataDir(), dir)
	}

	newDir := "foo/bar"
	if err := os.Setenv(envDataDirName, newDir); err != nil {
		t.Error(err)
	}
	if dir := DataDir(); dir != newDir {
		t.Errorf("expected data dir %v but got %v", newDir, dir)
	}
}
