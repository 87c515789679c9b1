package build

import (
	"encoding/hex"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/uplo-tech/fastrand"
)

// APIPassword returns the API password used to authenticate client requests,
// either from the environment variable or from the password file. If no
// environment variable is set and no file exists, a password file is created
// and that password is returned.
func APIPassword() (string, error) {
	if pw := os.Getenv(envAPIPassword); pw != "" {
		return pw, nil
	}

	path := apiPasswordFilePath()
	pwFile, err := ioutil.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(pwFile)), nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	return createAPIPasswordFile()
}

// DataDir returns the redcloudd data directory, either from the environment
// variable or the platform default.
func DataDir() string {
	dir := os.Getenv(envDataDirName)
	if dir == "" {
		dir = defaultDataDir()
	}
	return dir
}

// apiPasswordFilePath returns the path to the API's password file, stored in
// the RedCloud data directory.
func apiPasswordFilePath() string {
	return filepath.Join(DataDir(), "apipassword")
}

// createAPIPasswordFile creates an api password file in the data directory
// and returns the newly created password.
func createAPIPasswordFile() (string, error) {
	err := os.MkdirAll(DataDir(), 0700)
	if err != nil {
		return "", err
	}
	// 0700 prevents other local users from reading the generated password.
	err = os.Chmod(DataDir(), 0700)
	if err != nil {
		return "", err
	}
	pw := hex.EncodeToString(fastrand.Bytes(16))
	err = ioutil.WriteFile(apiPasswordFilePath(), []byte(pw+"\n"), 0600)
	if err != nil {
		return "", err
	}
	return pw, nil
}

// defaultDataDir returns the default data directory of redcloudd. The values
// for supported operating systems are:
//
// Linux:   $HOME/.redcloud
// MacOS:   $HOME/Library/Application Support/RedCloud
// Windows: %LOCALAPPDATA%\RedCloud
func defaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "RedCloud")
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "RedCloud")
	default:
		return filepath.Join(os.Getenv("HOME"), ".redcloud")
	}
}
