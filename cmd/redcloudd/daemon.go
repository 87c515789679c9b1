package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/uplo-tech/errors"

	"github.com/redcloud/files/build"
	"github.com/redcloud/files/modules"
	"github.com/redcloud/files/node"
	"github.com/redcloud/files/profile"
)

// processRoles lowercases the roles string and rejects anything but 'm'
// and 's', mirroring the teacher's processModules.
func processRoles(roles string) (string, error) {
	roles = strings.ToLower(roles)
	validRoles := "ms"
	invalidRoles := roles
	for _, r := range validRoles {
		invalidRoles = strings.Replace(invalidRoles, string(r), "", 1)
	}
	if len(invalidRoles) > 0 {
		return "", errors.New("unable to parse --roles flag, unrecognized or duplicate roles: " + invalidRoles)
	}
	if roles == "" {
		return "", errors.New("at least one role must be enabled")
	}
	return roles, nil
}

// processConfig checks the configuration values and performs cleanup on
// incorrect-but-allowed values.
func processConfig(config Config) (Config, error) {
	roles, err := processRoles(config.redcloudd.Roles)
	if err != nil {
		return Config{}, err
	}
	config.redcloudd.Roles = roles

	if config.redcloudd.Profile != "" {
		config.redcloudd.Profile, err = profile.ProcessProfileFlags(config.redcloudd.Profile)
		if err != nil {
			return Config{}, err
		}
	}
	return config, nil
}

// nodeParams builds a node.NodeParams from the parsed daemon config.
func nodeParams(config Config) node.NodeParams {
	params := node.NodeParams{
		CreateMetadataNode:    strings.Contains(config.redcloudd.Roles, "m"),
		CreateStorageNode:     strings.Contains(config.redcloudd.Roles, "s"),
		MetadataListenAddr:    config.redcloudd.MetadataAddr,
		StorageListenAddr:     config.redcloudd.StorageAddr,
		MetadataAPIListenAddr: config.redcloudd.APIAddr,
		Dir:                   config.redcloudd.redclouddir,
	}

	cfg := modules.Config{
		MetadataAlias:   config.redcloudd.MetadataAlias,
		StorageAlias:    config.redcloudd.StorageAlias,
		MetadataAPIPort: config.redcloudd.MetadataAPIPort,
		StorageCapacity: config.redcloudd.StorageCapacityGiB << 30,

		DownloadSpeedLimit: config.redcloudd.DownloadSpeedLimit,
		UploadSpeedLimit:   config.redcloudd.UploadSpeedLimit,
	}
	params.MetadataConfig = cfg
	params.StorageConfig = cfg
	return params
}

// installKillSignalHandler installs a signal handler for os.Interrupt and
// syscall.SIGTERM and returns a channel that is closed when one of them is
// caught.
func installKillSignalHandler() chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	return sigChan
}

// startDaemon uses the config parameters to assemble a node and run it
// until a kill signal is caught.
func startDaemon(config Config) error {
	loadStart := time.Now()

	fmt.Println("RedCloud Daemon v" + build.Version)
	fmt.Println("Loading...")

	n, err := node.New(nodeParams(config))
	if err != nil {
		return errors.AddContext(err, "could not create node")
	}

	if addr := n.APIAddr(); addr != "" {
		fmt.Println("API listening on", addr)
	}

	startupTime := time.Since(loadStart)
	fmt.Printf("Finished full setup in %s\n", startupTime.Truncate(time.Millisecond).String())

	sigChan := installKillSignalHandler()
	<-sigChan
	fmt.Println("\rCaught stop signal, quitting...")

	return n.Close()
}

// startDaemonCmd is a passthrough function for startDaemon.
func startDaemonCmd(cmd *cobra.Command, _ []string) {
	config, err := processConfig(globalConfig)
	if err != nil {
		die(errors.AddContext(err, "failed to parse input parameters"))
	}

	profileCPU := strings.Contains(config.redcloudd.Profile, "c")
	profileMem := strings.Contains(config.redcloudd.Profile, "m")
	profileTrace := strings.Contains(config.redcloudd.Profile, "t")
	if build.DEBUG {
		profileCPU = true
		profileMem = true
	}
	if profileCPU || profileMem || profileTrace {
		var profileDir string
		if cmd.Root().Flag("profile-directory").Changed {
			profileDir = config.redcloudd.ProfileDir
		} else {
			profileDir = filepath.Join(config.redcloudd.redclouddir, config.redcloudd.ProfileDir)
		}
		go profile.StartContinuousProfile(profileDir, profileCPU, profileMem, profileTrace)
	}

	if err := startDaemon(config); err != nil {
		die(err)
	}

	fmt.Println("Shutdown complete.")
}
