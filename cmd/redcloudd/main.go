package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/redcloud/files/build"
)

var (
	// globalConfig is used by the cobra package to fill out the
	// configuration variables.
	globalConfig Config
)

// exit codes
// inspired by sysexits.h
const (
	exitCodeGeneral = 1  // Not in sysexits.h, but is standard practice.
	exitCodeUsage   = 64 // EX_USAGE in sysexits.h
)

// Config contains all configurable variables for redcloudd.
type Config struct {
	// The redcloudd variables are referenced directly by cobra, and are
	// set according to the flags.
	redcloudd struct {
		APIAddr            string
		MetadataAddr       string
		StorageAddr        string
		MetadataAlias      string
		StorageAlias       string
		MetadataAPIPort    string
		Roles              string
		StorageCapacityGiB uint64
		DownloadSpeedLimit int64
		UploadSpeedLimit   int64

		Profile    string
		ProfileDir string

		// redclouddir is the directory redcloudd is going to be running
		// out of. This variable should not be altered if it is not set by
		// a user flag.
		redclouddir string
	}
}

// die prints its arguments to stderr, then exits the program with the
// default error code.
func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(exitCodeGeneral)
}

// versionCmd is a cobra command that prints the version of redcloudd.
func versionCmd(*cobra.Command, []string) {
	switch build.Release {
	case build.Dev:
		fmt.Println("RedCloud Daemon v" + build.Version + "-dev")
	case build.Standard:
		fmt.Println("RedCloud Daemon v" + build.Version)
	case build.Testing:
		fmt.Println("RedCloud Daemon v" + build.Version + "-testing")
	default:
		fmt.Println("RedCloud Daemon v" + build.Version + "-???")
	}
}

// rolesCmd is a cobra command that prints help info about the --roles flag.
func rolesCmd(*cobra.Command, []string) {
	fmt.Println(`Use the --roles flag to choose which role(s) this process runs. A RedCloud
process can run the metadata role, the storage role, or both colocated in
one process. Roles are specified by their first letter.
	redcloudd --roles m    runs only the metadata node
	redcloudd --roles s    runs only the storage node
	redcloudd --roles ms   runs both roles in this process (the default)
Metadata (m):
	Holds file/tag metadata, the peer registry, the storage node registry,
	and gossips metadata mutations to other metadata nodes.
Storage (s):
	Holds chunk bytes, replicates and repairs them, and sends heartbeats to
	metadata nodes.`)
}

// main establishes a set of commands and flags using the cobra package.
func main() {
	if build.DEBUG {
		fmt.Println("Running with debugging enabled")
	}
	root := &cobra.Command{
		Use:   os.Args[0],
		Short: "RedCloud Daemon v" + build.Version,
		Long:  "RedCloud Daemon v" + build.Version,
		Run:   startDaemonCmd,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version information about the RedCloud Daemon",
		Run:   versionCmd,
	})

	root.AddCommand(&cobra.Command{
		Use:   "roles",
		Short: "List available roles for use with the --roles flag",
		Long:  "List available roles for use with the --roles flag and their uses",
		Run:   rolesCmd,
	})

	root.Flags().StringVarP(&globalConfig.redcloudd.APIAddr, "api-addr", "", "localhost:9980", "which host:port the metadata node's HTTP API listens on")
	root.Flags().StringVarP(&globalConfig.redcloudd.MetadataAddr, "metadata-addr", "", ":9981", "which port the metadata node's gossip/RPC surface listens on")
	root.Flags().StringVarP(&globalConfig.redcloudd.StorageAddr, "storage-addr", "", ":9982", "which port the storage node's data surface listens on")
	root.Flags().StringVarP(&globalConfig.redcloudd.MetadataAlias, "metadata-alias", "", "metadata-service", "DNS alias that resolves to every metadata node, used for bootstrap and heartbeat delivery")
	root.Flags().StringVarP(&globalConfig.redcloudd.StorageAlias, "storage-alias", "", "storage-service", "DNS alias that resolves to every storage node")
	root.Flags().StringVarP(&globalConfig.redcloudd.MetadataAPIPort, "metadata-api-port", "", "9980", "port storage nodes use to reach a metadata node's HTTP API when sending heartbeats")
	root.Flags().StringVarP(&globalConfig.redcloudd.Roles, "roles", "M", "ms", "which roles to run in this process, see 'redcloudd roles' for more info")
	root.Flags().Uint64VarP(&globalConfig.redcloudd.StorageCapacityGiB, "storage-capacity-gib", "", 100, "capacity in GiB this storage node reports in its heartbeats")
	root.Flags().Int64VarP(&globalConfig.redcloudd.DownloadSpeedLimit, "storage-download-limit", "", 0, "max bytes/sec the storage node reads across its data-surface connections (0 = unlimited)")
	root.Flags().Int64VarP(&globalConfig.redcloudd.UploadSpeedLimit, "storage-upload-limit", "", 0, "max bytes/sec the storage node writes across its data-surface connections (0 = unlimited)")
	root.Flags().StringVarP(&globalConfig.redcloudd.Profile, "profile", "", "", "enable profiling with flags 'cmt' for CPU, memory, trace")
	root.Flags().StringVarP(&globalConfig.redcloudd.ProfileDir, "profile-directory", "", "profiles", "location of the profiling directory")
	root.Flags().StringVarP(&globalConfig.redcloudd.redclouddir, "redcloud-directory", "d", "", "location of the redcloud data directory")

	// If globalConfig.redcloudd.redclouddir is not set, use the default
	// data directory.
	if globalConfig.redcloudd.redclouddir == "" {
		globalConfig.redcloudd.redclouddir = build.DataDir()
	}

	// Parse cmdline flags, overwriting the default values.
	if err := root.Execute(); err != nil {
		// Since no commands return errors (all commands set Command.Run
		// instead of Command.RunE), Command.Execute() should only return
		// an error on an invalid command or flag. Therefore
		// Command.Usage() was called (assuming Command.SilenceUsage is
		// false) and we should exit with exitCodeUsage.
		os.Exit(exitCodeUsage)
	}
}
