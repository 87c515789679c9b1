package build

var (
	// envAPIPassword is the environment variable that sets a custom API
	// password if the default is not used.
	envAPIPassword = "REDCLOUD_API_PASSWORD"

	// envDataDirName is the environment variable that tells redcloudd where
	// to put its general data, e.g. api password, configuration, logs.
	envDataDirName = "REDCLOUD_DATA_DIR"
)
