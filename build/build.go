package build

// Version is the version number of the current RedCloud Files build.
const Version = "0.1.0"

// Release identifiers, mirroring the three release channels the daemon can
// be built for.
const (
	Standard = "standard"
	Dev      = "dev"
	Testing  = "testing"
)

// Release is set at compile time via -ldflags. It defaults to "standard".
var Release = Standard

// DEBUG enables extra assertions and verbose logging. It is set at compile
// time via -ldflags for dev/testing builds.
var DEBUG = false

// IssuesURL is printed in crash/bug-report messages.
const IssuesURL = "https://github.com/redcloud/files/issues"
