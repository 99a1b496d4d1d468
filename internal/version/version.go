package version

// Version is the current version of the backcast library.
// This value is set at build time using ldflags:
// -ldflags "-X github.com/backcast-lab/backcast/internal/version.Version=1.2.3"
// A value of "main" indicates a development build and skips schema checks.
var Version = "v1.0.0"

// GetVersion returns the current version of the library.
func GetVersion() string {
	return Version
}
