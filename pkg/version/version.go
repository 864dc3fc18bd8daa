// Package version exposes build metadata, set at link time with
// -ldflags "-X github.com/Sumatoshi-tech/indexedrb/pkg/version.Version=...".
package version

import "runtime/debug"

// Version is the release of the indexedrb module that is executing.
var Version = ""

// GitHash is the Git hash the binary was built from.
var GitHash = "<unknown>"

// devel is reported when neither ldflags nor module info carry a version.
const devel = "(devel)"

// String returns Version, falling back to the module version recorded in
// the build info.
func String() string {
	if Version != "" {
		return Version
	}

	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return devel
	}

	return info.Main.Version
}
