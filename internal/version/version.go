// Package version carries build metadata injected at link time:
//
//	go build -ldflags "-X github.com/LeonardIfiii/shelfsense/internal/version.Version=v1.2.3"
package version

var (
	// Version is the release tag, "dev" for local builds.
	Version = "dev"
	// GitSHA identifies the exact commit.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)
