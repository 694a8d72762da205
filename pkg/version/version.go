// Package version carries build information for the nrx binary.
package version

import "runtime"

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/netreplica/nrx/pkg/version.Version=v0.7.0 \
//	  -X github.com/netreplica/nrx/pkg/version.GitCommit=abc1234 \
//	  -X github.com/netreplica/nrx/pkg/version.BuildDate=2026-01-01T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns the one-line version string printed by "nrx version".
func Info() string {
	return "nrx " + Version + " (" + GitCommit + ") built " + BuildDate + " with " + runtime.Version()
}
