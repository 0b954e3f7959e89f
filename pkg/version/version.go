// Package version carries build metadata for the ifbridge binary.
package version

import "runtime"

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/newtron-network/ifbridge/pkg/version.Version=v0.3.0 \
//	  -X github.com/newtron-network/ifbridge/pkg/version.GitCommit=abc1234 \
//	  -X github.com/newtron-network/ifbridge/pkg/version.BuildDate=2026-01-01T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a formatted version string for display.
func Info() string {
	return "ifbridge " + Version + " (" + GitCommit + ") built " + BuildDate + " " + runtime.Version()
}

// Fields returns the build metadata as log fields.
func Fields() map[string]interface{} {
	return map[string]interface{}{
		"version": Version,
		"commit":  GitCommit,
		"built":   BuildDate,
	}
}
