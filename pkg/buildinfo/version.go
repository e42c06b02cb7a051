// Package buildinfo carries version information stamped in at link time:
//
//	go build -ldflags "-X github.com/matzehuels/pkgpulse/pkg/buildinfo.Version=v0.3.0 \
//	    -X github.com/matzehuels/pkgpulse/pkg/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	    -X github.com/matzehuels/pkgpulse/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/pkgpulse
package buildinfo

import "fmt"

var (
	Version = "dev"     // release tag
	Commit  = "none"    // git revision
	Date    = "unknown" // UTC build time
)

// UserAgent identifies pkgpulse to registries and the GitHub API.
func UserAgent() string {
	return "pkgpulse/" + Version
}

// String returns the build information, one field per line.
func String() string {
	return fmt.Sprintf("version: %s\ncommit: %s\nbuilt: %s", Version, Commit, Date)
}

// Template is the cobra version template.
func Template() string {
	return fmt.Sprintf("{{.Name}} %s (%s, built %s)\n", Version, Commit, Date)
}
