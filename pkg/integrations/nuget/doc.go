// Package nuget reads package version history and download counts from the
// NuGet v3 API.
//
// # Endpoints
//
// Three services are used:
//
//   - the registration index (version list with publish dates), which nests
//     its leaves either inline or behind page URLs
//   - the primary search service (metadata and per-version downloads)
//   - the secondary query service (per-version downloads only, used as a
//     fallback for versions the primary search does not list)
//
// The client decodes the wire format and adapts it to [registry.Index] and
// [packagestats.Metadata]; traversal and merging live in those packages.
//
// [registry.Index]: github.com/matzehuels/pkgpulse/pkg/registry
// [packagestats.Metadata]: github.com/matzehuels/pkgpulse/pkg/packagestats
package nuget
