package packagestats

import (
	"context"
	"sort"
	"time"

	"github.com/matzehuels/pkgpulse/pkg/registry"
	"github.com/matzehuels/pkgpulse/pkg/version"
)

// VersionDownloads is one version/count pair reported by a search source.
type VersionDownloads struct {
	Version   string
	Downloads int64
}

// Metadata is the package summary returned by the primary search source.
type Metadata struct {
	ID             string
	Description    string
	Authors        []string
	ProjectURL     string
	TotalDownloads *int64
	Versions       []VersionDownloads
}

// MetadataSource is the primary search source: package metadata plus
// per-version download counts.
type MetadataSource interface {
	Metadata(ctx context.Context, pkg string) (*Metadata, error)
}

// DownloadSource is the secondary count source, consulted only for versions
// the primary pass left without a count. It returns counts keyed by
// normalized version, restricted to the requested versions.
type DownloadSource interface {
	QueryDownloads(ctx context.Context, pkg string, versions []string) (map[string]int64, error)
}

// PackageStatistics is the merged view of one package.
type PackageStatistics struct {
	PackageID              string                   `json:"package_id"`
	Description            string                   `json:"description,omitempty"`
	Authors                string                   `json:"authors,omitempty"`
	ProjectURL             string                   `json:"project_url,omitempty"`
	TotalVersions          int                      `json:"total_versions"`
	LatestVersion          string                   `json:"latest_version"`
	LatestVersionPublished *time.Time               `json:"latest_version_published,omitempty"`
	FirstVersionPublished  *time.Time               `json:"first_version_published,omitempty"`
	TotalDownloads         *int64                   `json:"total_downloads,omitempty"`
	Versions               []registry.VersionRecord `json:"versions"`

	// SkippedPages lists registry pages that could not be fetched; the
	// version list may be incomplete when it is non-empty.
	SkippedPages []string `json:"skipped_pages,omitempty"`
}

// Version returns the record for raw, matching on the normalized key.
func (s *PackageStatistics) Version(raw string) (registry.VersionRecord, bool) {
	key := version.Normalize(raw)
	for _, v := range s.Versions {
		if version.Normalize(v.Version) == key {
			return v, true
		}
	}
	return registry.VersionRecord{}, false
}

// MostDownloaded returns the version with the highest known download count.
// ok is false when no version has a count.
func (s *PackageStatistics) MostDownloaded() (rec registry.VersionRecord, ok bool) {
	for _, v := range s.Versions {
		if v.Downloads == nil {
			continue
		}
		if !ok || *v.Downloads > *rec.Downloads {
			rec, ok = v, true
		}
	}
	return rec, ok
}

// TopVersions returns up to n versions published at or after since, ordered
// by download count (unknown counts last). Prereleases are skipped unless
// includePrerelease is set. A zero since disables the date filter.
func (s *PackageStatistics) TopVersions(since time.Time, n int, includePrerelease bool) []registry.VersionRecord {
	var out []registry.VersionRecord
	for _, v := range s.Versions {
		if !includePrerelease && version.IsPrerelease(v.Version) {
			continue
		}
		if !since.IsZero() && (v.Published == nil || v.Published.Before(since)) {
			continue
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Downloads, out[j].Downloads
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// VersionsPublishedBetween counts versions published in [from, to].
func (s *PackageStatistics) VersionsPublishedBetween(from, to time.Time) int {
	n := 0
	for _, v := range s.Versions {
		if v.Published == nil {
			continue
		}
		if !v.Published.Before(from) && !v.Published.After(to) {
			n++
		}
	}
	return n
}
