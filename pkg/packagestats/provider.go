// Package packagestats assembles per-package statistics: the registry's
// version history merged with download counts from search sources, memoized
// per package for a fixed expiration window.
//
// A miss runs the whole chain:
//
//  1. walk the registry index ([registry.Paginator])
//  2. drop placeholder publish dates and sort newest first
//  3. merge counts from the primary search source
//  4. ask the secondary source only for versions still missing a count
//
// Steps 3 and 4 are best effort. A failing count source leaves Downloads
// unset on the affected versions instead of failing the request.
package packagestats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pkgpulse/pkg/cache"
	"github.com/matzehuels/pkgpulse/pkg/errors"
	"github.com/matzehuels/pkgpulse/pkg/observability"
	"github.com/matzehuels/pkgpulse/pkg/registry"
)

// DefaultExpiration is the freshness window used by the CLI and server.
const DefaultExpiration = 15 * time.Minute

// placeholderBefore marks publish dates the registry uses for unlisted
// versions (1900-01-01).
var placeholderBefore = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// VersionLister produces the registry's version history for a package.
// *registry.Paginator implements it.
type VersionLister interface {
	FetchAllVersions(ctx context.Context, pkg string) (*registry.Traversal, error)
}

// Options configures a Provider.
type Options struct {
	// Cache stores computed statistics. Nil disables caching.
	Cache cache.Cache

	// Expiration is the freshness window of a cached result. Zero or
	// negative disables caching.
	Expiration time.Duration

	// Now is the clock used for freshness checks. Default time.Now.
	Now func() time.Time

	Logger *log.Logger
}

// Provider computes and memoizes PackageStatistics. Concurrent misses for the
// same package may each run the full chain; the last write wins.
type Provider struct {
	versions  VersionLister
	primary   MetadataSource
	secondary DownloadSource

	cache      cache.Cache
	expiration time.Duration
	now        func() time.Time
	logger     *log.Logger
}

// NewProvider creates a Provider. secondary may be nil.
func NewProvider(versions VersionLister, primary MetadataSource, secondary DownloadSource, opts Options) *Provider {
	if opts.Cache == nil || opts.Expiration <= 0 {
		opts.Cache = cache.NewNullCache()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Provider{
		versions:   versions,
		primary:    primary,
		secondary:  secondary,
		cache:      opts.Cache,
		expiration: opts.Expiration,
		now:        opts.Now,
		logger:     opts.Logger,
	}
}

// cached is the envelope stored in the cache backend.
type cached struct {
	CachedAt time.Time          `json:"cached_at"`
	Stats    *PackageStatistics `json:"stats"`
}

// Statistics returns the statistics for pkg, from cache when a fresh entry
// exists.
//
// Errors: INVALID_PACKAGE for a malformed id, SOURCE_UNAVAILABLE when the
// registry index cannot be read, NO_VERSIONS_FOUND when the package has no
// usable versions.
func (p *Provider) Statistics(ctx context.Context, pkg string) (*PackageStatistics, error) {
	if err := errors.ValidateNuGetPackageID(pkg); err != nil {
		return nil, err
	}

	key := cache.StatsKey(pkg)
	if stats, ok := p.lookup(ctx, key); ok {
		return stats, nil
	}

	stats, err := p.compute(ctx, pkg)
	if err != nil {
		return nil, err
	}
	p.store(ctx, key, stats)
	return stats, nil
}

// Refresh recomputes the statistics for pkg, replacing any cached entry.
func (p *Provider) Refresh(ctx context.Context, pkg string) (*PackageStatistics, error) {
	if err := errors.ValidateNuGetPackageID(pkg); err != nil {
		return nil, err
	}
	stats, err := p.compute(ctx, pkg)
	if err != nil {
		return nil, err
	}
	p.store(ctx, cache.StatsKey(pkg), stats)
	return stats, nil
}

func (p *Provider) lookup(ctx context.Context, key string) (*PackageStatistics, bool) {
	hooks := observability.Cache()
	keyType := cache.KeyType(key)

	data, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.Warn("statistics cache read failed", "key", key, "err", err)
	}
	if err != nil || !ok {
		hooks.OnCacheMiss(ctx, keyType)
		return nil, false
	}

	var entry cached
	if err := json.Unmarshal(data, &entry); err != nil || entry.Stats == nil {
		hooks.OnCacheMiss(ctx, keyType)
		return nil, false
	}
	if !p.now().Before(entry.CachedAt.Add(p.expiration)) {
		hooks.OnCacheMiss(ctx, keyType)
		return nil, false
	}
	hooks.OnCacheHit(ctx, keyType)
	return entry.Stats, true
}

func (p *Provider) store(ctx context.Context, key string, stats *PackageStatistics) {
	data, err := json.Marshal(cached{CachedAt: p.now(), Stats: stats})
	if err != nil {
		p.logger.Warn("encode statistics", "key", key, "err", err)
		return
	}
	if err := p.cache.Set(ctx, key, data, p.expiration); err != nil {
		p.logger.Warn("statistics cache write failed", "key", key, "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, cache.KeyType(key), len(data))
}

func (p *Provider) compute(ctx context.Context, pkg string) (*PackageStatistics, error) {
	tr, err := p.versions.FetchAllVersions(ctx, pkg)
	if err != nil {
		return nil, err
	}

	records := dropPlaceholders(tr.Versions)
	if len(records) == 0 {
		return nil, errors.New(errors.ErrCodeNoVersionsFound, "no versions found for %s", pkg)
	}
	registry.SortByPublished(records)

	md, err := p.primary.Metadata(ctx, pkg)
	if err != nil {
		p.logger.Warn("primary download source failed", "package", pkg, "err", err)
		md = nil
	}
	missing := MergeDownloads(records, PrimaryCounts(md))

	if len(missing) > 0 && p.secondary != nil {
		counts, err := p.secondary.QueryDownloads(ctx, pkg, missing)
		if err != nil {
			p.logger.Warn("secondary download source failed", "package", pkg, "versions", len(missing), "err", err)
		} else {
			missing = MergeDownloads(records, counts)
		}
	}
	if len(missing) > 0 {
		p.logger.Debug("versions without download counts", "package", pkg, "count", len(missing))
	}

	records = DedupByKey(records)
	stats := build(pkg, md, records)
	for _, f := range tr.SoftFailures() {
		stats.SkippedPages = append(stats.SkippedPages, f.URL)
	}
	return stats, nil
}

// dropPlaceholders removes versions whose publish date predates 2000.
// Undated versions are kept.
func dropPlaceholders(records []registry.VersionRecord) []registry.VersionRecord {
	out := make([]registry.VersionRecord, 0, len(records))
	for _, r := range records {
		if r.Published != nil && r.Published.Before(placeholderBefore) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// build assembles the aggregate from sorted records.
func build(pkg string, md *Metadata, records []registry.VersionRecord) *PackageStatistics {
	stats := &PackageStatistics{
		PackageID:     pkg,
		TotalVersions: len(records),
		Versions:      records,
	}
	if md != nil {
		stats.PackageID = md.ID
		stats.Description = md.Description
		stats.ProjectURL = md.ProjectURL
		stats.TotalDownloads = md.TotalDownloads
		if len(md.Authors) > 0 {
			stats.Authors = md.Authors[0]
		}
	}

	latest := records[0]
	stats.LatestVersion = latest.Version
	stats.LatestVersionPublished = latest.Published
	for _, r := range records {
		if r.Published == nil {
			continue
		}
		if stats.FirstVersionPublished == nil || r.Published.Before(*stats.FirstVersionPublished) {
			stats.FirstVersionPublished = r.Published
		}
	}
	return stats
}
