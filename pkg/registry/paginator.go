// Package registry walks a package registry's paginated version index.
//
// A registry exposes its version history as a root index of pages. Leaf pages
// are either inlined in their parent (items embed the version entry) or
// referenced by URL (items, or the page itself, point at a document to fetch).
// [Paginator] handles both shapes transparently, fetching referenced pages
// level by level with bounded concurrency.
//
// Only the root index is mandatory. A referenced page that cannot be fetched
// is recorded as a failed [PageResult] and the walk continues with what it
// has; callers can inspect [Traversal.SoftFailures] to see what was skipped.
package registry

import (
	"context"
	stderrors "errors"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/pkgpulse/pkg/errors"
	"github.com/matzehuels/pkgpulse/pkg/observability"
)

const (
	// DefaultFanOut bounds concurrent page fetches.
	DefaultFanOut = 4

	// DefaultMaxDepth bounds how many levels of referenced pages are followed
	// below the root index. Real registries nest at most two.
	DefaultMaxDepth = 4
)

// ErrMaxDepth marks pages that were not fetched because they were referenced
// below the depth limit.
var ErrMaxDepth = stderrors.New("page nesting exceeds depth limit")

var errEmptyPage = stderrors.New("empty page document")

// Options configures a Paginator.
type Options struct {
	FanOut   int         // concurrent page fetches, default DefaultFanOut
	MaxDepth int         // levels followed below the index, default DefaultMaxDepth
	Logger   *log.Logger // default log.Default()
}

// PageResult is the outcome of fetching one referenced page.
type PageResult struct {
	URL     string        `json:"url"`
	Depth   int           `json:"depth"`
	Entries int           `json:"entries"`
	Elapsed time.Duration `json:"elapsed"`
	Err     error         `json:"-"`
}

// OK reports whether the page was fetched.
func (r PageResult) OK() bool { return r.Err == nil }

// Traversal is the result of a full index walk.
type Traversal struct {
	Package  string
	Versions []VersionRecord // deduplicated, newest first, undated last
	Pages    []PageResult    // every referenced page, in discovery order
}

// SoftFailures returns the pages that could not be fetched.
func (t *Traversal) SoftFailures() []PageResult {
	var out []PageResult
	for _, p := range t.Pages {
		if !p.OK() {
			out = append(out, p)
		}
	}
	return out
}

// Complete reports whether every referenced page was fetched.
func (t *Traversal) Complete() bool { return len(t.SoftFailures()) == 0 }

// Paginator collects every version listed in a registry index.
type Paginator struct {
	src      Source
	fanOut   int
	maxDepth int
	logger   *log.Logger
}

// NewPaginator creates a Paginator reading from src.
func NewPaginator(src Source, opts Options) *Paginator {
	if opts.FanOut <= 0 {
		opts.FanOut = DefaultFanOut
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Paginator{
		src:      src,
		fanOut:   opts.FanOut,
		maxDepth: opts.MaxDepth,
		logger:   opts.Logger,
	}
}

// FetchAllVersions walks the index of pkg and returns every version found.
//
// It fails with SOURCE_UNAVAILABLE only when the root index cannot be fetched
// or decoded, and returns the context error if ctx is cancelled mid-walk. A
// successful walk may return zero versions; deciding whether that is an error
// is left to the caller.
func (p *Paginator) FetchAllVersions(ctx context.Context, pkg string) (*Traversal, error) {
	start := time.Now()

	idx, err := p.src.Index(ctx, pkg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSourceUnavailable, err, "registry index for %s", pkg)
	}
	if idx == nil {
		return nil, errors.New(errors.ErrCodeSourceUnavailable, "registry index for %s is empty", pkg)
	}

	t := &Traversal{Package: pkg}
	var entries []Entry
	visited := make(map[string]bool)
	frontier := idx.Pages

	for depth := 1; len(frontier) > 0; depth++ {
		var follow []string
		for _, pg := range frontier {
			found, refs := expand(pg)
			entries = append(entries, found...)
			if len(found) > 0 && pg.ID != "" {
				visited[pg.ID] = true
			}
			for _, u := range refs {
				if !visited[u] {
					visited[u] = true
					follow = append(follow, u)
				}
			}
		}
		if len(follow) == 0 {
			break
		}

		if depth > p.maxDepth {
			for _, u := range follow {
				t.Pages = append(t.Pages, PageResult{URL: u, Depth: depth, Err: ErrMaxDepth})
			}
			break
		}

		pages, results := p.fetchLevel(ctx, follow, depth)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t.Pages = append(t.Pages, results...)
		frontier = pages
	}

	t.Versions = collect(entries)

	failures := t.SoftFailures()
	hooks := observability.Registry()
	for _, f := range failures {
		hooks.OnPageSoftFailure(ctx, pkg, f.URL, f.Err)
		p.logger.Warn("skipped registry page", "package", pkg, "url", f.URL, "err", f.Err)
	}
	hooks.OnTraversalComplete(ctx, pkg, len(t.Pages), len(failures), len(t.Versions), time.Since(start))
	p.logger.Debug("walked registry index",
		"package", pkg,
		"pages", len(t.Pages),
		"skipped", len(failures),
		"versions", len(t.Versions),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return t, nil
}

// fetchLevel fetches urls concurrently. Fetch errors never abort the group;
// they are reported in the matching PageResult.
func (p *Paginator) fetchLevel(ctx context.Context, urls []string, depth int) ([]Page, []PageResult) {
	fetched := make([]*Page, len(urls))
	results := make([]PageResult, len(urls))

	var g errgroup.Group
	g.SetLimit(p.fanOut)
	for i, u := range urls {
		g.Go(func() error {
			start := time.Now()
			pg, err := p.src.Page(ctx, u)
			if err == nil && pg == nil {
				err = errEmptyPage
			}
			results[i] = PageResult{URL: u, Depth: depth, Elapsed: time.Since(start), Err: err}
			if err == nil {
				fetched[i] = pg
				results[i].Entries = countEntries(pg)
			}
			return nil
		})
	}
	_ = g.Wait()

	pages := make([]Page, 0, len(fetched))
	for _, pg := range fetched {
		if pg != nil {
			pages = append(pages, *pg)
		}
	}
	return pages, results
}

// expand applies the extract-or-follow rule to one page. When the first item
// embeds an entry the page is a leaf and its embedded entries are returned.
// Otherwise every item ID is a reference, and a page with no items at all is
// a reference to itself.
func expand(pg Page) (entries []Entry, refs []string) {
	if len(pg.Items) > 0 && pg.Items[0].Entry != nil {
		for _, it := range pg.Items {
			if it.Entry != nil {
				entries = append(entries, *it.Entry)
			}
		}
		return entries, nil
	}
	for _, it := range pg.Items {
		if it.ID != "" {
			refs = append(refs, it.ID)
		}
	}
	if pg.ID != "" && len(pg.Items) == 0 {
		refs = append(refs, pg.ID)
	}
	return nil, refs
}

func countEntries(pg *Page) int {
	n := 0
	for _, it := range pg.Items {
		if it.Entry != nil {
			n++
		}
	}
	return n
}

// collect converts entries to records: timestamps in UTC, first occurrence of
// each raw version kept, newest first with undated records last.
func collect(entries []Entry) []VersionRecord {
	seen := make(map[string]bool, len(entries))
	out := make([]VersionRecord, 0, len(entries))
	for _, e := range entries {
		if e.Version == "" || seen[e.Version] {
			continue
		}
		seen[e.Version] = true
		rec := VersionRecord{Version: e.Version}
		if e.Published != nil {
			ts := e.Published.UTC()
			rec.Published = &ts
		}
		out = append(out, rec)
	}
	SortByPublished(out)
	return out
}

// SortByPublished orders records newest first. Records without a publish
// date sort last; ties keep their relative order.
func SortByPublished(records []VersionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Published, records[j].Published
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
