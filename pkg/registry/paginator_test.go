package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	pkgerrors "github.com/matzehuels/pkgpulse/pkg/errors"
)

type fakeSource struct {
	index    *Index
	indexErr error
	pages    map[string]*Page
	failing  map[string]error
	delay    time.Duration

	mu       sync.Mutex
	fetched  []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeSource) Index(context.Context, string) (*Index, error) {
	return f.index, f.indexErr
}

func (f *fakeSource) Page(_ context.Context, url string) (*Page, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()

	if err := f.failing[url]; err != nil {
		return nil, err
	}
	pg, ok := f.pages[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return pg, nil
}

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func leaf(version, published string) Item {
	e := &Entry{Version: version}
	if published != "" {
		e.Published = ts(published)
	}
	return Item{ID: "https://r/leaf/" + version, Entry: e}
}

func versions(recs []VersionRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Version
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFetchAllVersionsInlinePages(t *testing.T) {
	src := &fakeSource{index: &Index{Pages: []Page{
		{ID: "https://r/page/0", Items: []Item{
			leaf("1.0.0", "2024-01-01T00:00:00Z"),
			leaf("1.1.0-beta", "2024-02-01T00:00:00Z"),
		}},
	}}}

	tr, err := NewPaginator(src, Options{}).FetchAllVersions(context.Background(), "Ivy")
	if err != nil {
		t.Fatalf("FetchAllVersions() error: %v", err)
	}
	if got, want := versions(tr.Versions), []string{"1.1.0-beta", "1.0.0"}; !equalStrings(got, want) {
		t.Errorf("versions = %v, want %v", got, want)
	}
	if len(src.fetched) != 0 {
		t.Errorf("inline index fetched %v, want no page fetches", src.fetched)
	}
	if !tr.Complete() {
		t.Error("Complete() = false, want true")
	}
}

func TestFetchAllVersionsLinkedPages(t *testing.T) {
	src := &fakeSource{
		index: &Index{Pages: []Page{
			{ID: "https://r/page/a"}, // stub: content lives at its ID
			{ID: "https://r/page/b", Items: []Item{{ID: "https://r/page/b1"}, {ID: "https://r/page/b2"}}},
		}},
		pages: map[string]*Page{
			"https://r/page/a":  {ID: "https://r/page/a", Items: []Item{leaf("1.0.0", "2023-01-01T00:00:00Z")}},
			"https://r/page/b1": {ID: "https://r/page/b1", Items: []Item{leaf("2.0.0", "2024-01-01T00:00:00Z")}},
			"https://r/page/b2": {ID: "https://r/page/b2", Items: []Item{{ID: "https://r/page/b2x"}}},
			"https://r/page/b2x": {ID: "https://r/page/b2x", Items: []Item{
				leaf("3.0.0", "2025-01-01T00:00:00Z"),
			}},
		},
	}

	tr, err := NewPaginator(src, Options{FanOut: 2}).FetchAllVersions(context.Background(), "Ivy")
	if err != nil {
		t.Fatalf("FetchAllVersions() error: %v", err)
	}
	if got, want := versions(tr.Versions), []string{"3.0.0", "2.0.0", "1.0.0"}; !equalStrings(got, want) {
		t.Errorf("versions = %v, want %v", got, want)
	}
	if len(tr.Pages) != 4 {
		t.Errorf("pages = %d, want 4", len(tr.Pages))
	}
}

func TestFetchAllVersionsSoftFailure(t *testing.T) {
	src := &fakeSource{
		index: &Index{Pages: []Page{
			{ID: "https://r/page/ok"},
			{ID: "https://r/page/broken"},
			{ID: "https://r/page/inline", Items: []Item{leaf("0.9.0", "2022-06-01T00:00:00Z")}},
		}},
		pages: map[string]*Page{
			"https://r/page/ok": {Items: []Item{leaf("1.0.0", "2023-01-01T00:00:00Z")}},
		},
		failing: map[string]error{"https://r/page/broken": errors.New("timeout")},
	}

	tr, err := NewPaginator(src, Options{}).FetchAllVersions(context.Background(), "Ivy")
	if err != nil {
		t.Fatalf("FetchAllVersions() error = %v, want soft failure", err)
	}
	if got, want := versions(tr.Versions), []string{"1.0.0", "0.9.0"}; !equalStrings(got, want) {
		t.Errorf("versions = %v, want %v", got, want)
	}

	failures := tr.SoftFailures()
	if len(failures) != 1 || failures[0].URL != "https://r/page/broken" {
		t.Fatalf("SoftFailures() = %+v, want the broken page", failures)
	}
	if failures[0].OK() {
		t.Error("failed page reports OK")
	}
	if tr.Complete() {
		t.Error("Complete() = true, want false")
	}
}

func TestFetchAllVersionsIndexFailure(t *testing.T) {
	src := &fakeSource{indexErr: errors.New("connection refused")}

	_, err := NewPaginator(src, Options{}).FetchAllVersions(context.Background(), "Ivy")
	if !pkgerrors.Is(err, pkgerrors.ErrCodeSourceUnavailable) {
		t.Errorf("error = %v, want SOURCE_UNAVAILABLE", err)
	}
}

func TestFetchAllVersionsDedupAndSort(t *testing.T) {
	first := leaf("1.0.0", "2024-01-01T00:00:00Z")
	dup := leaf("1.0.0", "2020-01-01T00:00:00Z")
	src := &fakeSource{index: &Index{Pages: []Page{
		{Items: []Item{
			leaf("0.1.0", ""),
			first,
			leaf("2.0.0", "2024-06-01T12:00:00+02:00"),
			dup,
			leaf("0.2.0", ""),
		}},
	}}}

	tr, err := NewPaginator(src, Options{}).FetchAllVersions(context.Background(), "Ivy")
	if err != nil {
		t.Fatalf("FetchAllVersions() error: %v", err)
	}
	if got, want := versions(tr.Versions), []string{"2.0.0", "1.0.0", "0.1.0", "0.2.0"}; !equalStrings(got, want) {
		t.Errorf("versions = %v, want %v", got, want)
	}
	if !tr.Versions[1].Published.Equal(*first.Entry.Published) {
		t.Errorf("duplicate kept %v, want first occurrence %v", tr.Versions[1].Published, first.Entry.Published)
	}
	if loc := tr.Versions[0].Published.Location(); loc != time.UTC {
		t.Errorf("published location = %v, want UTC", loc)
	}
	if tr.Versions[0].Published.Hour() != 10 {
		t.Errorf("published hour = %d, want 10 (UTC)", tr.Versions[0].Published.Hour())
	}
}

func TestFetchAllVersionsMixedLeafItems(t *testing.T) {
	// Only the first item decides the page shape; later items without an
	// entry are ignored rather than followed.
	src := &fakeSource{index: &Index{Pages: []Page{
		{Items: []Item{
			leaf("1.0.0", "2024-01-01T00:00:00Z"),
			{ID: "https://r/page/never"},
		}},
	}}}

	tr, err := NewPaginator(src, Options{}).FetchAllVersions(context.Background(), "Ivy")
	if err != nil {
		t.Fatalf("FetchAllVersions() error: %v", err)
	}
	if len(tr.Versions) != 1 || len(src.fetched) != 0 {
		t.Errorf("versions = %v, fetched = %v", versions(tr.Versions), src.fetched)
	}
}

func TestFetchAllVersionsCycleAndDepth(t *testing.T) {
	src := &fakeSource{
		index: &Index{Pages: []Page{{ID: "https://r/loop"}}},
		pages: map[string]*Page{
			"https://r/loop": {ID: "https://r/loop", Items: []Item{{ID: "https://r/loop"}, {ID: "https://r/d1"}}},
			"https://r/d1":   {Items: []Item{{ID: "https://r/d2"}}},
			"https://r/d2":   {Items: []Item{{ID: "https://r/d3"}}},
			"https://r/d3":   {Items: []Item{leaf("1.0.0", "2024-01-01T00:00:00Z")}},
		},
	}

	tr, err := NewPaginator(src, Options{MaxDepth: 3}).FetchAllVersions(context.Background(), "Ivy")
	if err != nil {
		t.Fatalf("FetchAllVersions() error: %v", err)
	}
	for _, u := range src.fetched {
		if u == "https://r/d3" {
			t.Error("page below the depth limit was fetched")
		}
	}
	count := 0
	for _, u := range src.fetched {
		if u == "https://r/loop" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("self-referencing page fetched %d times, want 1", count)
	}

	failures := tr.SoftFailures()
	if len(failures) != 1 || !errors.Is(failures[0].Err, ErrMaxDepth) {
		t.Errorf("SoftFailures() = %+v, want one ErrMaxDepth", failures)
	}
}

func TestFetchAllVersionsBoundedFanOut(t *testing.T) {
	idx := &Index{}
	pages := map[string]*Page{}
	for _, v := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		u := "https://r/page/" + v
		idx.Pages = append(idx.Pages, Page{ID: u})
		pages[u] = &Page{Items: []Item{leaf("1.0."+v, "")}}
	}
	src := &fakeSource{index: idx, pages: pages, delay: 10 * time.Millisecond}

	tr, err := NewPaginator(src, Options{FanOut: 3}).FetchAllVersions(context.Background(), "Ivy")
	if err != nil {
		t.Fatalf("FetchAllVersions() error: %v", err)
	}
	if len(tr.Versions) != 8 {
		t.Errorf("versions = %d, want 8", len(tr.Versions))
	}
	if got := src.maxSeen.Load(); got > 3 {
		t.Errorf("max concurrent fetches = %d, want <= 3", got)
	}
}

func TestFetchAllVersionsCancelled(t *testing.T) {
	src := &fakeSource{
		index: &Index{Pages: []Page{{ID: "https://r/page/a"}}},
		pages: map[string]*Page{"https://r/page/a": {Items: []Item{leaf("1.0.0", "")}}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPaginator(src, Options{}).FetchAllVersions(ctx, "Ivy")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestSortByPublished(t *testing.T) {
	recs := []VersionRecord{
		{Version: "undated-1"},
		{Version: "old", Published: ts("2020-01-01T00:00:00Z")},
		{Version: "undated-2"},
		{Version: "new", Published: ts("2024-01-01T00:00:00Z")},
	}
	SortByPublished(recs)
	if got, want := versions(recs), []string{"new", "old", "undated-1", "undated-2"}; !equalStrings(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}
