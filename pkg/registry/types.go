package registry

import (
	"context"
	"time"
)

// Entry is the version metadata embedded in a leaf page item.
type Entry struct {
	Version   string
	Published *time.Time
}

// Item is one element of a page. It either embeds an Entry or points (by ID)
// to another page that has to be fetched.
type Item struct {
	ID    string
	Entry *Entry
}

// Page is a registry page. A page with an ID and no items is a stub whose
// content lives at ID.
type Page struct {
	ID    string
	Items []Item
}

// Index is the root document listing a package's pages.
type Index struct {
	Pages []Page
}

// Source fetches registry documents. Implementations adapt a concrete
// registry wire format to these types.
type Source interface {
	// Index fetches the root index for pkg.
	Index(ctx context.Context, pkg string) (*Index, error)

	// Page fetches the page at url.
	Page(ctx context.Context, url string) (*Page, error)
}

// VersionRecord is one release of a package. Downloads is nil until a
// download count source supplies it.
type VersionRecord struct {
	Version   string     `json:"version"`
	Published *time.Time `json:"published,omitempty"`
	Downloads *int64     `json:"downloads,omitempty"`
}
