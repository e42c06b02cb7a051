package nuget

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/matzehuels/pkgpulse/pkg/buildinfo"
	"github.com/matzehuels/pkgpulse/pkg/integrations"
	"github.com/matzehuels/pkgpulse/pkg/packagestats"
	"github.com/matzehuels/pkgpulse/pkg/registry"
	"github.com/matzehuels/pkgpulse/pkg/version"
)

// Endpoints are the NuGet v3 service URLs the client talks to.
type Endpoints struct {
	Registration string // registration base, "{Registration}/{id}/index.json"
	Search       string // primary search service
	Query        string // secondary query service
}

// DefaultEndpoints are the public nuget.org services.
var DefaultEndpoints = Endpoints{
	Registration: "https://api.nuget.org/v3/registration5-gz-semver2",
	Search:       "https://azuresearch-usnc.nuget.org/query",
	Query:        "https://api.nuget.org/v3/query",
}

// Client reads the NuGet registration index and search services.
//
// It satisfies [registry.Source], [packagestats.MetadataSource] and
// [packagestats.DownloadSource].
type Client struct {
	*integrations.Client
	endpoints Endpoints
}

var (
	_ registry.Source             = (*Client)(nil)
	_ packagestats.MetadataSource = (*Client)(nil)
	_ packagestats.DownloadSource = (*Client)(nil)
)

// NewClient creates a NuGet client. Zero-valued endpoint fields fall back to
// [DefaultEndpoints].
func NewClient(httpClient *http.Client, endpoints Endpoints) *Client {
	if endpoints.Registration == "" {
		endpoints.Registration = DefaultEndpoints.Registration
	}
	if endpoints.Search == "" {
		endpoints.Search = DefaultEndpoints.Search
	}
	if endpoints.Query == "" {
		endpoints.Query = DefaultEndpoints.Query
	}
	headers := map[string]string{
		"Accept":     "application/json",
		"User-Agent": buildinfo.UserAgent(),
	}
	return &Client{
		Client:    integrations.NewClient(httpClient, headers),
		endpoints: endpoints,
	}
}

type registrationIndex struct {
	Items []registrationPage `json:"items"`
}

type registrationPage struct {
	ID    string             `json:"@id"`
	Items []registrationItem `json:"items"`
}

type registrationItem struct {
	ID           string        `json:"@id"`
	CatalogEntry *catalogEntry `json:"catalogEntry"`
}

type catalogEntry struct {
	Version   string     `json:"version"`
	Published *time.Time `json:"published"`
}

type searchResponse struct {
	Data []searchResult `json:"data"`
}

type searchResult struct {
	ID             string          `json:"id"`
	Description    string          `json:"description"`
	Authors        stringList      `json:"authors"`
	ProjectURL     string          `json:"projectUrl"`
	TotalDownloads *int64          `json:"totalDownloads"`
	Versions       []searchVersion `json:"versions"`
}

// stringList accepts either a JSON array of strings or a single string.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if one != "" {
			*l = stringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

type searchVersion struct {
	Version   string `json:"version"`
	Downloads int64  `json:"downloads"`
}

// Index fetches the registration index of pkg.
func (c *Client) Index(ctx context.Context, pkg string) (*registry.Index, error) {
	url := fmt.Sprintf("%s/%s/index.json", c.endpoints.Registration, integrations.NormalizePkgName(pkg))

	var data registrationIndex
	if err := c.Get(ctx, url, &data); err != nil {
		return nil, fmt.Errorf("nuget registration %s: %w", pkg, err)
	}

	idx := &registry.Index{Pages: make([]registry.Page, 0, len(data.Items))}
	for _, p := range data.Items {
		idx.Pages = append(idx.Pages, p.toPage())
	}
	return idx, nil
}

// Page fetches a registration page or leaf document by URL.
func (c *Client) Page(ctx context.Context, url string) (*registry.Page, error) {
	var data registrationPage
	if err := c.Get(ctx, url, &data); err != nil {
		return nil, err
	}
	pg := data.toPage()
	return &pg, nil
}

func (p registrationPage) toPage() registry.Page {
	pg := registry.Page{ID: p.ID, Items: make([]registry.Item, 0, len(p.Items))}
	for _, it := range p.Items {
		item := registry.Item{ID: it.ID}
		if it.CatalogEntry != nil {
			item.Entry = &registry.Entry{
				Version:   it.CatalogEntry.Version,
				Published: it.CatalogEntry.Published,
			}
		}
		pg.Items = append(pg.Items, item)
	}
	return pg
}

// Metadata queries the primary search service for pkg. The result matching
// pkg case-insensitively is returned; no match yields ErrNotFound.
func (c *Client) Metadata(ctx context.Context, pkg string) (*packagestats.Metadata, error) {
	res, err := c.search(ctx, c.endpoints.Search, "packageid:"+integrations.NormalizePkgName(pkg), pkg)
	if err != nil {
		return nil, err
	}

	md := &packagestats.Metadata{
		ID:             res.ID,
		Description:    res.Description,
		Authors:        res.Authors,
		ProjectURL:     integrations.NormalizeRepoURL(res.ProjectURL),
		TotalDownloads: res.TotalDownloads,
		Versions:       make([]packagestats.VersionDownloads, 0, len(res.Versions)),
	}
	for _, v := range res.Versions {
		md.Versions = append(md.Versions, packagestats.VersionDownloads{Version: v.Version, Downloads: v.Downloads})
	}
	return md, nil
}

// QueryDownloads asks the secondary query service for download counts of the
// given versions. The result is keyed by normalized version and holds only
// requested keys; when the service lists a key twice the first count wins.
func (c *Client) QueryDownloads(ctx context.Context, pkg string, versions []string) (map[string]int64, error) {
	wanted := make(map[string]bool, len(versions))
	for _, v := range versions {
		wanted[version.Normalize(v)] = true
	}

	out := make(map[string]int64)
	if len(wanted) == 0 {
		return out, nil
	}

	res, err := c.search(ctx, c.endpoints.Query, integrations.NormalizePkgName(pkg), pkg)
	if err != nil {
		return out, err
	}
	for _, v := range res.Versions {
		key := version.Normalize(v.Version)
		if !wanted[key] {
			continue
		}
		if _, dup := out[key]; !dup {
			out[key] = v.Downloads
		}
	}
	return out, nil
}

func (c *Client) search(ctx context.Context, base, query, pkg string) (*searchResult, error) {
	url := fmt.Sprintf("%s?q=%s&take=1000&prerelease=true&semVerLevel=2.0.0", base, integrations.URLEncode(query))

	var data searchResponse
	if err := c.Get(ctx, url, &data); err != nil {
		return nil, err
	}
	for i := range data.Data {
		if strings.EqualFold(data.Data[i].ID, pkg) {
			return &data.Data[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s in search results", integrations.ErrNotFound, pkg)
}
