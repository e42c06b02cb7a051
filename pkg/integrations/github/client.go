package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/oauth2"

	"github.com/matzehuels/pkgpulse/pkg/buildinfo"
	"github.com/matzehuels/pkgpulse/pkg/integrations"
	"github.com/matzehuels/pkgpulse/pkg/roster"
)

// DefaultBaseURL is the public GitHub REST API.
const DefaultBaseURL = "https://api.github.com"

// starMediaType makes the stargazers endpoint include starred_at.
const starMediaType = "application/vnd.github.star+json"

var repoURLPattern = regexp.MustCompile(`https?://github\.com/([^/]+)/([^/]+?)(?:\.git)?(?:[/?#]|$)`)

// Client lists stargazers of GitHub repositories.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewHTTPClient returns an HTTP client with the given timeout that
// authenticates with token. An empty token yields an unauthenticated client
// (60 requests/hour).
func NewHTTPClient(ctx context.Context, token string, timeout time.Duration) *http.Client {
	base := integrations.NewHTTPClient(timeout)
	if token == "" {
		return base
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	c := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
	c.Timeout = base.Timeout
	return c
}

// NewClient creates a GitHub client over httpClient, usually built by
// [NewHTTPClient]. An empty baseURL selects [DefaultBaseURL].
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	headers := map[string]string{
		"Accept":               starMediaType,
		"User-Agent":           buildinfo.UserAgent(),
		"X-GitHub-Api-Version": "2022-11-28",
	}
	return &Client{
		Client:  integrations.NewClient(httpClient, headers),
		baseURL: baseURL,
	}
}

type stargazerResponse struct {
	StarredAt *time.Time `json:"starred_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
}

// Stargazers returns one page of stargazers for owner/repo. Pages are
// 1-based; an empty slice means the listing is exhausted. Entries are returned
// as received, including ones without a login.
func (c *Client) Stargazers(ctx context.Context, owner, repo string, page, perPage int) ([]roster.Stargazer, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/stargazers?per_page=%d&page=%d", c.baseURL, owner, repo, perPage, page)

	var data []stargazerResponse
	if err := c.Get(ctx, url, &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, fmt.Errorf("%w: github repo %s/%s", err, owner, repo)
		}
		return nil, err
	}

	out := make([]roster.Stargazer, 0, len(data))
	for _, d := range data {
		s := roster.Stargazer{Username: d.User.Login}
		if d.StarredAt != nil {
			t := d.StarredAt.UTC()
			s.StarredAt = &t
		}
		out = append(out, s)
	}
	return out, nil
}

// Roster binds the client to one repository as a [roster.Source].
func (c *Client) Roster(owner, repo string) roster.Source {
	return repoRoster{client: c, owner: owner, repo: repo}
}

type repoRoster struct {
	client      *Client
	owner, repo string
}

func (r repoRoster) Page(ctx context.Context, page, perPage int) ([]roster.Stargazer, error) {
	return r.client.Stargazers(ctx, r.owner, r.repo, page, perPage)
}

// RepoFromURL extracts owner and repo from a GitHub URL such as a package's
// project URL. Returns ok=false for non-GitHub URLs.
func RepoFromURL(u string) (owner, repo string, ok bool) {
	m := repoURLPattern.FindStringSubmatch(integrations.NormalizeRepoURL(u))
	if len(m) < 3 {
		return "", "", false
	}
	return m[1], m[2], true
}
