package cli

import (
	"context"

	"github.com/matzehuels/pkgpulse/pkg/cache"
	"github.com/matzehuels/pkgpulse/pkg/config"
	"github.com/matzehuels/pkgpulse/pkg/errors"
	"github.com/matzehuels/pkgpulse/pkg/integrations"
	"github.com/matzehuels/pkgpulse/pkg/integrations/github"
	"github.com/matzehuels/pkgpulse/pkg/integrations/nuget"
	"github.com/matzehuels/pkgpulse/pkg/packagestats"
	"github.com/matzehuels/pkgpulse/pkg/registry"
	"github.com/matzehuels/pkgpulse/pkg/roster"
	"github.com/matzehuels/pkgpulse/pkg/storage/postgres"
)

// newCache opens the configured statistics cache backend.
func (c *CLI) newCache(ctx context.Context) (cache.Cache, error) {
	cc := c.cfg.Cache
	var (
		backend cache.Cache
		err     error
	)
	switch cc.Backend {
	case config.CacheNone:
		return cache.NewNullCache(), nil
	case config.CacheMemory:
		backend, err = cache.NewMemoryCache(cc.Size)
	case config.CacheRedis:
		backend, err = cache.NewRedisCache(ctx, cc.RedisURL)
	case config.CacheFile:
		var dir string
		if dir, err = c.cacheDir(); err == nil {
			backend, err = cache.NewFileCache(dir)
		}
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown cache backend %q", cc.Backend)
	}
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("opened cache", "backend", cc.Backend)
	return cache.Prefixed(backend, cc.Prefix), nil
}

func (c *CLI) newNuGetClient() *nuget.Client {
	n := c.cfg.NuGet
	return nuget.NewClient(integrations.NewHTTPClient(n.Timeout), nuget.Endpoints{
		Registration: n.RegistrationURL,
		Search:       n.SearchURL,
		Query:        n.QueryURL,
	})
}

// newProvider builds the statistics provider over the NuGet client and the
// configured cache. The returned cache must be closed by the caller.
func (c *CLI) newProvider(ctx context.Context) (*packagestats.Provider, cache.Cache, error) {
	store, err := c.newCache(ctx)
	if err != nil {
		return nil, nil, err
	}
	client := c.newNuGetClient()
	pager := registry.NewPaginator(client, registry.Options{
		FanOut:   c.cfg.NuGet.FanOut,
		MaxDepth: c.cfg.NuGet.MaxDepth,
		Logger:   c.Logger,
	})
	p := packagestats.NewProvider(pager, client, client, packagestats.Options{
		Cache:      store,
		Expiration: c.cfg.Cache.Expiration,
		Logger:     c.Logger,
	})
	return p, store, nil
}

// openStore connects to the configured Postgres database.
func (c *CLI) openStore(ctx context.Context) (*postgres.Store, error) {
	if err := c.cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	return postgres.Open(ctx, c.cfg.Database.DSN, c.Logger)
}

// newReconciler builds a reconciler for the configured project.
func (c *CLI) newReconciler(ctx context.Context, store roster.Store) (*roster.Reconciler, error) {
	owner, repo, err := github.ParseRepoRef(c.cfg.Project)
	if err != nil {
		return nil, err
	}
	gh := c.cfg.GitHub
	if gh.Token == "" {
		c.Logger.Warn("no GitHub token configured; roster fetches are rate limited to 60 requests/hour")
	}
	client := github.NewClient(github.NewHTTPClient(ctx, gh.Token, gh.Timeout), gh.BaseURL)
	return roster.NewReconciler(c.cfg.Project, client.Roster(owner, repo), store, roster.Options{
		PerPage: gh.PerPage,
		Logger:  c.Logger,
	}), nil
}
