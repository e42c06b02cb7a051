package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/matzehuels/pkgpulse/pkg/cache"
	"github.com/matzehuels/pkgpulse/pkg/config"
	"github.com/matzehuels/pkgpulse/pkg/errors"
)

func newTestCLI(env map[string]string) *CLI {
	c := New(&bytes.Buffer{}, LogInfo)
	c.getenv = func(k string) string { return env[k] }
	return c
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = old })
	return &buf
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newTestCLI(nil).RootCommand()
	want := []string{"stats", "versions", "snapshot", "daily", "reconcile", "stars", "events",
		"serve", "schedule", "migrate", "cache", "config", "completion"}
	for _, name := range want {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestLoadConfigLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pkgpulse.toml")
	err := os.WriteFile(path, []byte(`
package = "FromFile"
project = "file/project"

[cache]
backend = "none"
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	c := newTestCLI(map[string]string{"PKGPULSE_PROJECT": "env/project"})
	c.configPath = path
	c.pkg = "FromFlag"
	if err := c.loadConfig(); err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if c.cfg.Package != "FromFlag" {
		t.Errorf("package = %q, want flag value", c.cfg.Package)
	}
	if c.cfg.Project != "env/project" {
		t.Errorf("project = %q, want env value", c.cfg.Project)
	}
	if c.cfg.Cache.Backend != config.CacheNone {
		t.Errorf("cache backend = %q, want file value", c.cfg.Cache.Backend)
	}
}

func TestLoadConfigRejectsInvalidFlag(t *testing.T) {
	c := newTestCLI(nil)
	c.project = "not-a-project"
	if err := c.loadConfig(); !errors.Is(err, errors.ErrCodeInvalidProject) {
		t.Errorf("loadConfig() error = %v, want INVALID_PROJECT", err)
	}
}

func TestConfigCommandMasksSecrets(t *testing.T) {
	c := newTestCLI(map[string]string{
		"GITHUB_TOKEN":         "ghp_secret",
		"DB_CONNECTION_STRING": "postgres://app:hunter2@db/pkgpulse",
	})
	root := c.RootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("config error: %v", err)
	}
	if strings.Contains(out.String(), "ghp_secret") || strings.Contains(out.String(), "hunter2") {
		t.Errorf("secrets leaked:\n%s", out.String())
	}
	if !strings.Contains(out.String(), `package = "Ivy"`) {
		t.Errorf("output missing package:\n%s", out.String())
	}
}

func TestCacheDir(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		env  map[string]string
		want string
	}{
		{"configured", "/srv/cache", nil, "/srv/cache"},
		{"xdg", "", map[string]string{"XDG_CACHE_HOME": "/xdg"}, filepath.Join("/xdg", "pkgpulse")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCLI(tt.env)
			c.cfg.Cache.Dir = tt.dir
			got, err := c.cacheDir()
			if err != nil || got != tt.want {
				t.Errorf("cacheDir() = %q, %v, want %q", got, err, tt.want)
			}
		})
	}
}

func TestNewCacheBackends(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		backend string
		setup   func(*config.CacheConfig)
		stores  bool
	}{
		{"none", config.CacheNone, nil, false},
		{"memory", config.CacheMemory, nil, true},
		{"file", config.CacheFile, func(cc *config.CacheConfig) { cc.Dir = t.TempDir() }, true},
		{"redis", config.CacheRedis, func(cc *config.CacheConfig) {
			cc.RedisURL = "redis://" + mr.Addr()
			cc.Prefix = "pkgpulse:"
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCLI(nil)
			c.cfg.Cache.Backend = tt.backend
			if tt.setup != nil {
				tt.setup(&c.cfg.Cache)
			}
			ctx := context.Background()
			store, err := c.newCache(ctx)
			if err != nil {
				t.Fatalf("newCache() error: %v", err)
			}
			defer store.Close()

			key := cache.StatsKey("Ivy")
			if err := store.Set(ctx, key, []byte("{}"), time.Minute); err != nil {
				t.Fatalf("Set() error: %v", err)
			}
			_, ok, err := store.Get(ctx, key)
			if err != nil || ok != tt.stores {
				t.Errorf("Get() ok = %v, err = %v, want ok = %v", ok, err, tt.stores)
			}
		})
	}

	if !mr.Exists("pkgpulse:stats:ivy") {
		t.Errorf("redis keys = %v, want prefixed stats key", mr.Keys())
	}
}

func TestNewCacheRedisUnreachable(t *testing.T) {
	c := newTestCLI(nil)
	c.cfg.Cache.Backend = config.CacheRedis
	c.cfg.Cache.RedisURL = "redis://127.0.0.1:1"
	if _, err := c.newCache(context.Background()); err == nil {
		t.Error("newCache() error = nil, want connection failure")
	}
}

func TestOpenStoreRequiresDSN(t *testing.T) {
	c := newTestCLI(nil)
	if _, err := c.openStore(context.Background()); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("openStore() error = %v, want INVALID_INPUT", err)
	}
}
