// Package config loads pkgpulse settings.
//
// Values are layered, later layers winning:
//
//  1. built-in defaults ([Default])
//  2. an optional TOML file
//  3. environment variables (PKGPULSE_*, DB_CONNECTION_STRING, GITHUB_TOKEN)
//
// Command-line flags are applied by the CLI on top of the result.
//
// Example file:
//
//	package = "Ivy"
//	project = "Ivy-Interactive/Ivy-Framework"
//
//	[database]
//	dsn = "postgres://localhost/pkgpulse?sslmode=disable"
//
//	[cache]
//	backend = "redis"
//	redis_url = "redis://localhost:6379/0"
//	expiration = "15m"
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"

	"github.com/matzehuels/pkgpulse/pkg/errors"
	"github.com/matzehuels/pkgpulse/pkg/integrations/github"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheFile   = "file"
	CacheNone   = "none"
)

// Config holds every setting.
type Config struct {
	Package  string         `toml:"package"`
	Project  string         `toml:"project"`
	Database DatabaseConfig `toml:"database"`
	NuGet    NuGetConfig    `toml:"nuget"`
	GitHub   GitHubConfig   `toml:"github"`
	Cache    CacheConfig    `toml:"cache"`
	Schedule ScheduleConfig `toml:"schedule"`
	Server   ServerConfig   `toml:"server"`
}

type DatabaseConfig struct {
	DSN string `toml:"dsn"`
}

type NuGetConfig struct {
	RegistrationURL string        `toml:"registration_url"`
	SearchURL       string        `toml:"search_url"`
	QueryURL        string        `toml:"query_url"`
	Timeout         time.Duration `toml:"timeout"`
	FanOut          int           `toml:"fan_out"`
	MaxDepth        int           `toml:"max_depth"`
}

type GitHubConfig struct {
	Token   string        `toml:"token"`
	BaseURL string        `toml:"base_url"`
	Timeout time.Duration `toml:"timeout"`
	PerPage int           `toml:"per_page"`
}

type CacheConfig struct {
	Backend    string        `toml:"backend"`
	Expiration time.Duration `toml:"expiration"`
	Size       int           `toml:"size"`
	RedisURL   string        `toml:"redis_url"`
	Dir        string        `toml:"dir"`
	Prefix     string        `toml:"prefix"`
}

type ScheduleConfig struct {
	Reconcile string `toml:"reconcile"`
	Snapshot  string `toml:"snapshot"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Package: "Ivy",
		Project: "Ivy-Interactive/Ivy-Framework",
		NuGet: NuGetConfig{
			Timeout:  30 * time.Second,
			FanOut:   4,
			MaxDepth: 4,
		},
		GitHub: GitHubConfig{
			Timeout: 10 * time.Second,
			PerPage: 100,
		},
		Cache: CacheConfig{
			Backend:    CacheMemory,
			Expiration: 15 * time.Minute,
			Size:       256,
		},
		Schedule: ScheduleConfig{
			Reconcile: "@hourly",
			Snapshot:  "5 0 * * *",
		},
		Server: ServerConfig{Listen: ":8080"},
	}
}

// Load reads defaults, then path (if non-empty), then the process
// environment, and validates the result.
func Load(path string) (Config, error) {
	return LoadWith(path, os.Getenv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "read config %s", path)
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	str(&c.Package, "PKGPULSE_PACKAGE")
	str(&c.Project, "PKGPULSE_PROJECT")
	str(&c.Database.DSN, "PKGPULSE_DATABASE_DSN", "DB_CONNECTION_STRING")
	str(&c.GitHub.Token, "PKGPULSE_GITHUB_TOKEN", "GITHUB_TOKEN")
	str(&c.Cache.Backend, "PKGPULSE_CACHE_BACKEND")
	str(&c.Cache.RedisURL, "PKGPULSE_REDIS_URL")
	str(&c.Cache.Dir, "PKGPULSE_CACHE_DIR")
	str(&c.Schedule.Reconcile, "PKGPULSE_RECONCILE_SCHEDULE")
	str(&c.Server.Listen, "PKGPULSE_LISTEN")

	if v := getenv("PKGPULSE_CACHE_EXPIRATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "PKGPULSE_CACHE_EXPIRATION")
		}
		c.Cache.Expiration = d
	}
	if v := getenv("PKGPULSE_FAN_OUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "PKGPULSE_FAN_OUT")
		}
		c.NuGet.FanOut = n
	}
	return nil
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	if err := errors.ValidateNuGetPackageID(c.Package); err != nil {
		return err
	}
	if _, _, err := github.ParseRepoRef(c.Project); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheFile, CacheNone:
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return errors.New(errors.ErrCodeInvalidInput, "cache backend redis requires redis_url")
		}
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Expiration < 0 {
		return errors.New(errors.ErrCodeInvalidInput, "cache expiration must not be negative")
	}
	if c.NuGet.FanOut < 1 || c.NuGet.FanOut > 32 {
		return errors.New(errors.ErrCodeInvalidInput, "nuget fan_out must be between 1 and 32")
	}
	if c.GitHub.PerPage < 1 || c.GitHub.PerPage > 100 {
		return errors.New(errors.ErrCodeInvalidInput, "github per_page must be between 1 and 100")
	}
	for name, spec := range map[string]string{"reconcile": c.Schedule.Reconcile, "snapshot": c.Schedule.Snapshot} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "schedule %s %q", name, spec)
		}
	}
	return nil
}

// RequireDatabase returns an error when no DSN is configured.
func (c Config) RequireDatabase() error {
	if c.Database.DSN == "" {
		return errors.New(errors.ErrCodeInvalidInput,
			"no database configured: set DB_CONNECTION_STRING or [database] dsn")
	}
	return nil
}

// String renders the configuration as TOML with secrets masked.
func (c Config) String() string {
	masked := c
	if masked.GitHub.Token != "" {
		masked.GitHub.Token = "***"
	}
	if masked.Database.DSN != "" {
		masked.Database.DSN = maskDSN(masked.Database.DSN)
	}
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(masked); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return b.String()
}

// maskDSN hides the password of a URL-style DSN.
func maskDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return "***"
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, _ := strings.Cut(creds, ":")
	return scheme + "://" + user + ":***@" + host
}
