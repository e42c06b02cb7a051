// Package cli implements the pkgpulse command-line interface.
//
// Commands read their settings from [config.Config]: built-in defaults, an
// optional TOML file (--config), the environment, then the --package and
// --project flags.
package cli

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/pkgpulse/pkg/buildinfo"
	"github.com/matzehuels/pkgpulse/pkg/config"
)

// appName names the cache directory and the binary in help output.
const appName = "pkgpulse"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	pkg        string
	project    string
	getenv     func(string) string

	cfg config.Config
}

// New creates a CLI that logs to w at level.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		getenv: os.Getenv,
		cfg:    config.Default(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "pkgpulse tracks NuGet downloads and GitHub stargazers",
		Long: `pkgpulse collects package statistics from the NuGet registry and keeps a
reconciled roster of a GitHub project's stargazers, with daily aggregates
served over a small read-only HTTP API.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
	}
	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "path to a TOML config file")
	flags.StringVar(&c.pkg, "package", "", "NuGet package id (overrides config)")
	flags.StringVar(&c.project, "project", "", "GitHub project as owner/repo (overrides config)")

	root.AddCommand(c.statsCommand())
	root.AddCommand(c.versionsCommand())
	root.AddCommand(c.snapshotCommand())
	root.AddCommand(c.dailyCommand())
	root.AddCommand(c.reconcileCommand())
	root.AddCommand(c.starsCommand())
	root.AddCommand(c.eventsCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.scheduleCommand())
	root.AddCommand(c.migrateCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig layers flags over the file and environment and validates the
// result.
func (c *CLI) loadConfig() error {
	cfg, err := config.LoadWith(c.configPath, c.getenv)
	if err != nil {
		return err
	}
	if c.pkg != "" {
		cfg.Package = c.pkg
	}
	if c.project != "" {
		cfg.Project = c.project
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	c.Logger.Debug("loaded config", "package", cfg.Package, "project", cfg.Project, "cache", cfg.Cache.Backend)
	return nil
}

// configCommand prints the effective configuration.
func (c *CLI) configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration (secrets masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			io.WriteString(cmd.OutOrStdout(), c.cfg.String())
			return nil
		},
	}
}

// cacheDir returns the file cache directory using the XDG convention
// (~/.cache/pkgpulse/).
func (c *CLI) cacheDir() (string, error) {
	if dir := c.cfg.Cache.Dir; dir != "" {
		return dir, nil
	}
	if cacheHome := c.getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
