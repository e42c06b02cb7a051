package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pkgpulse/pkg/cache"
	"github.com/matzehuels/pkgpulse/pkg/config"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the package statistics cache",
	}
	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())
	return cmd
}

// cacheClearCommand drops cached statistics. With no arguments and the file
// backend the whole cache directory is emptied.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [package...]",
		Short: "Drop cached statistics for packages (default: the configured package)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 0 && c.cfg.Cache.Backend == config.CacheFile {
				dir, err := c.cacheDir()
				if err != nil {
					return err
				}
				fc, err := cache.NewFileCache(dir)
				if err != nil {
					return err
				}
				if err := fc.Clear(); err != nil {
					return err
				}
				printSuccess("Cleared cache")
				printDetail("Directory: %s", dir)
				return nil
			}

			store, err := c.newCache(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			if len(args) == 0 {
				args = []string{c.cfg.Package}
			}
			for _, pkg := range args {
				if err := store.Delete(ctx, cache.StatsKey(pkg)); err != nil {
					return err
				}
			}
			printSuccess("Cleared cached statistics for %d package(s)", len(args))
			return nil
		},
	}
}

// cachePathCommand prints the file cache directory.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the file cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}
