package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// CacheCmd manages the completion and inspection cache
var CacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the result cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Invalidate every cached completion and inspection",
	Long: `Bump the cache key version so every existing entry is ignored. Entries
are not deleted; they expire with their TTL.`,
	Args: cobra.NoArgs,
	RunE: runCacheClear,
}

func init() {
	CacheCmd.AddCommand(cacheClearCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	version, err := a.cache.Clear(cmd.Context())
	if err != nil {
		return err
	}
	pterm.Success.Printfln("Cache cleared (%s backend, version %d)", a.cfg.Cache.Backend, version)
	return nil
}
