package cli

import (
	"github.com/spf13/cobra"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local thumbnail cache",
}

// cacheClearCmd represents the cache clear subcommand
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all cached thumbnails",
	Long: `Delete every cached thumbnail image.

Thumbnails are refetched lazily the next time the source listing needs
them; synced records are not touched.`,
	RunE: runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	RootCmd.AddCommand(cacheCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.ClearThumbnails(cmd.Context()); err != nil {
		return err
	}
	cmd.Println("Thumbnail cache cleared")
	return nil
}
