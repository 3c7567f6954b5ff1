package cmd

import (
	"fmt"

	"github.com/brensch/nomenclator/internal/downloader"
	"github.com/brensch/nomenclator/internal/util"

	"github.com/spf13/cobra"
)

var refreshFetch bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and extract the dump without converting it",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger().With("component", "downloader")
		cfg := getConfig()
		if refreshFetch {
			if err := downloader.Clean(cfg.WorkDir); err != nil {
				return err
			}
		}
		dir, err := downloader.FetchArchive(cmd.Context(), util.DefaultHTTPClient(cfg.HTTPTimeout), cfg, logger)
		if err != nil {
			return fmt.Errorf("fetch failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), dir)
		return nil
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&refreshFetch, "refresh", false, "Remove the work directory first")
}
