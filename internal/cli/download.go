package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurrent-scraper/internal/config"
	"github.com/JakeFAU/concurrent-scraper/internal/storage"
)

func newDownloadCmd(state *rootState) *cobra.Command {
	var (
		outDir        string
		maxConcurrent int
	)
	cmd := &cobra.Command{
		Use:   "download [urls...]",
		Short: "Fetch a batch of pages into blob storage",
		Long: `Fetches every URL with bounded concurrency and writes each body to the
configured blob store under <batch id>/<file name>. --out switches to the
local backend rooted at the given directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			useDir := func(cfg *config.Config) {
				if strings.TrimSpace(outDir) != "" {
					cfg.Storage.Backend = storage.BackendLocal
					cfg.Storage.BaseDir = outDir
				}
			}
			return state.run(useDir, func(a App) error {
				return runDownload(cmd, a, args, maxConcurrent)
			})
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "write to this local directory instead of the configured store")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "maximum requests in flight (0 uses fetch.max_concurrent)")
	return cmd
}

func runDownload(cmd *cobra.Command, a App, args []string, maxConcurrent int) error {
	urls := batchURLs(args, a.Config())
	batch, err := a.Download(cmd.Context(), urls, maxConcurrent)
	if err != nil {
		return fmt.Errorf("download batch: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Download Results:")
	fmt.Fprintln(out, "-----------------")
	failed := 0
	for _, res := range batch.Results {
		if !res.OK() {
			failed++
			fmt.Fprintf(out, "Error downloading %s: %v\n", res.URL, res.Err)
			continue
		}
		fmt.Fprintf(out, "Downloaded: %s -> %s (%d bytes)\n", res.URL, res.URI, res.Bytes)
	}
	fmt.Fprintf(out, "Batch %s took: %.2f seconds\n", batch.ID, batch.Elapsed.Seconds())
	a.Logger().Info("download finished",
		zap.Stringer("batch_id", batch.ID),
		zap.Int("stored", len(batch.Results)-failed),
		zap.Int("failed", failed),
	)
	return nil
}
