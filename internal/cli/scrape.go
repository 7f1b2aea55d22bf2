package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/concurrent-scraper/internal/config"
	"github.com/JakeFAU/concurrent-scraper/internal/pipeline"
)

func newScrapeCmd(state *rootState) *cobra.Command {
	var maxConcurrent int
	cmd := &cobra.Command{
		Use:   "scrape [urls...]",
		Short: "Fetch and process a batch of pages",
		Long: `Fetches every URL with at most --max-concurrent requests in flight,
processes the successful pages in parallel, and prints the metrics for both
stages followed by one line per processed page. Without arguments the
configured URL list is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return state.run(nil, func(a App) error {
				return runScrape(cmd, a, args, maxConcurrent)
			})
		},
	}
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "maximum requests in flight (0 uses fetch.max_concurrent)")
	return cmd
}

func runScrape(cmd *cobra.Command, a App, args []string, maxConcurrent int) error {
	urls := batchURLs(args, a.Config())
	limit := maxConcurrent
	if limit == 0 {
		limit = a.Config().Fetch.MaxConcurrent
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Starting concurrent fetch of %d URLs (max %d in flight)...\n", len(urls), limit)
	report, err := a.RunBatch(cmd.Context(), urls, limit)
	if err != nil {
		return fmt.Errorf("run batch: %w", err)
	}
	printReport(out, report)
	a.Logger().Info("scrape finished",
		zap.Stringer("batch_id", report.BatchID),
		zap.Int("pages", len(report.Processed)),
		zap.Duration("elapsed", report.Elapsed),
	)
	return nil
}

func batchURLs(args []string, cfg config.Config) []string {
	if len(args) > 0 {
		return args
	}
	if len(cfg.URLs) > 0 {
		return cfg.URLs
	}
	return config.DefaultURLs
}

func printReport(w io.Writer, report pipeline.Report) {
	fmt.Fprintln(w, "\nFetch Metrics:")
	fmt.Fprintln(w, report.FetchSummary)
	fmt.Fprintf(w, "Total fetch time: %s\n", report.FetchElapsed.Round(time.Millisecond))
	if failures := report.FetchFailures(); len(failures) > 0 {
		fmt.Fprintln(w, "Failed fetches:")
		for _, o := range failures {
			fmt.Fprintf(w, "  %s: %v\n", o.URL, o.Err)
		}
	}

	fmt.Fprintln(w, "\nProcessing Metrics:")
	fmt.Fprintln(w, report.ProcessSummary)
	fmt.Fprintf(w, "Total processing time: %s\n", report.ProcessElapsed.Round(time.Millisecond))

	fmt.Fprintln(w, "\nResults Summary:")
	fmt.Fprintln(w, "---------------")
	for _, line := range report.Lines() {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\nTotal execution time: %s\n", report.Elapsed.Round(time.Millisecond))
}
