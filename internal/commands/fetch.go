package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdpower/ccstatusbar-go/internal/config"
	"github.com/sdpower/ccstatusbar-go/internal/fetcher"
	"github.com/sdpower/ccstatusbar-go/internal/logger"
	"github.com/sdpower/ccstatusbar-go/internal/output"
)

func NewFetchCommand() *cobra.Command {
	var (
		flags   fetchFlags
		format  string
		noColor bool
		status  bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch today's usage record",
		Long: `Fetch today's usage record from the admin dashboard and print it.

The record goes through the same cache, history store and retry policy as
the status line. Use --status to see where it came from.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			sourceURL, err := flags.sourceURL(cfg)
			if err != nil {
				return err
			}
			opts, err := flags.options(cfg)
			if err != nil {
				return err
			}

			f, closeStore := newFetcher(cfg)
			defer closeStore()
			res := f.FetchResult(cmd.Context(), sourceURL, opts)

			formatter := output.NewFormatter(output.FormatterOptions{
				Format:  format,
				NoColor: noColor,
			})
			text, err := formatter.FormatRecord(res.Record)
			if err != nil {
				return fmt.Errorf("failed to format record: %w", err)
			}
			writeOutput(cmd.OutOrStdout(), text)

			if status {
				fmt.Fprint(cmd.ErrOrStderr(), resultStatus(cfg, sourceURL, res))
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "summary", "Output format (summary, table, json, csv)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&status, "status", false, "Print acquisition details to stderr")

	return cmd
}

func resultStatus(cfg *config.Config, sourceURL string, res fetcher.Result) string {
	s := fmt.Sprintf("url: %s\nsource: %s\nattempts: %d\ndegraded: %t\n",
		logger.SafeURL(sourceURL), res.Source, res.Attempts, res.Degraded)
	if res.Err != nil {
		s += fmt.Sprintf("error: %v\n", res.Err)
	}
	if res.Source == fetcher.SourceCache {
		s += fmt.Sprintf("cache ttl: %s\n", cfg.Cache.TTL.Std().Round(time.Second))
	}
	return s
}
