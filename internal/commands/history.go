package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdpower/ccstatusbar-go/internal/logger"
	"github.com/sdpower/ccstatusbar-go/internal/output"
)

const (
	graphWidth  = 60
	graphHeight = 10
)

func NewHistoryCommand() *cobra.Command {
	var (
		url      string
		since    time.Duration
		limit    int
		format   string
		noColor  bool
		graph    bool
		prune    time.Duration
		timezone string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored usage snapshots",
		Long: `Show the usage snapshots saved by earlier fetches of the same URL.

Every successful fetch appends a snapshot to the local history database.
Use --prune to delete snapshots older than a given age.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			store, err := openHistory(cfg)
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			defer store.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if prune > 0 {
				n, err := store.Prune(ctx, time.Now().Add(-prune))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Pruned %d snapshot(s) older than %s\n", n, prune)
				return nil
			}

			flags := fetchFlags{url: url}
			sourceURL, err := flags.sourceURL(cfg)
			if err != nil {
				return err
			}

			loc := time.Local
			if timezone != "" {
				loc, err = time.LoadLocation(timezone)
				if err != nil {
					return fmt.Errorf("invalid timezone %s: %w", timezone, err)
				}
			}

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			snaps, err := store.Recent(ctx, sourceURL, from, limit)
			if err != nil {
				return err
			}
			logger.Debug("loaded snapshots", "url", logger.SafeURL(sourceURL), "count", len(snaps))

			formatter := output.NewFormatter(output.FormatterOptions{
				Format:   format,
				NoColor:  noColor,
				Location: loc,
			})
			text, err := formatter.FormatHistory(snaps)
			if err != nil {
				return fmt.Errorf("failed to format history: %w", err)
			}
			writeOutput(out, text)

			if graph && format == "table" {
				if plot := output.CostGraph(snaps, graphWidth, graphHeight); plot != "" {
					writeOutput(out, "\n"+plot)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Dashboard URL (overrides CC_SCRAPE_URL)")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Only show snapshots newer than this; 0 shows all")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of snapshots; 0 shows all")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json, csv)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&graph, "graph", false, "Plot today's cost under the table")
	cmd.Flags().DurationVar(&prune, "prune", 0, "Delete snapshots older than this instead of listing")
	cmd.Flags().StringVar(&timezone, "timezone", "", "Timezone for timestamps (e.g., Asia/Shanghai)")

	return cmd
}
