package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdpower/ccstatusbar-go/internal/apistats"
	"github.com/sdpower/ccstatusbar-go/internal/logger"
	"github.com/sdpower/ccstatusbar-go/internal/output"
)

func NewModelsCommand() *cobra.Command {
	var (
		flags   fetchFlags
		format  string
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Show today's usage per model",
		Long: `Show today's requests, tokens and cost broken down by model.

Needs a dashboard URL with an apiId query parameter; the breakdown comes
from the JSON statistics endpoints and is never cached.`,
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

			client := apistats.NewClient(nil, opts.Headers, opts.Timeout)
			report, err := client.FetchReport(cmd.Context(), sourceURL)
			if err != nil {
				return fmt.Errorf("failed to fetch model statistics from %s: %w", logger.SafeURL(sourceURL), err)
			}

			formatter := output.NewFormatter(output.FormatterOptions{Format: format, NoColor: noColor})
			text, err := formatter.FormatReport(report)
			if err != nil {
				return fmt.Errorf("failed to format report: %w", err)
			}
			writeOutput(cmd.OutOrStdout(), text)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json, csv)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}
