package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdpower/ccstatusbar-go/internal/apistats"
	"github.com/sdpower/ccstatusbar-go/internal/fetcher"
	"github.com/sdpower/ccstatusbar-go/internal/output"
)

func NewCheckCommand() *cobra.Command {
	var (
		flags  fetchFlags
		format string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Test the connection to the dashboard",
		Long: `Request the dashboard page once, without cache or retries, and report
status, latency and size. Exits non-zero when the request fails.`,
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

			p := fetcher.New(nil).Probe(cmd.Context(), sourceURL, opts)
			out := cmd.OutOrStdout()

			if format == "json" {
				text, err := output.NewFormatter(output.FormatterOptions{}).FormatJSON(p)
				if err != nil {
					return err
				}
				writeOutput(out, text)
			} else {
				fmt.Fprintln(out, p.Message())
				fmt.Fprintf(out, "url: %s\n", p.URL)
				if p.StatusCode != 0 {
					fmt.Fprintf(out, "status: %d\nbytes: %d\n", p.StatusCode, p.Bytes)
				}
				if _, _, err := apistats.Identifier(sourceURL); err == nil {
					fmt.Fprintln(out, "api: JSON statistics endpoints available")
				}
			}

			if !p.Success {
				return fmt.Errorf("connection check failed")
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json)")

	return cmd
}
