package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sdpower/ccstatusbar-go/internal/logger"
	"github.com/sdpower/ccstatusbar-go/internal/output"
)

func NewConfigCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging config files, .env files and the
environment. The dashboard URL is shown without its query string.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cfg.FetchURL != "" {
				cfg.FetchURL = logger.SafeURL(cfg.FetchURL)
			}
			// Mask header values.
			for k := range cfg.Fetch.Headers {
				cfg.Fetch.Headers[k] = "***"
			}

			var text string
			switch format {
			case "yaml":
				b, err := yaml.Marshal(cfg)
				if err != nil {
					return err
				}
				text = string(b)
			case "json":
				text, err = output.NewFormatter(output.FormatterOptions{}).FormatJSON(cfg)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown format %q, expected json or yaml", format)
			}
			writeOutput(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json, yaml)")

	return cmd
}
