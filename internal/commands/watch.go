package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdpower/ccstatusbar-go/internal/config"
	"github.com/sdpower/ccstatusbar-go/internal/monitor"
	"github.com/sdpower/ccstatusbar-go/internal/output"
	"github.com/sdpower/ccstatusbar-go/internal/prompt"
)

func NewWatchCommand() *cobra.Command {
	var (
		flags      fetchFlags
		interval   time.Duration
		noColor    bool
		continuous bool
		notify     bool
	)

	cmd := &cobra.Command{
		Use:     "watch",
		Aliases: []string{"monitor"},
		Short:   "Watch today's usage in a live dashboard",
		Long: `Refresh today's usage on an interval in a full-screen dashboard.

Raises a desktop notification when the cost crosses the warning or critical
threshold, and reloads the configuration when a config file changes.`,
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

			status := output.StatusOptionsFromConfig(cfg)
			status.Prompt = prompt.NewBuilder(cfg.Display, cfg.ProjectLabel, nil).Build(cmd.Context())

			monitorOpts := monitor.Options{
				URL:          sourceURL,
				Interval:     interval,
				NoColor:      noColor,
				Continuous:   continuous,
				FetchOptions: opts,
				Status:       status,
				Reload:       func() (*config.Config, error) { return loadConfig() },
				ConfigPaths:  cfg.Files,
				Out:          cmd.OutOrStdout(),
			}
			if !notify {
				monitorOpts.Notifier = quietNotifier{}
			}

			if err := monitor.New(f, monitorOpts).Start(cmd.Context()); err != nil {
				return fmt.Errorf("failed to start monitor: %w", err)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVar(&interval, "interval", monitor.DefaultInterval, "Refresh interval")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().BoolVar(&continuous, "continuous", true, "Run continuously; false prints one line and exits")
	cmd.Flags().BoolVar(&notify, "notify", true, "Send desktop notifications on threshold crossings")

	return cmd
}

type quietNotifier struct{}

func (quietNotifier) Notify(string, string, bool) error { return nil }
