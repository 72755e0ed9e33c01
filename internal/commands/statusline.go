package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sdpower/ccstatusbar-go/internal/config"
	"github.com/sdpower/ccstatusbar-go/internal/fetcher"
	"github.com/sdpower/ccstatusbar-go/internal/logger"
	"github.com/sdpower/ccstatusbar-go/internal/output"
	"github.com/sdpower/ccstatusbar-go/internal/prompt"
)

// readContext is swapped out in tests.
var readContext = prompt.StdinContext

func NewStatusLineCommand() *cobra.Command {
	var (
		flags  fetchFlags
		maxLen int
	)

	cmd := &cobra.Command{
		Use:   "statusline",
		Short: "Print one status line for Claude Code",
		Long: `Print a single status line with today's API usage.

Claude Code runs this on every refresh and pipes its session context as
JSON on stdin. The command always prints a line and exits 0, even when the
dashboard cannot be reached.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatusLine(cmd, &flags, maxLen)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&maxLen, "max-length", 0, "Maximum display width (overrides CC_STATUS_MAXLEN)")

	return cmd
}

// runStatusLine never returns an upstream error; the line degrades instead.
func runStatusLine(cmd *cobra.Command, flags *fetchFlags, maxLen int) error {
	out := cmd.OutOrStdout()
	editor := readContext()

	cfg, err := setup(cmd)
	if err != nil {
		logger.Warn("failed to load configuration", "error", err)
		cfg = config.Default()
	}
	if maxLen > 0 {
		cfg.MaxLength = maxLen
	}

	ctx := cmd.Context()
	shell := prompt.NewBuilder(cfg.Display, cfg.ProjectLabel, editor).Build(ctx)

	sourceURL, err := flags.sourceURL(cfg)
	if err != nil {
		logger.Warn("status line has no source", "error", err)
		return printLine(out, output.OfflineLine(shell))
	}
	opts, err := flags.options(cfg)
	if err != nil {
		return err
	}

	return printLine(out, statusLine(ctx, cfg, sourceURL, opts, shell))
}

func statusLine(ctx context.Context, cfg *config.Config, sourceURL string, opts fetcher.Options, shell string) string {
	f, closeStore := newFetcher(cfg)
	defer closeStore()

	// A degraded result carries the all-zero record, rendered like any other.
	res := f.FetchResult(ctx, sourceURL, opts)
	if res.Degraded {
		logger.Warn("dashboard unavailable", "url", logger.SafeURL(sourceURL), "attempts", res.Attempts, "error", res.Err)
	}

	status := output.StatusOptionsFromConfig(cfg)
	status.Prompt = shell
	return output.StatusLine(res.Record, status)
}

func printLine(w io.Writer, line string) error {
	_, err := fmt.Fprintln(w, line)
	return err
}
