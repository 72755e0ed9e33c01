package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sdpower/ccstatusbar-go/internal/commands"
	"github.com/sdpower/ccstatusbar-go/internal/logger"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config loading can fail before --debug is seen.
	if logger.DebugEnabled() {
		logger.SetDebug(true, os.Stderr)
	}

	statusLine := commands.NewStatusLineCommand()

	rootCmd := &cobra.Command{
		Use:     "ccstatusbar",
		Short:   "Claude API usage status bar",
		Long:    `Show today's Claude API relay usage as a status line, report or live dashboard.`,
		Version: version,
		// Bare invocation is what Claude Code runs as its statusLine command.
		RunE:          statusLine.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Flags().AddFlagSet(statusLine.Flags())
	rootCmd.PersistentFlags().Bool("debug", false, "Log debug output to stderr")

	rootCmd.AddCommand(
		statusLine,
		commands.NewFetchCommand(),
		commands.NewModelsCommand(),
		commands.NewWatchCommand(),
		commands.NewHistoryCommand(),
		commands.NewCheckCommand(),
		commands.NewConfigCommand(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
