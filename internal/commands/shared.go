package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/sdpower/ccstatusbar-go/internal/config"
	"github.com/sdpower/ccstatusbar-go/internal/fetcher"
	"github.com/sdpower/ccstatusbar-go/internal/history"
	"github.com/sdpower/ccstatusbar-go/internal/logger"
)

var errNoURL = errors.New("no dashboard URL configured: set CC_SCRAPE_URL, fetchUrl in statusbar-config.json, or pass --url")

// loadConfig is swapped out in tests.
var loadConfig = config.Load

// fetchFlags are the per-call overrides shared by commands that hit the dashboard.
type fetchFlags struct {
	url        string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	headers    []string
	noCache    bool
}

func (f *fetchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "url", "", "Dashboard URL (overrides CC_SCRAPE_URL)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Per-request timeout, e.g. 10s")
	cmd.Flags().IntVar(&f.retries, "retries", 0, "Number of attempts")
	cmd.Flags().DurationVar(&f.retryDelay, "retry-delay", 0, "Base delay between attempts")
	cmd.Flags().StringArrayVar(&f.headers, "header", nil, "Extra request header as Key=Value (repeatable)")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "Skip cached and stored records")
}

// options merges the flags over the configuration.
func (f *fetchFlags) options(cfg *config.Config) (fetcher.Options, error) {
	opts := fetcher.Options{
		Timeout:       cfg.Fetch.Timeout.Std(),
		RetryAttempts: cfg.Fetch.RetryAttempts,
		RetryDelay:    cfg.Fetch.RetryDelay.Std(),
		Headers:       cfg.Fetch.Headers,
		NoCache:       f.noCache,
	}
	if f.timeout > 0 {
		opts.Timeout = f.timeout
	}
	if f.retries > config.MaxRetryAttempts {
		return fetcher.Options{}, fmt.Errorf("--retries must be at most %d", config.MaxRetryAttempts)
	}
	if f.retries > 0 {
		opts.RetryAttempts = f.retries
	}
	if f.retryDelay > 0 {
		opts.RetryDelay = f.retryDelay
	}
	if len(f.headers) > 0 {
		extra, err := parseHeaders(f.headers)
		if err != nil {
			return fetcher.Options{}, err
		}
		opts.Headers = lo.Assign(opts.Headers, extra)
	}
	return opts, nil
}

func (f *fetchFlags) sourceURL(cfg *config.Config) (string, error) {
	u := strings.TrimSpace(f.url)
	if u == "" {
		u = cfg.FetchURL
	}
	if u == "" {
		return "", errNoURL
	}
	return u, nil
}

func parseHeaders(values []string) (map[string]string, error) {
	headers := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, expected Key=Value", v)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}

// setup loads the configuration and turns on debug logging when asked to.
func setup(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	if debug || cfg.Debug {
		cfg.Debug = true
		logger.SetDebug(true, os.Stderr)
	}
	return cfg, nil
}

// newFetcher wires the memory cache and, when enabled, the history store.
// The returned closer must always be called.
func newFetcher(cfg *config.Config) (*fetcher.Fetcher, func()) {
	cache := fetcher.NewCache(cfg.Cache.TTL.Std(), cfg.Cache.MaxEntries)
	if !cfg.History.Enabled {
		return fetcher.New(cache), func() {}
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		logger.Debug("history store unavailable", "path", cfg.History.Path, "error", err)
		return fetcher.New(cache), func() {}
	}
	return fetcher.New(cache, fetcher.WithPersister(store)), func() {
		if err := store.Close(); err != nil {
			logger.Debug("failed to close history store", "error", err)
		}
	}
}

func openHistory(cfg *config.Config) (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, errors.New("history is disabled (history.enabled=false or CC_NO_HISTORY)")
	}
	return history.Open(cfg.History.Path)
}

// writeOutput prints text with exactly one trailing newline.
func writeOutput(w io.Writer, text string) {
	fmt.Fprintln(w, strings.TrimRight(text, "\n"))
}
