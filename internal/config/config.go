// Package config contains everything related to configuration
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sdpower/ccstatusbar-go/internal/types"
)

// Default values
const (
	DefaultMaxLength         = 120
	DefaultWarningThreshold  = 70
	DefaultCriticalThreshold = 90
	DefaultTimeout           = 30 * time.Second
	DefaultRetryAttempts     = 3
	DefaultRetryDelay        = 800 * time.Millisecond
	MaxRetryAttempts         = 10
	DefaultCacheTTL          = 60 * time.Second
	DefaultCacheMaxEntries   = 5

	// minMaxLength keeps compaction from producing a bare ellipsis.
	minMaxLength = 10
)

// Config holds the application configuration.
type Config struct {
	FetchURL     string        `yaml:"fetchUrl" json:"fetchUrl"`
	MaxLength    int           `yaml:"maxLength" json:"maxLength"`
	ProjectLabel string        `yaml:"projectLabel" json:"projectLabel"`
	Display      Display       `yaml:"display" json:"display"`
	Alerts       Alerts        `yaml:"alerts" json:"alerts"`
	Color        bool          `yaml:"color" json:"color"`
	Debug        bool          `yaml:"debug" json:"debug"`
	Fetch        FetchConfig   `yaml:"fetch" json:"fetch"`
	Cache        CacheConfig   `yaml:"cache" json:"cache"`
	History      HistoryConfig `yaml:"history" json:"history"`

	// Files lists the config files that were merged, lowest precedence first.
	Files []string `yaml:"-" json:"files,omitempty"`
}

type Display struct {
	ShowUser        bool `yaml:"showUser" json:"showUser"`
	ShowHost        bool `yaml:"showHost" json:"showHost"`
	ShowWorkspace   bool `yaml:"showWorkspace" json:"showWorkspace"`
	ShowGitBranch   bool `yaml:"showGitBranch" json:"showGitBranch"`
	ShowTime        bool `yaml:"showTime" json:"showTime"`
	ShowRequests    bool `yaml:"showRequests" json:"showRequests"`
	ShowTokens      bool `yaml:"showTokens" json:"showTokens"`
	ShowCost        bool `yaml:"showCost" json:"showCost"`
	ShowPercentage  bool `yaml:"showPercentage" json:"showPercentage"`
	ShowProgressBar bool `yaml:"showProgressBar" json:"showProgressBar"`
	ShowLastUpdate  bool `yaml:"showLastUpdate" json:"showLastUpdate"`
	ShowExpiry      bool `yaml:"showExpiry" json:"showExpiry"`
}

type Alerts struct {
	CostWarningThreshold  float64 `yaml:"costWarningThreshold" json:"costWarningThreshold"`
	CostCriticalThreshold float64 `yaml:"costCriticalThreshold" json:"costCriticalThreshold"`
}

type FetchConfig struct {
	Timeout       Duration          `yaml:"timeout" json:"timeout"`
	RetryAttempts int               `yaml:"retryAttempts" json:"retryAttempts"`
	RetryDelay    Duration          `yaml:"retryDelay" json:"retryDelay"`
	Headers       map[string]string `yaml:"headers" json:"headers,omitempty"`
}

type CacheConfig struct {
	TTL        Duration `yaml:"ttl" json:"ttl"`
	MaxEntries int      `yaml:"maxEntries" json:"maxEntries"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// Duration accepts Go duration strings ("30s") or bare milliseconds (800).
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return v, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		MaxLength: DefaultMaxLength,
		Display: Display{
			ShowRequests:   true,
			ShowTokens:     true,
			ShowCost:       true,
			ShowPercentage: true,
			ShowLastUpdate: true,
			ShowExpiry:     true,
		},
		Alerts: Alerts{
			CostWarningThreshold:  DefaultWarningThreshold,
			CostCriticalThreshold: DefaultCriticalThreshold,
		},
		Fetch: FetchConfig{
			Timeout:       Duration(DefaultTimeout),
			RetryAttempts: DefaultRetryAttempts,
			RetryDelay:    Duration(DefaultRetryDelay),
		},
		Cache: CacheConfig{
			TTL:        Duration(DefaultCacheTTL),
			MaxEntries: DefaultCacheMaxEntries,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    getDefaultHistoryPath(""),
		},
	}
}

// Load reads configuration from files, .env files and environment variables.
func Load() (*Config, error) {
	home, _ := os.UserHomeDir()
	cwd, _ := os.Getwd()
	return LoadFrom(home, cwd, os.LookupEnv)
}

// LoadFrom is Load with explicit home and working directories and an
// environment lookup. Empty directories are skipped.
func LoadFrom(home, cwd string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	cfg.History.Path = getDefaultHistoryPath(home)

	for _, f := range configFiles(home, cwd) {
		ok, err := mergeFile(cfg, f)
		if err != nil {
			return nil, err
		}
		if ok {
			cfg.Files = append(cfg.Files, f.path)
		}
	}

	env := newEnv(lookup, envFiles(home, cwd))
	applyEnv(cfg, env)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type configFile struct {
	path string
	// section is the key holding our settings inside a shared file.
	section string
}

// configFiles lists candidates lowest precedence first; project-local files
// override the ones in the home directory.
func configFiles(home, cwd string) []configFile {
	var files []configFile
	add := func(dir, section string, names ...string) {
		if dir == "" {
			return
		}
		for _, name := range names {
			files = append(files, configFile{path: filepath.Join(dir, name), section: section})
		}
	}
	standalone := []string{"statusbar-config.json", "statusbar-config.yaml", "statusbar-config.yml"}

	if home != "" {
		claudeHome := filepath.Join(home, ".claude")
		add(claudeHome, "statusbar", "config.json")
		add(claudeHome, "", standalone...)
	}
	if cwd != "" {
		add(cwd, "", standalone...)
		claudeLocal := filepath.Join(cwd, ".claude")
		add(claudeLocal, "statusbar", "config.json")
		add(claudeLocal, "", standalone...)
	}
	return files
}

func mergeFile(cfg *Config, f configFile) (bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return false, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return false, fmt.Errorf("%w: %s: %v", types.ErrInvalidConfig, f.path, err)
	}

	node := &root
	if f.section != "" {
		var shared struct {
			Section *yaml.Node `yaml:"statusbar"`
		}
		if err := root.Decode(&shared); err != nil {
			return false, fmt.Errorf("%w: %s: %v", types.ErrInvalidConfig, f.path, err)
		}
		if shared.Section == nil {
			return false, nil
		}
		node = shared.Section
	}

	if err := node.Decode(cfg); err != nil {
		return false, fmt.Errorf("%w: %s: %v", types.ErrInvalidConfig, f.path, err)
	}
	return true, nil
}

// Validate checks ranges that would otherwise silently misbehave.
func (c *Config) Validate() error {
	if c.FetchURL != "" {
		u, err := url.Parse(c.FetchURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &types.ValidationError{Field: "fetchUrl", Message: "must be an http(s) URL"}
		}
	}
	if c.MaxLength != 0 && c.MaxLength < minMaxLength {
		return &types.ValidationError{Field: "maxLength", Message: fmt.Sprintf("must be 0 or at least %d", minMaxLength)}
	}
	if c.Alerts.CostWarningThreshold < 0 || c.Alerts.CostCriticalThreshold < 0 {
		return &types.ValidationError{Field: "alerts", Message: "thresholds must not be negative"}
	}
	if c.Alerts.CostWarningThreshold > c.Alerts.CostCriticalThreshold {
		return &types.ValidationError{Field: "alerts", Message: "costWarningThreshold must not exceed costCriticalThreshold"}
	}
	if c.Fetch.Timeout < 0 {
		return &types.ValidationError{Field: "fetch.timeout", Message: "must not be negative"}
	}
	if c.Fetch.RetryAttempts < 1 || c.Fetch.RetryAttempts > MaxRetryAttempts {
		return &types.ValidationError{Field: "fetch.retryAttempts", Message: fmt.Sprintf("must be between 1 and %d", MaxRetryAttempts)}
	}
	if c.Fetch.RetryDelay < 0 {
		return &types.ValidationError{Field: "fetch.retryDelay", Message: "must not be negative"}
	}
	if c.Cache.TTL <= 0 {
		return &types.ValidationError{Field: "cache.ttl", Message: "must be positive"}
	}
	if c.Cache.MaxEntries < 1 {
		return &types.ValidationError{Field: "cache.maxEntries", Message: "must be at least 1"}
	}
	return nil
}

// getDefaultHistoryPath returns the default path for the SQLite database.
func getDefaultHistoryPath(home string) string {
	if home == "" {
		return "statusbar-history.db"
	}
	return filepath.Join(home, ".claude", "statusbar-history.db")
}
