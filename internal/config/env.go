package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sdpower/ccstatusbar-go/internal/logger"
)

// env resolves variables from the real environment first, then from the
// first .env file found.
type env struct {
	lookup func(string) (string, bool)
	dotenv map[string]string
}

func newEnv(lookup func(string) (string, bool), paths []string) env {
	e := env{lookup: lookup, dotenv: map[string]string{}}
	if e.lookup == nil {
		e.lookup = os.LookupEnv
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		values, err := godotenv.Read(path)
		if err != nil {
			logger.Debug("failed to read env file", "path", path, "error", err)
			continue
		}
		e.dotenv = values
		break
	}
	return e
}

func (e env) get(key string) string {
	if v, ok := e.lookup(key); ok && v != "" {
		return v
	}
	return e.dotenv[key]
}

// envFiles returns a list of paths to check for .env files.
func envFiles(home, cwd string) []string {
	var paths []string
	if cwd != "" {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}
	if home != "" {
		paths = append(paths, filepath.Join(home, ".claude", "statusbar.env"))
	}
	return paths
}

func applyEnv(cfg *Config, e env) {
	cfg.FetchURL = e.getString("CC_SCRAPE_URL", cfg.FetchURL)
	cfg.MaxLength = e.getInt("CC_STATUS_MAXLEN", cfg.MaxLength)
	cfg.ProjectLabel = e.getString("CC_PROJECT_LABEL", cfg.ProjectLabel)
	cfg.Debug = cfg.Debug || e.getBool("CC_DEBUG", false) || e.getBool("DEBUG", false)
	cfg.Fetch.Timeout = Duration(e.getDuration("CC_TIMEOUT", cfg.Fetch.Timeout.Std()))
	cfg.Fetch.RetryAttempts = e.getInt("CC_RETRY_ATTEMPTS", cfg.Fetch.RetryAttempts)
	cfg.Fetch.RetryDelay = Duration(e.getDuration("CC_RETRY_DELAY", cfg.Fetch.RetryDelay.Std()))
	cfg.Cache.TTL = Duration(e.getDuration("CC_CACHE_TTL", cfg.Cache.TTL.Std()))
	cfg.Cache.MaxEntries = e.getInt("CC_CACHE_MAX_ENTRIES", cfg.Cache.MaxEntries)
	cfg.History.Path = e.getString("CC_HISTORY_PATH", cfg.History.Path)
	if e.getBool("CC_NO_HISTORY", false) {
		cfg.History.Enabled = false
	}
}

// getString retrieves a string variable or returns the default.
func (e env) getString(key, defaultValue string) string {
	if value := e.get(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt ignores values that do not parse.
func (e env) getInt(key string, defaultValue int) int {
	if value := e.get(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
		logger.Debug("ignoring invalid integer", "key", key, "value", value)
	}
	return defaultValue
}

// getDuration accepts values like "30s" or "500ms"; bare numbers are
// milliseconds.
func (e env) getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := e.get(key); value != "" {
		if d, err := parseDuration(value); err == nil {
			return d
		}
		logger.Debug("ignoring invalid duration", "key", key, "value", value)
	}
	return defaultValue
}

func (e env) getBool(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(e.get(key)))
	switch value {
	case "":
		return defaultValue
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}
