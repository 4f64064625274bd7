package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	SettingsFileName = "settings.toml"
	RegistryFileName = "config.json"
	HistoryFileName  = "history.db"

	defaultListen           = "127.0.0.1:4050"
	defaultLogLevel         = "info"
	defaultRefreshInterval  = 5 * time.Second
	defaultCommandTimeout   = 10 * time.Second
	defaultSettleTimeout    = 3 * time.Second
	defaultHistoryRetention = 30 * 24 * time.Hour
)

var (
	osUserHomeDir = os.UserHomeDir
	osCurrentUser = user.Current
	osTempDir     = os.TempDir
)

type Config struct {
	Home             string
	DataDir          string
	LogLevel         string
	RefreshInterval  time.Duration
	CommandTimeout   time.Duration
	SettleTimeout    time.Duration
	WatchDescriptors bool
	History          bool
	HistoryRetention time.Duration
	WebhookURL       string
	ListenAddr       string
	Token            string
	AllowedOrigins   []string
	// SearchPaths overrides the launchd descriptor directories when set.
	SearchPaths []string
}

// SettingsPath is the TOML file the config was read from.
func (c Config) SettingsPath() string {
	return filepath.Join(c.DataDir, SettingsFileName)
}

// RegistryPath is the JSON file holding tracked jobs.
func (c Config) RegistryPath() string {
	return filepath.Join(c.DataDir, RegistryFileName)
}

// HistoryPath is the SQLite history database.
func (c Config) HistoryPath() string {
	return filepath.Join(c.DataDir, HistoryFileName)
}

// fileConfig mirrors settings.toml. Durations and booleans are kept as raw
// strings so env and file values share one parser.
type fileConfig struct {
	LogLevel         string   `toml:"log_level"`
	RefreshInterval  string   `toml:"refresh_interval"`
	CommandTimeout   string   `toml:"command_timeout"`
	SettleTimeout    string   `toml:"settle_timeout"`
	WatchDescriptors *bool    `toml:"watch_descriptors"`
	History          *bool    `toml:"history"`
	HistoryRetention string   `toml:"history_retention"`
	WebhookURL       string   `toml:"webhook_url"`
	Listen           string   `toml:"listen"`
	Token            string   `toml:"token"`
	AllowedOrigins   []string `toml:"allowed_origins"`
	SearchPaths      []string `toml:"search_paths"`
}

const defaultConfigContent = `# launchmon configuration
# All values shown are defaults. Uncomment and edit to customize.
# Every key can be overridden by the environment variable noted above it.

# Log level: debug, info, warn, error.
# LAUNCHMON_LOG_LEVEL
# log_level = "info"

# How often tracked jobs are re-resolved.
# LAUNCHMON_REFRESH_INTERVAL
# refresh_interval = "5s"

# Upper bound for a single launchctl invocation.
# LAUNCHMON_COMMAND_TIMEOUT
# command_timeout = "10s"

# How long start/stop poll for launchd to apply the change.
# LAUNCHMON_SETTLE_TIMEOUT
# settle_timeout = "3s"

# Refresh when descriptor files change on disk.
# LAUNCHMON_WATCH_DESCRIPTORS
# watch_descriptors = true

# Record status transitions and actions in history.db.
# LAUNCHMON_HISTORY
# history = true

# How long history is kept.
# LAUNCHMON_HISTORY_RETENTION
# history_retention = "720h"

# POST status transitions to this URL. Empty disables.
# LAUNCHMON_WEBHOOK_URL
# webhook_url = ""

# Address the HTTP API listens on (launchmon serve).
# LAUNCHMON_LISTEN
# listen = "127.0.0.1:4050"

# Bearer token for the HTTP API.
# LAUNCHMON_TOKEN
# token = ""

# Allowed browser origins for the HTTP API.
# LAUNCHMON_ALLOWED_ORIGINS (comma separated)
# allowed_origins = []

# Descriptor directories in lookup order. "~/" expands to your home.
# LAUNCHMON_SEARCH_PATHS (comma separated)
# search_paths = [
#   "~/Library/LaunchAgents",
#   "/Library/LaunchAgents",
#   "/Library/LaunchDaemons",
#   "/System/Library/LaunchAgents",
#   "/System/Library/LaunchDaemons",
# ]
`

func Load() Config {
	cfg := Config{
		LogLevel:         defaultLogLevel,
		RefreshInterval:  defaultRefreshInterval,
		CommandTimeout:   defaultCommandTimeout,
		SettleTimeout:    defaultSettleTimeout,
		WatchDescriptors: true,
		History:          true,
		HistoryRetention: defaultHistoryRetention,
		ListenAddr:       defaultListen,
	}

	// Resolve DataDir first (needed for the settings file path).
	cfg.Home = resolveHomeDir()
	if v := strings.TrimSpace(os.Getenv("LAUNCHMON_DATA_DIR")); v != "" {
		cfg.DataDir = v
	} else if cfg.Home != "" {
		cfg.DataDir = filepath.Join(cfg.Home, ".launchd_monitor")
	} else {
		cfg.DataDir = filepath.Join(osTempDir(), "launchmon")
	}

	settingsPath := cfg.SettingsPath()
	if _, err := os.Stat(settingsPath); errors.Is(err, fs.ErrNotExist) {
		writeDefaultConfig(settingsPath)
	}
	file := loadFile(settingsPath)

	if v := readEnvOrFile("LAUNCHMON_LOG_LEVEL", file.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if d, ok := parseDuration(readEnvOrFile("LAUNCHMON_REFRESH_INTERVAL", file.RefreshInterval)); ok {
		cfg.RefreshInterval = d
	}
	if d, ok := parseDuration(readEnvOrFile("LAUNCHMON_COMMAND_TIMEOUT", file.CommandTimeout)); ok {
		cfg.CommandTimeout = d
	}
	if d, ok := parseDuration(readEnvOrFile("LAUNCHMON_SETTLE_TIMEOUT", file.SettleTimeout)); ok {
		cfg.SettleTimeout = d
	}
	if d, ok := parseDuration(readEnvOrFile("LAUNCHMON_HISTORY_RETENTION", file.HistoryRetention)); ok {
		cfg.HistoryRetention = d
	}
	cfg.WatchDescriptors = readBool("LAUNCHMON_WATCH_DESCRIPTORS", file.WatchDescriptors, cfg.WatchDescriptors)
	cfg.History = readBool("LAUNCHMON_HISTORY", file.History, cfg.History)

	cfg.WebhookURL = readEnvOrFile("LAUNCHMON_WEBHOOK_URL", file.WebhookURL)
	cfg.Token = readEnvOrFile("LAUNCHMON_TOKEN", file.Token)
	if v := readEnvOrFile("LAUNCHMON_LISTEN", file.Listen); v != "" {
		cfg.ListenAddr = v
	}

	cfg.AllowedOrigins = readListEnvOrFile("LAUNCHMON_ALLOWED_ORIGINS", file.AllowedOrigins)
	cfg.SearchPaths = readListEnvOrFile("LAUNCHMON_SEARCH_PATHS", file.SearchPaths)

	return cfg
}

func resolveHomeDir() string {
	if home, err := osUserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
		return home
	}
	if u, err := osCurrentUser(); err == nil && u != nil && strings.TrimSpace(u.HomeDir) != "" {
		return u.HomeDir
	}
	return ""
}

// loadFile decodes settings.toml. A missing file yields zero values; a
// malformed one is logged and ignored.
func loadFile(path string) fileConfig {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("settings file ignored", "path", path, "err", err)
		}
		return fileConfig{}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		slog.Warn("unknown settings keys", "path", path, "keys", keys)
	}
	return fc
}

// writeDefaultConfig creates the settings file with commented-out defaults.
// Best-effort: errors are silently ignored.
func writeDefaultConfig(path string) {
	_ = os.MkdirAll(filepath.Dir(path), 0o700)
	_ = os.WriteFile(path, []byte(defaultConfigContent), 0o600) //nolint:gosec // fixed content, not user input
}

func readEnvOrFile(envKey, fileValue string) string {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}
	return strings.TrimSpace(fileValue)
}

func readBool(envKey string, fileValue *bool, fallback bool) bool {
	if v, ok := parseBool(os.Getenv(envKey)); ok {
		return v
	}
	if fileValue != nil {
		return *fileValue
	}
	return fallback
}

func readListEnvOrFile(envKey string, fileValue []string) []string {
	if raw := strings.TrimSpace(os.Getenv(envKey)); raw != "" {
		return splitCSV(raw)
	}
	var out []string
	for _, v := range fileValue {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

func parseDuration(raw string) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, d > 0
	}
	// Bare integers are seconds.
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
