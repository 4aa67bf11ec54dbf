package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
)

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	General     GeneralSettings    `json:"general"`
	Connections ConnectionSettings `json:"connections"`
	Transfer    TransferSettings   `json:"transfer"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	DefaultDownloadDir string `json:"default_download_dir"`
	FallbackFilename   string `json:"fallback_filename"`
	KeepHistory        bool   `json:"keep_history"`
	ClipboardMonitor   bool   `json:"clipboard_monitor"`
	Debug              bool   `json:"debug"`
	LogMaxSizeMB       int    `json:"log_max_size_mb"`
	LogRetentionCount  int    `json:"log_retention_count"`
}

// ConnectionSettings contains network connection parameters.
type ConnectionSettings struct {
	MaxConcurrentDownloads int    `json:"max_concurrent_downloads"`
	UserAgent              string `json:"user_agent"`
	ProxyURL               string `json:"proxy_url"`
	SkipTLSVerification    bool   `json:"skip_tls_verification"`
}

// TransferSettings contains streaming and probing parameters.
type TransferSettings struct {
	ChunkSize     int           `json:"chunk_size"`
	PacingDelay   time.Duration `json:"pacing_delay"`
	ProbeTimeout  time.Duration `json:"probe_timeout"`
	FetchTimeout  time.Duration `json:"fetch_timeout"`
	FetchMaxBytes int64         `json:"fetch_max_bytes"`
}

// SettingMeta provides metadata for a single setting (for UI rendering).
type SettingMeta struct {
	Key         string // JSON key name
	Label       string // Human-readable label
	Description string // Help text
	Type        string // "string", "int", "int64", "bool", "duration"
}

// GetSettingsMetadata returns metadata for all settings organized by category.
func GetSettingsMetadata() map[string][]SettingMeta {
	return map[string][]SettingMeta{
		"General": {
			{Key: "default_download_dir", Label: "Default Download Dir", Description: "Directory for new downloads. Leave empty to use current directory.", Type: "string"},
			{Key: "fallback_filename", Label: "Fallback Filename", Description: "Name used when the URL has no usable last path segment.", Type: "string"},
			{Key: "keep_history", Label: "Keep History", Description: "Record finished transfers in the history database.", Type: "bool"},
			{Key: "clipboard_monitor", Label: "Clipboard", Description: "Allow reading the download URL from the clipboard.", Type: "bool"},
			{Key: "debug", Label: "Debug Log", Description: "Write debug logs to the logs directory.", Type: "bool"},
			{Key: "log_max_size_mb", Label: "Log Max Size", Description: "Rotate the debug log after this many megabytes.", Type: "int"},
			{Key: "log_retention_count", Label: "Log Retention Count", Description: "Number of rotated log files to keep.", Type: "int"},
		},
		"Network": {
			{Key: "max_concurrent_downloads", Label: "Max Concurrent Downloads", Description: "Maximum number of transfers running at once (1-10).", Type: "int"},
			{Key: "user_agent", Label: "User Agent", Description: "Custom User-Agent string for HTTP requests. Leave empty for default.", Type: "string"},
			{Key: "proxy_url", Label: "Proxy URL", Description: "HTTP or SOCKS5 proxy URL (e.g. socks5://127.0.0.1:1080). Leave empty to use system default.", Type: "string"},
			{Key: "skip_tls_verification", Label: "Skip TLS Verification", Description: "Accept invalid TLS certificates.", Type: "bool"},
		},
		"Transfer": {
			{Key: "chunk_size", Label: "Chunk Size", Description: "Bytes read per iteration of the transfer loop (e.g., 4096).", Type: "int"},
			{Key: "pacing_delay", Label: "Pacing Delay", Description: "Pause after each progress update so progress is visible (e.g., 25ms). 0 disables.", Type: "duration"},
			{Key: "probe_timeout", Label: "Probe Timeout", Description: "Time allowed for the size probe (e.g., 30s).", Type: "duration"},
			{Key: "fetch_timeout", Label: "Fetch Timeout", Description: "Time allowed for a page source fetch (e.g., 60s).", Type: "duration"},
			{Key: "fetch_max_bytes", Label: "Fetch Max Bytes", Description: "Largest page source accepted, in bytes. Negative disables the cap.", Type: "int64"},
		},
	}
}

// CategoryOrder returns the order of categories for display.
func CategoryOrder() []string {
	return []string{"General", "Network", "Transfer"}
}

const (
	KB = 1024
	MB = 1024 * KB
)

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		General: GeneralSettings{
			DefaultDownloadDir: "", // Empty means current directory
			FallbackFilename:   "downloaded_file",
			KeepHistory:        true,
			ClipboardMonitor:   true,
			Debug:              false,
			LogMaxSizeMB:       10,
			LogRetentionCount:  5,
		},
		Connections: ConnectionSettings{
			MaxConcurrentDownloads: 3,
			UserAgent:              "", // Empty means use default UA
		},
		Transfer: TransferSettings{
			ChunkSize:     4 * KB,
			PacingDelay:   25 * time.Millisecond,
			ProbeTimeout:  30 * time.Second,
			FetchTimeout:  60 * time.Second,
			FetchMaxBytes: 8 * MB,
		},
	}
}

// GetConfigDir returns the trickle configuration directory.
// XDG_CONFIG_HOME is honoured on every platform so tests can redirect it.
func GetConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "trickle")
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".trickle")
	}
	return filepath.Join(dir, "trickle")
}

// GetStateDir returns the directory holding the history database.
func GetStateDir() string {
	return filepath.Join(GetConfigDir(), "state")
}

// GetLogsDir returns the directory holding debug logs.
func GetLogsDir() string {
	return filepath.Join(GetConfigDir(), "logs")
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetConfigDir(), "settings.json")
}

// LoadSettings loads settings from disk. Returns defaults if file doesn't exist.
// Environment overrides are applied on top in both cases.
func LoadSettings() (*Settings, error) {
	settings, err := LoadSettingsFile()
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// LoadSettingsFile loads settings from disk without environment overrides.
func LoadSettingsFile() (*Settings, error) {
	settings := DefaultSettings() // Start with defaults to fill any missing fields

	data, err := os.ReadFile(GetSettingsPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		return settings, nil
	}
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// SaveSettings saves settings to disk atomically.
// A lock file serialises writers from concurrent trickle processes.
func SaveSettings(s *Settings) error {
	path := GetSettingsPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock settings: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: write to temp file, then rename
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// Environment variables consulted by ApplyEnv.
const (
	EnvDownloadDir = "TRICKLE_DOWNLOAD_DIR"
	EnvUserAgent   = "TRICKLE_USER_AGENT"
	EnvProxyURL    = "TRICKLE_PROXY_URL"
	EnvPacingDelay = "TRICKLE_PACING_DELAY"
)

// ApplyEnv overlays environment variables (and a .env file in the working
// directory, if present) onto s.
func ApplyEnv(s *Settings) error {
	_ = godotenv.Load() // .env is optional

	if v := os.Getenv(EnvDownloadDir); v != "" {
		s.General.DefaultDownloadDir = v
	}
	if v := os.Getenv(EnvUserAgent); v != "" {
		s.Connections.UserAgent = v
	}
	if v := os.Getenv(EnvProxyURL); v != "" {
		s.Connections.ProxyURL = v
	}
	if v := os.Getenv(EnvPacingDelay); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			// Bare integers are milliseconds
			ms, convErr := strconv.Atoi(v)
			if convErr != nil {
				return fmt.Errorf("invalid %s %q: %w", EnvPacingDelay, v, err)
			}
			d = time.Duration(ms) * time.Millisecond
		}
		s.Transfer.PacingDelay = d
	}
	return nil
}

// RuntimeConfig is the subset of Settings the download engine consumes.
type RuntimeConfig struct {
	UserAgent           string
	ProxyURL            string
	SkipTLSVerification bool
	OutputDir           string
	FallbackFilename    string
	ChunkSize           int
	PacingDelay         time.Duration
	ProbeTimeout        time.Duration
	FetchTimeout        time.Duration
	FetchMaxBytes       int64
}

// ToRuntimeConfig creates a RuntimeConfig from user Settings
func (s *Settings) ToRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		UserAgent:           s.Connections.UserAgent,
		ProxyURL:            s.Connections.ProxyURL,
		SkipTLSVerification: s.Connections.SkipTLSVerification,
		OutputDir:           s.General.DefaultDownloadDir,
		FallbackFilename:    s.General.FallbackFilename,
		ChunkSize:           s.Transfer.ChunkSize,
		PacingDelay:         s.Transfer.PacingDelay,
		ProbeTimeout:        s.Transfer.ProbeTimeout,
		FetchTimeout:        s.Transfer.FetchTimeout,
		FetchMaxBytes:       s.Transfer.FetchMaxBytes,
	}
}

// CategorySection returns the JSON section holding a display category's keys.
func CategorySection(category string) string {
	switch category {
	case "General":
		return "general"
	case "Network":
		return "connections"
	case "Transfer":
		return "transfer"
	}
	return ""
}

// FindSetting looks up a setting by JSON key and returns its category.
func FindSetting(key string) (SettingMeta, string, bool) {
	for category, metas := range GetSettingsMetadata() {
		for _, meta := range metas {
			if meta.Key == key {
				return meta, category, true
			}
		}
	}
	return SettingMeta{}, "", false
}

// SetValue parses value according to the setting's type and stores it in s.
func SetValue(s *Settings, key, value string) error {
	meta, category, ok := FindSetting(key)
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}

	var parsed any
	switch meta.Type {
	case "string":
		parsed = value
	case "bool":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		parsed = b
	case "int", "int64":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		parsed = n
	case "duration":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		parsed = int64(d)
	default:
		return fmt.Errorf("%s: unsupported type %s", key, meta.Type)
	}

	// Round-trip through the JSON form so keys stay in one place
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	var sections map[string]map[string]any
	if err := json.Unmarshal(data, &sections); err != nil {
		return err
	}
	sections[CategorySection(category)][key] = parsed

	data, err = json.Marshal(sections)
	if err != nil {
		return err
	}
	updated := *s
	if err := json.Unmarshal(data, &updated); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	*s = updated
	return nil
}

// Validate checks ranges that the engine cannot recover from.
func (s *Settings) Validate() error {
	if n := s.Connections.MaxConcurrentDownloads; n < 1 || n > 10 {
		return fmt.Errorf("max_concurrent_downloads must be between 1 and 10, got %d", n)
	}
	if s.Transfer.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", s.Transfer.ChunkSize)
	}
	if s.Transfer.PacingDelay < 0 {
		return fmt.Errorf("pacing_delay must not be negative, got %s", s.Transfer.PacingDelay)
	}
	return nil
}

// EnsureDirs creates the config, state and logs directories.
func EnsureDirs() error {
	for _, dir := range []string{GetConfigDir(), GetStateDir(), GetLogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
