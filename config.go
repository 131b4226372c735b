package inkling

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	defaults "github.com/greyfriar/inkling/default"
)

// Config represents the user's inkling configuration, loaded from
// config.toml in the config directory.
type Config struct {
	Version    int              `toml:"version" json:"version"`
	Generation GenerationConfig `toml:"generation" json:"generation"`
	Session    SessionConfig    `toml:"session" json:"session"`
	Cache      CacheConfig      `toml:"cache" json:"cache"`
	Embedding  EmbeddingConfig  `toml:"embedding" json:"embedding"`
}

// GenerationConfig holds settings for the inference server.
type GenerationConfig struct {
	BaseURL        string   `toml:"base_url" json:"base_url"`
	Model          string   `toml:"model" json:"model"`
	TimeoutSeconds int      `toml:"timeout_seconds" json:"timeout_seconds"`
	MaxTokens      int      `toml:"max_tokens" json:"max_tokens"`
	Temperature    float64  `toml:"temperature" json:"temperature"`
	Stop           []string `toml:"stop,omitempty" json:"stop,omitempty"`
}

// SessionConfig bounds the in-memory conversation log.
type SessionConfig struct {
	// MaxTurns caps the session log; oldest turns are evicted first.
	MaxTurns int `toml:"max_turns" json:"max_turns"`
	// HistoryWindow is how many recent turns are attached to each
	// outbound prompt.
	HistoryWindow int `toml:"history_window" json:"history_window"`
}

// CacheConfig controls the on-disk snippet cache.
type CacheConfig struct {
	// Dir overrides the cache directory. Empty means the XDG default.
	Dir string `toml:"dir,omitempty" json:"dir,omitempty"`
	// TTLHours expires entries by age. Zero or absent falls back to the
	// default; a negative value disables the age bound.
	TTLHours int `toml:"ttl_hours" json:"ttl_hours"`
	// MaxEntries bounds the entry count; oldest entries are evicted.
	// Zero or absent falls back to the default; a negative value disables
	// the size bound.
	MaxEntries int `toml:"max_entries" json:"max_entries"`
}

// EmbeddingConfig holds settings for the optional embedding API used by
// the snippet index. The index is disabled unless base_url is set.
type EmbeddingConfig struct {
	BaseURL string `toml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey  string `toml:"api_key,omitempty" json:"api_key,omitempty"`
	Model   string `toml:"model,omitempty" json:"model,omitempty"`
}

// ConfigDir returns the config directory path.
// Resolution order: $INKLING_CONFIG_DIR > $XDG_CONFIG_HOME/inkling > ~/.config/inkling
func ConfigDir() string {
	if dir := os.Getenv("INKLING_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "inkling")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "inkling-config")
	}
	return filepath.Join(home, ".config", "inkling")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// PreamblePath returns the path of the user's preamble override for the
// given mode. If the file exists it replaces the embedded template.
func PreamblePath(mode Mode) string {
	return filepath.Join(ConfigDir(), "preamble_"+string(mode)+".md")
}

// CacheDir returns the snippet cache directory.
// Resolution order: config value > $XDG_CACHE_HOME/inkling > ~/.cache/inkling
func CacheDir(cfg *Config) string {
	if cfg != nil && cfg.Cache.Dir != "" {
		return cfg.Cache.Dir
	}
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, "inkling")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "inkling-cache")
	}
	return filepath.Join(home, ".cache", "inkling")
}

// DefaultConfig returns the default configuration from the embedded
// default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if err := toml.Unmarshal(defaults.DefaultConfigTOML, &cfg); err != nil {
		panic("inkling: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing fields
	defaults := DefaultConfig()
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = defaults.Generation.BaseURL
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = defaults.Generation.Model
	}
	if cfg.Generation.TimeoutSeconds == 0 {
		cfg.Generation.TimeoutSeconds = defaults.Generation.TimeoutSeconds
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = defaults.Generation.MaxTokens
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = defaults.Generation.Temperature
	}
	if cfg.Session.MaxTurns == 0 {
		cfg.Session.MaxTurns = defaults.Session.MaxTurns
	}
	if cfg.Session.HistoryWindow == 0 {
		cfg.Session.HistoryWindow = defaults.Session.HistoryWindow
	}
	if cfg.Cache.TTLHours == 0 {
		cfg.Cache.TTLHours = defaults.Cache.TTLHours
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = defaults.Cache.MaxEntries
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = defaults.Embedding.Model
	}

	return &cfg, nil
}

// RequestTimeout returns the configured inference timeout as a duration.
func RequestTimeout(cfg *Config) time.Duration {
	if cfg == nil || cfg.Generation.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.Generation.TimeoutSeconds) * time.Second
}

// CacheTTL returns the configured cache retention age, or zero for none.
func CacheTTL(cfg *Config) time.Duration {
	if cfg == nil || cfg.Cache.TTLHours <= 0 {
		return 0
	}
	return time.Duration(cfg.Cache.TTLHours) * time.Hour
}

// ResolveBaseURL returns the inference server base URL.
// Priority: $INKLING_BASE_URL env > config value.
func ResolveBaseURL(cfg *Config) string {
	if url := os.Getenv("INKLING_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Generation.BaseURL
	}
	return ""
}

// ResolveModel returns the active model identifier.
// Priority: $INKLING_MODEL env > config value.
func ResolveModel(cfg *Config) string {
	if model := os.Getenv("INKLING_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Generation.Model
	}
	return ""
}

// ResolveEmbeddingBaseURL returns the embedding API base URL.
// Priority: $INKLING_EMBEDDING_BASE_URL env > config value.
func ResolveEmbeddingBaseURL(cfg *Config) string {
	if url := os.Getenv("INKLING_EMBEDDING_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Embedding.BaseURL
	}
	return ""
}

// ResolveEmbeddingAPIKey returns the embedding API key.
// Priority: $INKLING_EMBEDDING_API_KEY env > config value.
func ResolveEmbeddingAPIKey(cfg *Config) string {
	if key := os.Getenv("INKLING_EMBEDDING_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.Embedding.APIKey
	}
	return ""
}

// ResolveEmbeddingModel returns the embedding model name.
// Priority: $INKLING_EMBEDDING_MODEL env > config value.
func ResolveEmbeddingModel(cfg *Config) string {
	if model := os.Getenv("INKLING_EMBEDDING_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Embedding.Model
	}
	return ""
}

// EmbeddingEnabled returns true when an embedding base_url is configured,
// enabling the snippet index.
func EmbeddingEnabled(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return ResolveEmbeddingBaseURL(cfg) != ""
}
