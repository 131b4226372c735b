package inkling

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Generation.BaseURL != "http://localhost:11434" {
		t.Errorf("base_url = %q", cfg.Generation.BaseURL)
	}
	if cfg.Generation.Model == "" {
		t.Error("default model is empty")
	}
	if cfg.Session.MaxTurns != 10 {
		t.Errorf("max_turns = %d, want 10", cfg.Session.MaxTurns)
	}
	if cfg.Session.HistoryWindow != 5 {
		t.Errorf("history_window = %d, want 5", cfg.Session.HistoryWindow)
	}
	if cfg.Cache.MaxEntries <= 0 {
		t.Errorf("max_entries = %d", cfg.Cache.MaxEntries)
	}
}

func TestConfigDirResolution(t *testing.T) {
	t.Setenv("INKLING_CONFIG_DIR", "/explicit/dir")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := ConfigDir(); got != "/explicit/dir" {
		t.Errorf("ConfigDir = %q", got)
	}

	t.Setenv("INKLING_CONFIG_DIR", "")
	if got := ConfigDir(); got != filepath.Join("/xdg", "inkling") {
		t.Errorf("ConfigDir = %q", got)
	}
}

func TestCacheDirPrefersConfigValue(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/xdg-cache")

	cfg := DefaultConfig()
	cfg.Cache.Dir = "/my/cache"
	if got := CacheDir(cfg); got != "/my/cache" {
		t.Errorf("CacheDir = %q", got)
	}

	cfg.Cache.Dir = ""
	if got := CacheDir(cfg); got != filepath.Join("/xdg-cache", "inkling") {
		t.Errorf("CacheDir = %q", got)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("INKLING_CONFIG_DIR", t.TempDir())

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Generation.Model != DefaultConfig().Generation.Model {
		t.Errorf("model = %q", cfg.Generation.Model)
	}
}

func TestLoadConfigBackfillsMissingFields(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("INKLING_CONFIG_DIR", dir)

	content := "[generation]\nmodel = \"codellama:13b\"\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Generation.Model != "codellama:13b" {
		t.Errorf("model = %q", cfg.Generation.Model)
	}
	if cfg.Generation.BaseURL != "http://localhost:11434" {
		t.Errorf("base_url not backfilled: %q", cfg.Generation.BaseURL)
	}
	if cfg.Session.MaxTurns != 10 {
		t.Errorf("max_turns not backfilled: %d", cfg.Session.MaxTurns)
	}
}

func TestNegativeCacheBoundsDisableThem(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("INKLING_CONFIG_DIR", dir)

	content := "[cache]\nttl_hours = -1\nmax_entries = -1\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.TTLHours != -1 || cfg.Cache.MaxEntries != -1 {
		t.Errorf("negative bounds were backfilled: ttl=%d max=%d",
			cfg.Cache.TTLHours, cfg.Cache.MaxEntries)
	}
	if got := CacheTTL(cfg); got != 0 {
		t.Errorf("CacheTTL = %v, want 0 (no age bound)", got)
	}
}

func TestLoadConfigRejectsBadTOML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("INKLING_CONFIG_DIR", dir)

	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[generation\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(); err == nil {
		t.Error("malformed config did not error")
	}
}

func TestRequestTimeout(t *testing.T) {
	if got := RequestTimeout(nil); got != 30*time.Second {
		t.Errorf("nil config timeout = %v", got)
	}
	cfg := DefaultConfig()
	cfg.Generation.TimeoutSeconds = 7
	if got := RequestTimeout(cfg); got != 7*time.Second {
		t.Errorf("timeout = %v", got)
	}
}

func TestEnvOverridesConfig(t *testing.T) {
	cfg := DefaultConfig()

	t.Setenv("INKLING_MODEL", "llama3:8b")
	if got := ResolveModel(cfg); got != "llama3:8b" {
		t.Errorf("ResolveModel = %q", got)
	}

	t.Setenv("INKLING_BASE_URL", "http://remote:11434")
	if got := ResolveBaseURL(cfg); got != "http://remote:11434" {
		t.Errorf("ResolveBaseURL = %q", got)
	}
}

func TestEmbeddingEnabled(t *testing.T) {
	t.Setenv("INKLING_EMBEDDING_BASE_URL", "")

	cfg := DefaultConfig()
	if EmbeddingEnabled(cfg) {
		t.Error("embedding enabled without a base_url")
	}

	cfg.Embedding.BaseURL = "http://localhost:11434/v1"
	if !EmbeddingEnabled(cfg) {
		t.Error("embedding disabled despite base_url")
	}
}
