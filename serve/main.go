// Command inklingd is the inkling daemon. It listens on a Unix domain
// socket for requests from editor plugins, assembles context from the
// session history and the snippet cache, and returns completions,
// explanations, and generated snippets from a local inference server.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	inkling "github.com/greyfriar/inkling"
	"github.com/greyfriar/inkling/assemble"
	"github.com/greyfriar/inkling/cache"
	"github.com/greyfriar/inkling/index"
	"github.com/greyfriar/inkling/session"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	verbose := flag.Bool("verbose", false, "log every request and response")
	flag.Parse()

	if *showVersion {
		fmt.Println("inklingd", Version)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := inkling.LoadConfig()
	if err != nil {
		slog.Warn("config load failed, using defaults", "error", err)
		cfg = inkling.DefaultConfig()
	}

	model := inkling.ResolveModel(cfg)
	cacheDir := inkling.CacheDir(cfg)

	disk, err := cache.New(cacheDir, inkling.CacheTTL(cfg), cfg.Cache.MaxEntries)
	if err != nil {
		slog.Error("failed to open snippet cache", "dir", cacheDir, "error", err)
		os.Exit(1)
	}

	client := assemble.NewOllamaClient(
		inkling.ResolveBaseURL(cfg),
		inkling.RequestTimeout(cfg),
		cfg.Generation.MaxTokens,
		cfg.Generation.Temperature,
		cfg.Generation.Stop,
	)

	idx, idxPath := buildIndex(cfg, cacheDir)
	store := session.NewStore(cfg.Session.MaxTurns)

	engine := assemble.New(client, store, disk, idx, assemble.Options{
		Model:         model,
		Timeout:       inkling.RequestTimeout(cfg),
		HistoryWindow: cfg.Session.HistoryWindow,
	})

	socketPath := resolveSocketPath()
	slog.Info("starting", "socket", socketPath, "model", model, "cache", cacheDir)

	srv, err := NewServer(socketPath, engine, client, store, disk, idx)
	if err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("shutting down")
		saveIndex(idx, idxPath, cfg)
		srv.Close()
		os.Exit(0)
	}()

	slog.Info("ready")
	if err := srv.Serve(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// buildIndex sets up the snippet similarity index when an embedding
// server is configured, restoring saved embeddings from the cache dir.
func buildIndex(cfg *inkling.Config, cacheDir string) (*index.Index, string) {
	idxPath := filepath.Join(cacheDir, "embeddings.json")

	if !inkling.EmbeddingEnabled(cfg) {
		return index.New(nil), idxPath
	}

	embedder := index.NewEmbedder(
		inkling.ResolveEmbeddingBaseURL(cfg),
		inkling.ResolveEmbeddingAPIKey(cfg),
		inkling.ResolveEmbeddingModel(cfg),
	)
	idx := index.New(embedder)

	if err := idx.Load(idxPath, embedder.Model()); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to restore snippet index", "path", idxPath, "error", err)
	} else if idx.Len() > 0 {
		slog.Info("snippet index restored", "snippets", idx.Len())
	}
	return idx, idxPath
}

func saveIndex(idx *index.Index, path string, cfg *inkling.Config) {
	if !idx.Enabled() || idx.Len() == 0 {
		return
	}
	if err := idx.Save(path, inkling.ResolveEmbeddingModel(cfg)); err != nil {
		slog.Warn("failed to save snippet index", "path", path, "error", err)
	}
}

func resolveSocketPath() string {
	if path := os.Getenv("INKLING_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/inkling.sock"
	}
	return fmt.Sprintf("/tmp/inkling-%d.sock", os.Getuid())
}
