// Package index maintains an embedding index over the prompts of cached
// generated snippets, so generate requests can be told which related
// snippets already exist. The index is an optional enrichment: when no
// embedder is configured every method degrades to a no-op.
package index

import (
	"sync"

	"github.com/coder/hnsw"
)

// Index is an HNSW graph over snippet prompts, keyed by cache key.
type Index struct {
	embedder *Embedder

	mu      sync.RWMutex
	graph   *hnsw.Graph[string]
	prompts map[string]string // cache key -> redacted prompt text
}

// New creates an index. embedder may be nil, which disables the index.
func New(embedder *Embedder) *Index {
	return &Index{
		embedder: embedder,
		graph:    hnsw.NewGraph[string](),
		prompts:  make(map[string]string),
	}
}

// Enabled reports whether an embedder is configured.
func (ix *Index) Enabled() bool {
	return ix != nil && ix.embedder != nil
}

// Add embeds the prompt and records it under the given cache key.
// The prompt is redacted before it leaves the process.
func (ix *Index) Add(key string, prompt string) error {
	if !ix.Enabled() {
		return nil
	}

	ix.mu.RLock()
	_, exists := ix.graph.Lookup(key)
	ix.mu.RUnlock()
	if exists {
		return nil
	}

	redacted := Redact(prompt)
	vec, err := ix.embedder.Embed(redacted)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	ix.graph.Add(hnsw.MakeNode(key, vec))
	ix.prompts[key] = redacted
	ix.mu.Unlock()
	return nil
}

// Search embeds the query prompt and returns the cache keys of the topK
// most similar indexed snippets.
func (ix *Index) Search(prompt string, topK int) ([]string, error) {
	if !ix.Enabled() {
		return nil, nil
	}

	vec, err := ix.embedder.Embed(Redact(prompt))
	if err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.graph.Len() == 0 || topK <= 0 {
		return nil, nil
	}

	neighbors := ix.graph.Search(vec, topK)
	keys := make([]string, len(neighbors))
	for i, n := range neighbors {
		keys[i] = n.Key
	}
	return keys, nil
}

// Len returns the number of indexed snippets.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.graph.Len()
}

// Reset discards every indexed snippet. Used by the clear-all command.
func (ix *Index) Reset() {
	if ix == nil {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.graph = hnsw.NewGraph[string]()
	ix.prompts = make(map[string]string)
}
