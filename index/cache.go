package index

import (
	"encoding/json"
	"os"

	"github.com/coder/hnsw"
	"github.com/google/renameio"
)

type cacheFile struct {
	Model   string       `json:"model"`
	Entries []cacheEntry `json:"entries"`
}

type cacheEntry struct {
	Key       string    `json:"key"`
	Prompt    string    `json:"prompt"`
	Embedding []float32 `json:"embedding"`
}

// Save writes the current index (prompts + embeddings) to disk so the
// daemon does not re-embed every snippet on restart.
func (ix *Index) Save(path string, model string) error {
	if !ix.Enabled() {
		return nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	entries := make([]cacheEntry, 0, len(ix.prompts))
	for key, prompt := range ix.prompts {
		vec, ok := ix.graph.Lookup(key)
		if !ok {
			continue
		}
		entries = append(entries, cacheEntry{
			Key:       key,
			Prompt:    prompt,
			Embedding: vec,
		})
	}

	data, err := json.Marshal(cacheFile{
		Model:   model,
		Entries: entries,
	})
	if err != nil {
		return err
	}

	return renameio.WriteFile(path, data, 0o644)
}

// Load restores a previously saved index from disk.
// If the embedding model doesn't match, the file is silently skipped.
func (ix *Index) Load(path string, model string) error {
	if !ix.Enabled() {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return err
	}

	if cf.Model != model {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	nodes := make([]hnsw.Node[string], 0, len(cf.Entries))
	for _, e := range cf.Entries {
		nodes = append(nodes, hnsw.MakeNode(e.Key, e.Embedding))
		ix.prompts[e.Key] = e.Prompt
	}

	if len(nodes) > 0 {
		ix.graph.Add(nodes...)
	}

	return nil
}
