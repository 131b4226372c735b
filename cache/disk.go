// Package cache persists generated snippets across daemon restarts.
// Entries live as one JSON file per key and are published atomically, so
// a crash mid-write never leaves a corrupt entry observable. The cache is
// an optimization, never a correctness dependency: every lookup failure
// degrades to a miss.
package cache

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/renameio"
	"github.com/jellydator/ttlcache/v3"

	inkling "github.com/greyfriar/inkling"
)

const memTTL = 1 * time.Hour

// Entry is one persisted snippet.
type Entry struct {
	Key       string       `json:"key"`
	Response  string       `json:"response"`
	Model     string       `json:"model"`
	Mode      inkling.Mode `json:"mode"`
	CreatedAt time.Time    `json:"created_at"`
}

// Disk is a durable key→entry store with an in-memory TTL layer in front,
// so repeat hits within a session skip disk I/O.
type Disk struct {
	dir        string
	ttl        time.Duration // zero means no age bound
	maxEntries int           // zero means no size bound
	mem        *ttlcache.Cache[Key, *Entry]
}

// New creates a Disk cache rooted at dir, creating it if needed.
func New(dir string, ttl time.Duration, maxEntries int) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	mt := memTTL
	if ttl > 0 && ttl < mt {
		mt = ttl
	}
	mem := ttlcache.New[Key, *Entry](
		ttlcache.WithTTL[Key, *Entry](mt),
		ttlcache.WithDisableTouchOnHit[Key, *Entry](),
	)
	go mem.Start()
	return &Disk{dir: dir, ttl: ttl, maxEntries: maxEntries, mem: mem}, nil
}

// Close stops the memory layer's expiration loop.
func (c *Disk) Close() {
	c.mem.Stop()
}

// Dir returns the cache directory path.
func (c *Disk) Dir() string {
	return c.dir
}

// Lookup returns the entry for key if present, unexpired, and created for
// the same model and mode. Any read error is a miss, not an error.
func (c *Disk) Lookup(key Key, model string, mode inkling.Mode) (*Entry, bool) {
	if item := c.mem.Get(key); item != nil {
		entry := item.Value()
		if entry.Model == model && entry.Mode == mode && !c.expired(entry) {
			return entry, true
		}
	}

	data, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.Debug("unreadable cache entry treated as miss", "key", key, "error", err)
		return nil, false
	}
	if c.expired(&entry) {
		os.Remove(c.entryPath(key))
		return nil, false
	}
	// An entry is never served for a different model or mode than it was
	// created for, even if the file was placed here by hand.
	if entry.Model != model || entry.Mode != mode {
		return nil, false
	}
	c.mem.Set(key, &entry, ttlcache.DefaultTTL)
	return &entry, true
}

// Store writes or overwrites the entry for key. The entry is durable
// before Store returns: it is written to a temp file and atomically
// renamed into place, so a failed write leaves any previous value intact.
func (c *Disk) Store(key Key, response, model string, mode inkling.Mode) error {
	entry := &Entry{
		Key:       string(key),
		Response:  response,
		Model:     model,
		Mode:      mode,
		CreatedAt: time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(c.entryPath(key), data, 0o644); err != nil {
		return err
	}
	c.mem.Set(key, entry, ttlcache.DefaultTTL)
	c.enforceLimit()
	return nil
}

// ClearAll removes every persisted entry. Irreversible; invoked only by
// the explicit clear-all user command.
func (c *Disk) ClearAll() error {
	c.mem.DeleteAll()
	files, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, f := range files {
		if isEntryName(f.Name()) {
			os.Remove(filepath.Join(c.dir, f.Name()))
		}
	}
	return nil
}

// Len returns the number of persisted entries.
func (c *Disk) Len() int {
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, f := range files {
		if isEntryName(f.Name()) {
			n++
		}
	}
	return n
}

// RecentKeys returns up to n cache keys, newest first.
func (c *Disk) RecentKeys(n int) []string {
	infos := c.sortedEntries()
	keys := make([]string, 0, n)
	for i := len(infos) - 1; i >= 0 && len(keys) < n; i-- {
		name := infos[i].name
		keys = append(keys, name[:len(name)-len(".json")])
	}
	return keys
}

type entryInfo struct {
	name    string
	modTime time.Time
}

// sortedEntries lists entry files oldest first by modification time.
func (c *Disk) sortedEntries() []entryInfo {
	files, err := os.ReadDir(c.dir)
	if err != nil {
		return nil
	}
	infos := make([]entryInfo, 0, len(files))
	for _, f := range files {
		if !isEntryName(f.Name()) {
			continue
		}
		fi, err := f.Info()
		if err != nil {
			continue
		}
		infos = append(infos, entryInfo{name: f.Name(), modTime: fi.ModTime()})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].modTime.Before(infos[j].modTime)
	})
	return infos
}

// enforceLimit evicts the oldest entries beyond maxEntries.
func (c *Disk) enforceLimit() {
	if c.maxEntries <= 0 {
		return
	}
	infos := c.sortedEntries()
	for i := 0; i < len(infos)-c.maxEntries; i++ {
		name := infos[i].name
		os.Remove(filepath.Join(c.dir, name))
		c.mem.Delete(Key(name[:len(name)-len(".json")]))
	}
}

// isEntryName reports whether name is a cache entry file: a 64-hex key
// plus ".json". Other files sharing the directory (such as the persisted
// snippet index) are never counted, listed, or evicted.
func isEntryName(name string) bool {
	name, ok := strings.CutSuffix(name, ".json")
	if !ok || len(name) != 64 {
		return false
	}
	for _, c := range name {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func (c *Disk) expired(e *Entry) bool {
	return c.ttl > 0 && time.Since(e.CreatedAt) > c.ttl
}

func (c *Disk) entryPath(key Key) string {
	return filepath.Join(c.dir, string(key)+".json")
}
