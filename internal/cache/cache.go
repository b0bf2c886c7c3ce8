// Package cache stores finished call graphs on disk, keyed by the digest of
// every input file, so an unchanged tree skips resolution.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/zeebo/blake3"

	"github.com/panbanda/reach/pkg/callgraph"
	"github.com/panbanda/reach/pkg/resolve"
)

// formatVersion invalidates entries written by an incompatible build.
const formatVersion = 1

// Cache provides file-based caching for analysis results.
type Cache struct {
	dir     string
	enabled bool
}

// Entry is the on-disk form of a cached analysis.
type Entry struct {
	Key        string             `json:"key"`
	Timestamp  time.Time          `json:"timestamp"`
	Graph      callgraph.Snapshot `json:"graph"`
	Resolution resolution         `json:"resolution"`
}

// resolution mirrors resolve.Result with JSON-friendly collections.
type resolution struct {
	Sites            int                      `json:"sites"`
	Resolved         int                      `json:"resolved"`
	Edges            int                      `json:"edges"`
	External         int                      `json:"external"`
	Dropped          int                      `json:"dropped"`
	Ambiguous        int                      `json:"ambiguous"`
	ByTier           map[resolve.Tier]int     `json:"by_tier"`
	AmbiguousTargets []callgraph.FunctionID   `json:"ambiguous_targets"`
	Unresolved       []resolve.UnresolvedCall `json:"unresolved"`
}

func fromResult(res *resolve.Result) resolution {
	r := resolution{
		Sites:      res.Sites,
		Resolved:   res.Resolved,
		Edges:      res.Edges,
		External:   res.External,
		Dropped:    res.Dropped,
		Ambiguous:  res.Ambiguous,
		ByTier:     res.ByTier,
		Unresolved: res.Unresolved,
	}
	for id := range res.AmbiguousTargets {
		r.AmbiguousTargets = append(r.AmbiguousTargets, id)
	}
	slices.SortFunc(r.AmbiguousTargets, func(a, b callgraph.FunctionID) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return r
}

func (r resolution) result() *resolve.Result {
	res := &resolve.Result{
		Sites:            r.Sites,
		Resolved:         r.Resolved,
		Edges:            r.Edges,
		External:         r.External,
		Dropped:          r.Dropped,
		Ambiguous:        r.Ambiguous,
		ByTier:           r.ByTier,
		AmbiguousTargets: make(map[callgraph.FunctionID]bool, len(r.AmbiguousTargets)),
		Unresolved:       r.Unresolved,
	}
	if res.ByTier == nil {
		res.ByTier = make(map[resolve.Tier]int)
	}
	for _, id := range r.AmbiguousTargets {
		res.AmbiguousTargets[id] = true
	}
	return res
}

// New creates a cache rooted at dir. A disabled cache never hits and never
// writes.
func New(dir string, enabled bool) (*Cache, error) {
	if !enabled {
		return &Cache{enabled: false}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir, enabled: true}, nil
}

// Enabled reports whether the cache reads and writes entries.
func (c *Cache) Enabled() bool { return c.enabled }

// HashBytes computes a BLAKE3 hash of bytes and returns it as a hex string.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Key digests the settings salt and every (path, content hash) pair. The
// result does not depend on map iteration order.
func Key(salt []byte, hashes map[string]string) string {
	paths := make([]string, 0, len(hashes))
	for p := range hashes {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	h := blake3.New()
	fmt.Fprintf(h, "reach-cache-v%d\x00", formatVersion)
	_, _ = h.Write(salt)
	for _, p := range paths {
		fmt.Fprintf(h, "\x00%s\x00%s", p, hashes[p])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the graph and resolution stored under key.
func (c *Cache) Get(key string) (*callgraph.CallGraph, *resolve.Result, bool) {
	if !c.enabled {
		return nil, nil, false
	}
	data, err := os.ReadFile(c.keyPath(key))
	if err != nil {
		return nil, nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Key != key {
		return nil, nil, false
	}
	g, err := callgraph.FromSnapshot(entry.Graph)
	if err != nil {
		return nil, nil, false
	}
	return g, entry.Resolution.result(), true
}

// Put stores a finished graph and its resolution under key.
func (c *Cache) Put(key string, g *callgraph.CallGraph, res *resolve.Result) error {
	if !c.enabled {
		return nil
	}
	entry := Entry{
		Key:        key,
		Timestamp:  time.Now(),
		Graph:      g.Snapshot(),
		Resolution: fromResult(res),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	tmp := c.keyPath(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return os.Rename(tmp, c.keyPath(key))
}

// Clear removes all cache entries.
func (c *Cache) Clear() error {
	if !c.enabled {
		return nil
	}
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

// keyPath converts a key to a filesystem path.
func (c *Cache) keyPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}
