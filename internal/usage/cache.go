package usage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/valentindosimont/ccem/internal/atomicfile"
)

// ErrCacheVersion is returned by CacheStore.Load for a cache written with a
// different schema version.
var ErrCacheVersion = errors.New("usage cache version mismatch")

// CacheStore persists the UsageCache as a single JSON document.
type CacheStore struct {
	Path string
}

// DefaultCachePath returns ~/.ccem/usage-cache.json.
func DefaultCachePath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".ccem", "usage-cache.json")
}

// Load reads the cache. Any read, decode or version problem is returned as
// an error and the cache should be treated as absent.
func (s *CacheStore) Load() (*UsageCache, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read usage cache: %w", err)
	}

	var c UsageCache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode usage cache: %w", err)
	}
	if c.Version != CacheVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCacheVersion, c.Version, CacheVersion)
	}
	if c.Files == nil {
		c.Files = make(map[string]CachedFile)
	}
	return &c, nil
}

// Save atomically replaces the cache file.
func (s *CacheStore) Save(c *UsageCache) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode usage cache: %w", err)
	}
	if err := atomicfile.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("save usage cache: %w", err)
	}
	return nil
}

// metaOf fingerprints a file from its stat info.
func metaOf(info os.FileInfo) FileMeta {
	return FileMeta{
		Mtime: float64(info.ModTime().UnixNano()) / float64(time.Millisecond),
		Size:  info.Size(),
	}
}
