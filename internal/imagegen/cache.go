package imagegen

import (
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// Cache is a file-based cache for rendered images, keyed by name.
type Cache struct {
	dir    string
	maxAge time.Duration
}

// NewCache creates a cache in dir. Entries older than maxAge are treated as
// missing so banners and maps get refreshed.
func NewCache(dir string, maxAge time.Duration) *Cache {
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("imagegen: could not create cache directory: %v", err)
	}
	return &Cache{
		dir:    dir,
		maxAge: maxAge,
	}
}

// Key turns free-form parts into a file-safe cache key.
func Key(parts ...string) string {
	clean := make([]string, len(parts))
	for i, p := range parts {
		clean[i] = strings.Trim(unsafeKeyChars.ReplaceAllString(strings.ToLower(p), "_"), "_")
	}
	return strings.Join(clean, "_")
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".png")
}

// Get returns the cached image for key if present and fresh.
func (c *Cache) Get(key string) ([]byte, bool) {
	path := c.path(key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.maxAge > 0 && time.Since(info.ModTime()) > c.maxAge {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Cache) Set(key string, data []byte) error {
	return os.WriteFile(c.path(key), data, 0644)
}

// GetAny returns any cached image whose key starts with prefix, ignoring age.
func (c *Cache) GetAny(prefix string) ([]byte, bool) {
	for _, key := range c.List(prefix) {
		data, err := os.ReadFile(c.path(key))
		if err == nil {
			return data, true
		}
	}
	return nil, false
}

// List returns the cached keys starting with prefix.
func (c *Cache) List(prefix string) []string {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".png" {
			continue
		}
		key := strings.TrimSuffix(name, ".png")
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}
