package sync

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vaultlink/vaultlink/internal/vault"
)

const hashCacheSize = 4096

// HashCache remembers the last synced content hash per vault path. Both
// directions consult it before writing, so a change whose bytes already
// match the last sync becomes a no-op without reading the other side.
type HashCache struct {
	cache *lru.Cache[string, string]
}

func NewHashCache() *HashCache {
	// lru.New only errors on a non-positive size.
	cache, _ := lru.New[string, string](hashCacheSize)
	return &HashCache{cache: cache}
}

func (c *HashCache) Get(rel string) (string, bool) {
	return c.cache.Get(vault.NormPath(rel))
}

func (c *HashCache) Remember(rel, hash string) {
	c.cache.Add(vault.NormPath(rel), hash)
}

func (c *HashCache) Forget(rel string) {
	c.cache.Remove(vault.NormPath(rel))
}

// ForgetPrefix drops every entry under a vault folder. Folder renames and
// deletes invalidate the whole subtree.
func (c *HashCache) ForgetPrefix(rel string) {
	prefix := vault.NormPath(rel) + "/"
	for _, key := range c.cache.Keys() {
		if key == vault.NormPath(rel) || strings.HasPrefix(key, prefix) {
			c.cache.Remove(key)
		}
	}
}

func (c *HashCache) Len() int {
	return c.cache.Len()
}
