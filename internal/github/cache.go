package github

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache holds decoded API reads. Keys are "<kind>:<owner>[/<repo>[/<path>]]"
// so a whole repository can be dropped after a commit.
type Cache struct {
	entries *lru.Cache[string, any]
}

func NewCache(size int) (*Cache, error) {
	entries, err := lru.New[string, any](size)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

func cacheKey(kind string, scope ...string) string {
	return kind + ":" + strings.Join(scope, "/")
}

func (c *Cache) Get(key string) (any, bool) {
	return c.entries.Get(key)
}

func (c *Cache) Add(key string, value any) {
	c.entries.Add(key, value)
}

// Invalidate drops every entry scoped to owner/repo, plus the owner's
// repository listing whose ordering depends on push time.
func (c *Cache) Invalidate(owner, repo string) {
	scope := owner + "/" + repo
	for _, key := range c.entries.Keys() {
		_, rest, ok := strings.Cut(key, ":")
		if !ok {
			continue
		}
		if rest == scope || strings.HasPrefix(rest, scope+"/") || key == cacheKey("repos", owner) {
			c.entries.Remove(key)
		}
	}
}

// InvalidateKind drops entries of one kind for owner/repo.
func (c *Cache) InvalidateKind(kind, owner, repo string) {
	c.entries.Remove(cacheKey(kind, owner, repo))
}

func (c *Cache) Purge() {
	c.entries.Purge()
}

func (c *Cache) Len() int {
	return c.entries.Len()
}

// cached returns the value under key or loads and stores it. Failed loads
// are not cached.
func cached[T any](c *Cache, key string, load func() (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Add(key, v)
	return v, nil
}
