// Package cache holds rendered comment thread pages. Keys embed a per-post
// version; bumping the version retires every page of that post at once and
// the old entries age out on their TTL.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const defaultTTL = 30 * time.Second

type item struct {
	val       []byte
	expiresAt time.Time
}

// Memory is an in-process cache with per-entry expiry. Values are stored
// JSON-encoded so callers never share memory with the cache.
type Memory struct {
	mu       sync.RWMutex
	items    map[string]item
	versions map[string]int64
	ttl      time.Duration
	now      func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Memory{
		items:    make(map[string]item),
		versions: make(map[string]int64),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (c *Memory) Version(_ context.Context, postID string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions[postID], nil
}

func (c *Memory) Bump(_ context.Context, postID string) error {
	c.mu.Lock()
	c.versions[postID]++
	c.mu.Unlock()
	return nil
}

func (c *Memory) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if c.now().After(it.expiresAt) {
		c.mu.Lock()
		if cur, ok2 := c.items[key]; ok2 && c.now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(it.val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Memory) Set(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[key] = item{val: b, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}
