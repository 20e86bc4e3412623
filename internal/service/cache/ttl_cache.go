package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

type entry struct {
	v   any
	exp time.Time
}

// TTLCache is an in-process cache with lazy expiry.
type TTLCache struct {
	mu   sync.RWMutex
	m    map[string]entry
	sets map[string]map[string]struct{}
	now  func() time.Time
}

func NewTTLCache() *TTLCache {
	return &TTLCache{
		m:    make(map[string]entry),
		sets: make(map[string]map[string]struct{}),
		now:  time.Now,
	}
}

func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && c.now().After(e.exp) {
		c.mu.Lock()
		if cur, ok := c.m[key]; ok && cur.exp.Equal(e.exp) {
			delete(c.m, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.v, true
}

// Set stores v; a non-positive ttl never expires.
func (c *TTLCache) Set(key string, v any, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.m[key] = entry{v: v, exp: exp}
	c.mu.Unlock()
}

func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func (c *TTLCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	return b, ok, nil
}

func (c *TTLCache) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.Set(key, value, ttl)
	return nil
}

func (c *TTLCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
	return nil
}

func (c *TTLCache) SetAdd(_ context.Context, set string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sets[set]
	if !ok {
		s = make(map[string]struct{}, len(members))
		c.sets[set] = s
	}
	for _, m := range members {
		s[m] = struct{}{}
	}
	return nil
}

// SetMembers returns the members sorted.
func (c *TTLCache) SetMembers(_ context.Context, set string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.sets[set]))
	for m := range c.sets[set] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}
