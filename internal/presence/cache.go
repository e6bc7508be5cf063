package presence

import "sync"

// Cache remembers conclusive check results for the process lifetime so
// repeated runs do not re-visit artists already settled. Inconclusive
// outcomes are never cached. Eviction is oldest-first.
type Cache struct {
	mu      sync.Mutex
	max     int
	entries map[string]Result
	order   []string
}

func NewCache(max int) *Cache {
	if max <= 0 {
		max = 1
	}
	return &Cache{
		max:     max,
		entries: make(map[string]Result),
	}
}

func (c *Cache) Get(artistID string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[artistID]
	return r, ok
}

// Put stores a result. Inconclusive outcomes are dropped silently.
func (c *Cache) Put(artistID string, r Result) {
	if !r.Outcome.Conclusive() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[artistID]; !exists {
		for len(c.order) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, artistID)
	}
	c.entries[artistID] = r
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
