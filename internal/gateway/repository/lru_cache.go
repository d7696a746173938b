package repository

import (
	"container/list"
	"sync"
	"time"
)

type cacheEntry struct {
	key       string
	expiresAt time.Time
}

// LRUCache remembers keys until a per-key deadline, evicting the least recently
// used key once maxSize is reached. Only presence is stored.
type LRUCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List
	maxSize int
	now     func() time.Time
}

func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &LRUCache{
		items:   make(map[string]*list.Element, maxSize),
		order:   list.New(),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Contains reports whether key is present and not past its deadline.
func (c *LRUCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	entry := elem.Value.(*cacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.removeElement(elem)
		return false
	}
	c.order.MoveToFront(elem)
	return true
}

// Add stores key until the given deadline. Deadlines in the past are ignored.
func (c *LRUCache) Add(key string, until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.now().Before(until) {
		return
	}
	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheEntry).expiresAt = until
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry{key: key, expiresAt: until})
	c.items[key] = elem
	if len(c.items) > c.maxSize {
		c.evictOldest()
	}
}

func (c *LRUCache) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	c.removeElement(elem)
}

func (c *LRUCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
	c.order.Remove(elem)
}
