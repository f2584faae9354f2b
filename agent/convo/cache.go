package convo

import (
	"sync"

	contractx "github.com/jirapatw/voicebook/agent/contract"
)

// Cache is the process-wide map of live session contexts: populated when a
// session starts, evicted when it ends. It is an explicit injected component
// rather than ambient state so the loop is testable without a live process.
// Each entry carries its own mutex; the loop holds it for the whole turn,
// which is what makes turns strictly sequential per session.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	sess *contractx.Session
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

func (c *Cache) Put(sess *contractx.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sess.ID] = &entry{sess: sess}
}

func (c *Cache) Get(id string) (*contractx.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return e.sess, true
}

func (c *Cache) Evict(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

func (c *Cache) acquire(id string) (*entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}
