// internal/discovery/serial/cache.go
package serial

import "sync"

type screenSize struct {
	width  uint16
	height uint16
}

// ProbeCache remembers the resolution of every port that answered a
// ReadInfo probe. Entries are never expired: a port that is open elsewhere
// cannot be probed again, and the cache is how it stays discoverable.
type ProbeCache struct {
	mutex   sync.RWMutex
	entries map[string]screenSize
}

// NewProbeCache creates an empty cache
func NewProbeCache() *ProbeCache {
	return &ProbeCache{entries: make(map[string]screenSize)}
}

// Put records a probed port
func (c *ProbeCache) Put(port string, width, height uint16) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[port] = screenSize{width: width, height: height}
}

// Get returns the cached resolution of a port
func (c *ProbeCache) Get(port string) (uint16, uint16, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	s, ok := c.entries[port]
	return s.width, s.height, ok
}

// Len returns the number of cached ports
func (c *ProbeCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}
