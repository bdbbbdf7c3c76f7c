package layout

import "sync"

// Cache derives and deduplicates binding layouts. Derivation is a pure function
// of the declared slots, so structurally identical declarations from different
// programs resolve to the same *Layout instance.
//
// The cache is read-mostly after warm-up: lookups take the read lock so any
// thread may query it concurrently, insertions are serialized under the write
// lock.
type Cache struct {
	mu      sync.RWMutex
	layouts map[string]*Layout
}

// NewCache creates an empty layout cache. Caches are explicitly owned by the
// renderer that constructs them, not process-wide singletons, so tests can
// build isolated instances.
//
// Returns:
//   - *Cache: the new cache
func NewCache() *Cache {
	return &Cache{layouts: make(map[string]*Layout)}
}

// Derive resolves the declared slots to their canonical Layout, inserting a new
// one on first sight. Slot order in the input does not matter; slots are
// normalized by (group, binding) before keying.
//
// Parameters:
//   - slots: the binding slots a program declares
//
// Returns:
//   - *Layout: the shared canonical layout for this slot shape
//   - error: *DuplicateBindingError if two slots share a (group, binding) pair
func (c *Cache) Derive(slots []Slot) (*Layout, error) {
	sorted, err := normalize(slots)
	if err != nil {
		return nil, err
	}
	key := slotKey(sorted)

	c.mu.RLock()
	l, ok := c.layouts[key]
	c.mu.RUnlock()
	if ok {
		return l, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another goroutine may have inserted between the two locks.
	if l, ok := c.layouts[key]; ok {
		return l, nil
	}
	l = &Layout{slots: sorted, key: key}
	c.layouts[key] = l
	return l, nil
}

// Len reports the number of distinct layouts currently cached.
//
// Returns:
//   - int: the cache size
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.layouts)
}
