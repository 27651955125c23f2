package cache

import (
	"container/list"
	"sync"
)

// memoryTier is the in-process cache tier: a capacity-bounded map with
// LRU ordering and per-entry TTL. All operations are O(1) and guarded
// by a single mutex; no operation performs I/O.
type memoryTier struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type memoryItem struct {
	key   string
	entry Entry
}

func newMemoryTier(capacity int) *memoryTier {
	return &memoryTier{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// get returns the entry for key and marks it most recently used.
// Expired entries are removed and reported as absent.
func (m *memoryTier) get(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return Entry{}, false
	}

	item := el.Value.(*memoryItem)
	if item.entry.IsExpired() {
		m.order.Remove(el)
		delete(m.entries, key)
		return Entry{}, false
	}

	m.order.MoveToFront(el)
	return item.entry, true
}

// set stores the entry, evicting the least recently used entry when the
// tier exceeds its capacity.
func (m *memoryTier) set(key string, entry Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		el.Value.(*memoryItem).entry = entry
		m.order.MoveToFront(el)
		return
	}

	m.entries[key] = m.order.PushFront(&memoryItem{key: key, entry: entry})

	if m.order.Len() > m.capacity {
		oldest := m.order.Back()
		if oldest != nil {
			m.order.Remove(oldest)
			delete(m.entries, oldest.Value.(*memoryItem).key)
			cacheEvictions.Inc()
		}
	}
}

func (m *memoryTier) delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return false
	}
	m.order.Remove(el)
	delete(m.entries, key)
	return true
}

// deleteMatching removes every key matching the compiled pattern and
// returns the removed keys. This is the only O(n) operation on the tier
// and is invoked on writes only.
func (m *memoryTier) deleteMatching(match func(string) bool) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for key, el := range m.entries {
		if match(key) {
			m.order.Remove(el)
			delete(m.entries, key)
			removed = append(removed, key)
		}
	}
	return removed
}

func (m *memoryTier) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*list.Element)
	m.order.Init()
}

func (m *memoryTier) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
