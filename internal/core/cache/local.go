package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// localTier is an in-process LRU with per-entry TTL. Expired entries are
// dropped on read and by a background janitor.
type localTier struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	lru        *list.List
	maxEntries int
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type localItem struct {
	key   string
	entry Entry
}

func newLocalTier(maxEntries int, now func() time.Time) *localTier {
	return &localTier{
		items:      make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
		now:        now,
		stop:       make(chan struct{}),
	}
}

func (t *localTier) get(key string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.items[key]
	if !ok {
		return Entry{}, false
	}
	item := elem.Value.(*localItem)
	if item.entry.Expired(t.now()) {
		t.removeElement(elem)
		return Entry{}, false
	}
	t.lru.MoveToFront(elem)
	return item.entry, true
}

func (t *localTier) set(key string, entry Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, ok := t.items[key]; ok {
		elem.Value.(*localItem).entry = entry
		t.lru.MoveToFront(elem)
		return
	}
	if t.maxEntries > 0 && t.lru.Len() >= t.maxEntries {
		if oldest := t.lru.Back(); oldest != nil {
			t.removeElement(oldest)
		}
	}
	t.items[key] = t.lru.PushFront(&localItem{key: key, entry: entry})
}

func (t *localTier) delete(keys ...string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for _, key := range keys {
		if elem, ok := t.items[key]; ok {
			t.removeElement(elem)
			removed++
		}
	}
	return removed
}

func (t *localTier) deletePrefix(prefix string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, elem := range t.items {
		if strings.HasPrefix(key, prefix) {
			t.removeElement(elem)
			removed++
		}
	}
	return removed
}

func (t *localTier) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Len()
}

func (t *localTier) deleteExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for elem := t.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*localItem).entry.Expired(now) {
			t.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

func (t *localTier) removeElement(elem *list.Element) {
	t.lru.Remove(elem)
	delete(t.items, elem.Value.(*localItem).key)
}

func (t *localTier) startJanitor(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.deleteExpired()
			case <-t.stop:
				return
			}
		}
	}()
}

func (t *localTier) close() {
	t.stopOnce.Do(func() { close(t.stop) })
}
