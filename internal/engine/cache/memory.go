package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fastsearch/fastsearch/internal/engine/index"
)

// MemoryStore is an in-process LRU cache backend with per-entry TTL.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

type memoryEntry struct {
	key       string
	results   []index.SearchResult
	createdAt time.Time
}

// NewMemoryStore creates a MemoryStore holding at most maxEntries entries.
// A non-positive ttl disables expiry.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &MemoryStore{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get returns the cached results for key, if present and not expired. Hits
// are returned as a copy so callers cannot mutate the cached entry.
func (s *MemoryStore) Get(_ context.Context, key string) ([]index.SearchResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elem, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*memoryEntry)
	if s.ttl > 0 && s.now().Sub(entry.createdAt) > s.ttl {
		s.order.Remove(elem)
		delete(s.entries, key)
		return nil, false
	}
	s.order.MoveToFront(elem)
	return cloneResults(entry.results), true
}

// Set stores results under key, evicting the least recently used entry when
// the store is full.
func (s *MemoryStore) Set(_ context.Context, key string, results []index.SearchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.entries[key]; ok {
		elem.Value.(*memoryEntry).results = results
		elem.Value.(*memoryEntry).createdAt = s.now()
		s.order.MoveToFront(elem)
		return
	}
	if len(s.entries) >= s.maxEntries {
		oldest := s.order.Back()
		if oldest != nil {
			s.order.Remove(oldest)
			delete(s.entries, oldest.Value.(*memoryEntry).key)
		}
	}
	s.entries[key] = s.order.PushFront(&memoryEntry{
		key:       key,
		results:   results,
		createdAt: s.now(),
	})
}

// DeleteByPrefix removes every entry whose key starts with prefix and
// returns the number removed.
func (s *MemoryStore) DeleteByPrefix(_ context.Context, prefix string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for key, elem := range s.entries {
		if strings.HasPrefix(key, prefix) {
			s.order.Remove(elem)
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted
}

// Clear removes every entry.
func (s *MemoryStore) Clear(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*list.Element)
	s.order.Init()
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// cloneResults deep-copies results down to the field maps. The Redis backend
// gets the same isolation for free from its JSON round-trip.
func cloneResults(results []index.SearchResult) []index.SearchResult {
	out := make([]index.SearchResult, len(results))
	copy(out, results)
	for i := range out {
		if out[i].Fields == nil {
			continue
		}
		fields := make(map[string]any, len(out[i].Fields))
		for name, v := range out[i].Fields {
			fields[name] = v
		}
		out[i].Fields = fields
	}
	return out
}
