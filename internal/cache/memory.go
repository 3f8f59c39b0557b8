package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type entry struct {
	key     string
	value   []byte
	expires time.Time
	element *list.Element
}

// MemoryStore is a capacity-bounded map. When full, the oldest inserted
// entry is evicted; reads do not refresh an entry's position.
type MemoryStore struct {
	mu         sync.Mutex
	capacity   int
	defaultTTL time.Duration
	clock      Clock
	items      map[string]*entry
	order      *list.List
	evictions  int64
}

// NewMemoryStore creates a store. capacity <= 0 defaults to 1000 and a nil
// clock uses the wall clock.
func NewMemoryStore(capacity int, defaultTTL time.Duration, clock Clock) *MemoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	if clock == nil {
		clock = RealClock
	}
	return &MemoryStore{
		capacity:   capacity,
		defaultTTL: defaultTTL,
		clock:      clock,
		items:      make(map[string]*entry, capacity),
		order:      list.New(),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	if s.expired(ent) {
		s.remove(ent)
		return nil, false, nil
	}
	return ent.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	var expires time.Time
	if ttl > 0 {
		expires = s.clock.Now().Add(ttl)
	}

	if ent, ok := s.items[key]; ok {
		ent.value = value
		ent.expires = expires
		s.order.MoveToBack(ent.element)
		return nil
	}

	for len(s.items) >= s.capacity {
		s.evictOldest()
	}

	elem := s.order.PushBack(key)
	s.items[key] = &entry{key: key, value: value, expires: expires, element: elem}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.items[key]; ok {
		s.remove(ent)
	}
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, ent := range s.items {
		if s.expired(ent) {
			s.remove(ent)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Evictions reports how many entries were dropped to make room.
func (s *MemoryStore) Evictions() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictions
}

func (s *MemoryStore) expired(ent *entry) bool {
	return !ent.expires.IsZero() && !s.clock.Now().Before(ent.expires)
}

func (s *MemoryStore) evictOldest() {
	elem := s.order.Front()
	if elem == nil {
		return
	}
	if ent, ok := s.items[elem.Value.(string)]; ok {
		s.remove(ent)
		s.evictions++
	}
}

func (s *MemoryStore) remove(ent *entry) {
	s.order.Remove(ent.element)
	delete(s.items, ent.key)
}
