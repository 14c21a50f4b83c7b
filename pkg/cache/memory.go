package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memEntry struct {
	val     []byte
	set     map[string]struct{}
	expires time.Time
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// MemoryStore is an in-process Store with lazy expiry plus a periodic sweep.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*memEntry
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{items: map[string]*memEntry{}, now: time.Now}
	go m.sweep()
	return m
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		m.mu.Lock()
		now := m.now()
		for k, e := range m.items {
			if e.expired(now) {
				delete(m.items, k)
			}
		}
		m.mu.Unlock()
	}
}

// entry returns a live entry or nil. Caller holds m.mu.
func (m *MemoryStore) entry(key string) *memEntry {
	e, ok := m.items[key]
	if !ok {
		return nil
	}
	if e.expired(m.now()) {
		delete(m.items, key)
		return nil
	}
	return e
}

func (m *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemoryStore) GetRaw(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(key)
	if e == nil || e.set != nil {
		return nil, ErrMiss
	}
	out := make([]byte, len(e.val))
	copy(out, e.val)
	return out, nil
}

func (m *MemoryStore) SetRaw(_ context.Context, key string, val []byte, ttl time.Duration) error {
	cp := make([]byte, len(val))
	copy(cp, val)
	m.mu.Lock()
	m.items[key] = &memEntry{val: cp, expires: m.expiry(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ReplaceRaw(_ context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(key)
	if e == nil || e.set != nil {
		return false, nil
	}
	e.val = append([]byte(nil), val...)
	e.expires = m.expiry(ttl)
	return true, nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.items, k)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key)
	if e == nil {
		m.items[key] = &memEntry{val: []byte("1"), expires: m.expiry(ttl)}
		return 1, nil
	}
	n, err := strconv.ParseInt(string(e.val), 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	e.val = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func (m *MemoryStore) SAdd(_ context.Context, key, member string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(key)
	if e == nil || e.set == nil {
		e = &memEntry{set: map[string]struct{}{}}
		m.items[key] = e
	}
	e.set[member] = struct{}{}
	if ttl > 0 {
		e.expires = m.expiry(ttl)
	}
	return nil
}

func (m *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.entry(key); e != nil && e.set != nil {
		for _, mem := range members {
			delete(e.set, mem)
		}
	}
	return nil
}

func (m *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(key)
	if e == nil || e.set == nil {
		return nil, nil
	}
	out := make([]string, 0, len(e.set))
	for mem := range e.set {
		out = append(out, mem)
	}
	return out, nil
}
