package conversation

import (
	"sync"
	"time"
)

// Clock supplies the current time. Tests inject a fake to drive expiry.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Map is the key/value backing a MemoryStore keeps its state in. A durable
// implementation can replace SyncMap without touching callers of Store.
type Map[V any] interface {
	Load(key string) (V, bool)
	Store(key string, value V)
	Delete(key string)
	Range(fn func(key string, value V) bool)
	Len() int
}

// SyncMap is the default in-process Map built on sync.Map.
type SyncMap[V any] struct {
	m sync.Map
}

// NewSyncMap returns an empty SyncMap.
func NewSyncMap[V any]() *SyncMap[V] {
	return &SyncMap[V]{}
}

func (s *SyncMap[V]) Load(key string) (V, bool) {
	v, ok := s.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (s *SyncMap[V]) Store(key string, value V) {
	s.m.Store(key, value)
}

func (s *SyncMap[V]) Delete(key string) {
	s.m.Delete(key)
}

func (s *SyncMap[V]) Range(fn func(key string, value V) bool) {
	s.m.Range(func(k, v any) bool {
		return fn(k.(string), v.(V))
	})
}

func (s *SyncMap[V]) Len() int {
	n := 0
	s.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// keyedMutex serializes work per key while letting different keys proceed
// in parallel. Entries are dropped once no goroutine holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyLock)}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
