package locker

import "sync"

// Locker serializes mutations per key. Grant creation, voiding and usage
// resets on the same entitlement must not interleave; operations on
// different entitlements stay fully parallel.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewLocker creates a new keyed locker
func NewLocker() *Locker {
	return &Locker{
		locks: make(map[string]*entry),
	}
}

// Lock acquires the lock for the given key, blocking until it is available
func (l *Locker) Lock(key string) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the lock for the given key. The entry is dropped once no
// goroutine is waiting on it so the map does not grow unbounded.
func (l *Locker) Unlock(key string) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if ok {
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
	}
	l.mu.Unlock()

	if ok {
		e.mu.Unlock()
	}
}

// WithLock runs fn while holding the lock for key
func (l *Locker) WithLock(key string, fn func() error) error {
	l.Lock(key)
	defer l.Unlock(key)
	return fn()
}
