package service

import "sync"

// VentureLocks is a keyed mutex shared by the services that touch a venture's
// live state and version history. Entries are dropped once no goroutine holds
// or waits on them.
type VentureLocks struct {
	mu    sync.Mutex
	locks map[string]*ventureLock
}

type ventureLock struct {
	mu   sync.Mutex
	refs int
}

func NewVentureLocks() *VentureLocks {
	return &VentureLocks{locks: make(map[string]*ventureLock)}
}

// lock blocks until the caller owns ventureID and returns its release func.
func (l *VentureLocks) lock(ventureID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[ventureID]
	if !ok {
		entry = &ventureLock{}
		l.locks[ventureID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, ventureID)
		}
		l.mu.Unlock()
	}
}

func (l *VentureLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
