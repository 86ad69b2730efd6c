package engine

import "sync"

// Locks serialises game-state mutations per room. Player actions and
// deadline timers for the same room must never interleave, so every
// mutating operation acquires the room lock first.
type Locks struct {
	mu sync.Mutex
	m  map[int64]*sync.Mutex
}

// NewLocks returns an empty lock table.
func NewLocks() *Locks {
	return &Locks{m: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for roomID and returns its release func.
// Entries are kept for the process lifetime; the table stays small
// because room ids are only created by actual rooms.
func (l *Locks) Lock(roomID int64) func() {
	l.mu.Lock()
	m, ok := l.m[roomID]
	if !ok {
		m = &sync.Mutex{}
		l.m[roomID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
