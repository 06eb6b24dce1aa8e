package services

import "sync"

// SessionLocks serializes the mutating operations of each session within
// this process. The store's conditional updates and unique indexes remain
// the cross-process guard; this registry only keeps one process from
// interleaving its own writers.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the per-session mutex and returns its release function.
func (l *SessionLocks) Lock(sessionID string) func() {
	l.mu.Lock()
	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[sessionID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Forget drops the mutex of a session. Call it only after the session
// reached completed status or was deleted: late arrivals then recreate a
// fresh mutex and fail their status checks instead of racing.
func (l *SessionLocks) Forget(sessionID string) {
	l.mu.Lock()
	delete(l.locks, sessionID)
	l.mu.Unlock()
}
