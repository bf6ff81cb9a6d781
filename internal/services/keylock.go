// Package services – per-assignment mutual exclusion.
//
// Concurrent transitions on the same assignment must be linearized so two
// reminder requests cannot both pass the eligibility check. The database
// version check is the cross-process guard; this keyed mutex is the
// in-process one, keeping only one operation in flight per assignment id so
// version conflicts stay rare. Entries are reference counted and removed as
// soon as the last holder releases, so the map does not grow with the number
// of assignments ever touched.
package services

import "sync"

// keyedMutex provides a mutex per string key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the mutex for key, blocking while another goroutine holds
// it, and returns the matching unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
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
