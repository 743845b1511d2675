package shared

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// LoanLockKey builds the critical-section key for one loan. Apply and
// reverse are not commutative, so writes to a loan must never interleave.
func LoanLockKey(loanID uuid.UUID) string {
	return fmt.Sprintf("lending:loan:%s:lock", loanID)
}

// KeyedMutex serializes work per key. Locks are created on first use and
// kept for the process lifetime; the key space is bounded by the number of
// loans a single instance touches.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedMutex builds an empty lock set.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it if needed.
func (k *KeyedMutex) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
}

// Unlock releases the mutex for key.
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	k.mu.Unlock()
	if ok {
		m.Unlock()
	}
}
