package workflow

import (
	"fmt"
	"strings"
	"sync"
)

// KeyedMutex serialises work per key. Entries are reference counted and
// removed once the last holder or waiter releases them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock func.
// Calling unlock more than once panics.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		released := false
		once.Do(func() {
			released = true
			l.mu.Unlock()

			k.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
		if !released {
			panic("workflow: unlock of unlocked key " + key)
		}
	}
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func ConsultationKey(id int64) string  { return fmt.Sprintf("consultation:%d", id) }
func DesignRequestKey(id int64) string { return fmt.Sprintf("design_request:%d", id) }
func DesignKey(id int64) string        { return fmt.Sprintf("design:%d", id) }
func ProjectKey(id int64) string       { return fmt.Sprintf("project:%d", id) }
func UserKey(id int64) string          { return fmt.Sprintf("user:%d", id) }

// keyEntity returns the entity prefix of a lock key, used as a metric label.
func keyEntity(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
