package store

import "sync"

// keyedMutex hands out one mutex per key so same-key read-modify-writes
// serialize without a global lock. Entries live for the process lifetime;
// the keyspace is bounded by the active user population.
type keyedMutex struct {
	mu sync.Map // key -> *sync.Mutex
}

// lock acquires the mutex for key and returns the release
func (k *keyedMutex) lock(key string) func() {
	v, _ := k.mu.LoadOrStore(key, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
