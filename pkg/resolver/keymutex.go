package resolver

import "sync"

// keyMutex hands out a *sync.Mutex per string key, lazily created and never
// removed — the key space (user, thread_id) is bounded by active mailboxes,
// matching the teacher's sync.Map-based per-key caching in pkg/usecase/auth_cache.go.
type keyMutex struct {
	locks sync.Map // string -> *sync.Mutex
}

func (k *keyMutex) Lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
