package extension

import "sync"

// Store is a type-keyed heterogeneous container holding at most one value
// per data type. Every span and every trace carries one. Reads run in
// parallel, writers are exclusive.
type Store struct {
	mu    sync.RWMutex
	items map[any]any
}

func NewStore() *Store {
	return &Store{}
}

// key is a zero-size marker whose type identity keys the slot for T.
type key[T any] struct{}

// Insert stores value, overwriting any existing value of type T.
func Insert[T any](s *Store, value T) {
	s.mu.Lock()
	if s.items == nil {
		s.items = make(map[any]any)
	}
	s.items[key[T]{}] = value
	s.mu.Unlock()
}

// Get returns the stored value of type T, if any.
func Get[T any](s *Store) (T, bool) {
	s.mu.RLock()
	v, ok := s.items[key[T]{}]
	s.mu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// GetOrInsert returns the stored value of type T, creating it first if the
// slot is empty. Creation happens at most once even when callers race.
func GetOrInsert[T any](s *Store, create func() T) T {
	s.mu.RLock()
	v, ok := s.items[key[T]{}]
	s.mu.RUnlock()
	if ok {
		return v.(T)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items == nil {
		s.items = make(map[any]any)
	}
	if v, ok := s.items[key[T]{}]; ok {
		return v.(T)
	}
	nv := create()
	s.items[key[T]{}] = nv
	return nv
}

// Remove takes the stored value of type T out of the store and deletes the
// slot, transferring ownership to the caller.
func Remove[T any](s *Store) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key[T]{}]
	if !ok {
		var zero T
		return zero, false
	}
	delete(s.items, key[T]{})
	return v.(T), true
}
