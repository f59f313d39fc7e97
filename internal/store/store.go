// Package store implements the process-wide reactive key/value state shared
// by every component of the client. All mutable state flows through Set, and
// rendering collaborators observe it through Subscribe; no component hands
// out references to state that can be mutated behind the store's back.
package store

import (
	"reflect"
	"sync"
)

// Subscriber receives the new and previous value of a key after a Set.
type Subscriber func(value, previous any)

// Unsubscribe removes a previously registered subscriber. Calling it more
// than once is harmless.
type Unsubscribe func()

type subscription struct {
	fn      Subscriber
	removed bool
}

type entry struct {
	value any
	set   bool
	subs  []*subscription
}

// Store maps named keys to arbitrary values with per-key subscriber lists.
// Set replaces a key's value and synchronously notifies subscribers of that
// key, in registration order. Values must be replaced, never mutated in
// place: structural updates (appending to a history slice, for example) have
// to build a new value and call Set, or subscribers will not fire.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty store.
func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Get returns the current value of key, or nil if it was never set.
func (s *Store) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		return e.value
	}
	return nil
}

// GetBool returns the value of key as a bool, false if unset or not a bool.
func (s *Store) GetBool(key string) bool {
	v, _ := s.Get(key).(bool)
	return v
}

// GetString returns the value of key as a string, "" if unset.
func (s *Store) GetString(key string) string {
	v, _ := s.Get(key).(string)
	return v
}

// Set replaces the value of key and synchronously invokes every subscriber
// registered for that key with the new and previous value. Setting a value
// that is identical (same reference, or the same primitive value) to the
// current one skips notification; a structurally new value always notifies,
// even if it is deep-equal, because intent is expressed by calling Set.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	if e.set && identical(e.value, value) {
		s.mu.Unlock()
		return
	}
	previous := e.value
	e.value = value
	e.set = true

	// Snapshot the list so subscribers can subscribe/unsubscribe reentrantly.
	subs := make([]*subscription, len(e.subs))
	copy(subs, e.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.removed {
			continue
		}
		sub.fn(value, previous)
	}
}

// Subscribe registers fn for key and returns an unsubscribe handle.
// Subscribing to a key that never gets set is valid; fn simply never fires.
func (s *Store) Subscribe(key string, fn Subscriber) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	sub := &subscription{fn: fn}
	e.subs = append(e.subs, sub)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		sub.removed = true
		for i, candidate := range e.subs {
			if candidate == sub {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				break
			}
		}
	}
}

// identical reports whether old and new are the same value in the
// reference-equality sense: the same backing pointer for slices, maps,
// funcs, pointers and channels, or the same primitive value. Structs and
// other composites are never considered identical even when deep-equal; a
// freshly built value expresses intent to notify.
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	switch ta.Kind() {
	case reflect.Slice:
		va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	case reflect.Map, reflect.Func, reflect.Chan, reflect.Pointer, reflect.UnsafePointer:
		return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return a == b
	}
	return false
}
