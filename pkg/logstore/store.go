// Package logstore holds decoded events in memory, newest first.
//
// A Store is created once by the host and passed explicitly to the
// bridge listener (writer) and to viewing surfaces (readers). Nothing
// is persisted; the contents live as long as the Store does.
package logstore

import (
	"sync"

	"github.com/modoterra/uxhost/pkg/core"
)

// ChangeKind identifies what happened to the store.
type ChangeKind string

const (
	ChangeAppend ChangeKind = "append"
	ChangeClear  ChangeKind = "clear"
)

// Change is delivered to subscribers after each mutation.
type Change struct {
	Kind ChangeKind `json:"kind"`
	Len  int        `json:"len"`
}

// Store is an append-only, newest-first event log safe for concurrent use.
type Store struct {
	mu sync.Mutex
	// entries is kept in insertion order; Snapshot reverses it.
	entries []core.Event
	subs    []chan Change
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Append records a copy of ev as the newest entry.
func (s *Store) Append(ev core.Event) {
	ev = ev.Clone()
	s.mu.Lock()
	s.entries = append(s.entries, ev)
	s.notify(Change{Kind: ChangeAppend, Len: len(s.entries)})
	s.mu.Unlock()
}

// Snapshot returns deep copies of the entries, newest first. Later
// appends and clears do not affect the returned slice, and changes to
// it do not reach the store.
func (s *Store) Snapshot() []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Event, len(s.entries))
	for i, ev := range s.entries {
		out[len(s.entries)-1-i] = ev.Clone()
	}
	return out
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear removes every entry. Clearing an empty store is a no-op apart
// from notifying subscribers.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.notify(Change{Kind: ChangeClear})
	s.mu.Unlock()
}

// Subscribe returns a channel that receives a Change after every
// mutation, and a function that cancels the subscription. Slow
// subscribers miss changes rather than blocking writers.
func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 16)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub == ch {
					s.subs = append(s.subs[:i], s.subs[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}

// notify must be called with s.mu held.
func (s *Store) notify(c Change) {
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
