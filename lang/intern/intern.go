// Package intern assigns small stable integer identities to strings. The
// compiler and the VM use interned ids for symbols, keywords, string
// constants and object property keys instead of comparing and hashing raw
// strings at every use site.
package intern

import "sync"

// ID is a non-zero interned string identity. The zero value denotes "no
// id" (e.g. an unresolved name).
type ID uint32

// Table interns strings to IDs and back. The zero Table is ready to use. A
// Table is safe for concurrent use, though the VM itself is single-
// threaded; the lock exists so an embedder may intern names from another
// goroutine while a program runs.
type Table struct {
	mu   sync.RWMutex
	ids  map[string]ID
	strs []string // strs[id-1] == the interned string for id
}

// Intern returns the id for s, assigning a new one if s was not seen
// before. The same string always maps to the same id for the lifetime of
// the Table.
func (t *Table) Intern(s string) ID {
	t.mu.RLock()
	if id, ok := t.ids[s]; ok {
		t.mu.RUnlock()
		return id
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.ids[s]; ok {
		return id
	}
	if t.ids == nil {
		t.ids = make(map[string]ID)
	}
	t.strs = append(t.strs, s)
	id := ID(len(t.strs))
	t.ids[s] = id
	return id
}

// InternStatic is a readability alias some call sites use when the string is
// a compile-time constant known to already be interned elsewhere; it behaves
// exactly like Intern, guaranteeing the same id for the same string.
func (t *Table) InternStatic(s string) ID { return t.Intern(s) }

// Get returns the string previously interned under id, or "" and false if id
// is zero or unknown to this Table.
func (t *Table) Get(id ID) (string, bool) {
	if id == 0 {
		return "", false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx := int(id) - 1
	if idx < 0 || idx >= len(t.strs) {
		return "", false
	}
	return t.strs[idx], true
}

// MustGet is like Get but panics if id is unknown; it is meant for call
// sites that hold an id known by construction to have been interned by the
// same Table (e.g. a compiler reading back one of its own constants).
func (t *Table) MustGet(id ID) string {
	s, ok := t.Get(id)
	if !ok {
		panic("intern: unknown id")
	}
	return s
}

// Len returns the number of distinct strings interned so far.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.strs)
}
