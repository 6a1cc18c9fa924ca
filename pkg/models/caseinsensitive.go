package models

import (
	"encoding/json"
	"sort"
	"strings"
)

// CaseInsensitiveMap is a string-keyed map whose lookups, insertions and
// deletions treat keys case-insensitively while preserving the casing of the
// first key used to set a given entry. Session vars, artifacts, metadata and
// the executionId index are all keyed this way.
type CaseInsensitiveMap[V any] struct {
	entries map[string]entry[V]
}

type entry[V any] struct {
	key   string
	value V
}

// NewCaseInsensitiveMap returns an empty map ready for use.
func NewCaseInsensitiveMap[V any]() CaseInsensitiveMap[V] {
	return CaseInsensitiveMap[V]{entries: make(map[string]entry[V])}
}

func foldKey(key string) string {
	return strings.ToLower(key)
}

// Get returns the value for key and whether it was present.
func (m CaseInsensitiveMap[V]) Get(key string) (V, bool) {
	var zero V
	if m.entries == nil {
		return zero, false
	}
	e, ok := m.entries[foldKey(key)]
	if !ok {
		return zero, false
	}
	return e.value, true
}

// Set inserts or overwrites key. The casing of a pre-existing key is kept;
// the casing of a brand new key is taken from this call.
func (m *CaseInsensitiveMap[V]) Set(key string, value V) {
	if m.entries == nil {
		m.entries = make(map[string]entry[V])
	}
	fk := foldKey(key)
	if existing, ok := m.entries[fk]; ok {
		m.entries[fk] = entry[V]{key: existing.key, value: value}
		return
	}
	m.entries[fk] = entry[V]{key: key, value: value}
}

// Delete removes key, if present.
func (m *CaseInsensitiveMap[V]) Delete(key string) {
	if m.entries == nil {
		return
	}
	delete(m.entries, foldKey(key))
}

// Has reports whether key is present.
func (m CaseInsensitiveMap[V]) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Len returns the number of entries.
func (m CaseInsensitiveMap[V]) Len() int {
	return len(m.entries)
}

// Keys returns the original-cased keys in insertion-undefined (map) order.
func (m CaseInsensitiveMap[V]) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		keys = append(keys, e.key)
	}
	return keys
}

// SortedKeys returns Keys sorted ordinally, useful for deterministic output.
func (m CaseInsensitiveMap[V]) SortedKeys() []string {
	keys := m.Keys()
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy; V values are copied by assignment, so callers
// holding reference types (maps, slices, pointers) as V must clone those
// separately if mutation isolation is required.
func (m CaseInsensitiveMap[V]) Clone() CaseInsensitiveMap[V] {
	out := NewCaseInsensitiveMap[V]()
	for fk, e := range m.entries {
		out.entries[fk] = e
	}
	return out
}

// Range calls fn for every entry in unspecified order; fn returning false
// stops iteration early.
func (m CaseInsensitiveMap[V]) Range(fn func(key string, value V) bool) {
	for _, e := range m.entries {
		if !fn(e.key, e.value) {
			return
		}
	}
}

func (m CaseInsensitiveMap[V]) MarshalJSON() ([]byte, error) {
	plain := make(map[string]V, len(m.entries))
	for _, e := range m.entries {
		plain[e.key] = e.value
	}
	return json.Marshal(plain)
}

func (m *CaseInsensitiveMap[V]) UnmarshalJSON(data []byte) error {
	var plain map[string]V
	if err := json.Unmarshal(data, &plain); err != nil {
		return err
	}
	m.entries = make(map[string]entry[V], len(plain))
	for k, v := range plain {
		m.entries[foldKey(k)] = entry[V]{key: k, value: v}
	}
	return nil
}
