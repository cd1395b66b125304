// Package ordered provides ordered data structures.
package ordered

import "iter"

// Map is a map whose iteration order is the order in which keys were
// first stored. Passes key their maps by memory-block or variable name;
// iterating in insertion order keeps the output of a pass deterministic.
type Map[K comparable, V any] struct {
	keys []K
	vals map[K]V
}

// NewMap returns an empty ordered map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{vals: make(map[K]V)}
}

// Store associates a value with a key. Storing an existing key
// overwrites its value but keeps its original position.
func (m *Map[K, V]) Store(k K, v V) {
	if _, in := m.vals[k]; !in {
		m.keys = append(m.keys, k)
	}
	m.vals[k] = v
}

// Load returns the value associated with a key.
func (m *Map[K, V]) Load(k K) (V, bool) {
	v, ok := m.vals[k]
	return v, ok
}

// Has returns true if the key has been stored.
func (m *Map[K, V]) Has(k K) bool {
	_, ok := m.vals[k]
	return ok
}

// Iter ranges over key,value pairs in insertion order.
func (m *Map[K, V]) Iter() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, k := range m.keys {
			if !yield(k, m.vals[k]) {
				return
			}
		}
	}
}

// Keys ranges over the keys in insertion order.
func (m *Map[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for _, k := range m.keys {
			if !yield(k) {
				return
			}
		}
	}
}

// Values ranges over the values in insertion order.
func (m *Map[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, k := range m.keys {
			if !yield(m.vals[k]) {
				return
			}
		}
	}
}

// Merge stores all the pairs of src, keeping src's insertion order
// for keys not already present.
func (m *Map[K, V]) Merge(src *Map[K, V]) {
	for k, v := range src.Iter() {
		m.Store(k, v)
	}
}

// Clone returns a shallow copy of the map.
func (m *Map[K, V]) Clone() *Map[K, V] {
	r := NewMap[K, V]()
	r.Merge(m)
	return r
}

// Size returns the number of stored keys.
func (m *Map[K, V]) Size() int {
	return len(m.keys)
}

// Empty returns true if nothing has been stored.
func (m *Map[K, V]) Empty() bool {
	return len(m.keys) == 0
}
