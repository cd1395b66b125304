// Copyright 2025 The SegC Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package scope provides layered namespaces for tracking where a name
// is bound during an IR traversal.
package scope

import (
	"fmt"
	"iter"
	"strings"

	"github.com/segc-org/segc/base/ordered"
)

// Scope maps names to values, with an optional parent consulted when a
// name is not bound locally. A pass opens a child scope when it enters
// a binding region and discards it on exit.
type Scope[V any] struct {
	parent *Scope[V]
	data   *ordered.Map[string, V]
}

// New returns a scope with the given parent. The parent may be nil.
func New[V any](parent *Scope[V]) *Scope[V] {
	return &Scope[V]{
		parent: parent,
		data:   ordered.NewMap[string, V](),
	}
}

// Define binds a name in this scope, shadowing any binding of the same
// name in a parent.
func (s *Scope[V]) Define(name string, v V) {
	s.data.Store(name, v)
}

// Find returns the value bound to a name, consulting parents outward.
func (s *Scope[V]) Find(name string) (V, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.data.Load(name); ok {
			return v, true
		}
	}
	var zero V
	return zero, false
}

// Has returns true if the name is bound in this scope or a parent.
func (s *Scope[V]) Has(name string) bool {
	_, ok := s.Find(name)
	return ok
}

// IsLocal returns true if the name is bound in this scope,
// not considering parents.
func (s *Scope[V]) IsLocal(name string) bool {
	return s.data.Has(name)
}

// LocalNames ranges over the names bound in this scope, in binding order,
// not considering parents.
func (s *Scope[V]) LocalNames() iter.Seq[string] {
	return s.data.Keys()
}

// Nest returns a new empty child of this scope.
func (s *Scope[V]) Nest() *Scope[V] {
	return New(s)
}

// String representation of the scope chain, innermost first.
func (s *Scope[V]) String() string {
	var b strings.Builder
	for sc := s; sc != nil; sc = sc.parent {
		for name, v := range sc.data.Iter() {
			fmt.Fprintf(&b, "%s: %v\n", name, v)
		}
		if sc.parent != nil {
			b.WriteString("--\n")
		}
	}
	return b.String()
}
