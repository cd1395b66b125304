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

package exp

import (
	"iter"

	"github.com/segc-org/segc/base/ordered"
)

// NameSet is a set of names preserving insertion order.
type NameSet struct {
	names *ordered.Map[string, struct{}]
}

// NewNameSet returns a set holding the given names.
func NewNameSet(names ...string) *NameSet {
	s := &NameSet{names: ordered.NewMap[string, struct{}]()}
	for _, name := range names {
		s.Add(name)
	}
	return s
}

// Add a name to the set.
func (s *NameSet) Add(name string) {
	s.names.Store(name, struct{}{})
}

// Has returns true if the name is in the set.
func (s *NameSet) Has(name string) bool {
	return s.names.Has(name)
}

// Names ranges over the set in insertion order.
func (s *NameSet) Names() iter.Seq[string] {
	return s.names.Keys()
}

// Size returns the number of names in the set.
func (s *NameSet) Size() int {
	return s.names.Size()
}

// Intersects returns true if the two sets share a name.
func (s *NameSet) Intersects(o *NameSet) bool {
	for name := range s.Names() {
		if o.Has(name) {
			return true
		}
	}
	return false
}

// FreeNames appends the names referenced by an expression to a set,
// preserving first-reference order.
func FreeNames(x Expr, into *NameSet) {
	switch x := x.(type) {
	case *Var:
		into.Add(x.Name)
	case *BinOp:
		FreeNames(x.X, into)
		FreeNames(x.Y, into)
	case *Convert:
		FreeNames(x.X, into)
	}
}

// Subst replaces free names in an expression according to the given
// substitution. Expressions are immutable: nodes are rebuilt only along
// paths where a replacement applies.
func Subst(x Expr, sub map[string]Expr) Expr {
	switch x := x.(type) {
	case *Var:
		if r, ok := sub[x.Name]; ok {
			return r
		}
	case *BinOp:
		nx, ny := Subst(x.X, sub), Subst(x.Y, sub)
		if nx != x.X || ny != x.Y {
			return &BinOp{Op: x.Op, X: nx, Y: ny}
		}
	case *Convert:
		nx := Subst(x.X, sub)
		if nx != x.X {
			return &Convert{X: nx, To: x.To, Signed: x.Signed}
		}
	}
	return x
}
