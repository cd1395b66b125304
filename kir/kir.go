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

// Package kir is the kernel Intermediate Representation (IR) tree.
//
// The tree is the form programs take after kernel extraction: host-level
// statements interleaved with segmented operations, each describing a
// parallel computation over an iteration space. Array values carry
// explicit memory annotations: the name of the block backing them and a
// symbolic index function addressing into it.
package kir

import (
	"fmt"
	"strings"

	"github.com/gx-org/backend/dtype"
	"github.com/gx-org/backend/shape"

	"github.com/segc-org/segc/kir/exp"
	"github.com/segc-org/segc/kir/layout"
)

// Node is a node in the tree.
type Node interface {
	// node prevents implementations of the interface outside this package.
	node()

	// String representation of the node.
	String() string
}

// ----------------------------------------------------------------------------
// Memory spaces.

// Space tags where a memory block lives on the device.
type Space int

// Memory spaces of the target device.
const (
	// SpaceGlobal is device-global memory. Blocks in this space are
	// shared by all threads and may be hoisted out of kernels.
	SpaceGlobal Space = iota

	// SpaceShared is group-local memory. One instance exists per group
	// by construction.
	SpaceShared

	// SpaceScratch is register scratch. One instance exists per thread
	// by construction.
	SpaceScratch
)

var spaceStrings = map[Space]string{
	SpaceGlobal:  "global",
	SpaceShared:  "shared",
	SpaceScratch: "scratch",
}

// String representation of the space.
func (s Space) String() string {
	name, ok := spaceStrings[s]
	if !ok {
		return fmt.Sprintf("space(%d)", int(s))
	}
	return name
}

// Expandable returns true if allocations in this space may be hoisted
// out of a kernel and expanded into a shared buffer. Shared and scratch
// spaces already have one instance per group or thread and are never
// rewritten.
func (s Space) Expandable() bool {
	return s == SpaceGlobal
}

// ----------------------------------------------------------------------------
// Types.

type (
	// Type of a value.
	Type interface {
		Node

		// typ marks the implementation as a type.
		typ()
	}

	// Scalar is the type of a scalar value.
	Scalar struct {
		T dtype.DataType
	}

	// Mem is the type of a memory block.
	Mem struct {
		Space Space
	}

	// Array is the type of an array value. Bind describes the memory
	// backing the array; a nil Bind marks a memory-agnostic array, as
	// found in synthesized code before allocation insertion.
	Array struct {
		Elem  dtype.DataType
		Shape []exp.Expr
		Bind  *MemBind
	}

	// MemBind anchors an array to a named memory block through an
	// index function.
	MemBind struct {
		Mem string
		Fn  *layout.IndexFn
	}
)

func (*Scalar) node() {}
func (*Mem) node()    {}
func (*Array) node()  {}

func (*Scalar) typ() {}
func (*Mem) typ()    {}
func (*Array) typ()  {}

// String representation of the scalar type.
func (t *Scalar) String() string {
	return t.T.String()
}

// String representation of the memory type.
func (t *Mem) String() string {
	return fmt.Sprintf("mem@%s", t.Space)
}

// String representation of the array type.
func (t *Array) String() string {
	dims := make([]string, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = fmt.Sprintf("[%s]", d)
	}
	s := fmt.Sprintf("%s%s", strings.Join(dims, ""), t.Elem)
	if t.Bind != nil {
		s = fmt.Sprintf("%s@%s->%s", s, t.Bind.Mem, t.Bind.Fn)
	}
	return s
}

// Concrete evaluates the array's axis lengths under the given
// environment and returns the concrete shape.
func (t *Array) Concrete(env map[string]int64) (*shape.Shape, error) {
	lens := make([]int, len(t.Shape))
	for i, d := range t.Shape {
		v, err := exp.Eval(d, env)
		if err != nil {
			return nil, err
		}
		lens[i] = int(v)
	}
	return &shape.Shape{DType: t.Elem, AxisLengths: lens}, nil
}

// ----------------------------------------------------------------------------
// Patterns and parameters.

type (
	// PatElem binds one name produced by a statement.
	PatElem struct {
		Name string
		Type Type
	}

	// Pattern is the list of names bound by a statement.
	Pattern []*PatElem

	// Param is a function, lambda or loop parameter.
	Param struct {
		Name string
		Type Type
	}
)

func (*PatElem) node() {}
func (*Param) node()   {}

// String representation of the pattern element.
func (p *PatElem) String() string {
	return fmt.Sprintf("%s: %s", p.Name, p.Type)
}

// String representation of the pattern.
func (p Pattern) String() string {
	elems := make([]string, len(p))
	for i, e := range p {
		elems[i] = e.String()
	}
	return strings.Join(elems, ", ")
}

// Elem returns the pattern element binding the given name.
func (p Pattern) Elem(name string) *PatElem {
	for _, e := range p {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// String representation of the parameter.
func (p *Param) String() string {
	return fmt.Sprintf("%s: %s", p.Name, p.Type)
}
