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

package kir

import "github.com/segc-org/segc/kir/exp"

// Refs adds all the names a node references to a set: names in
// expressions, memory blocks anchoring array types, and names in index
// functions. Names bound in nested bodies are not subtracted; callers
// slicing statements by dependency keep the binding statements in the
// slice, so the over-approximation is harmless.
func Refs(n Node, into *exp.NameSet) {
	switch n := n.(type) {
	case *Scalar, *Mem:
	case *Array:
		for _, d := range n.Shape {
			exp.FreeNames(d, into)
		}
		if n.Bind != nil {
			into.Add(n.Bind.Mem)
			n.Bind.Fn.FreeNames(into)
		}
	case *PatElem:
		Refs(n.Type, into)
	case *Param:
		Refs(n.Type, into)
	case *ExpOp:
		exp.FreeNames(n.E, into)
	case *Apply:
		for _, a := range n.Args {
			exp.FreeNames(a, into)
		}
	case *Alloc:
		exp.FreeNames(n.Size, into)
	case *If:
		exp.FreeNames(n.Cond, into)
		Refs(n.Then, into)
		Refs(n.Else, into)
		for _, t := range n.Results {
			Refs(t, into)
		}
	case *Loop:
		for _, p := range n.Params {
			Refs(p, into)
		}
		for _, init := range n.Init {
			exp.FreeNames(init, into)
		}
		exp.FreeNames(n.Bound, into)
		Refs(n.Body, into)
	case *SegOp:
		exp.FreeNames(n.Grid.NumGroups, into)
		exp.FreeNames(n.Grid.GroupSize, into)
		for _, d := range n.Space.Dims {
			exp.FreeNames(d.Size, into)
		}
		for _, op := range n.Ops {
			Refs(op.Op, into)
			for _, ne := range op.Neutral {
				exp.FreeNames(ne, into)
			}
		}
		Refs(n.Body, into)
	case *Lambda:
		for _, p := range n.Params {
			Refs(p, into)
		}
		Refs(n.Body, into)
	case *Stmt:
		for _, e := range n.Pat {
			Refs(e.Type, into)
		}
		Refs(n.Op, into)
	case *Body:
		for _, s := range n.Stms {
			Refs(s, into)
		}
		for _, r := range n.Res {
			exp.FreeNames(r, into)
		}
	}
}

// Bound adds to a set every name bound anywhere within a body: pattern
// names, loop parameters and indices, iteration-space dimensions and
// flat identifiers, and lambda parameters, recursing into all nested
// bodies.
func Bound(b *Body, into *exp.NameSet) {
	for _, s := range b.Stms {
		for _, e := range s.Pat {
			into.Add(e.Name)
		}
		boundOp(s.Op, into)
	}
}

// ProgramNames returns every name bound anywhere in the program. The
// compilation driver registers them with its name generator so that
// generated names never collide with source names.
func ProgramNames(p *Program) *exp.NameSet {
	names := exp.NewNameSet()
	for _, f := range p.Funs {
		for _, param := range f.Params {
			names.Add(param.Name)
		}
		Bound(f.Body, names)
	}
	return names
}

func boundOp(op Op, into *exp.NameSet) {
	switch op := op.(type) {
	case *If:
		Bound(op.Then, into)
		Bound(op.Else, into)
	case *Loop:
		for _, p := range op.Params {
			into.Add(p.Name)
		}
		into.Add(op.IVar)
		Bound(op.Body, into)
	case *SegOp:
		for _, d := range op.Space.Dims {
			into.Add(d.VName)
		}
		into.Add(op.Space.Flat)
		for _, o := range op.Ops {
			for _, p := range o.Op.Params {
				into.Add(p.Name)
			}
			Bound(o.Op.Body, into)
		}
		Bound(op.Body, into)
	}
}
