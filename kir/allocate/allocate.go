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

// Package allocate inserts allocation statements.
//
// Synthesized kernels are built memory-agnostic: their array bindings
// carry no memory annotation. This pass gives every such binding a
// fresh memory block, allocated right before the binding statement and
// addressed densely.
package allocate

import (
	"github.com/gx-org/backend/dtype"

	"github.com/segc-org/segc/base/uname"
	"github.com/segc-org/segc/kir"
	"github.com/segc-org/segc/kir/exp"
	"github.com/segc-org/segc/kir/layout"
)

// Insert returns the statements with an allocation statement inserted
// before every binding of a memory-agnostic array, recursing into
// nested bodies. Statements already carrying memory annotations are
// returned unchanged.
func Insert(stms []*kir.Stmt, names *uname.Unique) []*kir.Stmt {
	var out []*kir.Stmt
	for _, s := range stms {
		pat := s.Pat
		var rebound kir.Pattern
		for i, e := range s.Pat {
			arr, ok := e.Type.(*kir.Array)
			if !ok || arr.Bind != nil {
				continue
			}
			if rebound == nil {
				rebound = append(kir.Pattern{}, s.Pat...)
			}
			mem := names.Fresh(e.Name + "_mem")
			out = append(out, &kir.Stmt{
				Pat: kir.Pattern{{Name: mem, Type: &kir.Mem{Space: kir.SpaceGlobal}}},
				Op:  &kir.Alloc{Size: byteSize(arr), Space: kir.SpaceGlobal},
			})
			rebound[i] = &kir.PatElem{Name: e.Name, Type: &kir.Array{
				Elem:  arr.Elem,
				Shape: arr.Shape,
				Bind:  &kir.MemBind{Mem: mem, Fn: layout.Iota(arr.Shape)},
			}}
		}
		if rebound != nil {
			pat = rebound
		}
		out = append(out, &kir.Stmt{Pat: pat, Op: insertOp(s.Op, names)})
	}
	return out
}

func insertOp(op kir.Op, names *uname.Unique) kir.Op {
	switch op := op.(type) {
	case *kir.If:
		return &kir.If{
			Cond:       op.Cond,
			Then:       insertBody(op.Then, names),
			Else:       insertBody(op.Else, names),
			Results:    op.Results,
			Equivalent: op.Equivalent,
		}
	case *kir.Loop:
		return &kir.Loop{
			Params: op.Params,
			Init:   op.Init,
			IVar:   op.IVar,
			Bound:  op.Bound,
			Body:   insertBody(op.Body, names),
		}
	case *kir.SegOp:
		ops := make([]*kir.SegBinOp, len(op.Ops))
		for i, o := range op.Ops {
			ops[i] = &kir.SegBinOp{
				Op:      &kir.Lambda{Params: o.Op.Params, Body: insertBody(o.Op.Body, names)},
				Neutral: o.Neutral,
			}
		}
		return &kir.SegOp{
			Kind:  op.Kind,
			Level: op.Level,
			Grid:  op.Grid,
			Space: op.Space,
			Ops:   ops,
			Body:  insertBody(op.Body, names),
		}
	}
	return op
}

func insertBody(b *kir.Body, names *uname.Unique) *kir.Body {
	return &kir.Body{Stms: Insert(b.Stms, names), Res: b.Res}
}

// byteSize returns the expression for the number of bytes covered by a
// densely laid out array.
func byteSize(arr *kir.Array) exp.Expr {
	size := exp.Expr(exp.I64(int64(dtype.Sizeof(arr.Elem))))
	for _, d := range arr.Shape {
		size = exp.NewMul(size, d)
	}
	return size
}
