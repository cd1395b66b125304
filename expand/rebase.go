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

package expand

import (
	"github.com/gx-org/backend/dtype"

	"github.com/segc-org/segc/base/ordered"
	"github.com/segc-org/segc/kir"
	"github.com/segc-org/segc/kir/exp"
	"github.com/segc-org/segc/kir/layout"
)

// rebaseFn builds the new index function of a rehomed block, given the
// dense shape the old index function was anchored at and the element
// type of the value being addressed.
type rebaseFn func(oldBase []exp.Expr, elem dtype.DataType) (*layout.IndexFn, error)

// rewriter walks an allocation-free kernel body and replaces the index
// function of every binding anchored at a rehomed memory block. The
// rebase map is read-only and scoped to one kernel-expansion
// invocation. Blocks absent from the map are left untouched.
type rewriter struct {
	rebases *ordered.Map[string, rebaseFn]
}

func (r *rewriter) body(b *kir.Body) (*kir.Body, error) {
	stms := make([]*kir.Stmt, len(b.Stms))
	for i, s := range b.Stms {
		rs, err := r.stmt(s)
		if err != nil {
			return nil, err
		}
		stms[i] = rs
	}
	return &kir.Body{Stms: stms, Res: b.Res}, nil
}

func (r *rewriter) stmt(s *kir.Stmt) (*kir.Stmt, error) {
	// Names bound by the statement's own pattern are its context:
	// a binding whose type references one of them is existential and
	// stays unresolved.
	ctx := exp.NewNameSet()
	for _, e := range s.Pat {
		ctx.Add(e.Name)
	}
	pat, err := r.pattern(s.Pat, ctx)
	if err != nil {
		return nil, err
	}
	op, err := r.op(s.Op, ctx)
	if err != nil {
		return nil, err
	}
	return &kir.Stmt{Pat: pat, Op: op}, nil
}

func (r *rewriter) pattern(p kir.Pattern, ctx *exp.NameSet) (kir.Pattern, error) {
	out := make(kir.Pattern, len(p))
	for i, e := range p {
		ty, err := r.typ(e.Type, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = &kir.PatElem{Name: e.Name, Type: ty}
	}
	return out, nil
}

func (r *rewriter) params(params []*kir.Param) ([]*kir.Param, error) {
	ctx := exp.NewNameSet()
	for _, p := range params {
		ctx.Add(p.Name)
	}
	out := make([]*kir.Param, len(params))
	for i, p := range params {
		ty, err := r.typ(p.Type, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = &kir.Param{Name: p.Name, Type: ty}
	}
	return out, nil
}

func (r *rewriter) op(op kir.Op, ctx *exp.NameSet) (kir.Op, error) {
	switch op := op.(type) {
	case *kir.If:
		then, err := r.body(op.Then)
		if err != nil {
			return nil, err
		}
		els, err := r.body(op.Else)
		if err != nil {
			return nil, err
		}
		results := make([]kir.Type, len(op.Results))
		for i, res := range op.Results {
			rres, err := r.typ(res, ctx)
			if err != nil {
				return nil, err
			}
			results[i] = rres
		}
		return &kir.If{
			Cond:       op.Cond,
			Then:       then,
			Else:       els,
			Results:    results,
			Equivalent: op.Equivalent,
		}, nil
	case *kir.Loop:
		params, err := r.params(op.Params)
		if err != nil {
			return nil, err
		}
		body, err := r.body(op.Body)
		if err != nil {
			return nil, err
		}
		return &kir.Loop{
			Params: params,
			Init:   op.Init,
			IVar:   op.IVar,
			Bound:  op.Bound,
			Body:   body,
		}, nil
	case *kir.SegOp:
		ops := make([]*kir.SegBinOp, len(op.Ops))
		for i, o := range op.Ops {
			params, err := r.params(o.Op.Params)
			if err != nil {
				return nil, err
			}
			body, err := r.body(o.Op.Body)
			if err != nil {
				return nil, err
			}
			ops[i] = &kir.SegBinOp{
				Op:      &kir.Lambda{Params: params, Body: body},
				Neutral: o.Neutral,
			}
		}
		body, err := r.body(op.Body)
		if err != nil {
			return nil, err
		}
		return &kir.SegOp{
			Kind:  op.Kind,
			Level: op.Level,
			Grid:  op.Grid,
			Space: op.Space,
			Ops:   ops,
			Body:  body,
		}, nil
	}
	return op, nil
}

// typ rebases the index function of an array type anchored at a
// rehomed block. Context-dependent bindings and blocks absent from the
// rebase map are returned unchanged.
func (r *rewriter) typ(ty kir.Type, ctx *exp.NameSet) (kir.Type, error) {
	arr, ok := ty.(*kir.Array)
	if !ok || arr.Bind == nil || ctx.Has(arr.Bind.Mem) {
		return ty, nil
	}
	fn, ok := r.rebases.Load(arr.Bind.Mem)
	if !ok {
		return ty, nil
	}
	base, err := fn(arr.Bind.Fn.Base(), arr.Elem)
	if err != nil {
		return nil, err
	}
	rebased, err := layout.Rebase(base, arr.Bind.Fn)
	if err != nil {
		return nil, err
	}
	return &kir.Array{
		Elem:  arr.Elem,
		Shape: arr.Shape,
		Bind:  &kir.MemBind{Mem: arr.Bind.Mem, Fn: rebased},
	}, nil
}
