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
	"github.com/pkg/errors"

	"github.com/segc-org/segc/base/ordered"
	"github.com/segc-org/segc/kir"
	"github.com/segc-org/segc/kir/exp"
)

// allocInfo records one extracted allocation: its per-thread size
// expression and the space the block lives in.
type allocInfo struct {
	size  exp.Expr
	space kir.Space
}

// extract returns the body with every eligible allocation statement
// removed, at any nesting depth: nested bodies, branch arms, loop
// bodies and nested segmented operations all contribute to the same
// map. An allocation is eligible if its space is expandable and every
// name its size references is bound, either outside the kernel (the
// transformer's host scope) or inside it. The extractor emits no new
// statements.
func (t *transformer) extract(inside *exp.NameSet, b *kir.Body, into *ordered.Map[string, allocInfo]) (*kir.Body, error) {
	var stms []*kir.Stmt
	for _, s := range b.Stms {
		switch op := s.Op.(type) {
		case *kir.Alloc:
			if !op.Space.Expandable() || !t.sizeBound(op.Size, inside) {
				stms = append(stms, s)
				continue
			}
			if len(s.Pat) != 1 {
				return nil, errors.Errorf("allocation binds %d names but want 1: %s", len(s.Pat), s)
			}
			into.Store(s.Pat[0].Name, allocInfo{size: op.Size, space: op.Space})
		case *kir.If:
			for _, res := range op.Results {
				mem, ok := res.(*kir.Mem)
				if !ok || !mem.Space.Expandable() {
					continue
				}
				return nil, errorf(ExistentialMemory, "conditional returns a context memory block in space %s", mem.Space)
			}
			then, err := t.extract(inside, op.Then, into)
			if err != nil {
				return nil, err
			}
			els, err := t.extract(inside, op.Else, into)
			if err != nil {
				return nil, err
			}
			stms = append(stms, &kir.Stmt{Pat: s.Pat, Op: &kir.If{
				Cond:       op.Cond,
				Then:       then,
				Else:       els,
				Results:    op.Results,
				Equivalent: op.Equivalent,
			}})
		case *kir.Loop:
			body, err := t.extract(inside, op.Body, into)
			if err != nil {
				return nil, err
			}
			stms = append(stms, &kir.Stmt{Pat: s.Pat, Op: &kir.Loop{
				Params: op.Params,
				Init:   op.Init,
				IVar:   op.IVar,
				Bound:  op.Bound,
				Body:   body,
			}})
		case *kir.SegOp:
			body, err := t.extract(inside, op.Body, into)
			if err != nil {
				return nil, err
			}
			ops := make([]*kir.SegBinOp, len(op.Ops))
			for i, o := range op.Ops {
				lbody, err := t.extract(inside, o.Op.Body, into)
				if err != nil {
					return nil, err
				}
				ops[i] = &kir.SegBinOp{
					Op:      &kir.Lambda{Params: o.Op.Params, Body: lbody},
					Neutral: o.Neutral,
				}
			}
			stms = append(stms, &kir.Stmt{Pat: s.Pat, Op: &kir.SegOp{
				Kind:  op.Kind,
				Level: op.Level,
				Grid:  op.Grid,
				Space: op.Space,
				Ops:   ops,
				Body:  body,
			}})
		default:
			stms = append(stms, s)
		}
	}
	return &kir.Body{Stms: stms, Res: b.Res}, nil
}

// sizeBound returns true if every name the size expression references
// is bound, outside or inside the kernel region.
func (t *transformer) sizeBound(size exp.Expr, inside *exp.NameSet) bool {
	free := exp.NewNameSet()
	exp.FreeNames(size, free)
	for name := range free.Names() {
		if !inside.Has(name) && !t.scope.Has(name) {
			return false
		}
	}
	return true
}

// variantSize returns true if the size expression of an allocation
// references a name bound inside the kernel region.
func variantSize(info allocInfo, inside *exp.NameSet) bool {
	free := exp.NewNameSet()
	exp.FreeNames(info.size, free)
	return free.Intersects(inside)
}
