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
	"github.com/segc-org/segc/kir/allocate"
	"github.com/segc-org/segc/kir/exp"
	"github.com/segc-org/segc/kir/layout"
	"github.com/segc-org/segc/kir/simplify"
)

// variantGroup gathers the memory blocks sharing one size expression.
type variantGroup struct {
	size exp.Expr
	mems []variantMem
}

type variantMem struct {
	name  string
	space kir.Space
}

// expandVariant hoists allocations whose size depends on values
// computed inside the kernel. Blocks are grouped by structurally
// identical size expression; a synthesized reduction kernel computes
// each group's maximum per-thread size over the kernel's flattened
// iteration space, and every thread is granted a slice sized for that
// maximum. The total is therefore max * num_threads, a deliberate
// over-allocation keeping every thread's slice identically sized.
func (t *transformer) expandVariant(allocs *ordered.Map[string, allocInfo], kernel *kir.Body, ops []*kir.SegBinOp, op *kir.SegOp, cs coords) ([]*kir.Stmt, *ordered.Map[string, rebaseFn], error) {
	rebases := ordered.NewMap[string, rebaseFn]()
	if allocs.Empty() {
		return nil, rebases, nil
	}
	groups := ordered.NewMap[string, *variantGroup]()
	for mem, info := range allocs.Iter() {
		key := exp.Key(info.size)
		g, ok := groups.Load(key)
		if !ok {
			g = &variantGroup{size: info.size}
			groups.Store(key, g)
		}
		g.mems = append(g.mems, variantMem{name: mem, space: info.space})
	}

	maxStms, maxNames, err := t.maxSizeKernel(groups, kernel, ops, op)
	if err != nil {
		return nil, nil, err
	}
	stms := maxStms
	i := 0
	for _, g := range groups.Iter() {
		maxSize := exp.V(maxNames[i])
		i++
		total := t.names.Fresh("total_size")
		stms = append(stms, &kir.Stmt{
			Pat: kir.Pattern{{Name: total, Type: &kir.Scalar{T: dtype.Int64}}},
			Op:  &kir.ExpOp{E: exp.NewMul(maxSize, cs.count)},
		})
		for _, mem := range g.mems {
			stms = append(stms, &kir.Stmt{
				Pat: kir.Pattern{{Name: mem.name, Type: &kir.Mem{Space: mem.space}}},
				Op:  &kir.Alloc{Size: exp.V(total), Space: mem.space},
			})
			rebases.Store(mem.name, variantRebase(cs, maxSize))
		}
	}
	return stms, rebases, nil
}

// maxSizeKernel synthesizes one one-dimensional parallel reduction
// computing, for every group, the maximum per-thread size over the
// flattened iteration space of the original kernel. Size computations
// are sliced out of the kernel's main body and its combining-operator
// bodies alike. The synthesized statements are simplified, given
// concrete allocations for any remaining scratch needs, and then
// expanded through the same machinery as ordinary kernels.
func (t *transformer) maxSizeKernel(groups *ordered.Map[string, *variantGroup], kernel *kir.Body, ops []*kir.SegBinOp, op *kir.SegOp) ([]*kir.Stmt, []string, error) {
	var sizes []exp.Expr
	for _, g := range groups.Iter() {
		sizes = append(sizes, g.size)
	}
	var src []*kir.Stmt
	src = append(src, kernel.Stms...)
	for _, o := range ops {
		src = append(src, o.Op.Body.Stms...)
	}
	sliced, err := t.sizeSlice(src, sizes, op.Space)
	if err != nil {
		return nil, nil, err
	}

	flat := t.names.Fresh("flat_size_idx")
	body := &kir.Body{
		Stms: append(t.delinearize(flat, op.Space), sliced...),
		Res:  sizes,
	}
	body = simplify.Body(body)

	maxNames := make([]string, 0, groups.Size())
	var pat kir.Pattern
	var params []*kir.Param
	var combine []exp.Expr
	var neutral []exp.Expr
	xs := make([]*kir.Param, groups.Size())
	ys := make([]*kir.Param, groups.Size())
	for i := range groups.Size() {
		name := t.names.Fresh("max_per_thread")
		maxNames = append(maxNames, name)
		pat = append(pat, &kir.PatElem{Name: name, Type: &kir.Scalar{T: dtype.Int64}})
		xs[i] = &kir.Param{Name: t.names.Fresh("x"), Type: &kir.Scalar{T: dtype.Int64}}
		ys[i] = &kir.Param{Name: t.names.Fresh("y"), Type: &kir.Scalar{T: dtype.Int64}}
		combine = append(combine, exp.NewMax(exp.V(xs[i].Name), exp.V(ys[i].Name)))
		neutral = append(neutral, exp.I64(0))
	}
	params = append(params, xs...)
	params = append(params, ys...)

	red := &kir.Stmt{
		Pat: pat,
		Op: &kir.SegOp{
			Kind:  kir.SegRed,
			Level: kir.LevelThread,
			Grid:  op.Grid,
			Space: kir.SegSpace{
				Dims: []kir.SegDim{{VName: t.names.Fresh("size_idx"), Size: op.Space.TotalElems()}},
				Flat: flat,
			},
			Ops: []*kir.SegBinOp{{
				Op:      &kir.Lambda{Params: params, Body: &kir.Body{Res: combine}},
				Neutral: neutral,
			}},
			Body: body,
		},
	}
	stms := allocate.Insert([]*kir.Stmt{red}, t.names)
	stms, err = t.stms(stms)
	if err != nil {
		return nil, nil, err
	}
	return stms, maxNames, nil
}

// delinearize rebinds the names the original iteration space puts in
// scope, the dimension variables and the flat identifier, from a new
// flat identifier, so that sliced size computations referencing them
// stay valid in the synthesized kernel.
func (t *transformer) delinearize(flat string, space kir.SegSpace) []*kir.Stmt {
	scalar := func(name string, e exp.Expr) *kir.Stmt {
		return &kir.Stmt{
			Pat: kir.Pattern{{Name: name, Type: &kir.Scalar{T: dtype.Int64}}},
			Op:  &kir.ExpOp{E: e},
		}
	}
	stms := []*kir.Stmt{scalar(space.Flat, exp.V(flat))}
	rem := exp.Expr(exp.V(flat))
	for i := len(space.Dims) - 1; i >= 0; i-- {
		d := space.Dims[i]
		if i == 0 {
			stms = append(stms, scalar(d.VName, rem))
			break
		}
		stms = append(stms, scalar(d.VName, exp.NewMod(rem, d.Size)))
		next := t.names.Fresh("rem")
		stms = append(stms, scalar(next, exp.NewDiv(rem, d.Size)))
		rem = exp.V(next)
	}
	return stms
}

// sizeSlice returns the statements needed to recompute the given size
// expressions, in their original order, with memory annotations
// stripped. The slice must not contain allocations and must be
// expressible with plain value types. It must also bind every name the
// sizes transitively depend on: a dependency bound only inside a
// nested body the slice does not keep, or bound to a
// combining-operator parameter, cannot be replayed per flat index and
// is rejected.
func (t *transformer) sizeSlice(stms []*kir.Stmt, sizes []exp.Expr, space kir.SegSpace) ([]*kir.Stmt, error) {
	needed := exp.NewNameSet()
	for _, size := range sizes {
		exp.FreeNames(size, needed)
	}
	keep := make([]bool, len(stms))
	for i := len(stms) - 1; i >= 0; i-- {
		s := stms[i]
		for _, e := range s.Pat {
			if needed.Has(e.Name) {
				keep[i] = true
				break
			}
		}
		if keep[i] {
			kir.Refs(s, needed)
		}
	}
	// Refs over-approximates on kept statements with nested bodies, so
	// every name a kept statement binds, at any depth, counts as bound.
	bound := exp.NewNameSet()
	for _, d := range space.Dims {
		bound.Add(d.VName)
	}
	bound.Add(space.Flat)
	var out []*kir.Stmt
	for i, s := range stms {
		if !keep[i] {
			continue
		}
		if hasAlloc(s.Op) {
			return nil, errorf(NestedAllocation, "size computation needs %s", s)
		}
		kir.Bound(&kir.Body{Stms: []*kir.Stmt{s}}, bound)
		stripped, err := stripStmt(s)
		if err != nil {
			return nil, err
		}
		out = append(out, stripped)
	}
	for name := range needed.Names() {
		if bound.Has(name) || t.scope.Has(name) {
			continue
		}
		return nil, errorf(UnhandledOperator, "size computation depends on %s, which the slice cannot rebind", name)
	}
	return out, nil
}

// hasAlloc returns true if an allocation appears in the operation at
// any nesting depth.
func hasAlloc(op kir.Op) bool {
	bodies := func(bs ...*kir.Body) bool {
		for _, b := range bs {
			for _, s := range b.Stms {
				if hasAlloc(s.Op) {
					return true
				}
			}
		}
		return false
	}
	switch op := op.(type) {
	case *kir.Alloc:
		return true
	case *kir.If:
		return bodies(op.Then, op.Else)
	case *kir.Loop:
		return bodies(op.Body)
	case *kir.SegOp:
		for _, o := range op.Ops {
			if bodies(o.Op.Body) {
				return true
			}
		}
		return bodies(op.Body)
	}
	return false
}

// stripStmt removes memory annotations from a statement so it can be
// spliced into a memory-agnostic synthesized kernel. A binding whose
// type is a memory block cannot be stripped.
func stripStmt(s *kir.Stmt) (*kir.Stmt, error) {
	pat, err := stripPattern(s.Pat, s)
	if err != nil {
		return nil, err
	}
	op, err := stripOp(s.Op, s)
	if err != nil {
		return nil, err
	}
	return &kir.Stmt{Pat: pat, Op: op}, nil
}

func stripType(ty kir.Type, at *kir.Stmt) (kir.Type, error) {
	switch ty := ty.(type) {
	case *kir.Mem:
		return nil, errorf(UnrepresentableMemoryType, "type %s in %s", ty, at)
	case *kir.Array:
		if ty.Bind == nil {
			return ty, nil
		}
		return &kir.Array{Elem: ty.Elem, Shape: ty.Shape}, nil
	}
	return ty, nil
}

func stripPattern(pat kir.Pattern, at *kir.Stmt) (kir.Pattern, error) {
	out := make(kir.Pattern, len(pat))
	for i, e := range pat {
		ty, err := stripType(e.Type, at)
		if err != nil {
			return nil, err
		}
		out[i] = &kir.PatElem{Name: e.Name, Type: ty}
	}
	return out, nil
}

func stripBody(b *kir.Body, at *kir.Stmt) (*kir.Body, error) {
	stms := make([]*kir.Stmt, len(b.Stms))
	for i, s := range b.Stms {
		ss, err := stripStmt(s)
		if err != nil {
			return nil, err
		}
		stms[i] = ss
	}
	return &kir.Body{Stms: stms, Res: b.Res}, nil
}

func stripOp(op kir.Op, at *kir.Stmt) (kir.Op, error) {
	switch op := op.(type) {
	case *kir.If:
		then, err := stripBody(op.Then, at)
		if err != nil {
			return nil, err
		}
		els, err := stripBody(op.Else, at)
		if err != nil {
			return nil, err
		}
		results := make([]kir.Type, len(op.Results))
		for i, res := range op.Results {
			sres, err := stripType(res, at)
			if err != nil {
				return nil, err
			}
			results[i] = sres
		}
		return &kir.If{
			Cond:       op.Cond,
			Then:       then,
			Else:       els,
			Results:    results,
			Equivalent: op.Equivalent,
		}, nil
	case *kir.Loop:
		params := make([]*kir.Param, len(op.Params))
		for i, p := range op.Params {
			ty, err := stripType(p.Type, at)
			if err != nil {
				return nil, err
			}
			params[i] = &kir.Param{Name: p.Name, Type: ty}
		}
		body, err := stripBody(op.Body, at)
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
		return nil, errorf(UnhandledOperator, "%s in %s", op.Kind, at)
	}
	return op, nil
}

// variantRebase returns the rebase function of a variant block: a
// dense index function over [num_threads, elements_per_thread] sliced
// at the current thread's flat id, reshaped back to the block's
// original per-thread shape. elements_per_thread divides the group's
// maximum byte size, sign extended, by the element byte size.
func variantRebase(cs coords, maxSize exp.Expr) rebaseFn {
	return func(oldBase []exp.Expr, elem dtype.DataType) (*layout.IndexFn, error) {
		perThread := exp.NewDiv(
			exp.SExt(maxSize, dtype.Int64),
			exp.I64(int64(dtype.Sizeof(elem))))
		fn, err := layout.Iota([]exp.Expr{cs.count, perThread}).Slice(
			&layout.DimFix{I: cs.flat}, layout.FullRange(perThread))
		if err != nil {
			return nil, err
		}
		if len(oldBase) == 1 {
			return fn.Reshape(&layout.DimCoercion{Len: oldBase[0]}), nil
		}
		specs := make([]layout.ReshapeSpec, len(oldBase))
		for i, d := range oldBase {
			specs[i] = &layout.DimNew{Len: d}
		}
		return fn.Reshape(specs...), nil
	}
}
