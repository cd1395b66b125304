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

// Package simplify cleans up statement sequences.
//
// The simplifier folds constant arithmetic, propagates copies and
// removes bindings nothing references. Passes run it on the bodies of
// kernels they synthesize, which are stitched together from slices of
// other bodies and carry trivial bindings as a result. Names are
// assumed unique across the statements being simplified; the
// simplifier does not track shadowing.
package simplify

import (
	"github.com/segc-org/segc/kir"
	"github.com/segc-org/segc/kir/exp"
)

// Body simplifies a body. The returned body is fresh; the input is not
// modified.
func Body(b *kir.Body) *kir.Body {
	sub := map[string]exp.Expr{}
	stms := forward(b.Stms, sub, nil)
	res := make([]exp.Expr, len(b.Res))
	for i, r := range b.Res {
		res[i] = fold(exp.Subst(r, sub))
	}
	live := exp.NewNameSet()
	for _, r := range res {
		exp.FreeNames(r, live)
	}
	return &kir.Body{Stms: backward(stms, live), Res: res}
}

// Stms simplifies a statement sequence, keeping every binding in the
// live set alive: live names stay bound under their own name for the
// caller, even when reduced to a copy.
func Stms(stms []*kir.Stmt, live *exp.NameSet) []*kir.Stmt {
	sub := map[string]exp.Expr{}
	out := forward(stms, sub, live)
	kept := exp.NewNameSet()
	for name := range live.Names() {
		kept.Add(name)
	}
	return backward(out, kept)
}

// forward rewrites statements in order, folding constants and recording
// copies in sub. Statements reduced to a copy are dropped, unless they
// bind a protected name.
func forward(stms []*kir.Stmt, sub map[string]exp.Expr, protected *exp.NameSet) []*kir.Stmt {
	var out []*kir.Stmt
	for _, s := range stms {
		op := rewriteOp(s.Op, sub)
		if e, ok := op.(*kir.ExpOp); ok && len(s.Pat) == 1 {
			switch e.E.(type) {
			case *exp.Var, *exp.Const:
				sub[s.Pat[0].Name] = e.E
				if protected == nil || !protected.Has(s.Pat[0].Name) {
					continue
				}
			}
		}
		out = append(out, &kir.Stmt{Pat: s.Pat, Op: op})
	}
	return out
}

// backward removes statements binding only names that are never
// referenced afterwards.
func backward(stms []*kir.Stmt, live *exp.NameSet) []*kir.Stmt {
	var kept []*kir.Stmt
	for i := len(stms) - 1; i >= 0; i-- {
		s := stms[i]
		needed := len(s.Pat) == 0
		for _, e := range s.Pat {
			if live.Has(e.Name) {
				needed = true
				break
			}
		}
		if !needed {
			continue
		}
		kir.Refs(s, live)
		kept = append(kept, s)
	}
	// kept was built in reverse.
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}

func rewriteExpr(e exp.Expr, sub map[string]exp.Expr) exp.Expr {
	return fold(exp.Subst(e, sub))
}

func rewriteOp(op kir.Op, sub map[string]exp.Expr) kir.Op {
	switch op := op.(type) {
	case *kir.ExpOp:
		return &kir.ExpOp{E: rewriteExpr(op.E, sub)}
	case *kir.Apply:
		args := make([]exp.Expr, len(op.Args))
		for i, a := range op.Args {
			args[i] = rewriteExpr(a, sub)
		}
		return &kir.Apply{Fn: op.Fn, Args: args}
	case *kir.Alloc:
		return &kir.Alloc{Size: rewriteExpr(op.Size, sub), Space: op.Space}
	case *kir.If:
		return &kir.If{
			Cond:       rewriteExpr(op.Cond, sub),
			Then:       rewriteBody(op.Then, sub),
			Else:       rewriteBody(op.Else, sub),
			Results:    op.Results,
			Equivalent: op.Equivalent,
		}
	case *kir.Loop:
		init := make([]exp.Expr, len(op.Init))
		for i, e := range op.Init {
			init[i] = rewriteExpr(e, sub)
		}
		return &kir.Loop{
			Params: op.Params,
			Init:   init,
			IVar:   op.IVar,
			Bound:  rewriteExpr(op.Bound, sub),
			Body:   rewriteBody(op.Body, sub),
		}
	case *kir.SegOp:
		ops := make([]*kir.SegBinOp, len(op.Ops))
		for i, o := range op.Ops {
			neutral := make([]exp.Expr, len(o.Neutral))
			for j, n := range o.Neutral {
				neutral[j] = rewriteExpr(n, sub)
			}
			ops[i] = &kir.SegBinOp{
				Op:      &kir.Lambda{Params: o.Op.Params, Body: rewriteBody(o.Op.Body, sub)},
				Neutral: neutral,
			}
		}
		space := op.Space
		space.Dims = make([]kir.SegDim, len(op.Space.Dims))
		for i, d := range op.Space.Dims {
			space.Dims[i] = kir.SegDim{VName: d.VName, Size: rewriteExpr(d.Size, sub)}
		}
		return &kir.SegOp{
			Kind:  op.Kind,
			Level: op.Level,
			Grid: kir.Grid{
				NumGroups: rewriteExpr(op.Grid.NumGroups, sub),
				GroupSize: rewriteExpr(op.Grid.GroupSize, sub),
			},
			Space: space,
			Ops:   ops,
			Body:  rewriteBody(op.Body, sub),
		}
	}
	return op
}

func rewriteBody(b *kir.Body, sub map[string]exp.Expr) *kir.Body {
	stms := make([]*kir.Stmt, len(b.Stms))
	for i, s := range b.Stms {
		stms[i] = &kir.Stmt{Pat: s.Pat, Op: rewriteOp(s.Op, sub)}
	}
	res := make([]exp.Expr, len(b.Res))
	for i, r := range b.Res {
		res[i] = rewriteExpr(r, sub)
	}
	return &kir.Body{Stms: stms, Res: res}
}

// fold evaluates constant subtrees of an expression.
func fold(e exp.Expr) exp.Expr {
	b, ok := e.(*exp.BinOp)
	if !ok {
		return e
	}
	x, y := fold(b.X), fold(b.Y)
	xc, xok := x.(*exp.Const)
	yc, yok := y.(*exp.Const)
	if xok && yok {
		if v, err := exp.Eval(&exp.BinOp{Op: b.Op, X: xc, Y: yc}, nil); err == nil {
			return &exp.Const{V: v, T: xc.T}
		}
	}
	// Multiplicative and additive identities.
	switch b.Op {
	case exp.Mul:
		if xok && xc.V == 1 {
			return y
		}
		if yok && yc.V == 1 {
			return x
		}
	case exp.Add:
		if xok && xc.V == 0 {
			return y
		}
		if yok && yc.V == 0 {
			return x
		}
	}
	if x != b.X || y != b.Y {
		return &exp.BinOp{Op: b.Op, X: x, Y: y}
	}
	return b
}
