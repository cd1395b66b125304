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

// Package expand hoists kernel-local allocations out of kernel regions.
//
// The target device cannot allocate memory once a kernel is running.
// This pass removes every allocation statement found inside a kernel
// region, allocates one shared buffer per block before the kernel
// launches, sized to cover every participating thread, and rewrites
// all references to the block with an index function slicing out the
// current thread's region. Allocations whose size varies per thread
// get their bound computed by a synthesized max-reduction kernel,
// expanded through this same pass before it is spliced in.
package expand

import (
	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
	"go.uber.org/multierr"

	"github.com/segc-org/segc/base/ordered"
	"github.com/segc-org/segc/base/uname"
	"github.com/segc-org/segc/internal/base/scope"
	"github.com/segc-org/segc/kir"
	"github.com/segc-org/segc/kir/exp"
)

// transformer carries the traversal state of one function: the name
// generator of the compilation unit and the scope of host-level
// bindings accumulated so far. Synthesized kernels are expanded by
// re-entering the same transformer, so they follow the identical code
// path as ordinary kernels.
type transformer struct {
	names *uname.Unique
	scope *scope.Scope[kir.Type]
}

// Transform returns the program with every expandable-space allocation
// hoisted out of kernel regions. The input program is not modified.
// The name generator must be the one owned by the compilation driver:
// generated block and variable names are unique across the whole
// program.
func Transform(prog *kir.Program, names *uname.Unique) (*kir.Program, error) {
	for name := range kir.ProgramNames(prog).Names() {
		names.Register(name)
	}
	funs := make([]*kir.Fun, len(prog.Funs))
	for i, f := range prog.Funs {
		t := &transformer{names: names, scope: scope.New[kir.Type](nil)}
		for _, p := range f.Params {
			t.scope.Define(p.Name, p.Type)
		}
		body, err := t.body(f.Body)
		if err != nil {
			return nil, errors.Wrapf(err, "function %s", f.Name)
		}
		funs[i] = &kir.Fun{Name: f.Name, Params: f.Params, Body: body}
	}
	return &kir.Program{Funs: funs}, nil
}

func (t *transformer) body(b *kir.Body) (*kir.Body, error) {
	stms, err := t.stms(b.Stms)
	if err != nil {
		return nil, err
	}
	return &kir.Body{Stms: stms, Res: b.Res}, nil
}

func (t *transformer) stms(stms []*kir.Stmt) ([]*kir.Stmt, error) {
	var out []*kir.Stmt
	for _, s := range stms {
		expanded, err := t.stmt(s)
		if err != nil {
			return nil, err
		}
		for _, es := range expanded {
			for _, e := range es.Pat {
				t.scope.Define(e.Name, e.Type)
			}
		}
		out = append(out, expanded...)
	}
	return out, nil
}

func (t *transformer) stmt(s *kir.Stmt) ([]*kir.Stmt, error) {
	switch op := s.Op.(type) {
	case *kir.SegOp:
		return t.expandSegOp(s, op)
	case *kir.If:
		return t.hostIf(s, op)
	case *kir.Loop:
		saved := t.scope
		t.scope = saved.Nest()
		for _, p := range op.Params {
			t.scope.Define(p.Name, p.Type)
		}
		t.scope.Define(op.IVar, &kir.Scalar{T: dtype.Int64})
		body, err := t.body(op.Body)
		t.scope = saved
		if err != nil {
			return nil, err
		}
		return []*kir.Stmt{{Pat: s.Pat, Op: &kir.Loop{
			Params: op.Params,
			Init:   op.Init,
			IVar:   op.IVar,
			Bound:  op.Bound,
			Body:   body,
		}}}, nil
	default:
		return []*kir.Stmt{s}, nil
	}
}

// arm expands one conditional arm in an isolated scope, so that a
// failed trial expansion leaves no trace on the traversal state.
func (t *transformer) arm(b *kir.Body) (*kir.Body, error) {
	saved := t.scope
	t.scope = saved.Nest()
	body, err := t.body(b)
	t.scope = saved
	return body, err
}

// recoverable returns true if the error is an expansion failure, as
// opposed to an internal error of the pass. Only expansion failures
// raised within the arm being trial-expanded may be discarded by the
// branch-equivalence fallback.
func recoverable(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// hostIf expands both arms of a host-level conditional. For a
// conditional marked as producing equivalent results on both arms, a
// one-sided expansion failure discards the failing arm: the surviving
// arm's statements are spliced in and its results bound directly to
// the conditional's result names. This is the only place an expansion
// failure is recovered rather than surfaced.
func (t *transformer) hostIf(s *kir.Stmt, op *kir.If) ([]*kir.Stmt, error) {
	then, errThen := t.arm(op.Then)
	els, errElse := t.arm(op.Else)
	keep := func() []*kir.Stmt {
		return []*kir.Stmt{{Pat: s.Pat, Op: &kir.If{
			Cond:       op.Cond,
			Then:       then,
			Else:       els,
			Results:    op.Results,
			Equivalent: op.Equivalent,
		}}}
	}
	if !op.Equivalent {
		if errThen != nil {
			return nil, errThen
		}
		if errElse != nil {
			return nil, errElse
		}
		return keep(), nil
	}
	switch {
	case errThen == nil && errElse == nil:
		return keep(), nil
	case errThen == nil && recoverable(errElse):
		return splice(s.Pat, then), nil
	case errElse == nil && recoverable(errThen):
		return splice(s.Pat, els), nil
	case errThen != nil && errElse != nil:
		return nil, multierr.Append(errThen, errElse)
	case errThen != nil:
		return nil, errThen
	default:
		return nil, errElse
	}
}

// splice binds a conditional's result names directly to the results of
// its surviving arm.
func splice(pat kir.Pattern, arm *kir.Body) []*kir.Stmt {
	out := arm.Stms
	for i, e := range pat {
		out = append(out, &kir.Stmt{
			Pat: kir.Pattern{e},
			Op:  &kir.ExpOp{E: arm.Res[i]},
		})
	}
	return out
}

// segOpBound returns every name bound inside a segmented operation:
// iteration-space variables, combining-operator parameters and all
// names bound in its bodies, at any depth.
func segOpBound(op *kir.SegOp) *exp.NameSet {
	inside := exp.NewNameSet()
	for _, d := range op.Space.Dims {
		inside.Add(d.VName)
	}
	inside.Add(op.Space.Flat)
	for _, o := range op.Ops {
		for _, p := range o.Op.Params {
			inside.Add(p.Name)
		}
		kir.Bound(o.Op.Body, inside)
	}
	kir.Bound(op.Body, inside)
	return inside
}

// expandSegOp runs one kernel-expansion invocation: extract the
// kernel's allocations, expand the invariant and variant ones into
// preamble statements, then rewrite the allocation-free kernel with
// the resulting rebase map. The extraction and rebase maps live and
// die within this call.
func (t *transformer) expandSegOp(s *kir.Stmt, op *kir.SegOp) ([]*kir.Stmt, error) {
	inside := segOpBound(op)
	extracted := ordered.NewMap[string, allocInfo]()
	body, err := t.extract(inside, op.Body, extracted)
	if err != nil {
		return nil, err
	}
	ops := make([]*kir.SegBinOp, len(op.Ops))
	for i, o := range op.Ops {
		lbody, err := t.extract(inside, o.Op.Body, extracted)
		if err != nil {
			return nil, err
		}
		ops[i] = &kir.SegBinOp{
			Op:      &kir.Lambda{Params: o.Op.Params, Body: lbody},
			Neutral: o.Neutral,
		}
	}
	if extracted.Empty() {
		return []*kir.Stmt{s}, nil
	}

	invariants := ordered.NewMap[string, allocInfo]()
	variants := ordered.NewMap[string, allocInfo]()
	for mem, info := range extracted.Iter() {
		if variantSize(info, inside) {
			variants.Store(mem, info)
		} else {
			invariants.Store(mem, info)
		}
	}
	if !variants.Empty() && op.Level == kir.LevelGroup {
		return nil, errorf(VariantGroupAllocation, "%d thread-variant allocations in a group-level %s", variants.Size(), op.Kind)
	}

	// Thread-level regions cut the shared buffers into one slice per
	// thread, group-level regions into one slice per group.
	countExpr, countRoot := op.Grid.NumThreads(), "num_threads"
	if op.Level == kir.LevelGroup {
		countExpr, countRoot = op.Grid.NumGroups, "num_groups"
	}
	count := t.names.Fresh(countRoot)
	prelude := []*kir.Stmt{{
		Pat: kir.Pattern{{Name: count, Type: &kir.Scalar{T: dtype.Int64}}},
		Op:  &kir.ExpOp{E: countExpr},
	}}
	cs := coords{count: exp.V(count), flat: exp.V(op.Space.Flat)}

	invStms, rebases, err := t.expandInvariant(invariants, inside, cs)
	if err != nil {
		return nil, err
	}
	varStms, varRebases, err := t.expandVariant(variants, body, ops, op, cs)
	if err != nil {
		return nil, err
	}
	rebases.Merge(varRebases)

	rw := &rewriter{rebases: rebases}
	rwBody, err := rw.body(body)
	if err != nil {
		return nil, err
	}
	for i, o := range ops {
		params, err := rw.params(o.Op.Params)
		if err != nil {
			return nil, err
		}
		lbody, err := rw.body(o.Op.Body)
		if err != nil {
			return nil, err
		}
		ops[i] = &kir.SegBinOp{
			Op:      &kir.Lambda{Params: params, Body: lbody},
			Neutral: o.Neutral,
		}
	}
	ctx := exp.NewNameSet()
	for _, e := range s.Pat {
		ctx.Add(e.Name)
	}
	pat, err := rw.pattern(s.Pat, ctx)
	if err != nil {
		return nil, err
	}

	out := prelude
	out = append(out, invStms...)
	out = append(out, varStms...)
	out = append(out, &kir.Stmt{Pat: pat, Op: &kir.SegOp{
		Kind:  op.Kind,
		Level: op.Level,
		Grid:  op.Grid,
		Space: op.Space,
		Ops:   ops,
		Body:  rwBody,
	}})
	return out, nil
}
