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

// Package layout provides symbolic index functions.
//
// An index function maps a logical multi-dimensional element index to a
// linear offset into a memory block. It is built from a dense row-major
// base (Iota) refined by permutations, slices and reshapes. The memory
// pass rewrites where arrays live by swapping the base of their index
// functions (Rebase) while leaving the refinements untouched.
package layout

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/segc-org/segc/kir/exp"
)

// IndexFn is a symbolic index function.
type IndexFn struct {
	op op
}

type op interface {
	// dims is the logical shape addressed by this operation.
	dims() []exp.Expr

	// offset maps a concrete logical index to a linear offset.
	offset(env map[string]int64, index []int64) (int64, error)

	// rebase swaps the dense base for a new index function.
	rebase(base *IndexFn) op

	// base returns the shape of the dense base.
	base() []exp.Expr

	str() string

	free(*exp.NameSet)
}

// Iota returns a dense row-major index function over the given shape.
func Iota(shape []exp.Expr) *IndexFn {
	return &IndexFn{op: &iotaOp{shape: shape}}
}

// Dims returns the logical shape addressed by the index function.
func (f *IndexFn) Dims() []exp.Expr {
	return f.op.dims()
}

// Rank returns the number of logical dimensions.
func (f *IndexFn) Rank() int {
	return len(f.op.dims())
}

// Base returns the shape of the dense base of the index function.
func (f *IndexFn) Base() []exp.Expr {
	return f.op.base()
}

// FreeNames adds the names referenced by the index function to a set.
func (f *IndexFn) FreeNames(into *exp.NameSet) {
	f.op.free(into)
}

// String is a canonical representation: two index functions are
// structurally equal iff their strings are equal.
func (f *IndexFn) String() string {
	return f.op.str()
}

// Equal reports structural equality of two index functions.
func Equal(x, y *IndexFn) bool {
	if x == nil || y == nil {
		return x == y
	}
	return x.String() == y.String()
}

// Offset maps a concrete logical index to a linear element offset,
// evaluating symbolic dimensions in the given environment.
func (f *IndexFn) Offset(env map[string]int64, index ...int64) (int64, error) {
	if len(index) != f.Rank() {
		return 0, errors.Errorf("cannot index %s: got %d indices for rank %d", f, len(index), f.Rank())
	}
	return f.op.offset(env, index)
}

// Permute reorders the logical dimensions of the index function.
// perm[i] names the dimension of f that becomes dimension i.
func (f *IndexFn) Permute(perm []int) (*IndexFn, error) {
	if len(perm) != f.Rank() {
		return nil, errors.Errorf("cannot permute %s: permutation %v does not match rank %d", f, perm, f.Rank())
	}
	seen := make([]bool, len(perm))
	for _, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return nil, errors.Errorf("cannot permute %s: %v is not a permutation", f, perm)
		}
		seen[p] = true
	}
	return &IndexFn{op: &permuteOp{in: f.op, perm: perm}}, nil
}

// Slice restricts the index function with one specification per logical
// dimension: DimFix drops a dimension by fixing its index, DimRange keeps
// a strided sub-range of it.
func (f *IndexFn) Slice(specs ...SliceSpec) (*IndexFn, error) {
	if len(specs) != f.Rank() {
		return nil, errors.Errorf("cannot slice %s: got %d specifications for rank %d", f, len(specs), f.Rank())
	}
	return &IndexFn{op: &sliceOp{in: f.op, specs: specs}}, nil
}

// Reshape reinterprets the logical shape of the index function. The new
// shape is given by one specification per new dimension; elements keep
// their row-major order. The reinterpretation is a coercion: sizes are
// not checked, the new shape must not address more elements than the
// shape it replaces.
func (f *IndexFn) Reshape(specs ...ReshapeSpec) *IndexFn {
	return &IndexFn{op: &reshapeOp{in: f.op, specs: specs}}
}

// Rebase replaces the dense base of fn with a new index function. The
// new base must address the same logical shape the dense base had.
func Rebase(base *IndexFn, fn *IndexFn) (*IndexFn, error) {
	old := fn.Base()
	if len(base.Dims()) != len(old) {
		return nil, errors.Errorf("cannot rebase %s onto %s: base rank %d does not match %d", fn, base, len(old), len(base.Dims()))
	}
	return &IndexFn{op: fn.op.rebase(base)}, nil
}

func dimsString(dims []exp.Expr) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = d.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func evalDims(dims []exp.Expr, env map[string]int64) ([]int64, error) {
	vals := make([]int64, len(dims))
	for i, d := range dims {
		v, err := exp.Eval(d, env)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// linearize computes the row-major linear index of index within shape.
func linearize(index, shape []int64) int64 {
	var linear int64
	for i, ix := range index {
		linear = linear*shape[i] + ix
	}
	return linear
}

// delinearize splits a row-major linear index into an index within shape.
func delinearize(linear int64, shape []int64) []int64 {
	index := make([]int64, len(shape))
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] > 0 {
			index[i] = linear % shape[i]
			linear /= shape[i]
		}
	}
	return index
}

// ----------------------------------------------------------------------------
// Dense base.

type iotaOp struct {
	shape []exp.Expr
}

func (o *iotaOp) dims() []exp.Expr { return o.shape }

func (o *iotaOp) base() []exp.Expr { return o.shape }

func (o *iotaOp) offset(env map[string]int64, index []int64) (int64, error) {
	shape, err := evalDims(o.shape, env)
	if err != nil {
		return 0, err
	}
	return linearize(index, shape), nil
}

func (o *iotaOp) rebase(base *IndexFn) op { return base.op }

func (o *iotaOp) str() string {
	return fmt.Sprintf("iota(%s)", dimsString(o.shape))
}

func (o *iotaOp) free(into *exp.NameSet) {
	for _, d := range o.shape {
		exp.FreeNames(d, into)
	}
}

// ----------------------------------------------------------------------------
// Permutation.

type permuteOp struct {
	in   op
	perm []int
}

func (o *permuteOp) dims() []exp.Expr {
	in := o.in.dims()
	out := make([]exp.Expr, len(o.perm))
	for i, p := range o.perm {
		out[i] = in[p]
	}
	return out
}

func (o *permuteOp) base() []exp.Expr { return o.in.base() }

func (o *permuteOp) offset(env map[string]int64, index []int64) (int64, error) {
	inner := make([]int64, len(index))
	for i, p := range o.perm {
		inner[p] = index[i]
	}
	return o.in.offset(env, inner)
}

func (o *permuteOp) rebase(base *IndexFn) op {
	return &permuteOp{in: o.in.rebase(base), perm: o.perm}
}

func (o *permuteOp) str() string {
	return fmt.Sprintf("permute(%s, %v)", o.in.str(), o.perm)
}

func (o *permuteOp) free(into *exp.NameSet) { o.in.free(into) }

// ----------------------------------------------------------------------------
// Slicing.

type (
	// SliceSpec specifies how Slice treats one dimension.
	SliceSpec interface {
		sliceSpec()
		String() string
	}

	// DimFix drops a dimension by fixing its index.
	DimFix struct {
		I exp.Expr
	}

	// DimRange keeps a strided sub-range of a dimension.
	DimRange struct {
		Offset, Num, Stride exp.Expr
	}
)

func (*DimFix) sliceSpec()   {}
func (*DimRange) sliceSpec() {}

// String representation of the fixed index.
func (s *DimFix) String() string { return s.I.String() }

// String representation of the range.
func (s *DimRange) String() string {
	return fmt.Sprintf("%s:+%s*%s", s.Offset, s.Num, s.Stride)
}

// FullRange keeps all n elements of a dimension.
func FullRange(n exp.Expr) *DimRange {
	return &DimRange{Offset: exp.I64(0), Num: n, Stride: exp.I64(1)}
}

type sliceOp struct {
	in    op
	specs []SliceSpec
}

func (o *sliceOp) dims() []exp.Expr {
	var out []exp.Expr
	for _, s := range o.specs {
		if r, ok := s.(*DimRange); ok {
			out = append(out, r.Num)
		}
	}
	return out
}

func (o *sliceOp) base() []exp.Expr { return o.in.base() }

func (o *sliceOp) offset(env map[string]int64, index []int64) (int64, error) {
	inner := make([]int64, len(o.specs))
	next := 0
	for d, s := range o.specs {
		switch s := s.(type) {
		case *DimFix:
			i, err := exp.Eval(s.I, env)
			if err != nil {
				return 0, err
			}
			inner[d] = i
		case *DimRange:
			off, err := exp.Eval(s.Offset, env)
			if err != nil {
				return 0, err
			}
			stride, err := exp.Eval(s.Stride, env)
			if err != nil {
				return 0, err
			}
			inner[d] = off + index[next]*stride
			next++
		}
	}
	return o.in.offset(env, inner)
}

func (o *sliceOp) rebase(base *IndexFn) op {
	return &sliceOp{in: o.in.rebase(base), specs: o.specs}
}

func (o *sliceOp) str() string {
	parts := make([]string, len(o.specs))
	for i, s := range o.specs {
		parts[i] = s.String()
	}
	return fmt.Sprintf("slice(%s, [%s])", o.in.str(), strings.Join(parts, ", "))
}

func (o *sliceOp) free(into *exp.NameSet) {
	o.in.free(into)
	for _, s := range o.specs {
		switch s := s.(type) {
		case *DimFix:
			exp.FreeNames(s.I, into)
		case *DimRange:
			exp.FreeNames(s.Offset, into)
			exp.FreeNames(s.Num, into)
			exp.FreeNames(s.Stride, into)
		}
	}
}

// ----------------------------------------------------------------------------
// Reshaping.

type (
	// ReshapeSpec specifies one dimension of the new shape.
	ReshapeSpec interface {
		reshapeSpec()

		// N is the length of the new dimension.
		N() exp.Expr

		String() string
	}

	// DimCoercion keeps an existing dimension under a new length
	// without changing the number of dimensions.
	DimCoercion struct {
		Len exp.Expr
	}

	// DimNew inserts a dimension.
	DimNew struct {
		Len exp.Expr
	}
)

func (*DimCoercion) reshapeSpec() {}
func (*DimNew) reshapeSpec()      {}

// N is the length of the coerced dimension.
func (s *DimCoercion) N() exp.Expr { return s.Len }

// N is the length of the inserted dimension.
func (s *DimNew) N() exp.Expr { return s.Len }

// String representation of the coercion.
func (s *DimCoercion) String() string { return "~" + s.Len.String() }

// String representation of the new dimension.
func (s *DimNew) String() string { return s.Len.String() }

type reshapeOp struct {
	in    op
	specs []ReshapeSpec
}

func (o *reshapeOp) dims() []exp.Expr {
	out := make([]exp.Expr, len(o.specs))
	for i, s := range o.specs {
		out[i] = s.N()
	}
	return out
}

func (o *reshapeOp) base() []exp.Expr { return o.in.base() }

func (o *reshapeOp) offset(env map[string]int64, index []int64) (int64, error) {
	newShape, err := evalDims(o.dims(), env)
	if err != nil {
		return 0, err
	}
	inShape, err := evalDims(o.in.dims(), env)
	if err != nil {
		return 0, err
	}
	linear := linearize(index, newShape)
	return o.in.offset(env, delinearize(linear, inShape))
}

func (o *reshapeOp) rebase(base *IndexFn) op {
	return &reshapeOp{in: o.in.rebase(base), specs: o.specs}
}

func (o *reshapeOp) str() string {
	parts := make([]string, len(o.specs))
	for i, s := range o.specs {
		parts[i] = s.String()
	}
	return fmt.Sprintf("reshape(%s, [%s])", o.in.str(), strings.Join(parts, ", "))
}

func (o *reshapeOp) free(into *exp.NameSet) {
	o.in.free(into)
	for _, s := range o.specs {
		exp.FreeNames(s.N(), into)
	}
}
