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

import (
	"fmt"
	"strings"

	gfmt "github.com/segc-org/segc/base/fmt"
	"github.com/segc-org/segc/kir/exp"
)

// SegKind is the kind of a segmented operation.
type SegKind int

// Kinds of segmented operations.
const (
	SegMap SegKind = iota
	SegRed
	SegScan
	SegHist
)

var segKindStrings = map[SegKind]string{
	SegMap:  "segmap",
	SegRed:  "segred",
	SegScan: "segscan",
	SegHist: "seghist",
}

// String representation of the kind.
func (k SegKind) String() string {
	s, ok := segKindStrings[k]
	if !ok {
		return fmt.Sprintf("segop(%d)", int(k))
	}
	return s
}

// Level is the granularity at which a segmented operation runs.
type Level int

// Granularities of segmented operations.
const (
	// LevelThread runs the body once per thread.
	LevelThread Level = iota

	// LevelGroup runs the body once per group, with the group's
	// threads cooperating.
	LevelGroup
)

// String representation of the level.
func (l Level) String() string {
	if l == LevelGroup {
		return "group"
	}
	return "thread"
}

type (
	// Grid is the launch configuration of a segmented operation.
	Grid struct {
		NumGroups, GroupSize exp.Expr
	}

	// SegDim is one dimension of an iteration space, bound to a name
	// inside the kernel body.
	SegDim struct {
		VName string
		Size  exp.Expr
	}

	// SegSpace is the iteration space of a segmented operation. Flat
	// names the linearized position across all dimensions.
	SegSpace struct {
		Dims []SegDim
		Flat string
	}

	// SegBinOp is a combining operator of a reduction, scan or
	// histogram, with its neutral elements.
	SegBinOp struct {
		Op      *Lambda
		Neutral []exp.Expr
	}

	// Lambda is an anonymous function used as a segmented-operation
	// combining operator.
	Lambda struct {
		Params []*Param
		Body   *Body
	}

	// SegOp is a segmented operation: a kernel construct running its
	// body over an iteration space at a given granularity.
	SegOp struct {
		Kind  SegKind
		Level Level
		Grid  Grid
		Space SegSpace
		Ops   []*SegBinOp
		Body  *Body
	}
)

func (*Lambda) node() {}
func (*SegOp) node()  {}

func (*SegOp) op() {}

// NumThreads returns the expression for the total number of threads
// launched by the grid.
func (g Grid) NumThreads() exp.Expr {
	return exp.NewMul(g.NumGroups, g.GroupSize)
}

// TotalElems returns the expression for the number of elements in the
// iteration space, the product of all dimension sizes.
func (s SegSpace) TotalElems() exp.Expr {
	if len(s.Dims) == 0 {
		return exp.I64(1)
	}
	total := s.Dims[0].Size
	for _, d := range s.Dims[1:] {
		total = exp.NewMul(total, d.Size)
	}
	return total
}

// String representation of the iteration space.
func (s SegSpace) String() string {
	dims := make([]string, len(s.Dims))
	for i, d := range s.Dims {
		dims[i] = fmt.Sprintf("%s < %s", d.VName, d.Size)
	}
	return fmt.Sprintf("(%s; flat %s)", strings.Join(dims, ", "), s.Flat)
}

// String representation of the lambda.
func (l *Lambda) String() string {
	params := make([]string, len(l.Params))
	for i, p := range l.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("\\(%s) {\n%s}", strings.Join(params, ", "), gfmt.Indent(l.Body.String()))
}

// String representation of the segmented operation.
func (o *SegOp) String() string {
	var s strings.Builder
	fmt.Fprintf(&s, "%s@%s<%s, %s> %s", o.Kind, o.Level, o.Grid.NumGroups, o.Grid.GroupSize, o.Space)
	for _, op := range o.Ops {
		neutral := make([]string, len(op.Neutral))
		for i, n := range op.Neutral {
			neutral[i] = n.String()
		}
		fmt.Fprintf(&s, " with {%s; [%s]}", op.Op, strings.Join(neutral, ", "))
	}
	fmt.Fprintf(&s, " {\n%s}", gfmt.Indent(o.Body.String()))
	return s.String()
}
