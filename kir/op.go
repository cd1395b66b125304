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

type (
	// Op is the right-hand side of a statement.
	Op interface {
		Node

		// op marks the implementation as an operation.
		op()
	}

	// ExpOp computes a scalar expression.
	ExpOp struct {
		E exp.Expr
	}

	// Apply applies a named primitive to arguments. The pass never
	// interprets primitives; it only tracks the names they reference.
	Apply struct {
		Fn   string
		Args []exp.Expr
	}

	// Alloc creates a memory block of Size bytes in a memory space.
	Alloc struct {
		Size  exp.Expr
		Space Space
	}

	// If runs one of two bodies depending on a scalar condition.
	// Equivalent marks a conditional whose two branches are known to
	// produce the same observable results; passes may then keep either
	// branch. Results type the values returned by the branches.
	If struct {
		Cond       exp.Expr
		Then, Else *Body
		Results    []Type
		Equivalent bool
	}

	// Loop is a counted loop with loop-carried parameters.
	Loop struct {
		Params []*Param
		Init   []exp.Expr
		IVar   string
		Bound  exp.Expr
		Body   *Body
	}
)

func (*ExpOp) node() {}
func (*Apply) node() {}
func (*Alloc) node() {}
func (*If) node()    {}
func (*Loop) node()  {}

func (*ExpOp) op() {}
func (*Apply) op() {}
func (*Alloc) op() {}
func (*If) op()    {}
func (*Loop) op()  {}

// String representation of the expression operation.
func (o *ExpOp) String() string {
	return o.E.String()
}

// String representation of the application.
func (o *Apply) String() string {
	args := make([]string, len(o.Args))
	for i, a := range o.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", o.Fn, strings.Join(args, ", "))
}

// String representation of the allocation.
func (o *Alloc) String() string {
	return fmt.Sprintf("alloc(%s, @%s)", o.Size, o.Space)
}

// String representation of the conditional.
func (o *If) String() string {
	kw := "if"
	if o.Equivalent {
		kw = "if<equiv>"
	}
	return fmt.Sprintf("%s %s {\n%s} else {\n%s}", kw, o.Cond,
		gfmt.Indent(o.Then.String()), gfmt.Indent(o.Else.String()))
}

// String representation of the loop.
func (o *Loop) String() string {
	params := make([]string, len(o.Params))
	for i, p := range o.Params {
		params[i] = fmt.Sprintf("%s=%s", p, o.Init[i])
	}
	return fmt.Sprintf("loop (%s) for %s < %s {\n%s}",
		strings.Join(params, ", "), o.IVar, o.Bound, gfmt.Indent(o.Body.String()))
}

// ----------------------------------------------------------------------------
// Statements, bodies, functions.

type (
	// Stmt binds the results of an operation to a pattern.
	Stmt struct {
		Pat Pattern
		Op  Op
	}

	// Body is a sequence of statements and the values it returns.
	Body struct {
		Stms []*Stmt
		Res  []exp.Expr
	}

	// Fun is a host-level function.
	Fun struct {
		Name   string
		Params []*Param
		Body   *Body
	}

	// Program is a whole compilation unit.
	Program struct {
		Funs []*Fun
	}
)

func (*Stmt) node()    {}
func (*Body) node()    {}
func (*Fun) node()     {}
func (*Program) node() {}

// String representation of the statement.
func (s *Stmt) String() string {
	if len(s.Pat) == 0 {
		return s.Op.String()
	}
	return fmt.Sprintf("let %s = %s", s.Pat, s.Op)
}

// String representation of the body.
func (b *Body) String() string {
	var s strings.Builder
	for _, st := range b.Stms {
		s.WriteString(st.String())
		s.WriteString("\n")
	}
	if len(b.Res) > 0 {
		res := make([]string, len(b.Res))
		for i, r := range b.Res {
			res[i] = r.String()
		}
		fmt.Fprintf(&s, "return %s\n", strings.Join(res, ", "))
	}
	return s.String()
}

// String representation of the function.
func (f *Fun) String() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("fun %s(%s) {\n%s}", f.Name, strings.Join(params, ", "), gfmt.Indent(f.Body.String()))
}

// String representation of the program.
func (p *Program) String() string {
	funs := make([]string, len(p.Funs))
	for i, f := range p.Funs {
		funs[i] = f.String()
	}
	return strings.Join(funs, "\n\n")
}
