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

// Package exp is the scalar expression language of the kernel IR.
//
// Sizes of memory blocks, iteration spaces and index functions are all
// built from these expressions. Expressions are small trees over names
// and constants; the pass compares them structurally, never by value.
package exp

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/gx-org/backend/dtype"
)

type (
	// Expr is a scalar expression.
	Expr interface {
		// expr prevents implementations outside this package.
		expr()

		// DType is the scalar type of the value the expression computes.
		DType() dtype.DataType

		// String is a canonical representation: two expressions are
		// structurally equal iff their strings are equal.
		String() string
	}

	// Const is an integer literal.
	Const struct {
		V int64
		T dtype.DataType
	}

	// Var references a name bound elsewhere in the program.
	Var struct {
		Name string
		T    dtype.DataType
	}

	// BinOp applies an arithmetic operator to two operands of the
	// same scalar type.
	BinOp struct {
		Op   Op
		X, Y Expr
	}

	// Convert converts an integer value to another integer type.
	// Signed selects sign extension over zero extension when widening.
	Convert struct {
		X      Expr
		To     dtype.DataType
		Signed bool
	}
)

// Op is an arithmetic operator.
type Op int

// Operators on scalar expressions.
const (
	Add Op = iota
	Sub
	Mul
	Div
	Mod
	Min
	Max
)

var opStrings = map[Op]string{
	Add: "+",
	Sub: "-",
	Mul: "*",
	Div: "/",
	Mod: "%",
	Min: "min",
	Max: "max",
}

// String representation of the operator.
func (op Op) String() string {
	s, ok := opStrings[op]
	if !ok {
		return fmt.Sprintf("op(%d)", int(op))
	}
	return s
}

func (*Const) expr()   {}
func (*Var) expr()     {}
func (*BinOp) expr()   {}
func (*Convert) expr() {}

// DType of the constant.
func (c *Const) DType() dtype.DataType { return c.T }

func (c *Const) String() string {
	return fmt.Sprintf("%d", c.V)
}

// DType of the variable.
func (v *Var) DType() dtype.DataType { return v.T }

func (v *Var) String() string { return v.Name }

// DType of the operation, which is the type of its operands.
func (b *BinOp) DType() dtype.DataType { return b.X.DType() }

func (b *BinOp) String() string {
	if b.Op == Min || b.Op == Max {
		return fmt.Sprintf("%s(%s, %s)", b.Op, b.X, b.Y)
	}
	return fmt.Sprintf("(%s %s %s)", b.X, b.Op, b.Y)
}

// DType is the target type of the conversion.
func (c *Convert) DType() dtype.DataType { return c.To }

func (c *Convert) String() string {
	sign := "zext"
	if c.Signed {
		sign = "sext"
	}
	return fmt.Sprintf("%s_%s(%s)", sign, c.To, c.X)
}

// I64 returns a 64-bit signed integer constant.
func I64(v int64) *Const {
	return &Const{V: v, T: dtype.Int64}
}

// V returns a reference to a 64-bit signed integer name.
func V(name string) *Var {
	return &Var{Name: name, T: dtype.Int64}
}

func bin(op Op, x, y Expr) Expr {
	return &BinOp{Op: op, X: x, Y: y}
}

// NewAdd returns the sum of two expressions.
func NewAdd(x, y Expr) Expr { return bin(Add, x, y) }

// NewSub returns the difference of two expressions.
func NewSub(x, y Expr) Expr { return bin(Sub, x, y) }

// NewMul returns the product of two expressions.
func NewMul(x, y Expr) Expr { return bin(Mul, x, y) }

// NewDiv returns the quotient of two expressions.
func NewDiv(x, y Expr) Expr { return bin(Div, x, y) }

// NewMod returns the remainder of the division of two expressions.
func NewMod(x, y Expr) Expr { return bin(Mod, x, y) }

// NewMax returns the maximum of two expressions.
func NewMax(x, y Expr) Expr { return bin(Max, x, y) }

// NewMin returns the minimum of two expressions.
func NewMin(x, y Expr) Expr { return bin(Min, x, y) }

// SExt sign extends an expression to a wider integer type.
func SExt(x Expr, to dtype.DataType) Expr {
	return &Convert{X: x, To: to, Signed: true}
}

// Equal reports structural equality of two expressions.
func Equal(x, y Expr) bool {
	return x.String() == y.String()
}

// Key returns the canonical representation of an expression, suitable
// as a map key for grouping structurally identical expressions.
func Key(x Expr) string {
	return x.String()
}

// Eval computes the value of an expression given concrete values for
// its free names. Used by layout evaluation and tests; the pass itself
// never evaluates expressions.
func Eval(x Expr, env map[string]int64) (int64, error) {
	switch x := x.(type) {
	case *Const:
		return x.V, nil
	case *Var:
		v, ok := env[x.Name]
		if !ok {
			return 0, errors.Errorf("cannot evaluate %s: not bound in the environment", x.Name)
		}
		return v, nil
	case *BinOp:
		xv, err := Eval(x.X, env)
		if err != nil {
			return 0, err
		}
		yv, err := Eval(x.Y, env)
		if err != nil {
			return 0, err
		}
		return evalOp(x.Op, xv, yv)
	case *Convert:
		return Eval(x.X, env)
	}
	return 0, errors.Errorf("cannot evaluate expression %T", x)
}

func evalOp(op Op, x, y int64) (int64, error) {
	switch op {
	case Add:
		return x + y, nil
	case Sub:
		return x - y, nil
	case Mul:
		return x * y, nil
	case Div:
		if y == 0 {
			return 0, errors.Errorf("division by zero")
		}
		return x / y, nil
	case Mod:
		if y == 0 {
			return 0, errors.Errorf("division by zero")
		}
		return x % y, nil
	case Min:
		return min(x, y), nil
	case Max:
		return max(x, y), nil
	}
	return 0, errors.Errorf("cannot evaluate operator %s", op)
}
