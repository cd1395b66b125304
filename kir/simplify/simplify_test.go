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

package simplify_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gx-org/backend/dtype"

	"github.com/segc-org/segc/kir"
	"github.com/segc-org/segc/kir/exp"
	"github.com/segc-org/segc/kir/simplify"
)

func let(name string, e exp.Expr) *kir.Stmt {
	return &kir.Stmt{
		Pat: kir.Pattern{{Name: name, Type: &kir.Scalar{T: dtype.Int64}}},
		Op:  &kir.ExpOp{E: e},
	}
}

func TestConstantFolding(t *testing.T) {
	body := simplify.Body(&kir.Body{
		Stms: []*kir.Stmt{
			let("a", exp.NewMul(exp.I64(4), exp.I64(32))),
			let("b", exp.NewAdd(exp.V("a"), exp.I64(0))),
		},
		Res: []exp.Expr{exp.V("b")},
	})
	if len(body.Stms) != 0 {
		t.Fatalf("got %d statements but want 0:\n%s", len(body.Stms), body)
	}
	if got, want := body.Res[0].String(), "128"; got != want {
		t.Errorf("got result %s but want %s", got, want)
	}
}

func TestCopyPropagation(t *testing.T) {
	body := simplify.Body(&kir.Body{
		Stms: []*kir.Stmt{
			let("a", exp.V("n")),
			let("b", exp.NewMul(exp.V("a"), exp.I64(8))),
		},
		Res: []exp.Expr{exp.V("b")},
	})
	if len(body.Stms) != 1 {
		t.Fatalf("got %d statements but want 1:\n%s", len(body.Stms), body)
	}
	if got, want := body.Stms[0].String(), "let b: int64 = (n * 8)"; got != want {
		t.Errorf("got %q but want %q\ndiff:\n%s", got, want, cmp.Diff(got, want))
	}
}

func TestDeadBindingRemoval(t *testing.T) {
	body := simplify.Body(&kir.Body{
		Stms: []*kir.Stmt{
			let("a", exp.NewMul(exp.V("n"), exp.I64(8))),
			let("dead", exp.NewMul(exp.V("n"), exp.I64(16))),
		},
		Res: []exp.Expr{exp.V("a")},
	})
	if len(body.Stms) != 1 {
		t.Fatalf("got %d statements but want 1:\n%s", len(body.Stms), body)
	}
	if got := body.Stms[0].Pat[0].Name; got != "a" {
		t.Errorf("got binding %s but want a", got)
	}
}

func TestKeepAllocation(t *testing.T) {
	// An allocation bound to a referenced block must survive.
	stms := simplify.Stms([]*kir.Stmt{
		{
			Pat: kir.Pattern{{Name: "mem", Type: &kir.Mem{Space: kir.SpaceGlobal}}},
			Op:  &kir.Alloc{Size: exp.I64(64), Space: kir.SpaceGlobal},
		},
	}, exp.NewNameSet("mem"))
	if len(stms) != 1 {
		t.Fatalf("got %d statements but want 1", len(stms))
	}
}

func TestStmsLiveThroughCopy(t *testing.T) {
	stms := simplify.Stms([]*kir.Stmt{
		let("a", exp.NewMul(exp.V("n"), exp.I64(8))),
		let("b", exp.V("a")),
	}, exp.NewNameSet("b"))
	// b is live: it must stay bound under its own name, and the
	// binding of a must stay alive through it.
	if len(stms) != 2 {
		t.Fatalf("got %d statements but want 2", len(stms))
	}
	if got := stms[1].Pat[0].Name; got != "b" {
		t.Errorf("got binding %s but want b", got)
	}
}

func TestPropagateIntoNestedBody(t *testing.T) {
	body := simplify.Body(&kir.Body{
		Stms: []*kir.Stmt{
			let("a", exp.V("n")),
			{
				Pat: kir.Pattern{{Name: "r", Type: &kir.Scalar{T: dtype.Int64}}},
				Op: &kir.If{
					Cond: exp.V("c"),
					Then: &kir.Body{Res: []exp.Expr{exp.V("a")}},
					Else: &kir.Body{Res: []exp.Expr{exp.I64(0)}},
					Results: []kir.Type{
						&kir.Scalar{T: dtype.Int64},
					},
				},
			},
		},
		Res: []exp.Expr{exp.V("r")},
	})
	if len(body.Stms) != 1 {
		t.Fatalf("got %d statements but want 1:\n%s", len(body.Stms), body)
	}
	ifOp := body.Stms[0].Op.(*kir.If)
	if got := ifOp.Then.Res[0].String(); got != "n" {
		t.Errorf("got then-result %s but want n", got)
	}
}
