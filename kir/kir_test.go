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

package kir_test

import (
	"testing"

	"github.com/gx-org/backend/dtype"

	"github.com/segc-org/segc/kir"
	"github.com/segc-org/segc/kir/exp"
	"github.com/segc-org/segc/kir/layout"
)

func scalarStmt(name string, e exp.Expr) *kir.Stmt {
	return &kir.Stmt{
		Pat: kir.Pattern{{Name: name, Type: &kir.Scalar{T: dtype.Int64}}},
		Op:  &kir.ExpOp{E: e},
	}
}

func TestStmtString(t *testing.T) {
	tests := []struct {
		stmt *kir.Stmt
		want string
	}{
		{
			stmt: scalarStmt("n", exp.NewMul(exp.V("k"), exp.I64(8))),
			want: "let n: int64 = (k * 8)",
		},
		{
			stmt: &kir.Stmt{
				Pat: kir.Pattern{{Name: "mem", Type: &kir.Mem{Space: kir.SpaceGlobal}}},
				Op:  &kir.Alloc{Size: exp.I64(64), Space: kir.SpaceGlobal},
			},
			want: "let mem: mem@global = alloc(64, @global)",
		},
	}
	for i, test := range tests {
		if got := test.stmt.String(); got != test.want {
			t.Errorf("test %d: got %q but want %q", i, got, test.want)
		}
	}
}

func TestArrayTypeString(t *testing.T) {
	arr := &kir.Array{
		Elem:  dtype.Float32,
		Shape: []exp.Expr{exp.V("n")},
		Bind: &kir.MemBind{
			Mem: "mem",
			Fn:  layout.Iota([]exp.Expr{exp.V("n")}),
		},
	}
	want := "[n]float32@mem->iota([n])"
	if got := arr.String(); got != want {
		t.Errorf("got %q but want %q", got, want)
	}
}

func TestArrayConcrete(t *testing.T) {
	arr := &kir.Array{
		Elem:  dtype.Float32,
		Shape: []exp.Expr{exp.V("n"), exp.I64(4)},
	}
	sh, err := arr.Concrete(map[string]int64{"n": 3})
	if err != nil {
		t.Fatalf("Concrete: %v", err)
	}
	if got, want := sh.Size(), 12; got != want {
		t.Errorf("got %d elements but want %d", got, want)
	}
	if got, want := sh.Size()*dtype.Sizeof(sh.DType), 48; got != want {
		t.Errorf("got %d bytes but want %d", got, want)
	}
	if _, err := arr.Concrete(nil); err == nil {
		t.Errorf("Concrete succeeded with n unbound, want an error")
	}
}

func TestRefs(t *testing.T) {
	stmt := &kir.Stmt{
		Pat: kir.Pattern{{Name: "xs", Type: &kir.Array{
			Elem:  dtype.Float32,
			Shape: []exp.Expr{exp.V("n")},
			Bind:  &kir.MemBind{Mem: "mem", Fn: layout.Iota([]exp.Expr{exp.V("n")})},
		}}},
		Op: &kir.Apply{Fn: "scratch", Args: []exp.Expr{exp.V("n"), exp.V("x")}},
	}
	refs := exp.NewNameSet()
	kir.Refs(stmt, refs)
	for _, name := range []string{"n", "x", "mem"} {
		if !refs.Has(name) {
			t.Errorf("references are missing %s", name)
		}
	}
	if refs.Has("xs") {
		t.Errorf("bound name xs reported as a reference")
	}
}

func TestBound(t *testing.T) {
	body := &kir.Body{
		Stms: []*kir.Stmt{
			scalarStmt("n", exp.I64(3)),
			{Op: &kir.SegOp{
				Kind:  kir.SegMap,
				Grid:  kir.Grid{NumGroups: exp.I64(4), GroupSize: exp.I64(32)},
				Space: kir.SegSpace{Dims: []kir.SegDim{{VName: "i", Size: exp.V("n")}}, Flat: "phi"},
				Body: &kir.Body{
					Stms: []*kir.Stmt{scalarStmt("y", exp.V("i"))},
				},
			}},
		},
	}
	bound := exp.NewNameSet()
	kir.Bound(body, bound)
	for _, name := range []string{"n", "i", "phi", "y"} {
		if !bound.Has(name) {
			t.Errorf("bound names are missing %s", name)
		}
	}
	if bound.Size() != 4 {
		t.Errorf("got %d bound names but want 4", bound.Size())
	}
}
