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
	"github.com/gx-org/backend/dtype"

	"github.com/segc-org/segc/base/ordered"
	"github.com/segc-org/segc/kir"
	"github.com/segc-org/segc/kir/exp"
	"github.com/segc-org/segc/kir/layout"
)

// coords is the coordinate space of the kernel region being expanded.
type coords struct {
	// count references the host-level binding of the number of
	// slices the shared buffer is cut into: the thread count for a
	// thread-level region, the group count for a group-level one.
	count exp.Expr

	// flat references the region's flat position, bounded by count.
	flat exp.Expr
}

// expandInvariant hoists allocations whose size is the same for every
// thread. Each block becomes one shared buffer of size size * count,
// allocated before the kernel launch under the block's original name,
// with each thread or group addressing a disjoint contiguous slice of
// it.
func (t *transformer) expandInvariant(allocs *ordered.Map[string, allocInfo], inside *exp.NameSet, cs coords) ([]*kir.Stmt, *ordered.Map[string, rebaseFn], error) {
	var stms []*kir.Stmt
	rebases := ordered.NewMap[string, rebaseFn]()
	for mem, info := range allocs.Iter() {
		if variantSize(info, inside) {
			return nil, nil, errors.Errorf("allocation of %s has a thread-variant size %s in the invariant expander", mem, info.size)
		}
		total := t.names.Fresh(mem + "_total")
		stms = append(stms,
			&kir.Stmt{
				Pat: kir.Pattern{{Name: total, Type: &kir.Scalar{T: dtype.Int64}}},
				Op:  &kir.ExpOp{E: exp.NewMul(info.size, cs.count)},
			},
			&kir.Stmt{
				Pat: kir.Pattern{{Name: mem, Type: &kir.Mem{Space: info.space}}},
				Op:  &kir.Alloc{Size: exp.V(total), Space: info.space},
			})
		rebases.Store(mem, invariantRebase(cs))
	}
	return stms, rebases, nil
}

// invariantRebase returns the rebase function of an invariant block:
// a dense index function with the thread dimension outermost, sliced
// at the current thread's flat id. Each thread addresses exactly the
// region its per-thread shape used to occupy.
func invariantRebase(cs coords) rebaseFn {
	return func(oldBase []exp.Expr, _ dtype.DataType) (*layout.IndexFn, error) {
		dims := append([]exp.Expr{cs.count}, oldBase...)
		specs := []layout.SliceSpec{&layout.DimFix{I: cs.flat}}
		for _, d := range oldBase {
			specs = append(specs, layout.FullRange(d))
		}
		return layout.Iota(dims).Slice(specs...)
	}
}
