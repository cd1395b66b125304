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

import "fmt"

// Kind classifies why the pass cannot expand a program. Every kind is
// a limitation of the pass, not an error in the source program.
type Kind int

// Expansion failure kinds.
const (
	// NestedAllocation: an allocation appears inside a synthesized
	// size-computation kernel.
	NestedAllocation Kind = iota

	// VariantGroupAllocation: a group-level kernel region holds an
	// allocation with a thread-variant size. No per-thread offset
	// scheme exists at that granularity.
	VariantGroupAllocation

	// ExistentialMemory: a memory block bound only by a branch
	// context would need expansion inside a kernel.
	ExistentialMemory

	// UnrepresentableMemoryType: a type needed by a synthesized
	// kernel carries memory information that cannot be stripped to a
	// plain value type.
	UnrepresentableMemoryType

	// UnhandledOperator: an operator with no expansion rule appears
	// in a position requiring one.
	UnhandledOperator
)

var kindStrings = map[Kind]string{
	NestedAllocation:          "allocation inside a size-computation kernel",
	VariantGroupAllocation:    "thread-variant allocation in a group-level region",
	ExistentialMemory:         "expansion of an existential memory block",
	UnrepresentableMemoryType: "memory-carrying type cannot be stripped",
	UnhandledOperator:         "operator has no expansion rule",
}

// String representation of the kind.
func (k Kind) String() string {
	s, ok := kindStrings[k]
	if !ok {
		return fmt.Sprintf("expansion failure(%d)", int(k))
	}
	return s
}

// Error is an expansion failure. The branch-equivalence fallback may
// discard an Error raised while trial-expanding one arm of an
// equivalence-marked conditional; everywhere else, an Error aborts the
// compiler stage.
type Error struct {
	Kind Kind
	Msg  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("cannot expand allocations: %s: %s", e.Kind, e.Msg)
}

func errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
