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

// Package uname generates names that are unique across a compilation unit.
package uname

import (
	"fmt"

	"golang.org/x/exp/maps"
)

// Unique generates unique names. A single instance is owned by the
// compilation driver and threaded through every pass that binds new
// variables or memory blocks, so that generated names never collide,
// neither with each other nor with names already present in the program.
type Unique struct {
	next map[string]int
}

// New returns a name generator with no name registered.
func New() *Unique {
	return &Unique{next: make(map[string]int)}
}

// Register marks a name as taken. Names bound by the source program are
// registered before any pass runs.
func (u *Unique) Register(name string) {
	if _, taken := u.next[name]; !taken {
		u.next[name] = 0
	}
}

// Taken returns every registered or generated name, in no particular
// order.
func (u *Unique) Taken() []string {
	return maps.Keys(u.next)
}

// Fresh returns an unused name built from the given root. The root itself
// is returned if it is still available; otherwise a numeric suffix is
// appended.
func (u *Unique) Fresh(root string) string {
	n, taken := u.next[root]
	if !taken {
		u.next[root] = 0
		return root
	}
	for {
		n++
		name := fmt.Sprintf("%s_%d", root, n)
		if _, in := u.next[name]; !in {
			u.next[root] = n
			u.next[name] = 0
			return name
		}
	}
}
