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

package fmt_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	gfmt "github.com/segc-org/segc/base/fmt"
)

func TestIndent(t *testing.T) {
	tests := []struct {
		skip      int
		src, want string
	}{
		{
			src:  "a\nb\n",
			want: "\ta\n\tb\n",
		},
		{
			skip: 1,
			src:  "a {\nb\n",
			want: "a {\n\tb\n",
		},
		{
			src:  "",
			want: "",
		},
	}
	for i, test := range tests {
		got := gfmt.IndentSkip(test.skip, test.src)
		if got != test.want {
			t.Errorf("test %d: got:\n%s\nbut want:\n%s\ndiff:\n%s", i, got, test.want, cmp.Diff(got, test.want))
		}
	}
}
