// Copyright 2025 Poiesic Systems
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


package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/manifest/core"
)

// querySyntaxChars mark a selector token as a structural query rather than
// an id or an id prefix.
const querySyntaxChars = `/[]@*='"`

// BuildPath returns the absolute expression locating id, one step per
// ancestor. Steps carrying an id attribute become tag[@id='x']; the rest
// stay bare tags. Bare intermediate steps tolerate sibling ambiguity
// because the leaf predicate narrows the match.
func BuildPath(t *core.Tree, id core.NodeID) string {
	var steps []string
	for cur := id; cur != core.NoNode; cur = t.Node(cur).Parent {
		n := t.Node(cur)
		step := n.Tag
		if v := n.ID(); v != "" {
			step = fmt.Sprintf("%s[@id='%s']", n.Tag, v)
		}
		steps = append(steps, step)
	}
	slices.Reverse(steps)
	return "/" + strings.Join(steps, "/")
}

// ContainsSyntax reports whether s contains query syntax characters.
func ContainsSyntax(s string) bool {
	return strings.ContainsAny(s, querySyntaxChars)
}

// IsPrefixShaped reports whether s looks like a truncated generated id:
// three to eight hex digits and no query syntax.
func IsPrefixShaped(s string) bool {
	if len(s) < 3 || len(s) > core.IDLength {
		return false
	}
	return !ContainsSyntax(s) && core.IsHex(s)
}
