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


package manifest

import (
	"fmt"
	"strings"

	"github.com/poiesic/manifest/core"
	"github.com/poiesic/manifest/query"
)

// SelectorKind says how a user-supplied token addresses nodes. A token is
// classified exactly once; everything downstream dispatches on the kind
// instead of re-sniffing the string.
type SelectorKind int

const (
	// SelectorQuery treats the token as a structural query expression.
	SelectorQuery SelectorKind = iota

	// SelectorExactID is a token found verbatim in the id index.
	SelectorExactID

	// SelectorPrefix is a short hex token resolved against indexed ids.
	SelectorPrefix
)

// Classify decides the kind of token. Query syntax wins outright, a
// verbatim index hit beats shape guessing, and anything that is not a
// short hex string falls back to being a query.
func (r *Repository) Classify(token string) SelectorKind {
	if query.ContainsSyntax(token) {
		return SelectorQuery
	}
	if r.index != nil && r.index.Exists(token) {
		return SelectorExactID
	}
	if query.IsPrefixShaped(token) {
		return SelectorPrefix
	}
	return SelectorQuery
}

// ResolveSelector turns a token into a runnable query. On success Data
// carries "query", plus "id" when the token resolved through the index. An
// ambiguous prefix fails with Data["candidates"]; picking one is the
// caller's job.
func (r *Repository) ResolveSelector(token string) (core.Result, error) {
	switch r.Classify(token) {
	case SelectorExactID:
		path, _ := r.index.Get(token)
		return core.SuccessData("Matched ID: "+token,
			map[string]any{"query": path, "id": token}), nil

	case SelectorPrefix:
		if r.index == nil {
			// A full-length id still works without an index; it just
			// costs a tree scan instead of a lookup.
			if len(token) == core.IDLength && core.IsHex(token) {
				q := fmt.Sprintf("//*[@id='%s']", token)
				return core.SuccessData("Matched ID: "+token,
					map[string]any{"query": q, "id": token}), nil
			}
			return core.Failure("ID index not enabled; cannot resolve id prefixes."), nil
		}
		return r.ResolvePrefix(token)

	default:
		return core.SuccessData("", map[string]any{"query": token}), nil
	}
}

// ResolvePrefix finds indexed ids starting with prefix. Exactly one match
// resolves automatically; several come back as a sorted candidate list for
// the caller to disambiguate.
func (r *Repository) ResolvePrefix(prefix string) (core.Result, error) {
	if r.index == nil {
		return core.Failure("ID index not enabled; cannot resolve id prefixes."), nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return core.Failure("Empty search prefix."), nil
	}

	var matches []string
	for _, id := range r.index.AllIDs() {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return core.Failure(fmt.Sprintf("No IDs starting with '%s'", prefix)), nil
	case 1:
		id := matches[0]
		path, _ := r.index.Get(id)
		return core.SuccessData("Matched ID: "+id,
			map[string]any{"query": path, "id": id}), nil
	default:
		return core.FailureData(fmt.Sprintf("Multiple IDs match '%s'", prefix),
			map[string]any{"candidates": matches}), nil
	}
}

func queryError(q string, err error) string {
	return fmt.Sprintf("Invalid query expression: %s\nError: %v", q, err)
}
