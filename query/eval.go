package query

import (
	"sort"

	"github.com/poiesic/manifest/core"
)

// Evaluate runs the query against t. The context node is always the root.
// Matches come back in document order, deduplicated; no match returns nil.
func (q *Query) Evaluate(t *core.Tree) []core.NodeID {
	if t == nil || !t.Valid(t.Root) {
		return nil
	}
	ctx := []core.NodeID{t.Root}
	for i, step := range q.Steps {
		var next []core.NodeID
		seen := make(map[core.NodeID]struct{})
		for _, c := range ctx {
			for _, id := range step.apply(t, c, i == 0 && q.Rooted) {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				next = append(next, id)
			}
		}
		if len(next) == 0 {
			return nil
		}
		ctx = next
	}
	return documentOrder(t, ctx)
}

// Resolve parses s and evaluates it against t in one call.
func Resolve(t *core.Tree, s string) ([]core.NodeID, error) {
	q, err := Parse(s)
	if err != nil {
		return nil, err
	}
	return q.Evaluate(t), nil
}

// apply selects this step's matches for one context node. matchSelf is set
// for the first step of a rooted query, where the step names the root
// itself rather than its children.
func (s Step) apply(t *core.Tree, c core.NodeID, matchSelf bool) []core.NodeID {
	var pool []core.NodeID
	switch {
	case s.Descendant:
		t.Walk(c, func(id core.NodeID) bool {
			if id != c {
				pool = append(pool, id)
			}
			return true
		})
	case matchSelf:
		pool = []core.NodeID{c}
	default:
		pool = t.Node(c).Children
	}

	var matched []core.NodeID
	for _, id := range pool {
		if s.Tag == "*" || t.Node(id).Tag == s.Tag {
			matched = append(matched, id)
		}
	}
	for _, p := range s.Preds {
		matched = p.filter(t, matched)
		if len(matched) == 0 {
			return nil
		}
	}
	return matched
}

// filter narrows ids to the entries satisfying the predicate. Position
// indexes ids as they stand, so stacked predicates compose left to right.
func (p Pred) filter(t *core.Tree, ids []core.NodeID) []core.NodeID {
	switch p.Kind {
	case AttrEq:
		var out []core.NodeID
		for _, id := range ids {
			if v, ok := t.Node(id).Attrs[p.Key]; ok && v == p.Value {
				out = append(out, id)
			}
		}
		return out
	case AttrPresent:
		var out []core.NodeID
		for _, id := range ids {
			if _, ok := t.Node(id).Attrs[p.Key]; ok {
				out = append(out, id)
			}
		}
		return out
	case Position:
		if p.Pos > len(ids) {
			return nil
		}
		return ids[p.Pos-1 : p.Pos]
	}
	return nil
}

// documentOrder sorts ids by preorder position. Per-context matching can
// emit nested descendant matches out of order, so the final set is ranked
// against a fresh walk.
func documentOrder(t *core.Tree, ids []core.NodeID) []core.NodeID {
	if len(ids) < 2 {
		return ids
	}
	rank := make(map[core.NodeID]int, len(t.Nodes))
	pos := 0
	t.Walk(t.Root, func(id core.NodeID) bool {
		rank[id] = pos
		pos++
		return true
	})
	sort.Slice(ids, func(i, j int) bool { return rank[ids[i]] < rank[ids[j]] })
	return ids
}
