package core

import (
	"fmt"
	"maps"
)

// NodeID indexes a node in a Tree arena.
type NodeID int

// NoNode marks the absence of a node reference (the root's parent).
const NoNode NodeID = -1

// RootTag is the fixed tag of freshly created documents.
const RootTag = "manifest"

// Node is a tagged entry in the document tree.
// Attrs are semantically unordered and always serialized in sorted key
// order. Parent is navigation only, never ownership.
type Node struct {
	Tag      string
	Attrs    map[string]string
	Text     string
	Parent   NodeID
	Children []NodeID // order is significant and preserved
}

// ID returns the node's id attribute, or "" when absent.
func (n *Node) ID() string {
	return n.Attrs["id"]
}

// Tree is an arena of nodes with a single root.
// Detached subtrees remain in the arena as unreachable orphans; every
// serialization walks from the root, so orphans are never persisted and a
// snapshot restore yields a compacted arena.
type Tree struct {
	Nodes []Node
	Root  NodeID
}

// NewTree creates a tree holding only the manifest root.
func NewTree() *Tree {
	return &Tree{
		Nodes: []Node{{Tag: RootTag, Parent: NoNode}},
		Root:  0,
	}
}

// Node returns the arena entry for id.
// The pointer is invalidated by the next AppendChild.
func (t *Tree) Node(id NodeID) *Node {
	return &t.Nodes[id]
}

// Valid reports whether id references an arena entry.
func (t *Tree) Valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.Nodes)
}

// AppendChild adds n as the last child of parent and returns its index.
// Parent and Children on n are ignored; a new node always starts as a leaf.
func (t *Tree) AppendChild(parent NodeID, n Node) NodeID {
	id := NodeID(len(t.Nodes))
	n.Parent = parent
	n.Children = nil
	t.Nodes = append(t.Nodes, n)
	p := &t.Nodes[parent]
	p.Children = append(p.Children, id)
	return id
}

// Detach removes id from its parent's child list. The subtree stays in the
// arena but becomes unreachable from the root.
func (t *Tree) Detach(id NodeID) error {
	if !t.Valid(id) {
		return ErrInvalidNode
	}
	if id == t.Root {
		return fmt.Errorf("%w: cannot detach the root", ErrInvalidNode)
	}
	n := &t.Nodes[id]
	if n.Parent == NoNode {
		return nil
	}
	p := &t.Nodes[n.Parent]
	for i, c := range p.Children {
		if c == id {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			break
		}
	}
	n.Parent = NoNode
	return nil
}

// Move detaches id and appends it as the last child of newParent.
func (t *Tree) Move(id, newParent NodeID) error {
	if !t.Valid(newParent) {
		return ErrInvalidNode
	}
	if err := t.Detach(id); err != nil {
		return err
	}
	t.Nodes[id].Parent = newParent
	p := &t.Nodes[newParent]
	p.Children = append(p.Children, id)
	return nil
}

// Graft deep-copies the subtree rooted at src in from under parent and
// returns the new subtree root.
func (t *Tree) Graft(parent NodeID, from *Tree, src NodeID) NodeID {
	srcNode := from.Nodes[src]
	id := t.AppendChild(parent, Node{
		Tag:   srcNode.Tag,
		Attrs: maps.Clone(srcNode.Attrs),
		Text:  srcNode.Text,
	})
	for _, c := range srcNode.Children {
		t.Graft(id, from, c)
	}
	return id
}

// Walk visits the subtree rooted at from in document (preorder) order.
// Returning false from fn stops the walk.
func (t *Tree) Walk(from NodeID, fn func(NodeID) bool) {
	if !t.Valid(from) {
		return
	}
	t.walk(from, fn)
}

func (t *Tree) walk(id NodeID, fn func(NodeID) bool) bool {
	if !fn(id) {
		return false
	}
	for _, c := range t.Nodes[id].Children {
		if !t.walk(c, fn) {
			return false
		}
	}
	return true
}

// IDs collects every id attribute reachable from the root.
func (t *Tree) IDs() map[string]struct{} {
	ids := make(map[string]struct{})
	t.Walk(t.Root, func(id NodeID) bool {
		if v := t.Nodes[id].ID(); v != "" {
			ids[v] = struct{}{}
		}
		return true
	})
	return ids
}

// Count returns the number of nodes reachable from the root.
func (t *Tree) Count() int {
	n := 0
	t.Walk(t.Root, func(NodeID) bool {
		n++
		return true
	})
	return n
}

// SetAttr sets an attribute on id, allocating the map on first use.
func (t *Tree) SetAttr(id NodeID, key, value string) {
	n := &t.Nodes[id]
	if n.Attrs == nil {
		n.Attrs = make(map[string]string)
	}
	n.Attrs[key] = value
}

// NodeSpec describes node content supplied to add and edit operations.
// Topic, Status, Resp, and Due fold into the attributes of the same name
// when non-empty. A nil Text leaves existing text untouched on edit.
type NodeSpec struct {
	Tag    string
	ID     string
	Topic  string
	Status string
	Resp   string
	Due    string
	Text   *string
	Attrs  map[string]string
}

// XMLAttrs merges the well-known fields into a copy of Attrs.
func (s *NodeSpec) XMLAttrs() map[string]string {
	a := make(map[string]string, len(s.Attrs)+4)
	maps.Copy(a, s.Attrs)
	if s.Topic != "" {
		a["topic"] = s.Topic
	}
	if s.Status != "" {
		a["status"] = s.Status
	}
	if s.Resp != "" {
		a["resp"] = s.Resp
	}
	if s.Due != "" {
		a["due"] = s.Due
	}
	return a
}

// Status is the advisory task-status vocabulary.
// The core never enforces it; callers may warn on unknown values.
type Status string

const (
	StatusActive    Status = "active"
	StatusDone      Status = "done"
	StatusPending   Status = "pending"
	StatusBlocked   Status = "blocked"
	StatusCancelled Status = "cancelled"
)

// KnownStatus reports whether s belongs to the standard vocabulary.
func KnownStatus(s string) bool {
	switch Status(s) {
	case StatusActive, StatusDone, StatusPending, StatusBlocked, StatusCancelled:
		return true
	}
	return false
}

// Result is the uniform outcome of repository operations.
type Result struct {
	OK      bool
	Message string
	Data    map[string]any
}

// Success returns a successful Result.
func Success(message string) Result {
	return Result{OK: true, Message: message}
}

// SuccessData returns a successful Result carrying data.
func SuccessData(message string, data map[string]any) Result {
	return Result{OK: true, Message: message, Data: data}
}

// Failure returns a failed Result.
func Failure(message string) Result {
	return Result{Message: message}
}

// FailureData returns a failed Result carrying data, such as the candidate
// list of an ambiguous id prefix.
func FailureData(message string, data map[string]any) Result {
	return Result{Message: message, Data: data}
}
