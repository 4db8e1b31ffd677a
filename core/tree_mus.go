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


package core

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// TreeMUS serializes the reachable tree in a nested preorder binary form.
// Children are inlined under their parent, so orphaned arena entries are
// dropped on Marshal and indices come back renumbered from Unmarshal.
// Maintained by hand: the nesting and renumbering cannot be derived from
// the struct layout.
var TreeMUS = treeMUS{}

type treeMUS struct{}

// Marshal writes t into bs, which must hold at least Size(t) bytes.
// Returns the number of bytes written.
func (s treeMUS) Marshal(t *Tree, bs []byte) (n int) {
	return s.marshalNode(t, t.Root, bs)
}

func (s treeMUS) marshalNode(t *Tree, id NodeID, bs []byte) (n int) {
	node := &t.Nodes[id]
	n = ord.String.Marshal(node.Tag, bs)
	n += ord.String.Marshal(node.Text, bs[n:])
	keys := sortedKeys(node.Attrs)
	n += varint.Int.Marshal(len(keys), bs[n:])
	for _, k := range keys {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(node.Attrs[k], bs[n:])
	}
	n += varint.Int.Marshal(len(node.Children), bs[n:])
	for _, c := range node.Children {
		n += s.marshalNode(t, c, bs[n:])
	}
	return n
}

// Size returns the encoded size of the reachable tree.
func (s treeMUS) Size(t *Tree) (size int) {
	return s.sizeNode(t, t.Root)
}

func (s treeMUS) sizeNode(t *Tree, id NodeID) (size int) {
	node := &t.Nodes[id]
	size = ord.String.Size(node.Tag)
	size += ord.String.Size(node.Text)
	size += varint.Int.Size(len(node.Attrs))
	for k, v := range node.Attrs {
		size += ord.String.Size(k)
		size += ord.String.Size(v)
	}
	size += varint.Int.Size(len(node.Children))
	for _, c := range node.Children {
		size += s.sizeNode(t, c)
	}
	return size
}

// Unmarshal rebuilds a tree from bs. The arena comes back compacted, with
// the root at index 0 and children in preorder.
func (s treeMUS) Unmarshal(bs []byte) (t *Tree, n int, err error) {
	t = &Tree{}
	root, n, err := s.unmarshalNode(t, NoNode, bs)
	if err != nil {
		return nil, n, err
	}
	t.Root = root
	return t, n, nil
}

func (s treeMUS) unmarshalNode(t *Tree, parent NodeID, bs []byte) (id NodeID, n int, err error) {
	tag, n, err := ord.String.Unmarshal(bs)
	if err != nil {
		return NoNode, n, err
	}
	var n1 int
	text, n1, err := ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return NoNode, n, err
	}
	attrCount, n1, err := varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return NoNode, n, err
	}
	if attrCount < 0 {
		return NoNode, n, fmt.Errorf("negative attribute count %d", attrCount)
	}
	var attrs map[string]string
	if attrCount > 0 {
		attrs = make(map[string]string, attrCount)
	}
	for i := 0; i < attrCount; i++ {
		var k, v string
		k, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return NoNode, n, err
		}
		v, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return NoNode, n, err
		}
		attrs[k] = v
	}
	childCount, n1, err := varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return NoNode, n, err
	}
	if childCount < 0 {
		return NoNode, n, fmt.Errorf("negative child count %d", childCount)
	}

	id = NodeID(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{Tag: tag, Text: text, Attrs: attrs, Parent: parent})
	for i := 0; i < childCount; i++ {
		var cid NodeID
		cid, n1, err = s.unmarshalNode(t, id, bs[n:])
		n += n1
		if err != nil {
			return NoNode, n, err
		}
		t.Nodes[id].Children = append(t.Nodes[id].Children, cid)
	}
	return id, n, nil
}
