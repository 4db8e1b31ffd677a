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


package storage

import (
	"github.com/mus-format/mus-go/ord"

	"github.com/poiesic/manifest/core"
)

// MarshalTree serializes the reachable tree to bytes.
func MarshalTree(t *core.Tree) []byte {
	buf := make([]byte, core.TreeMUS.Size(t))
	core.TreeMUS.Marshal(t, buf)
	return buf
}

// UnmarshalTree deserializes a tree from bytes. The arena comes back
// compacted in preorder.
func UnmarshalTree(data []byte) (*core.Tree, error) {
	t, _, err := core.TreeMUS.Unmarshal(data)
	return t, err
}

// MarshalPath serializes a structural path to bytes.
func MarshalPath(path string) []byte {
	buf := make([]byte, ord.String.Size(path))
	ord.String.Marshal(path, buf)
	return buf
}

// UnmarshalPath deserializes a structural path from bytes.
func UnmarshalPath(data []byte) (string, error) {
	path, _, err := ord.String.Unmarshal(data)
	return path, err
}
