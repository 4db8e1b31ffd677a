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

import "errors"

// Domain validation errors
var (
	// ErrInvalidTag indicates a tag name failed validation.
	ErrInvalidTag = errors.New("invalid tag name")

	// ErrInvalidAttrName indicates an attribute name failed validation.
	ErrInvalidAttrName = errors.New("invalid attribute name")

	// ErrNotFound indicates a selector or path matched no nodes.
	ErrNotFound = errors.New("no matching nodes")

	// ErrInvalidNode indicates a node reference outside the tree arena.
	ErrInvalidNode = errors.New("invalid node reference")
)
