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


// Package query implements the structural query language used for
// searches, sidecar path expressions, and selector resolution.
//
// The language is a small XPath-like subset:
//
//	/manifest/task                absolute path from the root
//	task                          children of the root
//	//task                        descendants anywhere in the tree
//	//task[@status='done']        attribute equality predicate
//	/manifest/*[@id]              wildcard tag, attribute presence
//	group/task[2]                 1-based position among matches
//
// Steps are separated by / (children) or // (descendants); each step is a
// tag name or *, followed by optional [...] predicates applied in order.
// The evaluation context is always the document root.
package query
