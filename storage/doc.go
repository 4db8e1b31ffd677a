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


// Package storage provides document persistence and the ID index for
// manifest.
//
// Two concerns live here. Backend moves raw document bytes between memory
// and disk, dispatching on the path suffix between plain files and sealed
// archives. IDIndex maps node identifiers to structural paths so that a
// short id can stand in for a full query; it is persisted through an
// IndexStore, either a JSON sidecar next to the document or a badger
// database (see the badger subpackage).
//
// # Sealed archives
//
// Paths ending in the archive suffix are written as a single-entry
// container: the document is zstd-compressed, then encrypted with
// AES-256-GCM under an argon2id-derived key. Both reading and writing an
// archive require a password; a missing password, a wrong password, and a
// corrupted container all surface as ErrPasswordRequired because GCM
// cannot tell them apart.
//
// # Index durability
//
// The index tracks a dirty flag and persists only on Flush. Verification
// treats the first unresolvable entry as whole-index corruption and hands
// the decision to a RepairOptions policy; every path that chooses to
// rebuild also flushes immediately, so a repaired index never lingers
// stale on disk.
//
// # Usage
//
// Load and save a document:
//
//	backend := storage.NewBackend(logger)
//	data, err := backend.Load("plan.xml", "")
//	...
//	err = backend.Save("plan.mar", data, password)
//
// Open the index for a document:
//
//	store := storage.NewSidecarStore(storage.SidecarPath("plan.xml"), logger)
//	idx := storage.NewIDIndex(store, logger)
//	path, ok := idx.Get("a3f7b2c1")
package storage
